// Package intc enables and disables individual interrupt lines on the
// platform interrupt controller. Reference counting of shared lines is the
// caller's job.
package intc

import (
	"rtps/core"
	"rtps/hal"
)

// Trigger selects how the controller samples a line
type Trigger uint8

const (
	Level Trigger = iota
	Edge
)

// String returns the trigger name for logs
func (t Trigger) String() string {
	if t == Edge {
		return "edge"
	}
	return "level"
}

// Controller is the two operations the mailbox driver needs
type Controller interface {
	Enable(irq uint32, trigger Trigger)
	Disable(irq uint32)
}

// GIC distributor register offsets
const (
	gicdISENABLER = 0x100
	gicdICENABLER = 0x180
	gicdICFGR     = 0xC00

	// SPIOffset maps platform IRQ numbers onto GIC interrupt IDs
	SPIOffset = 32
)

// GIC drives the distributor of an ARM Generic Interrupt Controller
type GIC struct {
	dist hal.Bus
}

// NewGIC wraps a distributor register window
func NewGIC(dist hal.Bus) *GIC {
	return &GIC{dist: dist}
}

func enableReg(intid uint32) (uint32, uint32) {
	return (intid / 32) * 4, 1 << (intid % 32)
}

// Enable programs the trigger type and then sets the enable bit
func (g *GIC) Enable(irq uint32, trigger Trigger) {
	intid := irq + SPIOffset

	cfgOff := gicdICFGR + (intid/16)*4
	cfgBit := uint32(1) << (2*(intid%16) + 1)
	if trigger == Edge {
		hal.SetBits(g.dist, cfgOff, cfgBit)
	} else {
		hal.ClearBits(g.dist, cfgOff, cfgBit)
	}

	off, bit := enableReg(intid)
	// ISENABLER is write-one-to-set
	g.dist.Write32(gicdISENABLER+off, bit)

	if core.IsDebugEnabled() {
		core.DebugPrintln("[GIC] enable irq " + core.Utoa(irq) + " intid " + core.Utoa(intid) + " " + trigger.String())
	}
}

// Disable clears the enable bit; trigger configuration is left as is
func (g *GIC) Disable(irq uint32) {
	intid := irq + SPIOffset
	off, bit := enableReg(intid)
	g.dist.Write32(gicdICENABLER+off, bit)

	if core.IsDebugEnabled() {
		core.DebugPrintln("[GIC] disable irq " + core.Utoa(irq) + " intid " + core.Utoa(intid))
	}
}

// Enabled reports whether irq is enabled, read from the set-enable register
func (g *GIC) Enabled(irq uint32) bool {
	off, bit := enableReg(irq + SPIOffset)
	return g.dist.Read32(gicdISENABLER+off)&bit != 0
}
