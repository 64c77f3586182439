// Package sim models the SoC pieces the mailbox firmware talks to: mailbox
// IP blocks, GIC distributors and the interrupt delivery of each core.
package sim

import (
	"sync"

	"rtps/mailbox"
)

const (
	offConfig    = 0x00
	offIntEnable = 0x04
	offEvent     = 0x08 // cause read, clear write
	offStatus    = 0x0C // status read, set write
	offData      = 0x20
)

type instance struct {
	config    uint32
	intEnable uint32
	status    uint32
	data      [mailbox.MaxWords]uint32
	writes    uint32
}

// Mailbox models one IP block of mailbox.Instances instances
type Mailbox struct {
	mu        sync.Mutex
	base      uintptr
	irqBase   uint32
	raise     func(irq uint32)
	instances [mailbox.Instances]instance
}

// NewMailbox creates a block whose interrupt index i raises irqBase+i
// through raise
func NewMailbox(base uintptr, irqBase uint32, raise func(irq uint32)) *Mailbox {
	return &Mailbox{base: base, irqBase: irqBase, raise: raise}
}

// Base returns the block base address
func (m *Mailbox) Base() uintptr { return m.base }

// IRQBase returns the global IRQ of interrupt index 0
func (m *Mailbox) IRQBase() uint32 { return m.irqBase }

func decode(off uint32) (int, uint32) {
	return int(off / mailbox.InstanceRegion), off % mailbox.InstanceRegion
}

// Read32 implements hal.Bus
func (m *Mailbox) Read32(off uint32) uint32 {
	idx, reg := decode(off)
	if idx >= mailbox.Instances {
		return 0
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	inst := &m.instances[idx]
	switch {
	case reg == offConfig:
		return inst.config
	case reg == offIntEnable:
		return inst.intEnable
	case reg == offEvent, reg == offStatus:
		return inst.status
	case reg >= offData:
		return inst.data[(reg-offData)/4]
	}
	return 0
}

// Write32 implements hal.Bus. Raised interrupts are delivered after the
// block lock is dropped, since handlers access the block again.
func (m *Mailbox) Write32(off uint32, val uint32) {
	idx, reg := decode(off)
	if idx >= mailbox.Instances {
		return
	}

	var irqs []uint32

	m.mu.Lock()
	inst := &m.instances[idx]
	inst.writes++
	switch {
	case reg == offConfig:
		m.writeConfig(inst, val)
	case reg == offIntEnable:
		inst.intEnable = val
	case reg == offEvent:
		inst.status &^= val
	case reg == offStatus:
		inst.status |= val
		irqs = m.routed(inst.intEnable, val)
	case reg >= offData:
		inst.data[(reg-offData)/4] = val
	}
	m.mu.Unlock()

	for _, irq := range irqs {
		m.raise(irq)
	}
}

// writeConfig accepts a write if the instance is free, the owner field is
// unchanged or the write clears the instance
func (m *Mailbox) writeConfig(inst *instance, val uint32) {
	switch {
	case val == 0:
		inst.config = 0
	case inst.config == 0:
		inst.config = val
	case mailbox.ConfigOwner(inst.config) == mailbox.ConfigOwner(val):
		inst.config = val
	}
}

// routed lists the IRQs whose enable bit matches a raised event
func (m *Mailbox) routed(enable, events uint32) []uint32 {
	var irqs []uint32
	for idx := uint32(0); idx < mailbox.IntIndices; idx++ {
		if (events&mailbox.EventA != 0 && enable&mailbox.IntA(idx) != 0) ||
			(events&mailbox.EventB != 0 && enable&mailbox.IntB(idx) != 0) {
			irqs = append(irqs, m.irqBase+idx)
		}
	}
	return irqs
}

// Config returns the configuration register of an instance
func (m *Mailbox) Config(idx uint32) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.instances[idx].config
}

// IntEnable returns the interrupt-enable register of an instance
func (m *Mailbox) IntEnable(idx uint32) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.instances[idx].intEnable
}

// Status returns the event status of an instance
func (m *Mailbox) Status(idx uint32) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.instances[idx].status
}

// Data returns a copy of the data registers of an instance
func (m *Mailbox) Data(idx uint32) [mailbox.MaxWords]uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.instances[idx].data
}

// Writes returns the number of register writes to an instance
func (m *Mailbox) Writes(idx uint32) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.instances[idx].writes
}
