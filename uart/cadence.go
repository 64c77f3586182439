// Package uart drives the Cadence UART of the low-speed I/O block as a
// drivers.UART, for the debug log and the console bridge.
package uart

import (
	"tinygo.org/x/drivers"

	"rtps/hal"
)

// Register offsets
const (
	regCR   = 0x00
	regMR   = 0x04
	regIDR  = 0x0C
	regSR   = 0x2C
	regFIFO = 0x30
)

const (
	crRxRes = 1 << 0
	crTxRes = 1 << 1
	crRxEn  = 1 << 2
	crTxEn  = 1 << 4

	mrNoParity = 0x4 << 3 // 8 data bits, 1 stop bit

	srRxEmpty = 1 << 1
	srTxFull  = 1 << 4
)

// Cadence is a polled UART. The boot code has already programmed the baud
// rate generator.
type Cadence struct {
	bus hal.Bus
}

// NewCadence wraps the registers at bus
func NewCadence(bus hal.Bus) *Cadence {
	return &Cadence{bus: bus}
}

// Configure resets both FIFOs, selects 8N1 and enables the receiver and
// transmitter with all UART interrupts masked
func (u *Cadence) Configure() {
	u.bus.Write32(regCR, crRxRes|crTxRes)
	u.bus.Write32(regMR, mrNoParity)
	u.bus.Write32(regIDR, 0x1FFF)
	u.bus.Write32(regCR, crRxEn|crTxEn)
}

// Buffered reports whether a byte is waiting. The controller has no fill
// level register, so the count is 0 or 1.
func (u *Cadence) Buffered() int {
	if u.bus.Read32(regSR)&srRxEmpty != 0 {
		return 0
	}
	return 1
}

// Read drains up to len(p) received bytes without blocking
func (u *Cadence) Read(p []byte) (int, error) {
	n := 0
	for n < len(p) && u.bus.Read32(regSR)&srRxEmpty == 0 {
		p[n] = byte(u.bus.Read32(regFIFO))
		n++
	}
	return n, nil
}

// Write blocks while the transmit FIFO is full
func (u *Cadence) Write(p []byte) (int, error) {
	for _, b := range p {
		for u.bus.Read32(regSR)&srTxFull != 0 {
		}
		u.bus.Write32(regFIFO, uint32(b))
	}
	return len(p), nil
}

var _ drivers.UART = (*Cadence)(nil)
