package sim

import "sync"

const (
	distISENABLER = 0x100
	distICENABLER = 0x180
	distICFGR     = 0xC00
	distICFGREnd  = distICFGR + 64*4
	maxIntID      = 1020
)

// Distributor models the GIC distributor registers the adapter uses:
// set-enable and clear-enable aliases over one enable bitmap, and trigger
// configuration words
type Distributor struct {
	mu      sync.Mutex
	enabled [maxIntID / 32]uint32
	cfg     [64]uint32
}

// Read32 implements hal.Bus
func (d *Distributor) Read32(off uint32) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case off >= distISENABLER && off < distISENABLER+uint32(len(d.enabled))*4:
		return d.enabled[(off-distISENABLER)/4]
	case off >= distICENABLER && off < distICENABLER+uint32(len(d.enabled))*4:
		return d.enabled[(off-distICENABLER)/4]
	case off >= distICFGR && off < distICFGREnd:
		return d.cfg[(off-distICFGR)/4]
	}
	return 0
}

// Write32 implements hal.Bus
func (d *Distributor) Write32(off uint32, val uint32) {
	d.mu.Lock()
	defer d.mu.Unlock()

	switch {
	case off >= distISENABLER && off < distISENABLER+uint32(len(d.enabled))*4:
		d.enabled[(off-distISENABLER)/4] |= val
	case off >= distICENABLER && off < distICENABLER+uint32(len(d.enabled))*4:
		d.enabled[(off-distICENABLER)/4] &^= val
	case off >= distICFGR && off < distICFGREnd:
		d.cfg[(off-distICFGR)/4] = val
	}
}

// IntIDEnabled reports the enable state of a GIC interrupt ID
func (d *Distributor) IntIDEnabled(intid uint32) bool {
	if intid >= maxIntID {
		return false
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.enabled[intid/32]&(1<<(intid%32)) != 0
}

// Edge reports whether a GIC interrupt ID is configured edge triggered
func (d *Distributor) Edge(intid uint32) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg[intid/16]&(1<<(2*(intid%16)+1)) != 0
}
