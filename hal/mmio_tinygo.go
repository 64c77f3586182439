//go:build tinygo

package hal

import (
	"runtime/volatile"
	"unsafe"
)

// MMIO is a memory-mapped register window starting at a physical address
type MMIO uintptr

func (m MMIO) reg(off uint32) *volatile.Register32 {
	return (*volatile.Register32)(unsafe.Pointer(uintptr(m) + uintptr(off)))
}

// Read32 performs a volatile load
func (m MMIO) Read32(off uint32) uint32 {
	return m.reg(off).Get()
}

// Write32 performs a volatile store
func (m MMIO) Write32(off uint32, val uint32) {
	m.reg(off).Set(val)
}

// Physical maps base addresses directly (flat physical map, MPU identity)
type Physical struct{}

// Map returns the MMIO window at base
func (Physical) Map(base uintptr) Bus {
	return MMIO(base)
}
