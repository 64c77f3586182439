// Package hal abstracts 32-bit register access so that drivers can run
// against real MMIO on the target and against register models on the host.
package hal

// Bus is a window of 32-bit registers addressed by byte offset
type Bus interface {
	// Read32 reads the register at byte offset off
	Read32(off uint32) uint32

	// Write32 writes the register at byte offset off
	Write32(off uint32, val uint32)
}

// Mapper resolves a peripheral base address to its register window.
// Platform base addresses come from configuration, never from this package.
type Mapper interface {
	Map(base uintptr) Bus
}

// MapperFunc adapts a function to the Mapper interface
type MapperFunc func(base uintptr) Bus

// Map calls f(base)
func (f MapperFunc) Map(base uintptr) Bus {
	return f(base)
}

type window struct {
	bus Bus
	off uint32
}

// Window returns a Bus whose offsets are relative to off within bus
func Window(bus Bus, off uint32) Bus {
	if w, ok := bus.(window); ok {
		return window{bus: w.bus, off: w.off + off}
	}
	return window{bus: bus, off: off}
}

func (w window) Read32(off uint32) uint32 {
	return w.bus.Read32(w.off + off)
}

func (w window) Write32(off uint32, val uint32) {
	w.bus.Write32(w.off+off, val)
}

// SetBits performs a read-modify-write setting mask
func SetBits(bus Bus, off uint32, mask uint32) {
	bus.Write32(off, bus.Read32(off)|mask)
}

// ClearBits performs a read-modify-write clearing mask
func ClearBits(bus Bus, off uint32, mask uint32) {
	bus.Write32(off, bus.Read32(off)&^mask)
}
