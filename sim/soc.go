package sim

import (
	"sort"
	"sync"
	"time"

	"rtps/core"
	"rtps/hal"
	"rtps/intc"
)

// SoC connects mailbox blocks to the cores that take their interrupts.
// Every raised IRQ is offered to every core; a core only takes the lines
// enabled in its own distributor.
type SoC struct {
	mu     sync.Mutex
	blocks map[uintptr]*Mailbox
	cores  []*Core
}

// NewSoC creates an empty fabric
func NewSoC() *SoC {
	return &SoC{blocks: make(map[uintptr]*Mailbox)}
}

// AddMailbox places a mailbox IP block at base
func (s *SoC) AddMailbox(base uintptr, irqBase uint32) *Mailbox {
	s.mu.Lock()
	defer s.mu.Unlock()

	m := NewMailbox(base, irqBase, s.Raise)
	s.blocks[base] = m
	return m
}

// Mailbox returns the block at base, or nil
func (s *SoC) Mailbox(base uintptr) *Mailbox {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.blocks[base]
}

// Map implements hal.Mapper over the fabric's blocks
func (s *SoC) Map(base uintptr) hal.Bus {
	m := s.Mailbox(base)
	core.Assert(m != nil, "no device at "+core.Hex32(uint32(base)))
	return m
}

// NewCore attaches a core with its own interrupt controller
func (s *SoC) NewCore(name string) *Core {
	c := &Core{
		name:    name,
		soc:     s,
		dist:    &Distributor{},
		pending: make(map[uint32]bool),
		wake:    make(chan struct{}, 1),
	}
	c.gic = intc.NewGIC(c.dist)

	s.mu.Lock()
	s.cores = append(s.cores, c)
	s.mu.Unlock()
	return c
}

// Raise offers irq to every core
func (s *SoC) Raise(irq uint32) {
	s.mu.Lock()
	cores := make([]*Core, len(s.cores))
	copy(cores, s.cores)
	s.mu.Unlock()

	for _, c := range cores {
		c.Raise(irq)
	}
}

// Core is one processor's view of the SoC: a mapper onto the fabric, a GIC
// and an interrupt mask. Handlers run with the mask held, in whichever
// goroutine delivers them, and never nest.
type Core struct {
	name string
	soc  *SoC
	dist *Distributor
	gic  *intc.GIC

	mask sync.Mutex

	mu      sync.Mutex
	pending map[uint32]bool
	vector  func(irq uint32)
	taken   uint32
	wake    chan struct{}
}

// Name returns the core name
func (c *Core) Name() string { return c.name }

// Mapper returns the core's view of device memory
func (c *Core) Mapper() hal.Mapper { return c.soc }

// Intc returns the GIC adapter driving this core's distributor
func (c *Core) Intc() *intc.GIC { return c.gic }

// Distributor returns the distributor model
func (c *Core) Distributor() *Distributor { return c.dist }

// SetVector installs the interrupt-vector entry point
func (c *Core) SetVector(fn func(irq uint32)) {
	c.mu.Lock()
	c.vector = fn
	c.mu.Unlock()
}

// Lock masks this core's interrupts
func (c *Core) Lock() {
	c.mask.Lock()
}

// Unlock unmasks interrupts and takes whatever became pending meanwhile
func (c *Core) Unlock() {
	c.mask.Unlock()
	c.deliver()
}

// Raise pends irq if the line is enabled and delivers it unless masked
func (c *Core) Raise(irq uint32) {
	if !c.dist.IntIDEnabled(irq + intc.SPIOffset) {
		return
	}
	c.mu.Lock()
	c.pending[irq] = true
	c.mu.Unlock()
	c.deliver()
}

// Pending reports whether irq is waiting for delivery
func (c *Core) Pending(irq uint32) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pending[irq]
}

// Taken returns how many interrupts were delivered
func (c *Core) Taken() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.taken
}

// next pops the lowest pending IRQ
func (c *Core) next() (uint32, func(uint32), bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pending) == 0 {
		return 0, nil, false
	}
	irqs := make([]uint32, 0, len(c.pending))
	for irq := range c.pending {
		irqs = append(irqs, irq)
	}
	sort.Slice(irqs, func(i, j int) bool { return irqs[i] < irqs[j] })
	irq := irqs[0]
	delete(c.pending, irq)
	c.taken++
	return irq, c.vector, true
}

func (c *Core) hasPending() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending) > 0
}

// deliver runs pending handlers if the mask is free. Whoever holds the
// mask rechecks after releasing it, so a raise that loses the race is never
// stranded.
func (c *Core) deliver() {
	for {
		if !c.mask.TryLock() {
			return
		}
		for {
			irq, vector, ok := c.next()
			if !ok {
				break
			}
			if vector != nil {
				vector(irq)
			}
			select {
			case c.wake <- struct{}{}:
			default:
			}
		}
		c.mask.Unlock()
		if !c.hasPending() {
			return
		}
	}
}

// WaitForInterrupt blocks until an interrupt has been taken or timeout
// passes, like WFI with a wakeup timer
func (c *Core) WaitForInterrupt(timeout time.Duration) bool {
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-c.wake:
		return true
	case <-t.C:
		return false
	}
}
