// Package mailbox drives the hardware mailbox IP blocks: claiming and
// releasing instances, routing their events to interrupt lines and
// demultiplexing those interrupts back to per-slot callbacks.
package mailbox

import (
	"sync"

	"rtps/core"
	"rtps/hal"
	"rtps/intc"
	"rtps/object"
)

// Direction of a slot relative to this core
type Direction uint8

const (
	Incoming Direction = iota
	Outgoing
)

func (d Direction) String() string {
	if d == Outgoing {
		return "out"
	}
	return "in"
}

// Callback is either a Receive or an Ack
type Callback interface {
	callback()
}

// Receive is invoked from interrupt context with a copy of all data
// registers of an incoming slot. The slice is only valid during the call.
type Receive func(msg []uint32)

// Ack is invoked from interrupt context when the peer acknowledged the last
// message sent on an outgoing slot
type Ack func()

func (Receive) callback() {}
func (Ack) callback()     {}

// SlotConfig selects an instance and how to claim it.
// A non-zero Owner claims ownership and programs Src and Dest; a zero Owner
// claims as a peer and checks the identity fields the owner programmed.
type SlotConfig struct {
	Base     uintptr // IP block base address
	IRQBase  uint32  // global IRQ of interrupt index 0
	Instance uint32
	IntIndex uint32
	Owner    uint32
	Src      uint32
	Dest     uint32
	Dir      Direction
}

// Slot is a claimed mailbox instance
type Slot struct {
	handle   object.Handle
	block    object.Handle
	regs     hal.Bus
	instance uint32
	intIndex uint32
	irq      uint32
	dir      Direction
	owner    bool
	cb       Callback
}

// Instance returns the instance number within the IP block
func (s *Slot) Instance() uint32 { return s.instance }

// IRQ returns the global interrupt number the slot is routed to
func (s *Slot) IRQ() uint32 { return s.irq }

// Direction returns the slot direction
func (s *Slot) Direction() Direction { return s.dir }

// Owner reports whether the slot was claimed as owner
func (s *Slot) Owner() bool { return s.owner }

// block is the per-IP-block record, created on first claim
type block struct {
	base    uintptr
	irqBase uint32
	regs    hal.Bus
	refs    uint32
	subs    [IntIndices]uint32
}

// Config wires a driver to its platform
type Config struct {
	Mapper    hal.Mapper
	Intc      intc.Controller
	Lock      sync.Locker // masks this core's interrupts
	MaxBlocks int
	MaxSlots  int
}

// Driver owns the IP-block and slot tables of one core
type Driver struct {
	mapper hal.Mapper
	intc   intc.Controller
	lock   sync.Locker
	blocks *object.Pool[block]
	slots  *object.Pool[Slot]
}

// NewDriver creates a driver; zero capacities take the defaults
func NewDriver(cfg Config) *Driver {
	if cfg.MaxBlocks == 0 {
		cfg.MaxBlocks = DefaultBlocks
	}
	if cfg.MaxSlots == 0 {
		cfg.MaxSlots = DefaultSlots
	}
	if cfg.Lock == nil {
		cfg.Lock = &core.InterruptLock{}
	}
	return &Driver{
		mapper: cfg.Mapper,
		intc:   cfg.Intc,
		lock:   cfg.Lock,
		blocks: object.NewPool[block]("mbox block", cfg.MaxBlocks),
		slots:  object.NewPool[Slot]("mbox slot", cfg.MaxSlots),
	}
}

// Mask returns the interrupt mask shared with the interrupt handlers
func (d *Driver) Mask() sync.Locker {
	return d.lock
}

// resolveBlock finds or creates the record for base. Caller holds the lock.
func (d *Driver) resolveBlock(base uintptr, irqBase uint32) (object.Handle, *block, error) {
	if h, b, ok := d.blocks.Find(func(b *block) bool { return b.base == base }); ok {
		return h, b, nil
	}
	h, b, err := d.blocks.Alloc()
	if err != nil {
		return 0, nil, ErrPoolExhausted
	}
	b.base = base
	b.irqBase = irqBase
	b.regs = d.mapper.Map(base)
	return h, b, nil
}

// ownedLocally reports another live owner slot on the same instance
func (d *Driver) ownedLocally(self *Slot) bool {
	_, _, ok := d.slots.Find(func(s *Slot) bool {
		return s != self && s.block == self.block && s.instance == self.instance && s.owner
	})
	return ok
}

// Claim negotiates an instance and subscribes its interrupt.
// Receive callbacks go with Incoming slots, Ack callbacks with Outgoing.
func (d *Driver) Claim(cfg SlotConfig, cb Callback) (*Slot, error) {
	if cfg.Instance >= Instances || cfg.IntIndex >= IntIndices {
		return nil, ErrInvalidInstance
	}
	switch cb.(type) {
	case Receive:
		if cfg.Dir != Incoming {
			return nil, ErrInvalidCallback
		}
	case Ack:
		if cfg.Dir != Outgoing {
			return nil, ErrInvalidCallback
		}
	default:
		return nil, ErrInvalidCallback
	}

	if core.IsDebugEnabled() {
		core.DebugPrintln("[MBOX] claim: ip " + core.Hex32(uint32(cfg.Base)) +
			" irq base " + core.Utoa(cfg.IRQBase) +
			" instance " + core.Utoa(cfg.Instance) +
			" int " + core.Utoa(cfg.IntIndex) +
			" owner " + core.Hex32(cfg.Owner) +
			" src " + core.Hex32(cfg.Src) +
			" dest " + core.Hex32(cfg.Dest) +
			" dir " + cfg.Dir.String())
	}

	d.lock.Lock()
	defer d.lock.Unlock()

	sh, s, err := d.slots.Alloc()
	if err != nil {
		return nil, ErrPoolExhausted
	}
	bh, blk, err := d.resolveBlock(cfg.Base, cfg.IRQBase)
	if err != nil {
		d.slots.Free(sh)
		return nil, err
	}

	s.handle = sh
	s.block = bh
	s.regs = hal.Window(blk.regs, InstanceOffset(cfg.Instance))
	s.instance = cfg.Instance
	s.intIndex = cfg.IntIndex
	s.irq = blk.irqBase + cfg.IntIndex
	s.dir = cfg.Dir
	s.owner = cfg.Owner != 0

	if err := d.negotiate(s, cfg); err != nil {
		d.slots.Free(sh)
		if blk.refs == 0 {
			d.blocks.Free(bh)
		}
		return nil, err
	}

	// Callback must be in place before the hardware can route an event
	s.cb = cb

	var ie uint32
	if s.dir == Incoming {
		ie = IntA(s.intIndex)
	} else {
		ie = IntB(s.intIndex)
	}
	hal.SetBits(s.regs, regIntEnable, ie)

	blk.refs++
	if blk.subs[s.intIndex] == 0 {
		d.intc.Enable(s.irq, intc.Edge)
	}
	blk.subs[s.intIndex]++

	core.RecordEvent(core.EvtClaim, s.instance, cfg.Owner, uint32(s.dir))
	return s, nil
}

// negotiate performs the owner write/read-back or the peer identity check
func (d *Driver) negotiate(s *Slot, cfg SlotConfig) error {
	if s.owner {
		if d.ownedLocally(s) {
			return &OwnershipError{Instance: cfg.Instance, Owner: ConfigOwner(s.regs.Read32(regConfig))}
		}

		config := EncodeConfig(cfg.Owner, cfg.Src, cfg.Dest)
		s.regs.Write32(regConfig, config)
		val := s.regs.Read32(regConfig)
		if val != config {
			core.DebugPrintln("[MBOX] failed to claim instance " + core.Utoa(cfg.Instance) +
				" for " + core.Hex32(cfg.Owner) + ": already owned by " + core.Hex32(ConfigOwner(val)))
			return &OwnershipError{Instance: cfg.Instance, Owner: ConfigOwner(val)}
		}
		return nil
	}

	val := s.regs.Read32(regConfig)
	srcHW := ConfigSrc(val)
	destHW := ConfigDest(val)
	if (cfg.Dir == Outgoing && cfg.Src != 0 && srcHW != cfg.Src) ||
		(cfg.Dir == Incoming && cfg.Dest != 0 && destHW != cfg.Dest) {
		core.DebugPrintln("[MBOX] failed to claim instance " + core.Utoa(cfg.Instance) +
			": src/dest " + core.Hex32(srcHW) + "/" + core.Hex32(destHW) +
			" expected " + core.Hex32(cfg.Src) + "/" + core.Hex32(cfg.Dest))
		return ErrIdentityMismatch
	}
	return nil
}

// Release gives the instance back and unsubscribes its interrupt.
// The slot is always freed; a failure to clear ownership is still reported.
func (d *Driver) Release(s *Slot) error {
	if s == nil {
		return ErrInvalidSlot
	}

	d.lock.Lock()
	defer d.lock.Unlock()

	if d.slots.Get(s.handle) != s {
		return ErrInvalidSlot
	}
	blk := d.blocks.Get(s.block)
	core.Assert(blk != nil, "slot without IP block")

	var err error
	if s.owner {
		// Clearing the owner also clears the destination
		s.regs.Write32(regConfig, 0)
		if val := s.regs.Read32(regConfig); val != 0 {
			core.DebugPrintln("[MBOX] release: instance " + core.Utoa(s.instance) + " config " + core.Hex32(val))
			err = ErrReleaseFailed
		}
	}

	if s.dir == Incoming {
		hal.ClearBits(s.regs, regIntEnable, IntA(s.intIndex))
	} else {
		hal.ClearBits(s.regs, regIntEnable, IntB(s.intIndex))
	}

	core.Assert(blk.subs[s.intIndex] > 0, "interrupt refcount underflow")
	blk.subs[s.intIndex]--
	if blk.subs[s.intIndex] == 0 {
		d.intc.Disable(s.irq)
	}

	core.RecordEvent(core.EvtRelease, s.instance, uint32(s.dir), 0)

	blk.refs--
	if blk.refs == 0 {
		for _, n := range blk.subs {
			core.Assert(n == 0, "IP block freed with live subscriptions")
		}
		d.blocks.Free(s.block)
	}
	d.slots.Free(s.handle)
	return err
}

// Send writes msg into the data registers and raises event A.
// It does not wait for the acknowledgement.
func (d *Driver) Send(s *Slot, msg []uint32) error {
	if s == nil {
		return ErrInvalidSlot
	}
	if len(msg) > MaxWords {
		core.DebugPrintln("[MBOX] message too long: " + core.Itoa(len(msg)))
		return ErrMessageTooLong
	}

	for i, w := range msg {
		s.regs.Write32(regData+uint32(i)*4, w)
	}

	var first uint32
	if len(msg) > 0 {
		first = msg[0]
	}
	core.RecordEvent(core.EvtSend, s.instance, uint32(len(msg)), first)
	if core.IsDebugEnabled() {
		core.DebugPrintln("[MBOX] send instance " + core.Utoa(s.instance) + ": " + core.Words(msg))
	}

	s.regs.Write32(regEventSet, EventA)
	return nil
}

// receive services event A on one incoming slot
func (d *Driver) receive(s *Slot) {
	var msg [MaxWords]uint32
	for i := range msg {
		msg[i] = s.regs.Read32(regData + uint32(i)*4)
	}

	// Acknowledge before the callback: a callback may block, and the
	// sender cannot make progress until it sees the ack.
	s.regs.Write32(regEventSet, EventB)

	core.RecordEvent(core.EvtReceive, s.instance, msg[0], s.intIndex)
	if cb, ok := s.cb.(Receive); ok && cb != nil {
		cb(msg[:])
	}

	s.regs.Write32(regEventClear, EventA)
}

// ack services event B on one outgoing slot
func (d *Driver) ack(s *Slot) {
	core.RecordEvent(core.EvtAck, s.instance, s.intIndex, 0)
	if cb, ok := s.cb.(Ack); ok && cb != nil {
		cb()
	}
	s.regs.Write32(regEventClear, EventB)
}

// scan runs the handlers of every slot that raised event on interrupt idx.
// blk restricts the scan to one IP block; a nil blk scans all of them.
func (d *Driver) scan(blk *block, event uint32, idx uint32) {
	var ie uint32
	if event == EventA {
		ie = IntA(idx)
	} else {
		ie = IntB(idx)
	}

	d.slots.Range(func(_ object.Handle, s *Slot) bool {
		if blk != nil && d.blocks.Get(s.block) != blk {
			return true
		}
		if event == EventA && s.dir != Incoming {
			return true
		}
		if event == EventB && s.dir != Outgoing {
			return true
		}
		if s.regs.Read32(regEventCause)&event == 0 {
			return true
		}
		if s.regs.Read32(regIntEnable)&ie == 0 {
			return true
		}
		if event == EventA {
			d.receive(s)
		} else {
			d.ack(s)
		}
		return true
	})
}

// Dispatch is the interrupt-vector entry point. It maps a global IRQ to its
// IP block and interrupt index and services both event kinds. Returns false
// if no claimed block owns the IRQ. Must run with interrupts masked.
func (d *Driver) Dispatch(irq uint32) bool {
	_, blk, ok := d.blocks.Find(func(b *block) bool {
		return irq >= b.irqBase && irq < b.irqBase+IntIndices
	})
	if !ok {
		core.DebugPrintln("[MBOX] no IP block for IRQ #" + core.Utoa(irq))
		return false
	}
	idx := irq - blk.irqBase
	d.scan(blk, EventA, idx)
	d.scan(blk, EventB, idx)
	return true
}

// ReceiveISR services event A for interrupt index idx on every block
func (d *Driver) ReceiveISR(idx uint32) {
	d.scan(nil, EventA, idx)
}

// AckISR services event B for interrupt index idx on every block
func (d *Driver) AckISR(idx uint32) {
	d.scan(nil, EventB, idx)
}

// Subscriptions returns the subscription count of interrupt idx on the block
// at base (zero if the block has no live slots)
func (d *Driver) Subscriptions(base uintptr, idx uint32) uint32 {
	d.lock.Lock()
	defer d.lock.Unlock()

	_, blk, ok := d.blocks.Find(func(b *block) bool { return b.base == base })
	if !ok || idx >= IntIndices {
		return 0
	}
	return blk.subs[idx]
}

// InUse returns the number of claimed slots
func (d *Driver) InUse() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.slots.InUse()
}

// BlocksInUse returns the number of live IP-block records
func (d *Driver) BlocksInUse() int {
	d.lock.Lock()
	defer d.lock.Unlock()
	return d.blocks.InUse()
}
