// Package link pairs an incoming and an outgoing mailbox slot into a
// request/reply channel with a peer.
//
// On the server side, requests are queued for the main loop and answered by
// the command dispatcher. On the client side, Request sends a command and
// spins until the peer has acknowledged it and replied.
package link

import (
	"errors"
	"sync/atomic"
	"time"

	"rtps/command"
	"rtps/core"
	"rtps/mailbox"
	"rtps/object"
)

// DefaultMaxLinks is the link table capacity
const DefaultMaxLinks = 8

var (
	// ErrTimeout means the peer did not ack or reply within Config.Timeout
	ErrTimeout = errors.New("link: request timed out")

	// ErrServerLink is returned by Request on a server link, whose replies
	// are consumed as commands
	ErrServerLink = errors.New("link: request on a server link")

	// ErrInvalidLink is returned for nil or disconnected links
	ErrInvalidLink = errors.New("link: invalid link")

	// ErrBusy means the previous request is still owed an ack or a reply
	ErrBusy = command.ErrBusy
)

// Role selects what incoming messages are: commands or replies
type Role uint8

const (
	RoleAuto   Role = iota // server when Owner is set
	RoleServer             // incoming messages are commands
	RoleClient             // incoming messages are replies
)

func (r Role) String() string {
	switch r {
	case RoleServer:
		return "server"
	case RoleClient:
		return "client"
	}
	return "auto"
}

// Config describes one link. Ownership and role are independent: Owner
// selects how the slots are claimed and Role what the link does with them.
type Config struct {
	Label       string
	Base        uintptr
	IRQBase     uint32
	InInstance  uint32
	OutInstance uint32
	RcvInt      uint32 // interrupt index for incoming requests/replies
	AckInt      uint32 // interrupt index for acks of our messages
	Owner       uint32 // non-zero claims both instances as owner
	Role        Role
	Local       uint32 // our master ID; defaults to Owner
	Remote      uint32 // peer master ID
	Timeout     time.Duration
}

// Link is a connected channel
type Link struct {
	handle  object.Handle
	label   string
	server  bool
	timeout time.Duration
	in      *mailbox.Slot
	out     *mailbox.Slot
	queue   *command.Queue
	drv     *mailbox.Driver

	ack      command.Ack
	replied  atomic.Bool
	replyLen atomic.Uint32
	req      [mailbox.MaxWords]uint32

	// Shared with handleReply, guarded by the interrupt mask
	reply []uint32
	owed  bool // a timed-out request has a reply still coming
}

// Label returns the configured label
func (l *Link) Label() string { return l.label }

// Server reports whether incoming messages are treated as commands
func (l *Link) Server() bool { return l.server }

// In returns the incoming slot
func (l *Link) In() *mailbox.Slot { return l.in }

// Out returns the outgoing slot
func (l *Link) Out() *mailbox.Slot { return l.out }

// Table holds the links of one core
type Table struct {
	drv   *mailbox.Driver
	queue *command.Queue
	links *object.Pool[Link]
}

// NewTable creates a link table. Server links enqueue their commands on
// queue; a client-only table may pass nil.
func NewTable(drv *mailbox.Driver, queue *command.Queue, capacity int) *Table {
	if capacity == 0 {
		capacity = DefaultMaxLinks
	}
	return &Table{
		drv:   drv,
		queue: queue,
		links: object.NewPool[Link]("mbox link", capacity),
	}
}

// Connect claims both slots and wires their callbacks. If the second claim
// fails the first slot is released again.
func (t *Table) Connect(cfg Config) (*Link, error) {
	server := cfg.Role == RoleServer || (cfg.Role == RoleAuto && cfg.Owner != 0)
	if server && t.queue == nil {
		return nil, errors.New("link: server link needs a command queue")
	}
	local := cfg.Local
	if local == 0 {
		local = cfg.Owner
	}

	h, l, err := t.links.Alloc()
	if err != nil {
		core.DebugPrintln("[LINK] ERROR: failed to allocate link state")
		return nil, mailbox.ErrPoolExhausted
	}
	l.handle = h
	l.label = cfg.Label
	l.server = server
	l.timeout = cfg.Timeout
	l.queue = t.queue
	l.drv = t.drv

	// Outgoing first, so that a request arriving on the incoming slot
	// always finds its reply slot
	l.out, err = t.drv.Claim(mailbox.SlotConfig{
		Base:     cfg.Base,
		IRQBase:  cfg.IRQBase,
		Instance: cfg.OutInstance,
		IntIndex: cfg.AckInt,
		Owner:    cfg.Owner,
		Src:      local,
		Dest:     cfg.Remote,
		Dir:      mailbox.Outgoing,
	}, mailbox.Ack(l.handleAck))
	if err != nil {
		t.links.Free(h)
		return nil, err
	}

	var rcv mailbox.Receive = l.handleReply
	if server {
		rcv = l.handleCommand
	}
	l.in, err = t.drv.Claim(mailbox.SlotConfig{
		Base:     cfg.Base,
		IRQBase:  cfg.IRQBase,
		Instance: cfg.InInstance,
		IntIndex: cfg.RcvInt,
		Owner:    cfg.Owner,
		Src:      cfg.Remote,
		Dest:     local,
		Dir:      mailbox.Incoming,
	}, rcv)
	if err != nil {
		if rerr := t.drv.Release(l.out); rerr != nil {
			core.DebugPrintln("[LINK] release after failed connect: " + rerr.Error())
		}
		t.links.Free(h)
		return nil, err
	}

	core.DebugPrintln("[LINK] connected " + cfg.Label + " as " + roleName(server))
	return l, nil
}

func roleName(server bool) string {
	if server {
		return RoleServer.String()
	}
	return RoleClient.String()
}

// Disconnect releases both slots. Both releases are attempted even if the
// first fails; the last failure is returned.
func (t *Table) Disconnect(l *Link) error {
	if l == nil || t.links.Get(l.handle) != l {
		return ErrInvalidLink
	}

	var err error
	if rerr := t.drv.Release(l.in); rerr != nil {
		err = rerr
	}
	if rerr := t.drv.Release(l.out); rerr != nil {
		err = rerr
	}
	t.links.Free(l.handle)
	return err
}

// Find returns the connected link with label, or nil
func (t *Table) Find(label string) *Link {
	_, l, ok := t.links.Find(func(l *Link) bool { return l.label == label })
	if !ok {
		return nil
	}
	return l
}

// InUse returns the number of connected links
func (t *Table) InUse() int {
	return t.links.InUse()
}

// Request sends opcode and args and blocks until the peer has acknowledged
// the message and replied. Up to len(reply) reply words are stored; the
// number stored is returned.
//
// After ErrTimeout the link returns ErrBusy until the late ack and reply of
// the abandoned request have arrived.
//
// Request spins on flags set by interrupt handlers: it must not be called
// with interrupts masked, and only one Request may be in flight per link.
func (l *Link) Request(opcode uint32, args []uint32, reply []uint32) (int, error) {
	if l == nil || l.out == nil {
		return 0, ErrInvalidLink
	}
	if l.server {
		return 0, ErrServerLink
	}
	if 1+len(args) > mailbox.MaxWords {
		core.DebugPrintln("[LINK] request too long: " + core.Itoa(1+len(args)))
		return 0, mailbox.ErrMessageTooLong
	}

	mask := l.drv.Mask()
	mask.Lock()
	if l.owed {
		mask.Unlock()
		core.DebugPrintln("[LINK] " + l.label + " busy: reply to a timed-out request pending")
		return 0, ErrBusy
	}
	if err := l.ack.Begin(); err != nil {
		mask.Unlock()
		return 0, err
	}
	l.replied.Store(false)
	l.replyLen.Store(0)
	l.reply = reply
	mask.Unlock()

	l.req[0] = opcode
	for i, a := range args {
		l.req[1+i] = a
	}
	if err := l.drv.Send(l.out, l.req[:1+len(args)]); err != nil {
		core.DebugPrintln("[LINK] send failed: " + err.Error())
		l.ack.Cancel()
		l.finish()
		return 0, err
	}

	core.DebugPrintln("[LINK] req: waiting for ACK...")
	if !l.ack.Wait(l.timeout) {
		return l.abandon()
	}
	core.DebugPrintln("[LINK] req: waiting for reply...")
	if !core.WaitFlag(&l.replied, l.timeout) {
		return l.abandon()
	}
	l.finish()

	n := int(l.replyLen.Load())
	if core.IsDebugEnabled() {
		core.DebugPrintln("[LINK] rcved REPLY: " + core.Words(reply[:n]))
	}
	return n, nil
}

// finish detaches the caller's reply buffer
func (l *Link) finish() {
	mask := l.drv.Mask()
	mask.Lock()
	l.reply = nil
	mask.Unlock()
}

// abandon ends a timed-out request. The caller gets its buffer back and the
// reply still owed is dropped on arrival.
func (l *Link) abandon() (int, error) {
	mask := l.drv.Mask()
	mask.Lock()
	defer mask.Unlock()

	l.reply = nil
	if l.replied.Load() {
		// arrived after the wait gave up
		return int(l.replyLen.Load()), nil
	}
	l.owed = true
	core.DebugPrintln("[LINK] request on " + l.label + " timed out")
	return 0, ErrTimeout
}

func (l *Link) handleAck() {
	l.ack.Signal()
}

// handleReply runs in interrupt context on client links
func (l *Link) handleReply(msg []uint32) {
	if l.owed {
		l.owed = false
		core.DebugPrintln("[LINK] dropped late reply on " + l.label)
		return
	}
	n := copy(l.reply, msg)
	l.replyLen.Store(uint32(n))
	l.replied.Store(true)
}

// handleCommand runs in interrupt context on server links. It only queues;
// the dispatcher answers from the main loop.
func (l *Link) handleCommand(msg []uint32) {
	var cmd command.Command
	cmd.Opcode = msg[0]
	for i := 0; i < command.MaxArgs && i < len(msg)-1; i++ {
		cmd.Args[i] = msg[1+i]
	}
	cmd.Reply = l.out
	cmd.Acked = &l.ack

	if core.IsDebugEnabled() {
		core.DebugPrintln("[LINK] rcved CMD (" + core.Utoa(cmd.Opcode) + ", " + core.Utoa(cmd.Args[0]) + " ...) on " + l.label)
	}
	if err := l.queue.Enqueue(&cmd); err != nil {
		core.Halt("failed to enqueue command")
	}
}
