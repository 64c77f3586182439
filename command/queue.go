// Package command queues requests received in interrupt context and runs
// them from the main loop.
package command

import (
	"errors"
	"sync"

	"rtps/core"
	"rtps/mailbox"
)

const (
	// MaxArgs is the number of argument words after the opcode
	MaxArgs = mailbox.MaxWords - 1

	// DefaultQueueSize is the ring size; one entry is always kept free
	DefaultQueueSize = 4
)

var (
	ErrQueueFull  = errors.New("command: queue full")
	ErrQueueEmpty = errors.New("command: queue empty")
)

// Command is a decoded request waiting for the main loop
type Command struct {
	Opcode uint32
	Args   [MaxArgs]uint32
	Reply  *mailbox.Slot // where the reply goes
	Acked  *Ack          // acks of messages sent on Reply
}

// Queue is a fixed ring of commands. Enqueue runs in interrupt context
// with interrupts already masked; Dequeue runs in the main loop and masks
// interrupts itself.
type Queue struct {
	lock sync.Locker
	head int // next write
	tail int // next read
	cmds []Command
}

// NewQueue allocates a ring of size entries (size-1 usable)
func NewQueue(size int, lock sync.Locker) *Queue {
	if size == 0 {
		size = DefaultQueueSize
	}
	core.Assert(size > 1, "command queue too small")
	return &Queue{
		lock: lock,
		cmds: make([]Command, size),
	}
}

// Enqueue copies cmd into the ring
func (q *Queue) Enqueue(cmd *Command) error {
	next := (q.head + 1) % len(q.cmds)
	if next == q.tail {
		core.DebugPrintln("[CMD] cannot enqueue command: queue full")
		return ErrQueueFull
	}

	slot := &q.cmds[q.head]
	slot.Opcode = cmd.Opcode
	slot.Reply = cmd.Reply
	slot.Acked = cmd.Acked
	for i := range slot.Args {
		slot.Args[i] = cmd.Args[i]
	}
	q.head = next

	core.RecordEvent(core.EvtEnqueue, uint32(q.head), cmd.Opcode, cmd.Args[0])
	return nil
}

// Dequeue pops the oldest command into cmd
func (q *Queue) Dequeue(cmd *Command) error {
	q.lock.Lock()
	defer q.lock.Unlock()

	if q.head == q.tail {
		return ErrQueueEmpty
	}

	slot := &q.cmds[q.tail]
	cmd.Opcode = slot.Opcode
	cmd.Reply = slot.Reply
	cmd.Acked = slot.Acked
	for i := range cmd.Args {
		cmd.Args[i] = slot.Args[i]
	}
	q.tail = (q.tail + 1) % len(q.cmds)

	core.RecordEvent(core.EvtDequeue, uint32(q.tail), cmd.Opcode, cmd.Args[0])
	return nil
}

// Len returns the number of queued commands
func (q *Queue) Len() int {
	q.lock.Lock()
	defer q.lock.Unlock()
	return (q.head - q.tail + len(q.cmds)) % len(q.cmds)
}

// Cap returns the usable capacity
func (q *Queue) Cap() int {
	return len(q.cmds) - 1
}
