package command

import (
	"errors"
	"time"

	"rtps/core"
	"rtps/mailbox"
)

// ErrAckTimeout means the requester never acknowledged our reply
var ErrAckTimeout = errors.New("command: timed out waiting for reply ack")

// Processor executes one command. It writes up to len(reply) words and
// returns how many it produced; zero means no reply is sent.
type Processor interface {
	Process(cmd *Command, reply []uint32) (int, error)
}

// ProcessorFunc adapts a function to Processor
type ProcessorFunc func(cmd *Command, reply []uint32) (int, error)

// Process calls f
func (f ProcessorFunc) Process(cmd *Command, reply []uint32) (int, error) {
	return f(cmd, reply)
}

// Sender transmits a reply on a slot
type Sender interface {
	Send(s *mailbox.Slot, msg []uint32) error
}

// Dispatcher drains a queue into a processor and sends the replies
type Dispatcher struct {
	queue *Queue
	proc  Processor
	tx    Sender

	// AckTimeout bounds the wait for the reply ack; zero waits forever
	AckTimeout time.Duration
}

// NewDispatcher creates a dispatcher replying through tx
func NewDispatcher(queue *Queue, proc Processor, tx Sender) *Dispatcher {
	return &Dispatcher{queue: queue, proc: proc, tx: tx}
}

// Queue returns the queue the dispatcher drains
func (d *Dispatcher) Queue() *Queue {
	return d.queue
}

// Handle processes cmd and, if there is a reply, sends it and spins until
// the requester acknowledges it. Main loop only: must not be called with
// interrupts masked.
func (d *Dispatcher) Handle(cmd *Command) error {
	if core.IsDebugEnabled() {
		core.DebugPrintln("[CMD] handle cmd " + core.Hex32(cmd.Opcode) + " arg " + core.Hex32(cmd.Args[0]))
	}

	// The previous reply on this slot must be consumed before its data
	// registers are written again
	if cmd.Acked != nil && cmd.Acked.Pending() && !cmd.Acked.Wait(d.AckTimeout) {
		core.DebugPrintln("[CMD] previous reply still unacknowledged")
		return ErrBusy
	}

	// One word of the transfer stays reserved for a header
	var reply [mailbox.MaxWords - 1]uint32
	n, err := d.proc.Process(cmd, reply[:])
	if err != nil {
		core.DebugPrintln("[CMD] failed to process request: " + err.Error())
		return err
	}
	if n == 0 {
		core.DebugPrintln("[CMD] no reply for request")
		return nil
	}

	if cmd.Acked != nil {
		if err := cmd.Acked.Begin(); err != nil {
			return err
		}
	}
	if err := d.tx.Send(cmd.Reply, reply[:n]); err != nil {
		core.DebugPrintln("[CMD] failed to send reply: " + err.Error())
		if cmd.Acked != nil {
			cmd.Acked.Cancel()
		}
		return err
	}
	core.RecordEvent(core.EvtReply, cmd.Opcode, uint32(n), reply[0])

	if cmd.Acked == nil {
		return nil
	}
	if !cmd.Acked.Wait(d.AckTimeout) {
		return ErrAckTimeout
	}
	return nil
}

// Poll handles at most one queued command. It reports whether a command was
// taken, along with the result of handling it.
func (d *Dispatcher) Poll() (bool, error) {
	var cmd Command
	if err := d.queue.Dequeue(&cmd); err != nil {
		return false, nil
	}
	return true, d.Handle(&cmd)
}
