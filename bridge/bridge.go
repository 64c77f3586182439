// Package bridge serves console requests arriving on a UART by forwarding
// them to mailbox links.
package bridge

import (
	"errors"

	"tinygo.org/x/drivers"

	"rtps/core"
	"rtps/link"
	"rtps/mailbox"
	"rtps/protocol"
)

// Requester is the client side of a link
type Requester interface {
	Request(opcode uint32, args []uint32, reply []uint32) (int, error)
}

// Bridge owns the console transport. Poll must be called from the main loop:
// requests block until the peer replies.
type Bridge struct {
	uart      drivers.UART
	links     []Requester
	transport *protocol.Transport
	input     *protocol.FifoBuffer
	output    *protocol.ScratchOutput

	rx    [64]byte
	req   [protocol.MaxFrameWords]uint32
	reply [mailbox.MaxWords]uint32
}

// New creates a bridge; console link index i selects links[i]
func New(uart drivers.UART, links ...Requester) *Bridge {
	b := &Bridge{
		uart:   uart,
		links:  links,
		input:  protocol.NewFifoBuffer(2 * protocol.MessageLengthMax),
		output: protocol.NewScratchOutput(),
	}
	b.transport = protocol.NewTransport(b.output, b.handle)
	b.transport.SetFlushCallback(b.flush)
	return b
}

// Poll reads whatever the UART has buffered and serves complete requests.
// It reports whether any bytes were read.
func (b *Bridge) Poll() bool {
	n := b.uart.Buffered()
	if n == 0 {
		return false
	}
	if n > len(b.rx) {
		n = len(b.rx)
	}
	if free := b.input.Free(); n > free {
		n = free
	}
	n, err := b.uart.Read(b.rx[:n])
	if err != nil || n == 0 {
		return false
	}
	b.input.Write(b.rx[:n])
	b.transport.Receive(b.input)
	if b.input.Free() == 0 {
		// a full buffer without a frame in it is garbage
		b.input.Reset()
		b.transport.Reset()
	}
	return true
}

func (b *Bridge) handle(seq uint8, payload []byte) {
	n, err := protocol.DecodeWords(payload, b.req[:])
	if err != nil || n < 2 {
		core.DebugPrintln("[BRIDGE] malformed request")
		b.respond(seq, protocol.StatusTransport, 0)
		return
	}

	idx, opcode, args := b.req[0], b.req[1], b.req[2:n]
	if idx >= uint32(len(b.links)) {
		b.respond(seq, protocol.StatusUnknownLink, 0)
		return
	}

	got, err := b.links[idx].Request(opcode, args, b.reply[:])
	b.respond(seq, status(err), got)
}

func status(err error) protocol.Status {
	switch {
	case err == nil:
		return protocol.StatusOK
	case errors.Is(err, mailbox.ErrMessageTooLong):
		return protocol.StatusTooLong
	case errors.Is(err, link.ErrTimeout):
		return protocol.StatusTimeout
	case errors.Is(err, link.ErrBusy):
		return protocol.StatusBusy
	}
	return protocol.StatusTransport
}

func (b *Bridge) respond(seq uint8, st protocol.Status, n int) {
	b.transport.Respond(seq, func(output protocol.OutputBuffer) {
		protocol.EncodeVLQUint(output, uint32(st))
		protocol.EncodeWords(output, b.reply[:n]...)
	})
}

func (b *Bridge) flush() {
	if _, err := b.uart.Write(b.output.Result()); err != nil {
		core.DebugPrintln("[BRIDGE] write failed: " + err.Error())
	}
	b.output.Reset()
}

// Links returns the number of bridged links
func (b *Bridge) Links() int { return len(b.links) }
