package command

import (
	"errors"
	"sync/atomic"
	"time"

	"rtps/core"
)

// ErrBusy means an earlier message on the slot is still unacknowledged
var ErrBusy = errors.New("command: previous message not acknowledged")

// Ack pairs the messages sent on an outgoing slot with the acknowledgements
// the peer raises for them. An ack that arrives after its sender gave up
// only settles that message and never counts for a later one.
type Ack struct {
	sent  atomic.Uint32
	acked atomic.Uint32
}

// Begin accounts for a message about to be sent. It returns ErrBusy while an
// earlier message is still owed an ack.
func (a *Ack) Begin() error {
	if a.Pending() {
		return ErrBusy
	}
	a.sent.Add(1)
	return nil
}

// Cancel takes back a Begin whose message was never sent
func (a *Ack) Cancel() {
	if a.Pending() {
		a.sent.Add(^uint32(0))
	}
}

// Signal records an ack. Runs in interrupt context; acks with nothing
// outstanding are ignored.
func (a *Ack) Signal() {
	if a.Pending() {
		a.acked.Add(1)
	}
}

// Pending reports whether a sent message has not been acknowledged yet
func (a *Ack) Pending() bool {
	return a.acked.Load() != a.sent.Load()
}

// Wait spins until every sent message is acknowledged, with the rules of
// core.WaitFlag. Returns false on timeout.
func (a *Ack) Wait(timeout time.Duration) bool {
	return core.WaitUntil(func() bool { return !a.Pending() }, timeout)
}
