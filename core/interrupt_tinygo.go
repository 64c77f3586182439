//go:build tinygo

package core

import "runtime/interrupt"

// InterruptLock masks interrupts on the executing core while held.
// Not reentrant: a nested Lock overwrites the saved state.
type InterruptLock struct {
	state interrupt.State
}

// Lock disables interrupts and saves the previous state
func (l *InterruptLock) Lock() {
	l.state = interrupt.Disable()
}

// Unlock restores the interrupt state saved by Lock
func (l *InterruptLock) Unlock() {
	interrupt.Restore(l.state)
}
