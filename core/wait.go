package core

import (
	"runtime"
	"sync/atomic"
	"time"
)

// WaitFlag spins until flag is set by an interrupt handler.
// The caller must not hold interrupts masked, or the handler that resolves
// the wait can never run. A zero timeout waits forever. Returns false on
// timeout.
func WaitFlag(flag *atomic.Bool, timeout time.Duration) bool {
	return WaitUntil(flag.Load, timeout)
}

// WaitUntil spins until cond returns true, with the same rules as WaitFlag
func WaitUntil(cond func() bool, timeout time.Duration) bool {
	if timeout == 0 {
		for !cond() {
			runtime.Gosched()
		}
		return true
	}

	deadline := time.Now().Add(timeout)
	for !cond() {
		if time.Now().After(deadline) {
			return cond()
		}
		runtime.Gosched()
	}
	return true
}
