//go:build !tinygo

package core

import "sync"

// InterruptLock stands in for interrupt masking on regular Go (for testing).
// Code that runs as an "interrupt handler" on the host must hold the same lock.
type InterruptLock struct {
	mu sync.Mutex
}

// Lock enters the critical section
func (l *InterruptLock) Lock() {
	l.mu.Lock()
}

// Unlock leaves the critical section
func (l *InterruptLock) Unlock() {
	l.mu.Unlock()
}
