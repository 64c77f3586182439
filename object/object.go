// Package object keeps fixed-capacity tables of objects so that nothing is
// allocated after boot. Each table is sized once at construction.
package object

import (
	"errors"

	"rtps/core"
)

// ErrExhausted is returned when every slot in a pool is in use
var ErrExhausted = errors.New("object: pool exhausted")

// Handle is the stable index of an allocated object within its pool
type Handle uint16

type entry[T any] struct {
	valid bool
	index Handle
	value T
}

// Pool is a first-fit allocator over a fixed array of T.
// Not safe for concurrent use; callers serialize with interrupt masking.
type Pool[T any] struct {
	name    string
	entries []entry[T]
	inUse   int
}

// NewPool creates a pool with room for capacity objects
func NewPool[T any](name string, capacity int) *Pool[T] {
	core.Assert(capacity > 0 && capacity <= 1<<16, "pool capacity out of range")
	return &Pool[T]{
		name:    name,
		entries: make([]entry[T], capacity),
	}
}

// Alloc returns the first free slot, zeroed and stamped with its index
func (p *Pool[T]) Alloc() (Handle, *T, error) {
	idx := 0
	for idx < len(p.entries) && p.entries[idx].valid {
		idx++
	}
	if idx == len(p.entries) {
		core.DebugPrintln("ERROR: failed to alloc object " + p.name + ": out of mem")
		return 0, nil, ErrExhausted
	}

	e := &p.entries[idx]
	var zero T
	e.value = zero
	e.valid = true
	e.index = Handle(idx)
	p.inUse++
	return e.index, &e.value, nil
}

// Free zeroes the object and returns its slot to the pool.
// Freeing an unallocated handle is a no-op.
func (p *Pool[T]) Free(h Handle) {
	if int(h) >= len(p.entries) || !p.entries[h].valid {
		return
	}
	e := &p.entries[h]
	var zero T
	e.value = zero
	e.valid = false
	p.inUse--
}

// Get returns the object for h, or nil if the slot is free
func (p *Pool[T]) Get(h Handle) *T {
	if int(h) >= len(p.entries) || !p.entries[h].valid {
		return nil
	}
	return &p.entries[h].value
}

// Range calls fn for every allocated object in index order until fn
// returns false
func (p *Pool[T]) Range(fn func(h Handle, v *T) bool) {
	for i := range p.entries {
		e := &p.entries[i]
		if !e.valid {
			continue
		}
		if !fn(e.index, &e.value) {
			return
		}
	}
}

// Find returns the first allocated object matching fn
func (p *Pool[T]) Find(fn func(v *T) bool) (Handle, *T, bool) {
	for i := range p.entries {
		e := &p.entries[i]
		if e.valid && fn(&e.value) {
			return e.index, &e.value, true
		}
	}
	return 0, nil, false
}

// InUse returns the number of allocated objects
func (p *Pool[T]) InUse() int {
	return p.inUse
}

// Cap returns the fixed capacity
func (p *Pool[T]) Cap() int {
	return len(p.entries)
}

// Name returns the pool name used in diagnostics
func (p *Pool[T]) Name() string {
	return p.name
}
