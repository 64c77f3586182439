package hal

import "sync"

// Access is one logged register write
type Access struct {
	Off uint32
	Val uint32
}

// Memory is a sparse word-addressed register file for host tests.
// Every write is appended to a log so tests can assert exact access order.
type Memory struct {
	mu     sync.Mutex
	words  map[uint32]uint32
	writes []Access
}

// NewMemory creates an empty register file (all registers read zero)
func NewMemory() *Memory {
	return &Memory{words: make(map[uint32]uint32)}
}

// Read32 returns the last value written at off
func (m *Memory) Read32(off uint32) uint32 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.words[off]
}

// Write32 stores val at off and logs the access
func (m *Memory) Write32(off uint32, val uint32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.words[off] = val
	m.writes = append(m.writes, Access{Off: off, Val: val})
}

// Writes returns a copy of the write log
func (m *Memory) Writes() []Access {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Access, len(m.writes))
	copy(out, m.writes)
	return out
}

// ResetLog clears the write log, keeping register contents
func (m *Memory) ResetLog() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.writes = m.writes[:0]
}
