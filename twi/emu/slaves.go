package emu

import (
	"sync"

	"github.com/twibus/twid-go/twi"
)

// MemSlave emulates a register-pointer memory device: the first byte
// of a write transaction sets the pointer, further writes store at the
// pointer, reads return from it. The pointer survives a repeated
// start, which is what makes write-then-read register access work.
type MemSlave struct {
	mu      sync.Mutex
	mem     [256]byte
	pointer byte
	fresh   bool // next written byte is the pointer
}

func NewMemSlave() *MemSlave {
	return &MemSlave{}
}

func (m *MemSlave) Select(dir twi.Direction) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if dir == twi.Write {
		m.fresh = true
	}
}

func (m *MemSlave) WriteByte(b byte) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fresh {
		m.pointer = b
		m.fresh = false
		return true
	}
	m.mem[m.pointer] = b
	m.pointer++
	return true
}

func (m *MemSlave) ReadByte(ack bool) byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	b := m.mem[m.pointer]
	m.pointer++
	return b
}

func (m *MemSlave) Stop() {}

// Peek reads device memory directly, for tests.
func (m *MemSlave) Peek(addr byte) byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mem[addr]
}

// AckSlave acknowledges everything and remembers what was written,
// split per transaction. It stands in for write-only devices like a
// display controller.
type AckSlave struct {
	mu      sync.Mutex
	current []byte
	writes  [][]byte
}

func NewAckSlave() *AckSlave {
	return &AckSlave{}
}

func (a *AckSlave) Select(dir twi.Direction) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = nil
}

func (a *AckSlave) WriteByte(b byte) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.current = append(a.current, b)
	return true
}

func (a *AckSlave) ReadByte(ack bool) byte {
	return 0xFF
}

func (a *AckSlave) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.current != nil {
		a.writes = append(a.writes, a.current)
		a.current = nil
	}
}

// Writes returns the completed write transactions so far.
func (a *AckSlave) Writes() [][]byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([][]byte, len(a.writes))
	copy(out, a.writes)
	return out
}
