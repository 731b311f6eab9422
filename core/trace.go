package core

import (
	"encoding/hex"
	"sync"
	"time"
)

// traceDepth is how many transactions the ring remembers for the
// status page and late websocket subscribers.
const traceDepth = 128

// subscriberBuffer is per subscriber; a reader that cannot keep up
// loses entries instead of blocking the bus.
const subscriberBuffer = 64

// Entry is one traced transaction.
type Entry struct {
	Time time.Time `json:"time"`
	Op   string    `json:"op"`
	Addr byte      `json:"addr"`
	Data []byte    `json:"-"`
	Hex  string    `json:"data"`
	Err  string    `json:"error,omitempty"`
}

// Trace is a bounded transaction history with live subscribers.
type Trace struct {
	mutex   sync.Mutex
	entries []Entry
	depth   int
	subs    map[chan Entry]struct{}
}

func newTrace(depth int) *Trace {
	return &Trace{
		depth: depth,
		subs:  make(map[chan Entry]struct{}),
	}
}

func (t *Trace) add(e Entry) {
	e.Time = time.Now()
	e.Hex = hex.EncodeToString(e.Data)

	t.mutex.Lock()
	defer t.mutex.Unlock()

	for len(t.entries) >= t.depth {
		t.entries = t.entries[1:]
	}
	t.entries = append(t.entries, e)

	for ch := range t.subs {
		select {
		case ch <- e:
		default:
		}
	}
}

// Recent returns the remembered entries, oldest first.
func (t *Trace) Recent() []Entry {
	t.mutex.Lock()
	defer t.mutex.Unlock()

	out := make([]Entry, len(t.entries))
	copy(out, t.entries)
	return out
}

// Subscribe returns a channel of new entries and a cancel function.
// Cancel must be called exactly once; the channel is closed by it.
func (t *Trace) Subscribe() (<-chan Entry, func()) {
	ch := make(chan Entry, subscriberBuffer)

	t.mutex.Lock()
	t.subs[ch] = struct{}{}
	t.mutex.Unlock()

	cancel := func() {
		t.mutex.Lock()
		delete(t.subs, ch)
		t.mutex.Unlock()
		close(ch)
	}
	return ch, cancel
}
