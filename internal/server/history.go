// Package server keeps the bounded in-memory log of recent chat messages
// that is replayed to every newly connected client.
package server

import "sync"

// HistoryBuffer is a bounded, ordered log of recent chat messages. Appending
// beyond the capacity evicts the oldest entry. All methods are safe for
// concurrent use.
type HistoryBuffer struct {
	mu   sync.RWMutex
	max  int
	msgs []Message
}

// NewHistoryBuffer creates an empty buffer holding at most max messages.
// Non-positive capacities fall back to the default of 100.
func NewHistoryBuffer(max int) *HistoryBuffer {
	if max <= 0 {
		max = 100
	}
	return &HistoryBuffer{
		max:  max,
		msgs: make([]Message, 0, max),
	}
}

// Append inserts msg at the tail, evicting the head entry when the buffer
// is already full.
func (b *HistoryBuffer) Append(msg Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.msgs = append(b.msgs, msg)
	if len(b.msgs) > b.max {
		copy(b.msgs, b.msgs[1:])
		b.msgs = b.msgs[:b.max]
	}
}

// Snapshot returns a copy of the buffer in insertion order, oldest first.
// The result is never nil so an empty history marshals as [] rather than null.
func (b *HistoryBuffer) Snapshot() []Message {
	b.mu.RLock()
	defer b.mu.RUnlock()

	snapshot := make([]Message, len(b.msgs))
	copy(snapshot, b.msgs)
	return snapshot
}

// lastTimestamp returns the timestamp of the newest buffered message, or the
// empty string when the buffer is empty.
func (b *HistoryBuffer) lastTimestamp() string {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.msgs) == 0 {
		return ""
	}
	return b.msgs[len(b.msgs)-1].Timestamp
}

// Len reports the current number of buffered messages.
func (b *HistoryBuffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.msgs)
}

// Preload replaces the buffer contents with msgs, expected oldest first.
// When msgs exceeds the capacity only the most recent entries are kept.
// Used once at startup to catch up from the durable store.
func (b *HistoryBuffer) Preload(msgs []Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(msgs) > b.max {
		msgs = msgs[len(msgs)-b.max:]
	}
	b.msgs = b.msgs[:0]
	b.msgs = append(b.msgs, msgs...)
}
