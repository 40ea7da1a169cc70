package msglog

import (
	"sync"
	"time"

	"github.com/pulsewire/pulsewire-core/internal/queue"
)

// Direction of a logged message relative to this client.
const (
	DirectionIn  = "in"
	DirectionOut = "out"
)

// Entry is one observed message.
type Entry struct {
	Topic     string    `json:"topic"`
	Payload   string    `json:"payload"`
	QoS       byte      `json:"qos"`
	Retained  bool      `json:"retained"`
	Direction string    `json:"direction"`
	At        time.Time `json:"at"`
}

// Log is a bounded, append-only record of recent traffic. When full,
// the oldest entries are overwritten. It backs the HTTP message view
// and the live WebSocket feed.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Log struct {
	mu       sync.RWMutex
	entries  []Entry
	capacity int
	start    int
	count    int

	// onAppend is notified for each entry (optional, used by the
	// WebSocket feed). Must not block.
	onAppend func(Entry)
}

// New creates a log holding at most capacity entries.
func New(capacity int) *Log {
	if capacity <= 0 {
		capacity = 500
	}
	return &Log{
		entries:  make([]Entry, capacity),
		capacity: capacity,
	}
}

// SetOnAppend sets a callback invoked for every appended entry.
// Call before the log starts receiving traffic.
func (l *Log) SetOnAppend(callback func(Entry)) {
	l.mu.Lock()
	l.onAppend = callback
	l.mu.Unlock()
}

// Append records an entry, evicting the oldest when full.
func (l *Log) Append(entry Entry) {
	if entry.At.IsZero() {
		entry.At = time.Now()
	}

	l.mu.Lock()
	index := (l.start + l.count) % l.capacity
	l.entries[index] = entry
	if l.count < l.capacity {
		l.count++
	} else {
		l.start = (l.start + 1) % l.capacity
	}
	callback := l.onAppend
	l.mu.Unlock()

	if callback != nil {
		callback(entry)
	}
}

// ObserveOutbound adapts a drained queue message into an outbound
// entry. Intended as a queue publish callback.
func (l *Log) ObserveOutbound(msg queue.Message) {
	l.Append(Entry{
		Topic:     msg.Topic,
		Payload:   string(msg.Payload),
		QoS:       msg.QoS,
		Retained:  msg.Retained,
		Direction: DirectionOut,
	})
}

// RecordInbound appends an inbound entry. Intended as a transport
// subscription handler for the firehose subscription.
func (l *Log) RecordInbound(topic string, payload []byte) error {
	l.Append(Entry{
		Topic:     topic,
		Payload:   string(payload),
		Direction: DirectionIn,
	})
	return nil
}

// Recent returns up to n entries, newest first.
func (l *Log) Recent(n int) []Entry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	if n <= 0 || n > l.count {
		n = l.count
	}
	out := make([]Entry, n)
	for i := 0; i < n; i++ {
		index := (l.start + l.count - 1 - i) % l.capacity
		out[i] = l.entries[index]
	}
	return out
}

// Len returns the number of entries currently held.
func (l *Log) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.count
}

// Capacity returns the maximum number of entries held.
func (l *Log) Capacity() int {
	return l.capacity
}
