package retained

import (
	"sync"
	"time"

	"github.com/pulsewire/pulsewire-core/internal/queue"
)

// Enqueuer hands outbound messages to the flow-controlled queue.
// Satisfied by *queue.Queue.
type Enqueuer interface {
	Enqueue(msg queue.Message) error
}

// Logger interface for optional logging support.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Expirer simulates message expiry for retained values.
//
// The transport protocol keeps a retained message forever; there is no
// native time-to-live. The expirer arms a timer per topic whenever a
// retained value is published and, when the timer fires, publishes an
// empty retained payload, which the broker treats as "delete the
// retained message". A fresh publish on the same topic re-arms the
// timer, so values that keep updating never expire.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Expirer struct {
	outbound   Enqueuer
	defaultTTL time.Duration

	mu     sync.Mutex
	timers map[string]*time.Timer
	closed bool

	logger Logger
}

// New creates an expirer publishing clears through the given queue.
//
// Parameters:
//   - outbound: Queue the empty clearing publishes go through
//   - defaultTTL: Expiry applied when Track is called without one
func New(outbound Enqueuer, defaultTTL time.Duration) *Expirer {
	if defaultTTL <= 0 {
		defaultTTL = 60 * time.Second
	}
	return &Expirer{
		outbound:   outbound,
		defaultTTL: defaultTTL,
		timers:     make(map[string]*time.Timer),
	}
}

// SetLogger sets a logger for expiry diagnostics.
func (e *Expirer) SetLogger(logger Logger) {
	e.mu.Lock()
	e.logger = logger
	e.mu.Unlock()
}

// Track registers a retained publish for expiry.
//
// A non-empty payload arms (or re-arms) the topic's timer. An empty
// payload is a clear: it disarms any pending timer and never arms one,
// otherwise the expirer would endlessly re-clear topics.
//
// Parameters:
//   - topic: Topic the retained value was published on
//   - payload: Published payload; empty means clear
//   - ttl: Time until the value is cleared; <= 0 falls back to default
func (e *Expirer) Track(topic string, payload []byte, ttl time.Duration) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed {
		return ErrClosed
	}

	if existing, ok := e.timers[topic]; ok {
		existing.Stop()
		delete(e.timers, topic)
	}

	if len(payload) == 0 {
		return nil
	}

	if ttl <= 0 {
		ttl = e.defaultTTL
	}
	e.timers[topic] = time.AfterFunc(ttl, func() { e.expire(topic) })
	return nil
}

// Observe adapts a drained queue message into a Track call. Only
// retained messages matter; everything else is a no-op. Intended as the
// queue's publish callback.
func (e *Expirer) Observe(msg queue.Message) {
	if !msg.Retained {
		return
	}
	ttl := time.Duration(msg.ExpirySeconds) * time.Second
	if err := e.Track(msg.Topic, msg.Payload, ttl); err != nil {
		e.mu.Lock()
		logger := e.logger
		e.mu.Unlock()
		if logger != nil {
			logger.Warn("retained tracking failed", "topic", msg.Topic, "error", err)
		}
	}
}

// Armed reports whether the topic currently has an expiry timer.
func (e *Expirer) Armed(topic string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.timers[topic]
	return ok
}

// Count returns the number of topics with armed timers.
func (e *Expirer) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.timers)
}

// Close disarms all timers. No further clears are published.
func (e *Expirer) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	for topic, timer := range e.timers {
		timer.Stop()
		delete(e.timers, topic)
	}
}

// expire fires when a topic's timer elapses: the retained value is
// stale and gets cleared with an empty retained publish.
func (e *Expirer) expire(topic string) {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	delete(e.timers, topic)
	logger := e.logger
	e.mu.Unlock()

	err := e.outbound.Enqueue(queue.Message{
		Topic:    topic,
		Payload:  nil,
		QoS:      1,
		Retained: true,
	})
	if err != nil {
		if logger != nil {
			logger.Error("retained clear failed", "topic", topic, "error", err)
		}
		return
	}
	if logger != nil {
		logger.Info("retained value expired", "topic", topic)
	}
}
