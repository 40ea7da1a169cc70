package queue

import (
	"context"
	"sync"
	"time"
)

// Message is an outbound publish handed to the queue.
// It is immutable once enqueued.
type Message struct {
	Topic    string
	Payload  []byte
	QoS      byte
	Retained bool

	// ExpirySeconds is how long the message stays meaningful. Messages
	// enqueued without an explicit expiry are stamped with the queue's
	// default. The transport has no native message expiry; the value is
	// carried for the retained-state expiry simulator and observers.
	ExpirySeconds int
}

// Publisher is the transport side the drain loop publishes through.
// Satisfied by *mqtt.Client.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
}

// Logger interface for optional logging support.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config contains queue tuning parameters.
type Config struct {
	// Capacity bounds the in-memory queue. Enqueue rejects when full.
	Capacity int

	// RateLimit is the maximum number of publishes per window.
	RateLimit int

	// RateWindow is the length of the rate window.
	RateWindow time.Duration

	// DefaultExpirySeconds is stamped onto messages without an expiry.
	DefaultExpirySeconds int
}

// Queue is the flow-controlled outbound publish queue.
//
// All components publish through the queue rather than touching the
// transport, which serializes outbound traffic onto one drain loop and
// keeps strict FIFO order. The drain publishes up to RateLimit messages
// per RateWindow; once the limit is reached it suspends until the window
// elapses, then resets the counter and resumes.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
//   - FIFO order is guaranteed across the whole window; no reordering.
type Queue struct {
	publisher Publisher

	mu          sync.Mutex
	cond        *sync.Cond
	items       []Message
	capacity    int
	limit       int
	window      time.Duration
	defExpiry   int
	paused      bool
	closed      bool
	windowStart time.Time
	windowCount int

	// onPublish is invoked after each successful publish (optional).
	onPublish func(Message)

	// logger for publish failure logging (optional).
	logger Logger

	done chan struct{}
	wg   sync.WaitGroup
}

// New creates a queue draining into the given publisher.
//
// The queue does not drain until Start is called.
//
// Parameters:
//   - publisher: Transport to publish through (usually the MQTT client)
//   - cfg: Capacity and rate settings; zero values get sensible defaults
//
// Returns:
//   - *Queue: Configured queue ready to start
func New(publisher Publisher, cfg Config) *Queue {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 1024
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 10
	}
	if cfg.RateWindow <= 0 {
		cfg.RateWindow = time.Second
	}
	if cfg.DefaultExpirySeconds <= 0 {
		cfg.DefaultExpirySeconds = 60
	}

	q := &Queue{
		publisher: publisher,
		capacity:  cfg.Capacity,
		limit:     cfg.RateLimit,
		window:    cfg.RateWindow,
		defExpiry: cfg.DefaultExpirySeconds,
		done:      make(chan struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// SetLogger sets a logger for publish failure logging.
// Call before Start.
func (q *Queue) SetLogger(logger Logger) {
	q.mu.Lock()
	q.logger = logger
	q.mu.Unlock()
}

// SetOnPublish sets a callback invoked after each successful publish.
// The callback runs on the drain goroutine and must not block.
// Call before Start.
func (q *Queue) SetOnPublish(callback func(Message)) {
	q.mu.Lock()
	q.onPublish = callback
	q.mu.Unlock()
}

// Start launches the drain loop in a background goroutine.
// The queue stops when the context is cancelled or Close is called.
func (q *Queue) Start(ctx context.Context) {
	q.wg.Add(1)
	go q.drain()

	go func() {
		select {
		case <-ctx.Done():
			q.Close()
		case <-q.done:
		}
	}()
}

// Enqueue appends a message to the queue and returns immediately.
//
// Messages without an explicit expiry are stamped with the default.
// The queue is bounded: when full, the message is rejected with
// ErrQueueFull so producers observe back-pressure instead of silent loss.
//
// Returns:
//   - error: nil on success, ErrQueueFull when at capacity, ErrClosed
//     after Close
func (q *Queue) Enqueue(msg Message) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return ErrClosed
	}
	if len(q.items) >= q.capacity {
		return ErrQueueFull
	}
	if msg.ExpirySeconds <= 0 {
		msg.ExpirySeconds = q.defExpiry
	}

	q.items = append(q.items, msg)
	q.cond.Signal()
	return nil
}

// Pause halts the drain loop. Enqueues are still accepted; nothing is
// published until Resume.
func (q *Queue) Pause() {
	q.mu.Lock()
	q.paused = true
	q.mu.Unlock()
}

// Resume restarts a paused drain loop.
func (q *Queue) Resume() {
	q.mu.Lock()
	q.paused = false
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Paused reports whether the drain loop is currently halted.
func (q *Queue) Paused() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.paused
}

// SetRate mutates the per-window publish limit.
//
// The new limit takes effect from the current window onwards.
//
// Returns:
//   - error: ErrInvalidRate if n < 1
func (q *Queue) SetRate(n int) error {
	if n < 1 {
		return ErrInvalidRate
	}
	q.mu.Lock()
	q.limit = n
	q.mu.Unlock()
	q.cond.Broadcast()
	return nil
}

// Rate returns the current per-window publish limit.
func (q *Queue) Rate() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.limit
}

// Depth returns the number of messages waiting to be published.
func (q *Queue) Depth() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close stops the drain loop. Messages still queued are not published.
// Safe to call more than once.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.done)
	q.mu.Unlock()

	q.cond.Broadcast()
	q.wg.Wait()
}

// drain is the single consumer loop: it pops messages in FIFO order,
// waits at the rate-limit boundary, and publishes. Publish failures are
// logged and the message dropped; the loop never stops on a failed send.
func (q *Queue) drain() {
	defer q.wg.Done()

	for {
		msg, ok := q.next()
		if !ok {
			return
		}
		if !q.waitForWindow() {
			return
		}

		if err := q.publisher.Publish(msg.Topic, msg.Payload, msg.QoS, msg.Retained); err != nil {
			q.mu.Lock()
			logger := q.logger
			q.mu.Unlock()
			if logger != nil {
				logger.Warn("publish failed, message dropped",
					"topic", msg.Topic,
					"error", err,
				)
			}
			continue
		}

		q.mu.Lock()
		callback := q.onPublish
		q.mu.Unlock()
		if callback != nil {
			callback(msg)
		}
	}
}

// next blocks until a message is available and the queue is not paused,
// then pops the head. Returns false when the queue is closed.
func (q *Queue) next() (Message, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for (len(q.items) == 0 || q.paused) && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return Message{}, false
	}

	msg := q.items[0]
	q.items = q.items[1:]
	return msg, true
}

// waitForWindow blocks until the current rate window has a free slot.
// Returns false when the queue is closed during the wait.
func (q *Queue) waitForWindow() bool {
	for {
		q.mu.Lock()
		now := time.Now()
		if q.windowStart.IsZero() || now.Sub(q.windowStart) >= q.window {
			q.windowStart = now
			q.windowCount = 0
		}
		if q.windowCount < q.limit {
			q.windowCount++
			q.mu.Unlock()
			return true
		}
		wait := q.window - now.Sub(q.windowStart)
		q.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-q.done:
			timer.Stop()
			return false
		}
	}
}
