package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pulsewire/pulsewire-core/internal/infrastructure/mqtt"
	"github.com/pulsewire/pulsewire-core/internal/queue"
)

// Transport is the subscription side of the messaging client.
// Satisfied by *mqtt.Client.
type Transport interface {
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error
	Unsubscribe(topic string) error
	ClientID() string
	DefaultQoS() byte
}

// Enqueuer hands outbound messages to the flow-controlled queue.
// Satisfied by *queue.Queue.
type Enqueuer interface {
	Enqueue(msg queue.Message) error
}

// Logger interface for optional logging support.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// EventKind discriminates probe outcomes.
type EventKind int

const (
	// KindLatency is a completed round trip.
	KindLatency EventKind = iota
	// KindTimeout is a ping with no pong inside the probe timeout.
	KindTimeout
)

// Event is a probe outcome delivered on Events().
type Event struct {
	Kind          EventKind
	CorrelationID string
	Responder     string
	RTT           time.Duration
	At            time.Time
}

// pingMessage travels on the shared ping topic.
type pingMessage struct {
	CorrelationID string `json:"correlation_id"`
	ClientID      string `json:"client_id"`
	Timestamp     string `json:"timestamp"`
}

// pongMessage travels on the shared pong topic. PingTimestamp is copied
// verbatim from the ping so the originator can cross-check its send.
type pongMessage struct {
	CorrelationID string `json:"correlation_id"`
	ClientID      string `json:"client_id"`
	PingTimestamp string `json:"ping_timestamp"`
	Timestamp     string `json:"timestamp"`
}

// Probe measures round-trip latency through the broker.
//
// Every participant answers pings from other clients on the shared pong
// topic. The originator matches pongs by correlation id against its
// in-flight pings and reports an Event per outcome. Round-trip time is
// measured on the originator's own clock, so clock skew between clients
// does not distort the figure.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Probe struct {
	transport Transport
	outbound  Enqueuer
	topics    mqtt.Topics
	timeout   time.Duration

	mu      sync.Mutex
	pending map[string]*inflightPing
	closed  bool

	events chan Event
	logger Logger
}

type inflightPing struct {
	sentAt time.Time
	timer  *time.Timer
}

// New creates a probe over the given transport and outbound queue.
//
// Parameters:
//   - transport: Subscription side of the messaging client
//   - outbound: Queue pings and pongs are published through
//   - timeout: How long to wait for a pong before reporting a timeout
func New(transport Transport, outbound Enqueuer, timeout time.Duration) *Probe {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Probe{
		transport: transport,
		outbound:  outbound,
		timeout:   timeout,
		pending:   make(map[string]*inflightPing),
		events:    make(chan Event, 64),
	}
}

// SetLogger sets a logger for probe diagnostics.
func (p *Probe) SetLogger(logger Logger) {
	p.mu.Lock()
	p.logger = logger
	p.mu.Unlock()
}

// Events returns the channel probe outcomes are delivered on.
// The channel is buffered; outcomes are dropped if nobody reads.
func (p *Probe) Events() <-chan Event {
	return p.events
}

// Start subscribes the ping responder and pong matcher. When interval
// is positive, a background loop also sends a ping each interval until
// the context is cancelled.
func (p *Probe) Start(ctx context.Context, interval time.Duration) error {
	if err := p.transport.Subscribe(p.topics.Ping(), p.transport.DefaultQoS(), p.handlePing); err != nil {
		return fmt.Errorf("subscribing ping topic: %w", err)
	}
	if err := p.transport.Subscribe(p.topics.Pong(), p.transport.DefaultQoS(), p.handlePong); err != nil {
		return fmt.Errorf("subscribing pong topic: %w", err)
	}

	if interval > 0 {
		go p.periodicPing(ctx, interval)
	}
	return nil
}

// SendPing publishes a ping and returns its correlation id.
// The outcome arrives later as an Event.
func (p *Probe) SendPing() (string, error) {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return "", ErrClosed
	}
	p.mu.Unlock()

	correlationID := uuid.New().String()
	ping := pingMessage{
		CorrelationID: correlationID,
		ClientID:      p.transport.ClientID(),
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
	}
	raw, err := json.Marshal(ping)
	if err != nil {
		return "", fmt.Errorf("encoding ping: %w", err)
	}

	flight := &inflightPing{sentAt: time.Now()}
	flight.timer = time.AfterFunc(p.timeout, func() { p.expire(correlationID) })

	p.mu.Lock()
	p.pending[correlationID] = flight
	p.mu.Unlock()

	if err := p.outbound.Enqueue(queue.Message{
		Topic:   p.topics.Ping(),
		Payload: raw,
		QoS:     p.transport.DefaultQoS(),
	}); err != nil {
		p.mu.Lock()
		delete(p.pending, correlationID)
		p.mu.Unlock()
		flight.timer.Stop()
		return "", fmt.Errorf("enqueueing ping: %w", err)
	}
	return correlationID, nil
}

// Pending returns the number of pings awaiting a pong.
func (p *Probe) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pending)
}

// Close stops the probe. In-flight pings are abandoned without events.
func (p *Probe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	for id, flight := range p.pending {
		flight.timer.Stop()
		delete(p.pending, id)
	}
	p.mu.Unlock()

	if err := p.transport.Unsubscribe(p.topics.Ping()); err != nil {
		return err
	}
	return p.transport.Unsubscribe(p.topics.Pong())
}

// handlePing answers pings from other clients. Own pings come back on
// the shared topic too and must not be answered, or every probe would
// measure the short loop to itself.
func (p *Probe) handlePing(_ string, raw []byte) error {
	var ping pingMessage
	if err := json.Unmarshal(raw, &ping); err != nil {
		return fmt.Errorf("decoding ping: %w", err)
	}
	if ping.ClientID == p.transport.ClientID() {
		return nil
	}

	pong := pongMessage{
		CorrelationID: ping.CorrelationID,
		ClientID:      p.transport.ClientID(),
		PingTimestamp: ping.Timestamp,
		Timestamp:     time.Now().UTC().Format(time.RFC3339Nano),
	}
	raw, err := json.Marshal(pong)
	if err != nil {
		return fmt.Errorf("encoding pong: %w", err)
	}

	return p.outbound.Enqueue(queue.Message{
		Topic:   p.topics.Pong(),
		Payload: raw,
		QoS:     p.transport.DefaultQoS(),
	})
}

// handlePong matches a pong to an in-flight ping. Pongs for other
// clients' pings, late pongs, and pongs claiming to come from this
// client are dropped. A pong carrying our own id cannot be a real
// answer and must not resolve the ping, or the measured round trip
// collapses to the broker echo.
func (p *Probe) handlePong(_ string, raw []byte) error {
	var pong pongMessage
	if err := json.Unmarshal(raw, &pong); err != nil {
		return fmt.Errorf("decoding pong: %w", err)
	}
	if pong.ClientID == p.transport.ClientID() {
		return nil
	}

	p.mu.Lock()
	flight, ok := p.pending[pong.CorrelationID]
	if ok {
		delete(p.pending, pong.CorrelationID)
	}
	p.mu.Unlock()

	if !ok {
		return nil
	}
	flight.timer.Stop()

	p.emit(Event{
		Kind:          KindLatency,
		CorrelationID: pong.CorrelationID,
		Responder:     pong.ClientID,
		RTT:           time.Since(flight.sentAt),
		At:            time.Now(),
	})
	return nil
}

// expire fires when a ping's timeout elapses without a pong.
func (p *Probe) expire(correlationID string) {
	p.mu.Lock()
	_, ok := p.pending[correlationID]
	if ok {
		delete(p.pending, correlationID)
	}
	p.mu.Unlock()

	if !ok {
		return
	}
	p.emit(Event{
		Kind:          KindTimeout,
		CorrelationID: correlationID,
		At:            time.Now(),
	})
}

func (p *Probe) emit(event Event) {
	select {
	case p.events <- event:
	default:
		p.mu.Lock()
		logger := p.logger
		p.mu.Unlock()
		if logger != nil {
			logger.Warn("probe event dropped, channel full", "correlation_id", event.CorrelationID)
		}
	}
}

func (p *Probe) periodicPing(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.SendPing(); err != nil {
				p.mu.Lock()
				logger := p.logger
				closed := p.closed
				p.mu.Unlock()
				if closed {
					return
				}
				if logger != nil {
					logger.Warn("periodic ping failed", "error", err)
				}
			}
		}
	}
}
