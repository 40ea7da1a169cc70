package rpc

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
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Handler processes an incoming request and returns the response payload.
// A returned error travels back to the caller inside the response envelope.
type Handler func(payload []byte) ([]byte, error)

// Broker correlates requests with responses over the pub/sub transport.
//
// Each outbound request gets a fresh correlation id and a dedicated
// response topic derived from it; the subscription lives only for the
// lifetime of that request. Responses arriving after the caller has
// given up are ignored.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Broker struct {
	transport Transport
	outbound  Enqueuer
	topics    mqtt.Topics

	defaultTimeout time.Duration

	mu       sync.Mutex
	pending  map[string]chan Envelope
	handlers map[string]string
	closed   bool

	logger Logger
}

// New creates a broker over the given transport and outbound queue.
//
// Parameters:
//   - transport: Subscription side of the messaging client
//   - outbound: Queue all requests and responses are published through
//   - defaultTimeout: Used when Request is called with timeout <= 0
//
// Returns:
//   - *Broker: Configured broker ready for use
func New(transport Transport, outbound Enqueuer, defaultTimeout time.Duration) *Broker {
	if defaultTimeout <= 0 {
		defaultTimeout = 5 * time.Second
	}
	return &Broker{
		transport:      transport,
		outbound:       outbound,
		defaultTimeout: defaultTimeout,
		pending:        make(map[string]chan Envelope),
		handlers:       make(map[string]string),
	}
}

// SetLogger sets a logger for broker diagnostics.
func (b *Broker) SetLogger(logger Logger) {
	b.mu.Lock()
	b.logger = logger
	b.mu.Unlock()
}

// Request publishes a request and blocks until the matching response
// arrives, the timeout elapses, or the context is cancelled.
//
// The request carries a generated correlation id and a response topic
// unique to this call; the broker subscribes to that topic for the
// duration of the request and unsubscribes on completion.
//
// Parameters:
//   - ctx: Context for cancellation
//   - name: Request name, addressed as a request topic segment
//   - payload: Application payload embedded in the request envelope
//   - timeout: Per-call deadline; <= 0 falls back to the default
//
// Returns:
//   - json.RawMessage: Response payload from the remote handler
//   - error: ErrRequestTimeout on deadline, ErrRemote for handler
//     errors, context error on cancellation
func (b *Broker) Request(ctx context.Context, name string, payload []byte, timeout time.Duration) (json.RawMessage, error) {
	if timeout <= 0 {
		timeout = b.defaultTimeout
	}

	correlationID := uuid.New().String()
	responseTopic := b.topics.Response(b.transport.ClientID(), correlationID)

	resolved := make(chan Envelope, 1)
	b.mu.Lock()
	b.pending[correlationID] = resolved
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, correlationID)
		b.mu.Unlock()
		if err := b.transport.Unsubscribe(responseTopic); err != nil {
			b.logDebug("response topic unsubscribe failed", "topic", responseTopic, "error", err)
		}
	}()

	if err := b.transport.Subscribe(responseTopic, b.transport.DefaultQoS(), b.handleResponse); err != nil {
		return nil, fmt.Errorf("subscribing response topic: %w", err)
	}

	env := newEnvelope(correlationID, responseTopic, b.transport.ClientID(), payload)
	raw, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encoding request envelope: %w", err)
	}

	if err := b.outbound.Enqueue(queue.Message{
		Topic:   b.topics.Request(name),
		Payload: raw,
		QoS:     b.transport.DefaultQoS(),
	}); err != nil {
		return nil, fmt.Errorf("enqueueing request: %w", err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case response := <-resolved:
		if response.Error != "" {
			return nil, fmt.Errorf("%w: %s", ErrRemote, response.Error)
		}
		return response.Payload, nil
	case <-timer.C:
		return nil, ErrRequestTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// OnRequest registers a handler for a named request.
//
// One handler per request name; a second registration is rejected with
// ErrHandlerRegistered. Handler errors are reported back to the caller
// in the response envelope, not swallowed.
func (b *Broker) OnRequest(name string, handler Handler) error {
	if handler == nil {
		return fmt.Errorf("%w: nil handler for %q", ErrHandlerRegistered, name)
	}

	topic := b.topics.Request(name)

	b.mu.Lock()
	if _, exists := b.handlers[name]; exists {
		b.mu.Unlock()
		return fmt.Errorf("%w: %q", ErrHandlerRegistered, name)
	}
	b.handlers[name] = topic
	b.mu.Unlock()

	err := b.transport.Subscribe(topic, b.transport.DefaultQoS(), func(_ string, raw []byte) error {
		return b.serveRequest(handler, raw)
	})
	if err != nil {
		b.mu.Lock()
		delete(b.handlers, name)
		b.mu.Unlock()
		return fmt.Errorf("subscribing request topic: %w", err)
	}
	return nil
}

// Close unsubscribes all registered request handlers.
// In-flight Request calls run to their own completion.
func (b *Broker) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	topics := make([]string, 0, len(b.handlers))
	for _, topic := range b.handlers {
		topics = append(topics, topic)
	}
	b.handlers = make(map[string]string)
	b.mu.Unlock()

	var firstErr error
	for _, topic := range topics {
		if err := b.transport.Unsubscribe(topic); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// handleResponse routes an incoming response envelope to the waiting
// request, if it is still waiting. First resolution wins; duplicates and
// late arrivals are dropped.
func (b *Broker) handleResponse(_ string, raw []byte) error {
	env, err := decodeEnvelope(raw)
	if err != nil {
		return err
	}

	b.mu.Lock()
	resolved, ok := b.pending[env.CorrelationID]
	if ok {
		delete(b.pending, env.CorrelationID)
	}
	b.mu.Unlock()

	if !ok {
		b.logDebug("response for completed request dropped", "correlation_id", env.CorrelationID)
		return nil
	}

	resolved <- env
	return nil
}

// serveRequest runs the registered handler and publishes the response
// envelope back on the topic the request named.
func (b *Broker) serveRequest(handler Handler, raw []byte) error {
	env, err := decodeEnvelope(raw)
	if err != nil {
		return err
	}
	if env.ResponseTopic == "" {
		return ErrNoResponseTopic
	}

	result, handlerErr := handler(env.Payload)

	response := newEnvelope(env.CorrelationID, "", b.transport.ClientID(), result)
	if handlerErr != nil {
		response.Error = handlerErr.Error()
		response.Payload = nil
	}

	encoded, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("encoding response envelope: %w", err)
	}

	return b.outbound.Enqueue(queue.Message{
		Topic:   env.ResponseTopic,
		Payload: encoded,
		QoS:     b.transport.DefaultQoS(),
	})
}

func (b *Broker) logDebug(msg string, args ...any) {
	b.mu.Lock()
	logger := b.logger
	b.mu.Unlock()
	if logger != nil {
		logger.Debug(msg, args...)
	}
}
