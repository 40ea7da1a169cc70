package control

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/pulsewire/pulsewire-core/internal/infrastructure/mqtt"
)

// Transport is the direct messaging client. Acks deliberately bypass
// the outbound queue: a pause ack routed through the queue it just
// paused would never reach the wire.
type Transport interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler func(topic string, payload []byte) error) error
	Unsubscribe(topic string) error
	ClientID() string
	DefaultQoS() byte
}

// FlowController is the queue surface the dispatcher drives.
// Satisfied by *queue.Queue.
type FlowController interface {
	Pause()
	Resume()
	SetRate(n int) error
	Rate() int
	Paused() bool
}

// Logger interface for optional logging support.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Command is a flow control instruction received on the control topic.
type Command struct {
	Action string `json:"action"`
	Rate   int    `json:"messages_per_second,omitempty"`
}

// Ack reports the outcome of a command on the ack topic.
type Ack struct {
	Action    string `json:"action"`
	Status    string `json:"status"`
	Error     string `json:"error,omitempty"`
	Rate      int    `json:"rate,omitempty"`
	ClientID  string `json:"client_id"`
	Timestamp string `json:"timestamp"`
}

// Recognized command actions.
const (
	ActionPause   = "pause"
	ActionResume  = "resume"
	ActionSetRate = "setRate"
)

// Dispatcher applies flow control commands to the outbound queue.
//
// Commands arrive on the shared control topic; each recognized command
// is applied and acknowledged on the ack topic. Unknown actions are
// logged and dropped without an ack, so senders of junk get silence
// rather than errors amplified across every listening client.
type Dispatcher struct {
	transport Transport
	flow      FlowController
	topics    mqtt.Topics

	mu     sync.Mutex
	logger Logger
}

// New creates a dispatcher driving the given flow controller.
func New(transport Transport, flow FlowController) *Dispatcher {
	return &Dispatcher{
		transport: transport,
		flow:      flow,
	}
}

// SetLogger sets a logger for command diagnostics.
func (d *Dispatcher) SetLogger(logger Logger) {
	d.mu.Lock()
	d.logger = logger
	d.mu.Unlock()
}

// Start subscribes the dispatcher to the control topic.
func (d *Dispatcher) Start() error {
	if err := d.transport.Subscribe(d.topics.Control(), d.transport.DefaultQoS(), d.handleCommand); err != nil {
		return fmt.Errorf("subscribing control topic: %w", err)
	}
	return nil
}

// Close unsubscribes from the control topic.
func (d *Dispatcher) Close() error {
	return d.transport.Unsubscribe(d.topics.Control())
}

// handleCommand decodes and applies one control message.
func (d *Dispatcher) handleCommand(_ string, raw []byte) error {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		return fmt.Errorf("decoding control command: %w", err)
	}

	switch cmd.Action {
	case ActionPause:
		d.flow.Pause()
		d.logInfo("outbound queue paused")
		return d.ack(Ack{Action: cmd.Action, Status: "ok"})

	case ActionResume:
		d.flow.Resume()
		d.logInfo("outbound queue resumed")
		return d.ack(Ack{Action: cmd.Action, Status: "ok"})

	case ActionSetRate:
		if err := d.flow.SetRate(cmd.Rate); err != nil {
			return d.ack(Ack{Action: cmd.Action, Status: "error", Error: err.Error()})
		}
		d.logInfo("outbound rate changed", "rate", cmd.Rate)
		return d.ack(Ack{Action: cmd.Action, Status: "ok", Rate: cmd.Rate})

	default:
		d.logWarn("unknown control action ignored", "action", cmd.Action)
		return nil
	}
}

// ack publishes directly on the transport, never through the queue.
func (d *Dispatcher) ack(a Ack) error {
	a.ClientID = d.transport.ClientID()
	a.Timestamp = time.Now().UTC().Format(time.RFC3339)

	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encoding control ack: %w", err)
	}
	return d.transport.Publish(d.topics.ControlAck(), raw, d.transport.DefaultQoS(), false)
}

func (d *Dispatcher) logInfo(msg string, args ...any) {
	d.mu.Lock()
	logger := d.logger
	d.mu.Unlock()
	if logger != nil {
		logger.Info(msg, args...)
	}
}

func (d *Dispatcher) logWarn(msg string, args ...any) {
	d.mu.Lock()
	logger := d.logger
	d.mu.Unlock()
	if logger != nil {
		logger.Warn(msg, args...)
	}
}
