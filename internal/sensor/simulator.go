package sensor

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/pulsewire/pulsewire-core/internal/infrastructure/mqtt"
	"github.com/pulsewire/pulsewire-core/internal/queue"
)

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

// Reading is one simulated measurement.
type Reading struct {
	SensorID  string  `json:"sensor_id"`
	Value     float64 `json:"value"`
	Unit      string  `json:"unit"`
	Timestamp string  `json:"timestamp"`
}

// Simulator publishes fabricated readings for a set of sensors at a
// fixed interval. Readings are retained so late subscribers see the
// latest value, and they carry the queue's default expiry so stale
// values disappear when a simulator dies.
//
// It also answers on-demand read requests through the request broker.
type Simulator struct {
	outbound Enqueuer
	topics   mqtt.Topics
	ids      []string
	interval time.Duration

	mu      sync.Mutex
	current map[string]Reading
	rng     *rand.Rand
	logger  Logger
}

// New creates a simulator for the given sensor ids.
func New(outbound Enqueuer, ids []string, interval time.Duration) *Simulator {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Simulator{
		outbound: outbound,
		ids:      ids,
		interval: interval,
		current:  make(map[string]Reading),
		rng:      rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetLogger sets a logger for simulator diagnostics.
func (s *Simulator) SetLogger(logger Logger) {
	s.mu.Lock()
	s.logger = logger
	s.mu.Unlock()
}

// Start publishes one round immediately, then a round per interval
// until the context is cancelled.
func (s *Simulator) Start(ctx context.Context) {
	go func() {
		s.publishRound()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.publishRound()
			}
		}
	}()
}

// Current returns the latest reading for a sensor id.
func (s *Simulator) Current(id string) (Reading, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	reading, ok := s.current[id]
	return reading, ok
}

// HandleReadRequest serves an on-demand reading through the request
// broker. The payload selects the sensor: {"sensor_id":"temperature"}.
// An empty payload returns the first configured sensor.
func (s *Simulator) HandleReadRequest(payload []byte) ([]byte, error) {
	var req struct {
		SensorID string `json:"sensor_id"`
	}
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			return nil, fmt.Errorf("decoding read request: %w", err)
		}
	}
	if req.SensorID == "" {
		if len(s.ids) == 0 {
			return nil, fmt.Errorf("no sensors configured")
		}
		req.SensorID = s.ids[0]
	}

	reading, ok := s.Current(req.SensorID)
	if !ok {
		// No round published yet; fabricate on demand.
		reading = s.sample(req.SensorID)
		s.mu.Lock()
		s.current[req.SensorID] = reading
		s.mu.Unlock()
	}
	return json.Marshal(reading)
}

// publishRound samples every sensor and enqueues the readings.
func (s *Simulator) publishRound() {
	for _, id := range s.ids {
		reading := s.sample(id)

		s.mu.Lock()
		s.current[id] = reading
		logger := s.logger
		s.mu.Unlock()

		raw, err := json.Marshal(reading)
		if err != nil {
			if logger != nil {
				logger.Error("encoding reading failed", "sensor", id, "error", err)
			}
			continue
		}

		err = s.outbound.Enqueue(queue.Message{
			Topic:    s.topics.SensorReading(id),
			Payload:  raw,
			QoS:      1,
			Retained: true,
		})
		if err != nil {
			if logger != nil {
				logger.Warn("reading rejected by queue", "sensor", id, "error", err)
			}
		}
	}
}

// sample fabricates a plausible value for the sensor id.
func (s *Simulator) sample(id string) Reading {
	s.mu.Lock()
	jitter := s.rng.Float64()
	s.mu.Unlock()

	var value float64
	var unit string
	switch id {
	case "temperature":
		value = 18.0 + jitter*8.0
		unit = "celsius"
	case "humidity":
		value = 35.0 + jitter*40.0
		unit = "percent"
	case "pressure":
		value = 990.0 + jitter*40.0
		unit = "hpa"
	default:
		value = jitter * 100.0
		unit = "units"
	}

	return Reading{
		SensorID:  id,
		Value:     float64(int(value*100)) / 100,
		Unit:      unit,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
}
