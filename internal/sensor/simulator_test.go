package sensor

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/pulsewire/pulsewire-core/internal/queue"
)

type recordingEnqueuer struct {
	mu   sync.Mutex
	sent []queue.Message
}

func (r *recordingEnqueuer) Enqueue(msg queue.Message) error {
	r.mu.Lock()
	r.sent = append(r.sent, msg)
	r.mu.Unlock()
	return nil
}

func (r *recordingEnqueuer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sent)
}

func (r *recordingEnqueuer) all() []queue.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]queue.Message, len(r.sent))
	copy(out, r.sent)
	return out
}

func TestPublishRound(t *testing.T) {
	sink := &recordingEnqueuer{}
	s := New(sink, []string{"temperature", "humidity"}, time.Second)

	s.publishRound()

	msgs := sink.all()
	if len(msgs) != 2 {
		t.Fatalf("published = %d, want 2", len(msgs))
	}

	wantTopics := map[string]bool{
		"pulsewire/sensor/temperature/reading": false,
		"pulsewire/sensor/humidity/reading":    false,
	}
	for _, msg := range msgs {
		if _, ok := wantTopics[msg.Topic]; !ok {
			t.Errorf("unexpected topic %q", msg.Topic)
			continue
		}
		wantTopics[msg.Topic] = true

		if !msg.Retained {
			t.Errorf("%s: Retained = false, want true", msg.Topic)
		}
		var reading Reading
		if err := json.Unmarshal(msg.Payload, &reading); err != nil {
			t.Fatalf("%s: payload is not valid JSON: %v", msg.Topic, err)
		}
		if reading.Timestamp == "" || reading.Unit == "" {
			t.Errorf("%s: incomplete reading %+v", msg.Topic, reading)
		}
	}
	for topic, seen := range wantTopics {
		if !seen {
			t.Errorf("no reading on %q", topic)
		}
	}
}

func TestSampleRanges(t *testing.T) {
	s := New(&recordingEnqueuer{}, nil, time.Second)

	tests := []struct {
		id       string
		min, max float64
		unit     string
	}{
		{"temperature", 18.0, 26.0, "celsius"},
		{"humidity", 35.0, 75.0, "percent"},
		{"pressure", 990.0, 1030.0, "hpa"},
		{"mystery", 0.0, 100.0, "units"},
	}

	for _, tt := range tests {
		t.Run(tt.id, func(t *testing.T) {
			for i := 0; i < 50; i++ {
				reading := s.sample(tt.id)
				if reading.Value < tt.min || reading.Value > tt.max {
					t.Fatalf("sample(%s) = %v, want in [%v, %v]", tt.id, reading.Value, tt.min, tt.max)
				}
				if reading.Unit != tt.unit {
					t.Fatalf("unit = %q, want %q", reading.Unit, tt.unit)
				}
			}
		})
	}
}

func TestHandleReadRequest(t *testing.T) {
	s := New(&recordingEnqueuer{}, []string{"temperature"}, time.Second)
	s.publishRound()

	result, err := s.HandleReadRequest([]byte(`{"sensor_id":"temperature"}`))
	if err != nil {
		t.Fatalf("HandleReadRequest() error = %v", err)
	}

	var reading Reading
	if err := json.Unmarshal(result, &reading); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if reading.SensorID != "temperature" {
		t.Errorf("sensor_id = %q, want temperature", reading.SensorID)
	}

	current, ok := s.Current("temperature")
	if !ok {
		t.Fatal("Current() missing after round")
	}
	if reading.Value != current.Value {
		t.Errorf("request value = %v, want current %v", reading.Value, current.Value)
	}
}

func TestHandleReadRequestDefaultsToFirstSensor(t *testing.T) {
	s := New(&recordingEnqueuer{}, []string{"humidity", "temperature"}, time.Second)

	result, err := s.HandleReadRequest(nil)
	if err != nil {
		t.Fatalf("HandleReadRequest() error = %v", err)
	}

	var reading Reading
	if err := json.Unmarshal(result, &reading); err != nil {
		t.Fatalf("response is not valid JSON: %v", err)
	}
	if reading.SensorID != "humidity" {
		t.Errorf("sensor_id = %q, want first configured sensor", reading.SensorID)
	}
}

func TestHandleReadRequestNoSensors(t *testing.T) {
	s := New(&recordingEnqueuer{}, nil, time.Second)

	if _, err := s.HandleReadRequest(nil); err == nil {
		t.Error("HandleReadRequest() expected error with no sensors")
	}
}

func TestHandleReadRequestMalformed(t *testing.T) {
	s := New(&recordingEnqueuer{}, []string{"temperature"}, time.Second)

	if _, err := s.HandleReadRequest([]byte("not json")); err == nil {
		t.Error("HandleReadRequest() expected error for malformed payload")
	}
}

func TestStartPublishesPeriodically(t *testing.T) {
	sink := &recordingEnqueuer{}
	s := New(sink, []string{"temperature"}, 50*time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	s.Start(ctx)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if sink.count() >= 3 {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("rounds published = %d, want >= 3", sink.count())
}
