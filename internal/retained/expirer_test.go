package retained

import (
	"errors"
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

func (r *recordingEnqueuer) last() (queue.Message, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		return queue.Message{}, false
	}
	return r.sent[len(r.sent)-1], true
}

func waitForClear(t *testing.T, sink *recordingEnqueuer, deadline time.Duration) queue.Message {
	t.Helper()
	end := time.Now().Add(deadline)
	for time.Now().Before(end) {
		if msg, ok := sink.last(); ok {
			return msg
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timeout waiting for clearing publish")
	return queue.Message{}
}

func TestExpiryPublishesEmptyRetained(t *testing.T) {
	sink := &recordingEnqueuer{}
	e := New(sink, time.Minute)
	defer e.Close()

	if err := e.Track("pulsewire/sensor/temp/reading", []byte(`{"value":21.5}`), 60*time.Millisecond); err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	if !e.Armed("pulsewire/sensor/temp/reading") {
		t.Fatal("Armed() = false after Track, want true")
	}

	clear := waitForClear(t, sink, time.Second)
	if clear.Topic != "pulsewire/sensor/temp/reading" {
		t.Errorf("clear topic = %q", clear.Topic)
	}
	if len(clear.Payload) != 0 {
		t.Errorf("clear payload = %q, want empty", clear.Payload)
	}
	if !clear.Retained {
		t.Error("clear Retained = false, want true")
	}
	if e.Armed("pulsewire/sensor/temp/reading") {
		t.Error("Armed() = true after expiry, want false")
	}
}

// TestRepublishRearmsTimer refreshes the value mid-expiry and verifies
// the clear happens relative to the refresh, not the first publish.
func TestRepublishRearmsTimer(t *testing.T) {
	sink := &recordingEnqueuer{}
	e := New(sink, time.Minute)
	defer e.Close()

	topic := "pulsewire/sensor/temp/reading"
	if err := e.Track(topic, []byte("v1"), 120*time.Millisecond); err != nil {
		t.Fatalf("Track() error = %v", err)
	}

	time.Sleep(70 * time.Millisecond)
	if err := e.Track(topic, []byte("v2"), 120*time.Millisecond); err != nil {
		t.Fatalf("Track() refresh error = %v", err)
	}

	// Past the original deadline but inside the refreshed one.
	time.Sleep(80 * time.Millisecond)
	if sink.count() != 0 {
		t.Fatal("cleared before refreshed deadline")
	}

	waitForClear(t, sink, time.Second)
}

func TestEmptyPayloadDisarms(t *testing.T) {
	sink := &recordingEnqueuer{}
	e := New(sink, time.Minute)
	defer e.Close()

	topic := "pulsewire/sensor/temp/reading"
	if err := e.Track(topic, []byte("v1"), 60*time.Millisecond); err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	if err := e.Track(topic, nil, 60*time.Millisecond); err != nil {
		t.Fatalf("Track() clear error = %v", err)
	}
	if e.Armed(topic) {
		t.Fatal("Armed() = true after clear, want false")
	}

	time.Sleep(100 * time.Millisecond)
	if sink.count() != 0 {
		t.Errorf("clears published = %d after manual clear, want 0", sink.count())
	}
}

func TestEmptyPayloadNeverArms(t *testing.T) {
	e := New(&recordingEnqueuer{}, time.Minute)
	defer e.Close()

	if err := e.Track("pulsewire/sensor/temp/reading", nil, time.Second); err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	if e.Count() != 0 {
		t.Errorf("Count() = %d after empty Track, want 0", e.Count())
	}
}

func TestObserveIgnoresUnretained(t *testing.T) {
	e := New(&recordingEnqueuer{}, time.Minute)
	defer e.Close()

	e.Observe(queue.Message{Topic: "t", Payload: []byte("x"), Retained: false, ExpirySeconds: 1})
	if e.Count() != 0 {
		t.Errorf("Count() = %d for unretained message, want 0", e.Count())
	}

	e.Observe(queue.Message{Topic: "t", Payload: []byte("x"), Retained: true, ExpirySeconds: 30})
	if !e.Armed("t") {
		t.Error("Armed() = false for retained message, want true")
	}
}

func TestTrackDefaultTTL(t *testing.T) {
	sink := &recordingEnqueuer{}
	e := New(sink, 60*time.Millisecond)
	defer e.Close()

	if err := e.Track("t", []byte("x"), 0); err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	waitForClear(t, sink, time.Second)
}

func TestCloseStopsTimers(t *testing.T) {
	sink := &recordingEnqueuer{}
	e := New(sink, time.Minute)

	if err := e.Track("t", []byte("x"), 50*time.Millisecond); err != nil {
		t.Fatalf("Track() error = %v", err)
	}
	e.Close()

	time.Sleep(100 * time.Millisecond)
	if sink.count() != 0 {
		t.Errorf("clears published = %d after Close, want 0", sink.count())
	}

	if err := e.Track("t", []byte("x"), time.Second); !errors.Is(err, ErrClosed) {
		t.Errorf("Track() after Close error = %v, want ErrClosed", err)
	}
}
