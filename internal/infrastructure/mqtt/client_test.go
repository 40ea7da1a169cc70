package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/pulsewire/pulsewire-core/internal/infrastructure/config"
)

// testConfig returns a valid MQTT configuration for testing.
func testConfig() config.MQTTConfig {
	return config.MQTTConfig{
		Broker: config.MQTTBrokerConfig{
			Host:     "127.0.0.1",
			Port:     1883,
			ClientID: "pulsewire-test",
			TLS:      false,
		},
		Auth: config.MQTTAuthConfig{
			Username: "",
			Password: "",
		},
		QoS: 1,
		Reconnect: config.MQTTReconnectConfig{
			InitialDelay: 1,
			MaxDelay:     5,
		},
	}
}

// =============================================================================
// Option Building Tests
// =============================================================================

func TestBuildClientOptions(t *testing.T) {
	cfg := testConfig()
	opts := buildClientOptions(cfg)

	if len(opts.Servers) != 1 {
		t.Fatalf("Servers count = %d, want 1", len(opts.Servers))
	}
	if got := opts.Servers[0].String(); got != "tcp://127.0.0.1:1883" {
		t.Errorf("broker URL = %q, want tcp://127.0.0.1:1883", got)
	}
	if opts.ClientID != "pulsewire-test" {
		t.Errorf("ClientID = %q, want pulsewire-test", opts.ClientID)
	}
	if !opts.AutoReconnect {
		t.Error("AutoReconnect = false, want true")
	}
	if !opts.CleanSession {
		t.Error("CleanSession = false, want true")
	}
}

func TestBuildClientOptionsTLS(t *testing.T) {
	cfg := testConfig()
	cfg.Broker.TLS = true
	cfg.Broker.Port = 8883

	opts := buildClientOptions(cfg)

	if got := opts.Servers[0].String(); got != "ssl://127.0.0.1:8883" {
		t.Errorf("broker URL = %q, want ssl://127.0.0.1:8883", got)
	}
	if opts.TLSConfig == nil {
		t.Fatal("TLSConfig = nil, want configured")
	}
}

func TestBuildClientOptionsAuth(t *testing.T) {
	cfg := testConfig()
	cfg.Auth.Username = "user"
	cfg.Auth.Password = "pass"

	opts := buildClientOptions(cfg)

	if opts.Username != "user" {
		t.Errorf("Username = %q, want user", opts.Username)
	}
	if opts.Password != "pass" {
		t.Errorf("Password = %q, want pass", opts.Password)
	}
}

// =============================================================================
// Presence Payload Tests
// =============================================================================

func TestConfigureLWT(t *testing.T) {
	cfg := testConfig()
	opts := buildClientOptions(cfg)
	configureLWT(opts, cfg.Broker.ClientID)

	if !opts.WillEnabled {
		t.Fatal("WillEnabled = false, want true")
	}
	if opts.WillTopic != "pulsewire/presence/pulsewire-test" {
		t.Errorf("WillTopic = %q", opts.WillTopic)
	}
	if !opts.WillRetained {
		t.Error("WillRetained = false, want true")
	}
	if opts.WillQos != 1 {
		t.Errorf("WillQos = %d, want 1", opts.WillQos)
	}

	var payload map[string]string
	if err := json.Unmarshal(opts.WillPayload, &payload); err != nil {
		t.Fatalf("will payload is not valid JSON: %v", err)
	}
	if payload["status"] != "offline" {
		t.Errorf("will status = %q, want offline", payload["status"])
	}
	if payload["client_id"] != "pulsewire-test" {
		t.Errorf("will client_id = %q, want pulsewire-test", payload["client_id"])
	}
	if payload["reason"] != "unexpected_disconnect" {
		t.Errorf("will reason = %q, want unexpected_disconnect", payload["reason"])
	}
	if payload["timestamp"] == "" {
		t.Error("will timestamp is empty")
	}
}

func TestBuildOnlinePayload(t *testing.T) {
	var payload map[string]string
	if err := json.Unmarshal([]byte(buildOnlinePayload("core-01")), &payload); err != nil {
		t.Fatalf("online payload is not valid JSON: %v", err)
	}
	if payload["status"] != "online" {
		t.Errorf("status = %q, want online", payload["status"])
	}
	if payload["client_id"] != "core-01" {
		t.Errorf("client_id = %q, want core-01", payload["client_id"])
	}
}

func TestBuildOfflinePayload(t *testing.T) {
	var payload map[string]string
	if err := json.Unmarshal([]byte(buildOfflinePayload("core-01")), &payload); err != nil {
		t.Fatalf("offline payload is not valid JSON: %v", err)
	}
	if payload["status"] != "offline" {
		t.Errorf("status = %q, want offline", payload["status"])
	}
	if payload["reason"] != "graceful_shutdown" {
		t.Errorf("reason = %q, want graceful_shutdown", payload["reason"])
	}
}

// =============================================================================
// Validation Tests (no broker required)
// =============================================================================

func TestCloseNil(t *testing.T) {
	client := &Client{}
	err := client.Close()
	if err != nil {
		t.Errorf("Close() on zero client error = %v, want nil", err)
	}
}

func TestPublishEmptyTopic(t *testing.T) {
	client := &Client{}
	err := client.Publish("", []byte("test"), 1, false)
	if !errors.Is(err, ErrInvalidTopic) {
		t.Errorf("Publish() error = %v, want ErrInvalidTopic", err)
	}
}

func TestPublishInvalidQoS(t *testing.T) {
	client := &Client{}
	err := client.Publish("test/topic", []byte("test"), 3, false)
	if !errors.Is(err, ErrInvalidQoS) {
		t.Errorf("Publish() error = %v, want ErrInvalidQoS", err)
	}
}

func TestPublishOversizedPayload(t *testing.T) {
	client := &Client{}
	err := client.Publish("test/topic", make([]byte, maxPayloadSize+1), 1, false)
	if !errors.Is(err, ErrPublishFailed) {
		t.Errorf("Publish() error = %v, want ErrPublishFailed", err)
	}
}

func TestPublishDisconnected(t *testing.T) {
	client := &Client{}
	err := client.Publish("test/topic", []byte("test"), 1, false)
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Publish() error = %v, want ErrNotConnected", err)
	}
}

func TestSubscribeNilHandler(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}
	err := client.Subscribe("test/topic", 1, nil)
	if !errors.Is(err, ErrSubscribeFailed) {
		t.Errorf("Subscribe() error = %v, want ErrSubscribeFailed", err)
	}
}

func TestSubscribeDisconnected(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}
	err := client.Subscribe("test/topic", 1, func(string, []byte) error { return nil })
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Subscribe() error = %v, want ErrNotConnected", err)
	}
}

func TestUnsubscribeDisconnected(t *testing.T) {
	client := &Client{subscriptions: make(map[string]subscription)}
	err := client.Unsubscribe("test/topic")
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("Unsubscribe() error = %v, want ErrNotConnected", err)
	}
}

func TestHealthCheckCancelled(t *testing.T) {
	client := &Client{}

	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	err := client.HealthCheck(ctx)
	if err == nil {
		t.Error("HealthCheck() expected error for cancelled context")
	}
}

func TestHealthCheckDisconnected(t *testing.T) {
	client := &Client{}

	err := client.HealthCheck(context.Background())
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("HealthCheck() error = %v, want ErrNotConnected", err)
	}
}

func TestClientID(t *testing.T) {
	client := &Client{cfg: testConfig()}
	if got := client.ClientID(); got != "pulsewire-test" {
		t.Errorf("ClientID() = %q, want pulsewire-test", got)
	}
	if got := client.DefaultQoS(); got != 1 {
		t.Errorf("DefaultQoS() = %d, want 1", got)
	}
}

// =============================================================================
// Topic Builder Tests
// =============================================================================

func TestTopics(t *testing.T) {
	topics := Topics{}

	tests := []struct {
		name string
		got  string
		want string
	}{
		{"presence", topics.Presence("core-01"), "pulsewire/presence/core-01"},
		{"all presence", topics.AllPresence(), "pulsewire/presence/+"},
		{"control", topics.Control(), "pulsewire/control"},
		{"control ack", topics.ControlAck(), "pulsewire/control/ack"},
		{"ping", topics.Ping(), "pulsewire/probe/ping"},
		{"pong", topics.Pong(), "pulsewire/probe/pong"},
		{"request", topics.Request("reading"), "pulsewire/request/reading"},
		{"response", topics.Response("core-01", "abc"), "pulsewire/response/core-01/abc"},
		{"all responses", topics.AllResponses("core-01"), "pulsewire/response/core-01/+"},
		{"sensor reading", topics.SensorReading("temperature"), "pulsewire/sensor/temperature/reading"},
		{"all sensor readings", topics.AllSensorReadings(), "pulsewire/sensor/+/reading"},
		{"all topics", topics.AllTopics(), "pulsewire/#"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %q, want %q", tt.got, tt.want)
			}
		})
	}

	for _, tt := range tests {
		if !strings.HasPrefix(tt.got, TopicPrefix) {
			t.Errorf("topic %q does not share the pulsewire prefix", tt.got)
		}
	}
}

// =============================================================================
// Handler Wrapping Tests
// =============================================================================

func TestWrapHandlerPanicRecovery(t *testing.T) {
	logger := &mockLogger{}
	client := &Client{}
	client.SetLogger(logger)

	wrapped := client.wrapHandler(func(string, []byte) error {
		panic("handler exploded")
	})

	// Must not propagate the panic
	wrapped(nil, &fakeMessage{topic: "t", payload: []byte("p")})

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.errors) != 1 {
		t.Errorf("logged errors = %d, want 1", len(logger.errors))
	}
}

func TestWrapHandlerErrorLogged(t *testing.T) {
	logger := &mockLogger{}
	client := &Client{}
	client.SetLogger(logger)

	wrapped := client.wrapHandler(func(string, []byte) error {
		return errors.New("parse failure")
	})

	wrapped(nil, &fakeMessage{topic: "t", payload: []byte("p")})

	logger.mu.Lock()
	defer logger.mu.Unlock()
	if len(logger.warns) != 1 {
		t.Errorf("logged warnings = %d, want 1", len(logger.warns))
	}
}

// mockLogger implements Logger interface for testing.
type mockLogger struct {
	errors []string
	warns  []string
	mu     sync.Mutex
}

func (l *mockLogger) Error(msg string, _ ...any) {
	l.mu.Lock()
	l.errors = append(l.errors, msg)
	l.mu.Unlock()
}

func (l *mockLogger) Warn(msg string, _ ...any) {
	l.mu.Lock()
	l.warns = append(l.warns, msg)
	l.mu.Unlock()
}

// fakeMessage implements the paho Message interface for handler tests.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}
