package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for Pulsewire Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Service   ServiceConfig   `yaml:"service"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Queue     QueueConfig     `yaml:"queue"`
	RPC       RPCConfig       `yaml:"rpc"`
	Probe     ProbeConfig     `yaml:"probe"`
	Retained  RetainedConfig  `yaml:"retained"`
	Sensors   SensorsConfig   `yaml:"sensors"`
	API       APIConfig       `yaml:"api"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// ServiceConfig contains service-level identity settings.
type ServiceConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
// Authentication itself is the broker's concern; Pulsewire only forwards these.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
// Delays are in seconds; reconnection backs off exponentially between
// InitialDelay and MaxDelay with unlimited attempts.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// QueueConfig contains outbound publish queue settings.
type QueueConfig struct {
	// Capacity bounds the in-memory queue; Enqueue rejects when full.
	Capacity int `yaml:"capacity"`

	// RateLimit is the maximum number of publishes per rate window.
	RateLimit int `yaml:"rate_limit"`

	// RateWindow is the rate window length in milliseconds.
	RateWindow int `yaml:"rate_window"`

	// DefaultExpiry is assigned to messages enqueued without an explicit
	// expiry, in seconds.
	DefaultExpiry int `yaml:"default_expiry"`
}

// RPCConfig contains request/response settings.
type RPCConfig struct {
	// DefaultTimeout is the request timeout in milliseconds when the caller
	// does not provide one.
	DefaultTimeout int `yaml:"default_timeout"`
}

// ProbeConfig contains latency probe settings.
type ProbeConfig struct {
	// Timeout is how long to wait for a pong, in seconds.
	Timeout int `yaml:"timeout"`

	// Interval enables periodic pinging when > 0, in seconds.
	Interval int `yaml:"interval"`
}

// RetainedConfig contains retained-state expiry simulation settings.
type RetainedConfig struct {
	// Expiry is the quiet window after which a retained value is cleared,
	// in seconds.
	Expiry int `yaml:"expiry"`
}

// SensorsConfig contains sensor simulator settings.
type SensorsConfig struct {
	Enabled bool `yaml:"enabled"`

	// Interval between simulated readings, in seconds.
	Interval int `yaml:"interval"`

	// IDs lists the simulated sensors (e.g. "temperature", "humidity").
	IDs []string `yaml:"ids"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	TLS      TLSConfig        `yaml:"tls"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`
}

// TLSConfig contains TLS certificate settings.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// WebSocketConfig contains WebSocket event feed settings.
type WebSocketConfig struct {
	Path           string `yaml:"path"`
	MaxMessageSize int    `yaml:"max_message_size"`
	PingInterval   int    `yaml:"ping_interval"`
	PongTimeout    int    `yaml:"pong_timeout"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
/// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: PULSEWIRE_SECTION_KEY
// For example: PULSEWIRE_MQTT_HOST, PULSEWIRE_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	// Start with defaults
	cfg := defaultConfig()

	// Read and parse YAML file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Apply environment variable overrides
	applyEnvOverrides(cfg)

	// Validate configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			ID:   "pulsewire-001",
			Name: "Pulsewire",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "pulsewire-core",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
		},
		Queue: QueueConfig{
			Capacity:      1024,
			RateLimit:     10,
			RateWindow:    1000,
			DefaultExpiry: 60,
		},
		RPC: RPCConfig{
			DefaultTimeout: 5000,
		},
		Probe: ProbeConfig{
			Timeout:  5,
			Interval: 0,
		},
		Retained: RetainedConfig{
			Expiry: 60,
		},
		Sensors: SensorsConfig{
			Enabled:  true,
			Interval: 5,
			IDs:      []string{"temperature", "humidity"},
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WebSocket: WebSocketConfig{
			Path:           "/ws",
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: PULSEWIRE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Service
	if v := os.Getenv("PULSEWIRE_SERVICE_ID"); v != "" {
		cfg.Service.ID = v
	}

	// MQTT
	if v := os.Getenv("PULSEWIRE_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("PULSEWIRE_MQTT_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.MQTT.Broker.Port = port
		}
	}
	if v := os.Getenv("PULSEWIRE_MQTT_CLIENT_ID"); v != "" {
		cfg.MQTT.Broker.ClientID = v
	}
	if v := os.Getenv("PULSEWIRE_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("PULSEWIRE_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("PULSEWIRE_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("PULSEWIRE_API_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.API.Port = port
		}
	}

	// InfluxDB
	if v := os.Getenv("PULSEWIRE_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Service validation
	if c.Service.ID == "" {
		errs = append(errs, "service.id is required")
	}

	// MQTT validation
	if c.MQTT.Broker.ClientID == "" {
		errs = append(errs, "mqtt.broker.client_id is required")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Reconnect.InitialDelay < 1 {
		errs = append(errs, "mqtt.reconnect.initial_delay must be at least 1 second")
	}
	if c.MQTT.Reconnect.MaxDelay < c.MQTT.Reconnect.InitialDelay {
		errs = append(errs, "mqtt.reconnect.max_delay must be >= initial_delay")
	}

	// Queue validation
	if c.Queue.Capacity < 1 {
		errs = append(errs, "queue.capacity must be at least 1")
	}
	if c.Queue.RateLimit < 1 {
		errs = append(errs, "queue.rate_limit must be at least 1")
	}
	if c.Queue.RateWindow < 1 {
		errs = append(errs, "queue.rate_window must be at least 1 millisecond")
	}
	if c.Queue.DefaultExpiry < 1 {
		errs = append(errs, "queue.default_expiry must be at least 1 second")
	}

	// RPC validation
	if c.RPC.DefaultTimeout < 1 {
		errs = append(errs, "rpc.default_timeout must be at least 1 millisecond")
	}

	// Probe validation
	if c.Probe.Timeout < 1 {
		errs = append(errs, "probe.timeout must be at least 1 second")
	}

	// Retained validation
	if c.Retained.Expiry < 1 {
		errs = append(errs, "retained.expiry must be at least 1 second")
	}

	// API validation
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// GetRateWindow returns the queue rate window as a Duration.
func (c *Config) GetRateWindow() time.Duration {
	return time.Duration(c.Queue.RateWindow) * time.Millisecond
}

// GetRequestTimeout returns the default RPC request timeout as a Duration.
func (c *Config) GetRequestTimeout() time.Duration {
	return time.Duration(c.RPC.DefaultTimeout) * time.Millisecond
}

// GetProbeTimeout returns the latency probe timeout as a Duration.
func (c *Config) GetProbeTimeout() time.Duration {
	return time.Duration(c.Probe.Timeout) * time.Second
}

// GetRetainedExpiry returns the retained-state expiry window as a Duration.
func (c *Config) GetRetainedExpiry() time.Duration {
	return time.Duration(c.Retained.Expiry) * time.Second
}

// GetReadTimeout returns the API read timeout as a Duration.
func (c *Config) GetReadTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (c *Config) GetWriteTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (c *Config) GetIdleTimeout() time.Duration {
	return time.Duration(c.API.Timeouts.Idle) * time.Second
}
