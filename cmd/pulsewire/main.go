// Pulsewire - Messaging Client Service
//
// This is the main entry point for the Pulsewire client. Pulsewire is a
// long-running MQTT client that demonstrates and exercises broker
// behaviour: presence via retained last-will messages, flow-controlled
// publishing, request/response over pub/sub, latency probing, and
// simulated expiry for retained values.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pulsewire/pulsewire-core/internal/api"
	"github.com/pulsewire/pulsewire-core/internal/control"
	"github.com/pulsewire/pulsewire-core/internal/infrastructure/config"
	"github.com/pulsewire/pulsewire-core/internal/infrastructure/influxdb"
	"github.com/pulsewire/pulsewire-core/internal/infrastructure/logging"
	"github.com/pulsewire/pulsewire-core/internal/infrastructure/mqtt"
	"github.com/pulsewire/pulsewire-core/internal/msglog"
	"github.com/pulsewire/pulsewire-core/internal/probe"
	"github.com/pulsewire/pulsewire-core/internal/queue"
	"github.com/pulsewire/pulsewire-core/internal/retained"
	"github.com/pulsewire/pulsewire-core/internal/rpc"
	"github.com/pulsewire/pulsewire-core/internal/sensor"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

// messageLogCapacity bounds the in-memory traffic log.
const messageLogCapacity = 500

// queueSampleInterval is how often queue depth is written to InfluxDB.
const queueSampleInterval = 10 * time.Second

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
// Returning an error allows main to handle exit codes consistently.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Pulsewire",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Connect to MQTT broker. The connection carries a retained last-will
	// so peers see "offline" even if this process dies uncleanly.
	mqttClient, err := mqtt.Connect(cfg.MQTT)
	if err != nil {
		return fmt.Errorf("connecting to MQTT: %w", err)
	}
	defer func() {
		log.Info("disconnecting from MQTT")
		if closeErr := mqttClient.Close(); closeErr != nil {
			log.Error("error closing MQTT", "error", closeErr)
		}
	}()
	log.Info("MQTT connected",
		"broker", fmt.Sprintf("%s:%d", cfg.MQTT.Broker.Host, cfg.MQTT.Broker.Port),
		"client_id", cfg.MQTT.Broker.ClientID,
	)

	mqttClient.SetLogger(log)
	mqttClient.SetOnConnect(func() {
		log.Info("MQTT session established")
	})
	mqttClient.SetOnDisconnect(func(err error) {
		log.Warn("MQTT disconnected", "error", err)
	})

	// Connect to InfluxDB (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(cfg.InfluxDB, cfg.Service.ID)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		log.Info("InfluxDB connected",
			"url", cfg.InfluxDB.URL,
			"org", cfg.InfluxDB.Org,
			"bucket", cfg.InfluxDB.Bucket,
		)

		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
	} else {
		log.Info("InfluxDB disabled")
	}

	// Outbound queue: everything published by this client flows through
	// here, rate limited and in strict order.
	outbound := queue.New(mqttClient, queue.Config{
		Capacity:             cfg.Queue.Capacity,
		RateLimit:            cfg.Queue.RateLimit,
		RateWindow:           cfg.GetRateWindow(),
		DefaultExpirySeconds: cfg.Queue.DefaultExpiry,
	})
	outbound.SetLogger(log.Component("queue"))

	// Retained expiry simulation watches drained retained publishes.
	expirer := retained.New(outbound, cfg.GetRetainedExpiry())
	expirer.SetLogger(log.Component("retained"))
	defer expirer.Close()

	// Message log records outbound traffic via the queue callback and
	// inbound traffic via a firehose subscription.
	trafficLog := msglog.New(messageLogCapacity)
	outbound.SetOnPublish(func(msg queue.Message) {
		expirer.Observe(msg)
		trafficLog.ObserveOutbound(msg)
		if influxClient != nil {
			recordSensorReading(influxClient, msg)
		}
	})

	outbound.Start(ctx)
	defer outbound.Close()
	log.Info("outbound queue started",
		"capacity", cfg.Queue.Capacity,
		"rate_limit", cfg.Queue.RateLimit,
		"rate_window", cfg.GetRateWindow(),
	)

	if err := mqttClient.Subscribe(mqtt.Topics{}.AllTopics(), mqttClient.DefaultQoS(), trafficLog.RecordInbound); err != nil {
		return fmt.Errorf("subscribing message log: %w", err)
	}

	// Request/response broker
	broker := rpc.New(mqttClient, outbound, cfg.GetRequestTimeout())
	broker.SetLogger(log.Component("rpc"))
	defer func() {
		if closeErr := broker.Close(); closeErr != nil {
			log.Error("error closing request broker", "error", closeErr)
		}
	}()

	// Sensor simulators (optional)
	if cfg.Sensors.Enabled {
		simulator := sensor.New(outbound, cfg.Sensors.IDs, time.Duration(cfg.Sensors.Interval)*time.Second)
		simulator.SetLogger(log.Component("sensor"))

		if err := broker.OnRequest("reading", simulator.HandleReadRequest); err != nil {
			return fmt.Errorf("registering reading handler: %w", err)
		}

		simulator.Start(ctx)
		log.Info("sensor simulators started",
			"sensors", cfg.Sensors.IDs,
			"interval_s", cfg.Sensors.Interval,
		)
	} else {
		log.Info("sensor simulators disabled")
	}

	// Latency probe
	latencyProbe := probe.New(mqttClient, outbound, cfg.GetProbeTimeout())
	latencyProbe.SetLogger(log.Component("probe"))
	if err := latencyProbe.Start(ctx, time.Duration(cfg.Probe.Interval)*time.Second); err != nil {
		return fmt.Errorf("starting latency probe: %w", err)
	}
	defer func() {
		if closeErr := latencyProbe.Close(); closeErr != nil {
			log.Error("error closing latency probe", "error", closeErr)
		}
	}()

	// Flow control command dispatcher
	dispatcher := control.New(mqttClient, outbound)
	dispatcher.SetLogger(log.Component("control"))
	if err := dispatcher.Start(); err != nil {
		return fmt.Errorf("starting control dispatcher: %w", err)
	}
	defer func() {
		if closeErr := dispatcher.Close(); closeErr != nil {
			log.Error("error closing control dispatcher", "error", closeErr)
		}
	}()

	// HTTP API and WebSocket feed
	apiServer, err := api.New(api.Deps{
		Config:  cfg.API,
		WS:      cfg.WebSocket,
		Logger:  log.Component("api"),
		MQTT:    mqttClient,
		Queue:   outbound,
		Log:     trafficLog,
		Expirer: expirer,
		Version: version,
	})
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}
	if err := apiServer.Start(ctx); err != nil {
		return fmt.Errorf("starting API server: %w", err)
	}
	defer func() {
		if closeErr := apiServer.Close(); closeErr != nil {
			log.Error("error closing API server", "error", closeErr)
		}
	}()
	log.Info("API server started",
		"address", fmt.Sprintf("%s:%d", cfg.API.Host, cfg.API.Port),
	)

	// Fan probe outcomes to the API and metrics.
	go consumeProbeEvents(ctx, latencyProbe, apiServer, influxClient, log)

	// Periodic queue depth samples for dashboards.
	if influxClient != nil {
		go sampleQueueDepth(ctx, outbound, influxClient)
	}

	// Verify all connections are healthy
	if err := healthCheck(ctx, mqttClient, influxClient, apiServer); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	log.Info("initialisation complete, waiting for shutdown signal")

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")

	// Deferred Close() calls run in reverse order: API server, control
	// dispatcher, probe, broker, queue, expirer, InfluxDB, then MQTT
	// (which publishes the graceful offline presence).

	log.Info("Pulsewire stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses PULSEWIRE_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("PULSEWIRE_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}

// consumeProbeEvents routes latency probe outcomes to the API server
// and, when enabled, to InfluxDB.
func consumeProbeEvents(ctx context.Context, latencyProbe *probe.Probe, apiServer *api.Server, influxClient *influxdb.Client, log *logging.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case event := <-latencyProbe.Events():
			apiServer.RecordProbeEvent(event)

			switch event.Kind {
			case probe.KindLatency:
				log.Debug("latency measured",
					"responder", event.Responder,
					"rtt_ms", event.RTT.Milliseconds(),
				)
				if influxClient != nil {
					influxClient.WriteLatency(event.Responder, event.RTT)
				}
			case probe.KindTimeout:
				log.Warn("latency probe timed out", "correlation_id", event.CorrelationID)
				if influxClient != nil {
					influxClient.WriteProbeTimeout()
				}
			}
		}
	}
}

// recordSensorReading forwards published sensor readings to InfluxDB.
// Non-sensor traffic and unparseable payloads are ignored.
func recordSensorReading(influxClient *influxdb.Client, msg queue.Message) {
	if !strings.HasPrefix(msg.Topic, mqtt.TopicPrefix+"/sensor/") || !strings.HasSuffix(msg.Topic, "/reading") {
		return
	}

	var reading struct {
		SensorID string  `json:"sensor_id"`
		Value    float64 `json:"value"`
		Unit     string  `json:"unit"`
	}
	if err := json.Unmarshal(msg.Payload, &reading); err != nil || reading.SensorID == "" {
		return
	}
	influxClient.WriteSensorReading(reading.SensorID, reading.Value, reading.Unit)
}

// sampleQueueDepth periodically records queue state to InfluxDB.
func sampleQueueDepth(ctx context.Context, outbound *queue.Queue, influxClient *influxdb.Client) {
	ticker := time.NewTicker(queueSampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			influxClient.WriteQueueDepth(outbound.Depth(), outbound.Rate(), outbound.Paused())
		}
	}
}

// healthCheck verifies all infrastructure connections are healthy.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//   - mqttClient: MQTT client to check
//   - influxClient: InfluxDB client to check (may be nil if disabled)
//   - apiServer: API server to check
//
// Returns:
//   - error: First health check failure, or nil if all healthy
func healthCheck(ctx context.Context, mqttClient *mqtt.Client, influxClient *influxdb.Client, apiServer *api.Server) error {
	if err := mqttClient.HealthCheck(ctx); err != nil {
		return fmt.Errorf("mqtt: %w", err)
	}

	if influxClient != nil {
		if err := influxClient.HealthCheck(ctx); err != nil {
			return fmt.Errorf("influxdb: %w", err)
		}
	}

	if err := apiServer.HealthCheck(ctx); err != nil {
		return fmt.Errorf("api: %w", err)
	}

	return nil
}
