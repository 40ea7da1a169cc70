// Package api provides the HTTP REST API and WebSocket server for
// Pulsewire.
//
// It exposes the messaging client's state (connection, queue, recent
// traffic, latency measurements) and flow control operations to
// dashboards and operators.
//
// The server follows the same lifecycle pattern as the other
// infrastructure components:
//
//	server, err := api.New(deps)
//	server.Start(ctx)
//	defer server.Close()
//
// Thread Safety: All methods are safe for concurrent use from multiple goroutines.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/pulsewire/pulsewire-core/internal/infrastructure/config"
	"github.com/pulsewire/pulsewire-core/internal/infrastructure/logging"
	"github.com/pulsewire/pulsewire-core/internal/infrastructure/mqtt"
	"github.com/pulsewire/pulsewire-core/internal/msglog"
	"github.com/pulsewire/pulsewire-core/internal/probe"
	"github.com/pulsewire/pulsewire-core/internal/queue"
	"github.com/pulsewire/pulsewire-core/internal/retained"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// probeHistorySize bounds the latency samples kept for the API.
const probeHistorySize = 100

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	WS      config.WebSocketConfig
	Logger  *logging.Logger
	MQTT    *mqtt.Client
	Queue   *queue.Queue
	Log     *msglog.Log
	Expirer *retained.Expirer
	Version string
}

// Server is the HTTP API server for Pulsewire.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg     config.APIConfig
	wsCfg   config.WebSocketConfig
	logger  *logging.Logger
	mqtt    *mqtt.Client
	queue   *queue.Queue
	log     *msglog.Log
	expirer *retained.Expirer
	version string

	server *http.Server
	hub    *Hub
	cancel context.CancelFunc

	// Latency history fed by RecordProbeEvent.
	probeMu      sync.RWMutex
	probeHistory []probe.Event
	timeouts     int
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, queue, message log)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Queue == nil {
		return nil, fmt.Errorf("outbound queue is required")
	}
	if deps.Log == nil {
		return nil, fmt.Errorf("message log is required")
	}
	// MQTT is optional; connection status reads as disconnected without it.

	return &Server{
		cfg:     deps.Config,
		wsCfg:   deps.WS,
		logger:  deps.Logger,
		mqtt:    deps.MQTT,
		queue:   deps.Queue,
		log:     deps.Log,
		expirer: deps.Expirer,
		version: deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, wires the message
// log feed into the hub, and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	// Live message feed: every logged entry is broadcast to subscribers.
	// Presence traffic is additionally mirrored on its own channel so
	// dashboards can track peers without filtering the firehose.
	s.log.SetOnAppend(func(entry msglog.Entry) {
		s.hub.Broadcast(ChannelMessages, entry)
		if strings.HasPrefix(entry.Topic, mqtt.TopicPrefixPresence+"/") {
			s.hub.Broadcast(ChannelPresence, entry)
		}
	})

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}

// RecordProbeEvent stores a latency probe outcome for the API and
// broadcasts it to WebSocket subscribers. Called by the probe event
// consumer in main.
func (s *Server) RecordProbeEvent(event probe.Event) {
	s.probeMu.Lock()
	s.probeHistory = append(s.probeHistory, event)
	if len(s.probeHistory) > probeHistorySize {
		s.probeHistory = s.probeHistory[len(s.probeHistory)-probeHistorySize:]
	}
	if event.Kind == probe.KindTimeout {
		s.timeouts++
	}
	s.probeMu.Unlock()

	if s.hub != nil {
		s.hub.Broadcast(ChannelLatency, latencyEventView(event))
	}
}
