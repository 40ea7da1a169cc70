package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/pulsewire/pulsewire-core/internal/probe"
)

// defaultMessageLimit is how many entries GET /messages returns unless
// a limit parameter is given.
const defaultMessageLimit = 50

// handleStatus reports the client's current operating state.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	status := map[string]any{
		"version": s.version,
		"queue": map[string]any{
			"depth":  s.queue.Depth(),
			"rate":   s.queue.Rate(),
			"paused": s.queue.Paused(),
		},
	}

	if s.mqtt != nil {
		status["client_id"] = s.mqtt.ClientID()
		status["connected"] = s.mqtt.IsConnected()
		status["subscriptions"] = s.mqtt.SubscriptionCount()
	} else {
		status["connected"] = false
	}

	if s.expirer != nil {
		status["retained_tracked"] = s.expirer.Count()
	}
	if s.hub != nil {
		status["websocket_clients"] = s.hub.ClientCount()
	}

	writeJSON(w, http.StatusOK, status)
}

// handleMessages returns recent traffic from the message log,
// newest first. Accepts ?limit=N (default 50).
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request) {
	limit := defaultMessageLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			writeBadRequest(w, "limit must be a positive integer")
			return
		}
		limit = parsed
	}

	entries := s.log.Recent(limit)
	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(entries),
		"messages": entries,
	})
}

// latencyView is the JSON shape of one probe outcome.
type latencyView struct {
	Kind          string  `json:"kind"`
	CorrelationID string  `json:"correlation_id"`
	Responder     string  `json:"responder,omitempty"`
	RTTMillis     float64 `json:"rtt_ms,omitempty"`
	At            string  `json:"at"`
}

// latencyEventView converts a probe event for JSON output.
func latencyEventView(event probe.Event) latencyView {
	view := latencyView{
		CorrelationID: event.CorrelationID,
		At:            event.At.UTC().Format(time.RFC3339Nano),
	}
	switch event.Kind {
	case probe.KindLatency:
		view.Kind = "latency"
		view.Responder = event.Responder
		view.RTTMillis = float64(event.RTT.Microseconds()) / 1000.0
	case probe.KindTimeout:
		view.Kind = "timeout"
	}
	return view
}

// handleLatency returns recent probe outcomes and summary figures.
func (s *Server) handleLatency(w http.ResponseWriter, _ *http.Request) {
	s.probeMu.RLock()
	events := make([]latencyView, 0, len(s.probeHistory))
	var sum time.Duration
	var completed int
	for i := len(s.probeHistory) - 1; i >= 0; i-- {
		event := s.probeHistory[i]
		events = append(events, latencyEventView(event))
		if event.Kind == probe.KindLatency {
			sum += event.RTT
			completed++
		}
	}
	timeouts := s.timeouts
	s.probeMu.RUnlock()

	summary := map[string]any{
		"completed": completed,
		"timeouts":  timeouts,
	}
	if completed > 0 {
		summary["avg_rtt_ms"] = float64((sum / time.Duration(completed)).Microseconds()) / 1000.0
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"summary": summary,
		"events":  events,
	})
}

// handleQueuePause halts the outbound drain loop.
func (s *Server) handleQueuePause(w http.ResponseWriter, _ *http.Request) {
	s.queue.Pause()
	s.logger.Info("outbound queue paused via API")
	writeJSON(w, http.StatusOK, map[string]any{"paused": true})
}

// handleQueueResume restarts the outbound drain loop.
func (s *Server) handleQueueResume(w http.ResponseWriter, _ *http.Request) {
	s.queue.Resume()
	s.logger.Info("outbound queue resumed via API")
	writeJSON(w, http.StatusOK, map[string]any{"paused": false})
}

// handleQueueRate sets the per-window publish limit.
func (s *Server) handleQueueRate(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Rate int `json:"rate"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if err := s.queue.SetRate(body.Rate); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		return
	}

	s.logger.Info("outbound rate changed via API", "rate", body.Rate)
	writeJSON(w, http.StatusOK, map[string]any{"rate": body.Rate})
}
