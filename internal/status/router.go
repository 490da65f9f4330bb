package status

import (
	"context"
	"net/http"
	"sort"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/nerrad567/gray-logic-sensornode/internal/bringup"
	"github.com/nerrad567/gray-logic-sensornode/internal/sensor"
)

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, errCodeNotFound, "no such route")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, errCodeMethodNotAllow, "method not allowed")
	})

	r.Get("/healthz", s.handleHealth)
	r.Get("/status", s.handleStatus)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.deps.Gatherer, promhttp.HandlerOpts{}))
	return r
}

// HealthResponse is the body of GET /healthz.
type HealthResponse struct {
	Status     string            `json:"status"`
	State      string            `json:"state"`
	Version    string            `json:"version,omitempty"`
	Components map[string]string `json:"components,omitempty"`
}

// handleHealth is a liveness probe: only a terminal bring-up failure makes
// it unhealthy. Component checks are informational since the broker and
// mirror are expected to come and go.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.deps.State.Snapshot()
	resp := HealthResponse{
		Status:  "ok",
		State:   snap.State.String(),
		Version: s.deps.Version,
	}

	if len(s.deps.Checks) > 0 {
		resp.Components = make(map[string]string, len(s.deps.Checks))
		names := make([]string, 0, len(s.deps.Checks))
		for name := range s.deps.Checks {
			names = append(names, name)
		}
		sort.Strings(names)

		ctx, cancel := context.WithTimeout(r.Context(), checkTimeout)
		defer cancel()
		for _, name := range names {
			if err := s.deps.Checks[name].HealthCheck(ctx); err != nil {
				resp.Components[name] = err.Error()
			} else {
				resp.Components[name] = "ok"
			}
		}
	}

	code := http.StatusOK
	if snap.State.Terminal() {
		resp.Status = "failed"
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, resp)
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	NodeID           string          `json:"node_id,omitempty"`
	Version          string          `json:"version,omitempty"`
	State            string          `json:"state"`
	Since            time.Time       `json:"since"`
	UptimeSeconds    int64           `json:"uptime_seconds"`
	ClockTrusted     bool            `json:"clock_trusted"`
	Address          string          `json:"address,omitempty"`
	WirelessAttempts int             `json:"wireless_attempts"`
	BrokerAttempts   int             `json:"broker_attempts"`
	Error            string          `json:"error,omitempty"`
	NextBoundary     time.Time       `json:"next_boundary,omitzero"`
	LastFired        time.Time       `json:"last_fired,omitzero"`
	LastReading      *sensor.Reading `json:"last_reading,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.buildStatus(s.deps.State.Snapshot()))
}

func (s *Server) buildStatus(snap bringup.Snapshot) StatusResponse {
	resp := StatusResponse{
		NodeID:           s.deps.NodeID,
		Version:          s.deps.Version,
		State:            snap.State.String(),
		Since:            snap.Since,
		UptimeSeconds:    int64(s.clk.Now().Sub(s.started) / time.Second),
		ClockTrusted:     snap.ClockTrusted,
		WirelessAttempts: snap.WirelessAttempts,
		BrokerAttempts:   snap.BrokerAttempts,
	}
	if snap.Address.IsValid() {
		resp.Address = snap.Address.String()
	}
	if snap.Err != nil {
		resp.Error = snap.Err.Error()
	}
	if s.deps.Schedule != nil {
		resp.NextBoundary = s.deps.Schedule.Next()
		resp.LastFired = s.deps.Schedule.LastFired()
	}
	if s.deps.Readings != nil {
		if last, ok := s.deps.Readings.Last(); ok {
			resp.LastReading = &last
		}
	}
	return resp
}
