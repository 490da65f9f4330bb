package status

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gray-logic-sensornode/internal/bringup"
	"github.com/nerrad567/gray-logic-sensornode/internal/clock"
	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sensornode/internal/sensor"
)

const (
	gracefulShutdownTimeout = 10 * time.Second
	readTimeout             = 5 * time.Second
	writeTimeout            = 10 * time.Second
	idleTimeout             = 60 * time.Second
	checkTimeout            = 2 * time.Second
)

// StateSource exposes the orchestrator's public state.
type StateSource interface {
	Snapshot() bringup.Snapshot
}

// Schedule exposes the measurement scheduler's progress.
type Schedule interface {
	Next() time.Time
	LastFired() time.Time
}

// Readings exposes the most recent measurement.
type Readings interface {
	Last() (sensor.Reading, bool)
}

// HealthChecker is implemented by the infrastructure clients.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Logger is the logging surface the server needs.
type Logger interface {
	Info(msg string, args ...any)
	Error(msg string, args ...any)
}

// Deps holds the dependencies of the status server. State and Gatherer
// are required; the rest are reported when present.
type Deps struct {
	Config   config.StatusConfig
	Logger   Logger
	State    StateSource
	Schedule Schedule
	Readings Readings
	Gatherer prometheus.Gatherer
	Checks   map[string]HealthChecker
	Clock    clock.Clock
	NodeID   string
	Version  string
}

// Server is the local status HTTP server.
type Server struct {
	deps    Deps
	logger  Logger
	clk     clock.Clock
	started time.Time

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
}

// New validates deps and returns a server that is not yet listening.
func New(deps Deps) (*Server, error) {
	if deps.State == nil {
		return nil, fmt.Errorf("state source is required")
	}
	if deps.Gatherer == nil {
		return nil, fmt.Errorf("metrics gatherer is required")
	}
	s := &Server{deps: deps, logger: deps.Logger, clk: deps.Clock}
	if s.logger == nil {
		s.logger = noopLogger{}
	}
	if s.clk == nil {
		s.clk = clock.System()
	}
	s.started = s.clk.Now()
	return s, nil
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Handler returns the router without starting a listener.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the configured address and serves in the background.
// A bind failure is returned; later serve errors are logged.
func (s *Server) Start(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server != nil {
		return fmt.Errorf("status server already started")
	}

	addr := net.JoinHostPort(s.deps.Config.Host, fmt.Sprint(s.deps.Config.Port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}
	s.server = srv
	s.listener = ln

	s.logger.Info("status server listening", "address", ln.Addr().String())
	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("status server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close shuts the server down, waiting up to 10 seconds for in-flight
// requests. Close before Start is a no-op.
func (s *Server) Close() error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.listener = nil
	s.mu.Unlock()
	if srv == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("status server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down status server: %w", err)
	}
	return nil
}
