// Package scheduler fires measurements on wall-clock interval boundaries.
//
// The scheduler stays idle until the bring-up begin signal is closed. From
// then on it computes the next boundary, polls the clock until the boundary
// has been reached and fires the trigger once, forever. A clock stepped
// backwards delays the next firing; it never repeats a boundary.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-sensornode/internal/clock"
	"github.com/nerrad567/gray-logic-sensornode/internal/wait"
)

// Trigger is released once per boundary.
type Trigger interface {
	Measure(ctx context.Context, boundary time.Time)
}

// TriggerFunc adapts a function to Trigger.
type TriggerFunc func(ctx context.Context, boundary time.Time)

// Measure calls f.
func (f TriggerFunc) Measure(ctx context.Context, boundary time.Time) { f(ctx, boundary) }

// Logger defines the logging interface for the scheduler.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Metrics observes how late each boundary fired.
type Metrics interface {
	ObserveTriggerLag(time.Duration)
}

type noopMetrics struct{}

func (noopMetrics) ObserveTriggerLag(time.Duration) {}

// Config controls the measurement grid.
type Config struct {
	// IntervalMinutes must divide 60.
	IntervalMinutes int

	// PollInterval is how often the clock is checked. Defaults to 1s.
	PollInterval time.Duration

	// Location is the zone boundaries are computed in. Defaults to UTC.
	Location *time.Location
}

// ErrInvalidInterval is returned for an interval that does not divide an hour.
var ErrInvalidInterval = errors.New("scheduler: interval must divide 60 minutes")

// Scheduler releases a Trigger on each boundary.
type Scheduler struct {
	cfg     Config
	clock   clock.Clock
	trigger Trigger
	logger  Logger
	metrics Metrics

	mu        sync.RWMutex
	next      time.Time
	lastFired time.Time
	fired     uint64
}

// New creates a scheduler. A nil clk uses the system clock.
func New(cfg Config, clk clock.Clock, trigger Trigger) (*Scheduler, error) {
	if cfg.IntervalMinutes < 1 || cfg.IntervalMinutes > 60 || 60%cfg.IntervalMinutes != 0 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidInterval, cfg.IntervalMinutes)
	}
	if trigger == nil {
		return nil, errors.New("scheduler: trigger is required")
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if clk == nil {
		clk = clock.System()
	}
	return &Scheduler{
		cfg:     cfg,
		clock:   clk,
		trigger: trigger,
		logger:  noopLogger{},
		metrics: noopMetrics{},
	}, nil
}

// SetLogger sets the logger for the scheduler.
func (s *Scheduler) SetLogger(logger Logger) {
	s.logger = logger
}

// SetMetrics sets the lag observer.
func (s *Scheduler) SetMetrics(m Metrics) {
	s.metrics = m
}

// Run waits for begin to close and then fires boundaries until ctx ends.
// It returns nil on cancellation.
func (s *Scheduler) Run(ctx context.Context, begin <-chan struct{}) error {
	select {
	case <-begin:
	case <-ctx.Done():
		return nil
	}
	s.logger.Info("measurement scheduler armed",
		"interval_minutes", s.cfg.IntervalMinutes, "location", s.cfg.Location.String())

	for {
		target := s.plan()

		_, err := wait.Poll(ctx, s.clock, s.cfg.PollInterval, 0, func(context.Context) (bool, error) {
			return !s.clock.Now().Before(target), nil
		})
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		s.fire(ctx, target)
	}
}

// plan computes the next boundary, skipping any boundary already fired.
func (s *Scheduler) plan() time.Time {
	now := s.clock.Now().In(s.cfg.Location)
	target := NextBoundary(now, s.cfg.IntervalMinutes)

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.lastFired.IsZero() && !target.After(s.lastFired) {
		s.logger.Warn("clock moved backwards past the last boundary",
			"now", now, "last_fired", s.lastFired)
		target = NextBoundary(s.lastFired, s.cfg.IntervalMinutes)
	}
	s.next = target
	s.logger.Debug("next measurement boundary", "target", target)
	return target
}

func (s *Scheduler) fire(ctx context.Context, target time.Time) {
	lag := s.clock.Now().Sub(target)

	s.mu.Lock()
	s.lastFired = target
	s.fired++
	s.mu.Unlock()

	s.metrics.ObserveTriggerLag(lag)
	s.logger.Info("measurement boundary reached", "boundary", target, "lag", lag)
	s.trigger.Measure(ctx, target)
}

// Next returns the boundary currently being waited for, or zero before arming.
func (s *Scheduler) Next() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.next
}

// LastFired returns the most recent boundary fired.
func (s *Scheduler) LastFired() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastFired
}

// Fired returns how many boundaries have fired.
func (s *Scheduler) Fired() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.fired
}
