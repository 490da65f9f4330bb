package timesync

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-sensornode/internal/clock"
	"github.com/nerrad567/gray-logic-sensornode/internal/wait"
)

// Result is the outcome of waiting for a trustworthy clock.
type Result int

const (
	// Confirmed means the source reported the clock synchronised.
	Confirmed Result = iota
	// TimedOut means the poll budget ran out. Callers proceed anyway with
	// degraded confidence in timestamps.
	TimedOut
)

// String returns the result name.
func (r Result) String() string {
	switch r {
	case Confirmed:
		return "confirmed"
	case TimedOut:
		return "timed_out"
	default:
		return fmt.Sprintf("result(%d)", int(r))
	}
}

// GateConfig bounds the wait.
type GateConfig struct {
	PollInterval time.Duration
	MaxPolls     int
}

// Gate blocks until a Source reports the clock synchronised or the poll
// budget is spent.
type Gate struct {
	source Source
	clock  clock.Clock
	cfg    GateConfig
	logger Logger
}

// NewGate creates a gate over src. A nil clk uses the system clock.
func NewGate(src Source, clk clock.Clock, cfg GateConfig) *Gate {
	if clk == nil {
		clk = clock.System()
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.MaxPolls <= 0 {
		cfg.MaxPolls = 10
	}
	return &Gate{source: src, clock: clk, cfg: cfg, logger: noopLogger{}}
}

// SetLogger sets the logger for the gate.
func (g *Gate) SetLogger(logger Logger) {
	g.logger = logger
}

// Wait polls the source every PollInterval, at most MaxPolls times.
// Source errors count as a pending poll. The only error returned is the
// context's.
func (g *Gate) Wait(ctx context.Context) (Result, error) {
	if err := g.source.Start(ctx); err != nil {
		g.logger.Warn("starting clock sync source", "source", g.source.Name(), "error", err)
	}

	poll := 0
	outcome, err := wait.Poll(ctx, g.clock, g.cfg.PollInterval, g.cfg.MaxPolls, func(ctx context.Context) (bool, error) {
		poll++
		status, err := g.source.Status(ctx)
		if err != nil {
			g.logger.Debug("clock sync status unavailable", "source", g.source.Name(), "error", err)
			return false, nil
		}
		if status == StatusConfirmed {
			return true, nil
		}
		g.logger.Info("waiting for system time to be set",
			"poll", poll, "max_polls", g.cfg.MaxPolls)
		return false, nil
	})

	switch outcome {
	case wait.Success:
		g.logger.Info("system time confirmed", "source", g.source.Name(), "polls", poll)
		return Confirmed, nil
	case wait.TimedOut:
		g.logger.Warn("system time not confirmed, continuing",
			"source", g.source.Name(), "polls", poll)
		return TimedOut, nil
	default:
		return TimedOut, err
	}
}
