package timesync

import (
	"context"
	"fmt"
	"time"
)

// Status is what a clock-sync source reports on each poll.
type Status int

const (
	StatusPending Status = iota
	StatusConfirmed
)

// String returns the status name.
func (s Status) String() string {
	if s == StatusConfirmed {
		return "confirmed"
	}
	return "pending"
}

// Source reports whether the system clock is trustworthy.
type Source interface {
	// Name identifies the source in logs.
	Name() string

	// Start kicks off synchronisation if the source drives it itself.
	// Sources that observe an external daemon return nil.
	Start(ctx context.Context) error

	// Status returns the current synchronisation status.
	Status(ctx context.Context) (Status, error)
}

// Logger defines the logging interface for the gate and sources.
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

// SourceConfig selects and configures a Source.
type SourceConfig struct {
	Kind      string // kernel or ntp
	Servers   []string
	MaxOffset time.Duration
}

// NewSource builds the Source named by cfg.Kind.
func NewSource(cfg SourceConfig) (Source, error) {
	switch cfg.Kind {
	case "", "kernel":
		return NewKernelSource(), nil
	case "ntp":
		return NewNTPSource(cfg.Servers, cfg.MaxOffset)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, cfg.Kind)
	}
}
