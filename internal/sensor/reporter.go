package sensor

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/gray-logic-sensornode/internal/clock"
	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/influxdb"
)

const (
	defaultFlushBatch = 50

	// commandTimeout bounds an on-demand measurement.
	commandTimeout = 30 * time.Second

	// CommandMeasure is the command name that triggers an on-demand reading.
	CommandMeasure = "measure"
)

// Publisher is the broker session readings go out on.
type Publisher interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// Mirror receives a copy of every reading.
type Mirror interface {
	WriteReading(influxdb.Reading)
}

// Logger defines the logging interface for the sensor package.
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

// Metrics observes measurement outcomes.
type Metrics interface {
	MeasurementResult(result string)
	SetTemperature(celsius float64)
	SetOutboxDepth(n int)
}

type noopMetrics struct{}

func (noopMetrics) MeasurementResult(string) {}
func (noopMetrics) SetTemperature(float64)   {}
func (noopMetrics) SetOutboxDepth(int)       {}

// Measurement outcomes passed to Metrics.MeasurementResult.
const (
	resultPublished = "published"
	resultQueued    = "queued"
	resultFailed    = "failed"
	resultFlushed   = "flushed"
)

// ReporterConfig describes where readings go.
type ReporterConfig struct {
	NodeID string
	Topic  string
	QoS    byte
	Format string

	// FlushBatch caps how many outbox entries one flush publishes.
	FlushBatch int
}

// Reporter turns scheduler triggers into published readings.
//
// Thread Safety: Measure, FlushOutbox and the setters may be called
// concurrently; measurements are serialised so the probe is never read
// twice at once.
type Reporter struct {
	cfg    ReporterConfig
	driver Driver
	clk    clock.Clock
	codec  *Codec

	logger  Logger
	metrics Metrics
	mirror  Mirror
	outbox  Outbox
	trusted func() bool

	measureMu sync.Mutex
	flushMu   sync.Mutex

	mu          sync.RWMutex
	session     Publisher
	initialized bool
	last        Reading
	hasLast     bool
}

// NewReporter creates a reporter. The payload format must be json or cbor.
func NewReporter(cfg ReporterConfig, driver Driver, clk clock.Clock) (*Reporter, error) {
	if driver == nil {
		return nil, errors.New("sensor: nil driver")
	}
	if cfg.Topic == "" {
		return nil, errors.New("sensor: empty topic")
	}
	codec, err := NewCodec(cfg.Format)
	if err != nil {
		return nil, err
	}
	if cfg.FlushBatch <= 0 {
		cfg.FlushBatch = defaultFlushBatch
	}
	if clk == nil {
		clk = clock.System()
	}
	return &Reporter{
		cfg:     cfg,
		driver:  driver,
		clk:     clk,
		codec:   codec,
		logger:  noopLogger{},
		metrics: noopMetrics{},
		trusted: func() bool { return true },
	}, nil
}

func (r *Reporter) SetLogger(logger Logger) {
	if logger != nil {
		r.logger = logger
	}
}

func (r *Reporter) SetMetrics(m Metrics) {
	if m != nil {
		r.metrics = m
	}
}

// SetMirror sets the InfluxDB mirror. nil disables mirroring.
func (r *Reporter) SetMirror(m Mirror) { r.mirror = m }

// SetOutbox sets where unpublished readings are parked. nil drops them.
func (r *Reporter) SetOutbox(o Outbox) { r.outbox = o }

// SetClockTrusted sets the source of the clock_trusted flag.
func (r *Reporter) SetClockTrusted(fn func() bool) {
	if fn != nil {
		r.trusted = fn
	}
}

// Init initialises the probe.
func (r *Reporter) Init(ctx context.Context) error {
	if err := r.driver.Init(ctx); err != nil {
		return fmt.Errorf("initialising %s: %w", r.driver.ID(), err)
	}
	r.mu.Lock()
	r.initialized = true
	r.mu.Unlock()
	r.logger.Info("sensor initialised", "device_id", r.driver.ID())
	return nil
}

// Start hands the reporter its broker session. Both the session and an
// initialised probe are required.
func (r *Reporter) Start(session Publisher) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case session == nil:
		r.logger.Debug("reporter not ready to start", "reason", "no session")
		return fmt.Errorf("%w: no broker session", ErrNotReady)
	case !r.initialized:
		r.logger.Debug("reporter not ready to start", "reason", "probe not initialised")
		return fmt.Errorf("%w: probe not initialised", ErrNotReady)
	}
	r.session = session
	r.logger.Debug("reporter ready to start")
	return nil
}

// Last returns the most recent reading, if any.
func (r *Reporter) Last() (Reading, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.last, r.hasLast
}

// Measure reads the probe and reports the reading for boundary.
// It satisfies scheduler.Trigger.
func (r *Reporter) Measure(ctx context.Context, boundary time.Time) {
	if _, err := r.measure(ctx, boundary, false); err != nil {
		r.logger.Error("measurement failed", "boundary", boundary, "error", err)
	}
}

func (r *Reporter) measure(ctx context.Context, boundary time.Time, onDemand bool) (Reading, error) {
	r.measureMu.Lock()
	defer r.measureMu.Unlock()

	celsius, err := r.driver.Read(ctx)
	if err != nil {
		r.metrics.MeasurementResult(resultFailed)
		return Reading{}, fmt.Errorf("reading %s: %w", r.driver.ID(), err)
	}

	reading := Reading{
		ID:           uuid.NewString(),
		NodeID:       r.cfg.NodeID,
		DeviceID:     r.driver.ID(),
		Celsius:      celsius,
		Boundary:     boundary,
		MeasuredAt:   r.clk.Now(),
		ClockTrusted: r.trusted(),
		OnDemand:     onDemand,
	}
	r.metrics.SetTemperature(celsius)

	r.mu.Lock()
	r.last, r.hasLast = reading, true
	session := r.session
	r.mu.Unlock()

	if r.mirror != nil {
		r.mirror.WriteReading(influxdb.Reading{
			NodeID:       reading.NodeID,
			DeviceID:     reading.DeviceID,
			Celsius:      reading.Celsius,
			Boundary:     reading.Boundary,
			MeasuredAt:   reading.MeasuredAt,
			ClockTrusted: reading.ClockTrusted,
		})
	}

	payload, err := r.codec.Encode(reading)
	if err != nil {
		r.metrics.MeasurementResult(resultFailed)
		return reading, err
	}

	var pubErr error
	if session == nil || !session.IsConnected() {
		pubErr = errors.New("no broker session")
	} else {
		pubErr = session.Publish(r.cfg.Topic, payload, r.cfg.QoS, false)
	}
	if pubErr == nil {
		r.metrics.MeasurementResult(resultPublished)
		r.logger.Info("reading published",
			"celsius", reading.Celsius,
			"boundary", reading.Boundary,
			"clock_trusted", reading.ClockTrusted,
		)
		return reading, nil
	}

	return reading, r.park(ctx, reading, payload, pubErr)
}

func (r *Reporter) park(ctx context.Context, reading Reading, payload []byte, cause error) error {
	if r.outbox == nil {
		r.metrics.MeasurementResult(resultFailed)
		return fmt.Errorf("publishing reading: %w", cause)
	}

	err := r.outbox.Enqueue(ctx, Entry{
		ID:        reading.ID,
		Topic:     r.cfg.Topic,
		Payload:   payload,
		QoS:       r.cfg.QoS,
		Boundary:  reading.Boundary,
		CreatedAt: reading.MeasuredAt,
	})
	if err != nil {
		r.metrics.MeasurementResult(resultFailed)
		return fmt.Errorf("publishing reading: %w (outbox: %w)", cause, err)
	}

	r.metrics.MeasurementResult(resultQueued)
	r.refreshDepth(ctx)
	r.logger.Warn("reading queued in outbox", "id", reading.ID, "cause", cause)
	return nil
}

// FlushOutbox publishes parked readings oldest first, one batch per call.
// It stops at the first publish failure and returns how many were sent.
func (r *Reporter) FlushOutbox(ctx context.Context) (int, error) {
	if r.outbox == nil {
		return 0, nil
	}
	r.mu.RLock()
	session := r.session
	r.mu.RUnlock()
	if session == nil || !session.IsConnected() {
		return 0, nil
	}

	r.flushMu.Lock()
	defer r.flushMu.Unlock()

	entries, err := r.outbox.Pending(ctx, r.cfg.FlushBatch)
	if err != nil {
		return 0, err
	}

	sent := 0
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		if err := session.Publish(e.Topic, e.Payload, e.QoS, false); err != nil {
			if markErr := r.outbox.MarkFailed(ctx, e.ID, err); markErr != nil {
				r.logger.Warn("outbox mark failed", "id", e.ID, "error", markErr)
			}
			r.refreshDepth(ctx)
			return sent, fmt.Errorf("flushing outbox entry %s: %w", e.ID, err)
		}
		if err := r.outbox.Delete(ctx, e.ID); err != nil {
			return sent, err
		}
		sent++
		r.metrics.MeasurementResult(resultFlushed)
	}

	r.refreshDepth(ctx)
	if sent > 0 {
		r.logger.Info("outbox flushed", "sent", sent)
	}
	return sent, nil
}

func (r *Reporter) refreshDepth(ctx context.Context) {
	n, err := r.outbox.Count(ctx)
	if err != nil {
		r.logger.Warn("counting outbox failed", "error", err)
		return
	}
	r.metrics.SetOutboxDepth(n)
}

// HandleCommand serves <prefix>/<node>/command/<name> messages. Only
// "measure" is known; it takes an immediate off-grid reading.
func (r *Reporter) HandleCommand(topic string, _ []byte) error {
	name := topic[strings.LastIndex(topic, "/")+1:]
	if name != CommandMeasure {
		return fmt.Errorf("%w: %q", ErrUnknownCommand, name)
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	_, err := r.measure(ctx, time.Time{}, true)
	return err
}
