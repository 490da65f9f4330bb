// Package metrics exposes the node's Prometheus instruments.
//
// A single Metrics value satisfies the bring-up, scheduler and sensor
// observer interfaces so main can hand the same instance to each.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/gray-logic-sensornode/internal/bringup"
)

const namespace = "sensornode"

// Metrics holds the registered collectors.
type Metrics struct {
	state                prometheus.Gauge
	connectAttempts      *prometheus.CounterVec
	terminalFailures     *prometheus.CounterVec
	notificationsDropped *prometheus.CounterVec
	measurements         *prometheus.CounterVec
	temperature          prometheus.Gauge
	outboxDepth          prometheus.Gauge
	triggerLag           prometheus.Histogram
}

// New creates the collectors and registers them with reg.
// It panics on duplicate registration, like prometheus.MustRegister.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "bringup_state",
			Help:      "Current bring-up state (0=idle .. 5=ready, 6=failed).",
		}),
		connectAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_attempts_total",
			Help:      "Connect commands issued per bring-up stage.",
		}, []string{"stage"}),
		terminalFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "terminal_failures_total",
			Help:      "Retry budgets exhausted per bring-up stage.",
		}, []string{"stage"}),
		notificationsDropped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_dropped_total",
			Help:      "Platform notifications the event bridge could not translate.",
		}, []string{"reason"}),
		measurements: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "measurements_total",
			Help:      "Scheduled measurements by outcome.",
		}, []string{"result"}),
		temperature: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "temperature_celsius",
			Help:      "Last temperature read from the probe.",
		}),
		outboxDepth: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outbox_pending",
			Help:      "Readings waiting in the local outbox.",
		}),
		triggerLag: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "trigger_lag_seconds",
			Help:      "Delay between a grid boundary and the measurement trigger.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
		}),
	}

	reg.MustRegister(
		m.state,
		m.connectAttempts,
		m.terminalFailures,
		m.notificationsDropped,
		m.measurements,
		m.temperature,
		m.outboxDepth,
		m.triggerLag,
	)

	// Pre-create label sets so they export as zero before the first event.
	for _, stage := range []bringup.Stage{bringup.StageWireless, bringup.StageBroker} {
		m.connectAttempts.WithLabelValues(string(stage))
		m.terminalFailures.WithLabelValues(string(stage))
	}

	return m
}

// SetState records the current bring-up state.
func (m *Metrics) SetState(s bringup.State) {
	m.state.Set(float64(s))
}

func (m *Metrics) ConnectAttempt(stage bringup.Stage) {
	m.connectAttempts.WithLabelValues(string(stage)).Inc()
}

func (m *Metrics) TerminalFailure(stage bringup.Stage) {
	m.terminalFailures.WithLabelValues(string(stage)).Inc()
}

func (m *Metrics) NotificationDropped(reason string) {
	m.notificationsDropped.WithLabelValues(reason).Inc()
}

// ObserveTriggerLag records how late a boundary fired.
func (m *Metrics) ObserveTriggerLag(lag time.Duration) {
	m.triggerLag.Observe(lag.Seconds())
}

// MeasurementResult counts one measurement outcome: published, queued,
// failed or flushed.
func (m *Metrics) MeasurementResult(result string) {
	m.measurements.WithLabelValues(result).Inc()
}

func (m *Metrics) SetTemperature(celsius float64) {
	m.temperature.Set(celsius)
}

func (m *Metrics) SetOutboxDepth(n int) {
	m.outboxDepth.Set(float64(n))
}
