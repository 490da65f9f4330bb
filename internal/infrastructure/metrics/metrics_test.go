package metrics

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/nerrad567/gray-logic-sensornode/internal/bringup"
	"github.com/nerrad567/gray-logic-sensornode/internal/scheduler"
)

func newTestMetrics(t *testing.T) (*Metrics, *prometheus.Registry) {
	t.Helper()
	reg := prometheus.NewRegistry()
	return New(reg), reg
}

func TestBringupMetrics(t *testing.T) {
	m, _ := newTestMetrics(t)

	m.SetState(bringup.StateReady)
	if got := testutil.ToFloat64(m.state); got != float64(bringup.StateReady) {
		t.Errorf("bringup_state = %v, want %v", got, float64(bringup.StateReady))
	}

	m.ConnectAttempt(bringup.StageWireless)
	m.ConnectAttempt(bringup.StageWireless)
	m.ConnectAttempt(bringup.StageBroker)
	if got := testutil.ToFloat64(m.connectAttempts.WithLabelValues("wireless")); got != 2 {
		t.Errorf("connect_attempts_total{stage=wireless} = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.connectAttempts.WithLabelValues("broker")); got != 1 {
		t.Errorf("connect_attempts_total{stage=broker} = %v, want 1", got)
	}

	m.TerminalFailure(bringup.StageBroker)
	if got := testutil.ToFloat64(m.terminalFailures.WithLabelValues("broker")); got != 1 {
		t.Errorf("terminal_failures_total{stage=broker} = %v, want 1", got)
	}

	m.NotificationDropped("malformed")
	if got := testutil.ToFloat64(m.notificationsDropped.WithLabelValues("malformed")); got != 1 {
		t.Errorf("notifications_dropped_total{reason=malformed} = %v, want 1", got)
	}
}

func TestStageLabelsPreCreated(t *testing.T) {
	m, _ := newTestMetrics(t)

	if n := testutil.CollectAndCount(m.connectAttempts); n != 2 {
		t.Errorf("connect_attempts_total series = %d, want 2", n)
	}
	if n := testutil.CollectAndCount(m.terminalFailures); n != 2 {
		t.Errorf("terminal_failures_total series = %d, want 2", n)
	}
}

func TestMeasurementMetrics(t *testing.T) {
	m, reg := newTestMetrics(t)

	m.MeasurementResult("published")
	m.MeasurementResult("queued")
	m.MeasurementResult("published")
	m.SetTemperature(21.5)
	m.SetOutboxDepth(3)
	m.ObserveTriggerLag(120 * time.Millisecond)

	expected := `
# HELP sensornode_measurements_total Scheduled measurements by outcome.
# TYPE sensornode_measurements_total counter
sensornode_measurements_total{result="published"} 2
sensornode_measurements_total{result="queued"} 1
# HELP sensornode_temperature_celsius Last temperature read from the probe.
# TYPE sensornode_temperature_celsius gauge
sensornode_temperature_celsius 21.5
# HELP sensornode_outbox_pending Readings waiting in the local outbox.
# TYPE sensornode_outbox_pending gauge
sensornode_outbox_pending 3
`
	if err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"sensornode_measurements_total",
		"sensornode_temperature_celsius",
		"sensornode_outbox_pending",
	); err != nil {
		t.Error(err)
	}

	if n := testutil.CollectAndCount(m.triggerLag); n != 1 {
		t.Errorf("trigger_lag_seconds series = %d, want 1", n)
	}
}

func TestDuplicateRegistrationPanics(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)

	defer func() {
		if recover() == nil {
			t.Error("second New() on the same registry should panic")
		}
	}()
	New(reg)
}

func TestSatisfiesObserverInterfaces(t *testing.T) {
	var _ bringup.Metrics = (*Metrics)(nil)
	var _ scheduler.Metrics = (*Metrics)(nil)
}
