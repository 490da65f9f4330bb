package status

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/netip"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-sensornode/internal/bringup"
	"github.com/nerrad567/gray-logic-sensornode/internal/clock"
	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-sensornode/internal/sensor"
)

var t0 = time.Date(2026, 3, 1, 23, 10, 0, 0, time.UTC)

type fixedState struct{ snap bringup.Snapshot }

func (f fixedState) Snapshot() bringup.Snapshot { return f.snap }

type fixedSchedule struct{ next, last time.Time }

func (f fixedSchedule) Next() time.Time      { return f.next }
func (f fixedSchedule) LastFired() time.Time { return f.last }

type fixedReadings struct {
	r  sensor.Reading
	ok bool
}

func (f fixedReadings) Last() (sensor.Reading, bool) { return f.r, f.ok }

type checkFunc func(ctx context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

func newTestServer(t *testing.T, deps Deps) (*Server, *clock.Fake) {
	t.Helper()
	clk := clock.NewFake(t0)
	deps.Clock = clk
	if deps.Gatherer == nil {
		deps.Gatherer = prometheus.NewRegistry()
	}
	srv, err := New(deps)
	require.NoError(t, err)
	return srv, clk
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNew_RequiresDeps(t *testing.T) {
	_, err := New(Deps{Gatherer: prometheus.NewRegistry()})
	assert.Error(t, err)

	_, err = New(Deps{State: fixedState{}})
	assert.Error(t, err)
}

func TestHealth(t *testing.T) {
	t.Run("ready", func(t *testing.T) {
		srv, _ := newTestServer(t, Deps{
			State:   fixedState{bringup.Snapshot{State: bringup.StateReady}},
			Version: "1.2.3",
			Checks: map[string]HealthChecker{
				"mqtt":     checkFunc(func(context.Context) error { return nil }),
				"influxdb": checkFunc(func(context.Context) error { return errors.New("not connected") }),
			},
		})
		rec := get(t, srv.Handler(), "/healthz")
		require.Equal(t, http.StatusOK, rec.Code)

		var body HealthResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "ok", body.Status)
		assert.Equal(t, "ready", body.State)
		assert.Equal(t, "1.2.3", body.Version)
		assert.Equal(t, map[string]string{"mqtt": "ok", "influxdb": "not connected"}, body.Components)
	})

	t.Run("bringing up", func(t *testing.T) {
		srv, _ := newTestServer(t, Deps{
			State: fixedState{bringup.Snapshot{State: bringup.StateSyncingTime}},
		})
		rec := get(t, srv.Handler(), "/healthz")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("failed", func(t *testing.T) {
		srv, _ := newTestServer(t, Deps{
			State: fixedState{bringup.Snapshot{State: bringup.StateFailed}},
		})
		rec := get(t, srv.Handler(), "/healthz")
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)

		var body HealthResponse
		require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
		assert.Equal(t, "failed", body.Status)
		assert.Equal(t, "failed", body.State)
	})
}

func TestStatus(t *testing.T) {
	boundary := time.Date(2026, 3, 1, 23, 0, 0, 0, time.UTC)
	reading := sensor.Reading{
		ID:           "r-1",
		NodeID:       "node-1",
		DeviceID:     "28-000001",
		Celsius:      21.5,
		Boundary:     boundary,
		MeasuredAt:   boundary.Add(40 * time.Millisecond),
		ClockTrusted: true,
	}

	srv, clk := newTestServer(t, Deps{
		State: fixedState{bringup.Snapshot{
			State:            bringup.StateReady,
			Since:            t0.Add(-time.Minute),
			ClockTrusted:     true,
			Address:          netip.MustParseAddr("192.168.1.50"),
			WirelessAttempts: 1,
			BrokerAttempts:   0,
		}},
		Schedule: fixedSchedule{next: boundary.Add(15 * time.Minute), last: boundary},
		Readings: fixedReadings{r: reading, ok: true},
		NodeID:   "node-1",
		Version:  "1.2.3",
	})
	clk.Advance(90 * time.Second)

	rec := get(t, srv.Handler(), "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body StatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	assert.Equal(t, "node-1", body.NodeID)
	assert.Equal(t, "ready", body.State)
	assert.True(t, body.ClockTrusted)
	assert.Equal(t, "192.168.1.50", body.Address)
	assert.Equal(t, 1, body.WirelessAttempts)
	assert.Equal(t, int64(90), body.UptimeSeconds)
	assert.True(t, body.NextBoundary.Equal(boundary.Add(15*time.Minute)))
	assert.True(t, body.LastFired.Equal(boundary))
	require.NotNil(t, body.LastReading)
	assert.Equal(t, 21.5, body.LastReading.Celsius)
	assert.Empty(t, body.Error)
}

func TestStatus_FailedAndEmpty(t *testing.T) {
	srv, _ := newTestServer(t, Deps{
		State: fixedState{bringup.Snapshot{
			State:          bringup.StateFailed,
			BrokerAttempts: 5,
			Err:            errors.New("broker retry budget exhausted"),
		}},
		Schedule: fixedSchedule{},
		Readings: fixedReadings{},
	})

	rec := get(t, srv.Handler(), "/status")
	require.Equal(t, http.StatusOK, rec.Code)

	raw := rec.Body.String()
	assert.Contains(t, raw, `"error":"broker retry budget exhausted"`)
	assert.NotContains(t, raw, "last_reading")
	assert.NotContains(t, raw, "next_boundary")
	assert.NotContains(t, raw, `"address"`)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	g := prometheus.NewGauge(prometheus.GaugeOpts{Name: "sensornode_test_gauge", Help: "test"})
	reg.MustRegister(g)
	g.Set(3)

	srv, _ := newTestServer(t, Deps{
		State:    fixedState{},
		Gatherer: reg,
	})
	rec := get(t, srv.Handler(), "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sensornode_test_gauge 3")
}

func TestUnknownRouteAndMethod(t *testing.T) {
	srv, _ := newTestServer(t, Deps{State: fixedState{}})

	rec := get(t, srv.Handler(), "/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Contains(t, rec.Body.String(), errCodeNotFound)

	req := httptest.NewRequest(http.MethodPost, "/status", nil)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRequestID(t *testing.T) {
	srv, _ := newTestServer(t, Deps{State: fixedState{}})

	rec := get(t, srv.Handler(), "/healthz")
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, "abc", rec.Header().Get("X-Request-ID"))
}

type panickyState struct{}

func (panickyState) Snapshot() bringup.Snapshot { panic("boom") }

func TestRecoversPanic(t *testing.T) {
	srv, _ := newTestServer(t, Deps{State: panickyState{}})
	rec := get(t, srv.Handler(), "/status")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), errCodeInternal)
}

func TestStartClose(t *testing.T) {
	srv, err := New(Deps{
		Config:   config.StatusConfig{Enabled: true, Host: "127.0.0.1", Port: 0},
		State:    fixedState{bringup.Snapshot{State: bringup.StateReady}},
		Gatherer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	assert.Empty(t, srv.Addr())

	require.NoError(t, srv.Start(context.Background()))
	assert.Error(t, srv.Start(context.Background()), "second Start")

	resp, err := http.Get(fmt.Sprintf("http://%s/healthz", srv.Addr()))
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), `"state":"ready"`))

	require.NoError(t, srv.Close())
	require.NoError(t, srv.Close())
	assert.Empty(t, srv.Addr())
}

func TestStart_BindFailure(t *testing.T) {
	first, err := New(Deps{
		Config:   config.StatusConfig{Host: "127.0.0.1", Port: 0},
		State:    fixedState{},
		Gatherer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	require.NoError(t, first.Start(context.Background()))
	defer first.Close()

	_, port, err := splitPort(first.Addr())
	require.NoError(t, err)

	second, err := New(Deps{
		Config:   config.StatusConfig{Host: "127.0.0.1", Port: port},
		State:    fixedState{},
		Gatherer: prometheus.NewRegistry(),
	})
	require.NoError(t, err)
	assert.Error(t, second.Start(context.Background()))
}

func splitPort(addr string) (string, int, error) {
	i := strings.LastIndex(addr, ":")
	var port int
	_, err := fmt.Sscanf(addr[i+1:], "%d", &port)
	return addr[:i], port, err
}
