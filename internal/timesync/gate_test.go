package timesync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/beevik/ntp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nerrad567/gray-logic-sensornode/internal/clock"
)

// scriptedSource returns statuses in order, repeating the last one.
type scriptedSource struct {
	mu       sync.Mutex
	statuses []Status
	errs     []error
	polls    int
	started  bool
}

func (s *scriptedSource) Name() string { return "scripted" }

func (s *scriptedSource) Start(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.started = true
	return nil
}

func (s *scriptedSource) Status(context.Context) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := min(s.polls, len(s.statuses)-1)
	s.polls++
	var err error
	if i < len(s.errs) {
		err = s.errs[i]
	}
	return s.statuses[i], err
}

func (s *scriptedSource) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.polls
}

type gateResult struct {
	res Result
	err error
}

func runGate(ctx context.Context, g *Gate) <-chan gateResult {
	out := make(chan gateResult, 1)
	go func() {
		r, err := g.Wait(ctx)
		out <- gateResult{r, err}
	}()
	return out
}

func TestGate_ConfirmedImmediately(t *testing.T) {
	src := &scriptedSource{statuses: []Status{StatusConfirmed}}
	g := NewGate(src, clock.NewFake(time.Unix(0, 0)), GateConfig{PollInterval: 2 * time.Second, MaxPolls: 10})

	res, err := g.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Confirmed, res)
	assert.Equal(t, 1, src.count())
	assert.True(t, src.started)
}

func TestGate_ConfirmedAfterPending(t *testing.T) {
	src := &scriptedSource{statuses: []Status{StatusPending, StatusPending, StatusConfirmed}}
	clk := clock.NewFake(time.Unix(0, 0))
	g := NewGate(src, clk, GateConfig{PollInterval: 2 * time.Second, MaxPolls: 10})

	out := runGate(context.Background(), g)
	for i := 0; i < 2; i++ {
		clk.BlockUntil(1)
		clk.Advance(2 * time.Second)
	}

	r := <-out
	require.NoError(t, r.err)
	assert.Equal(t, Confirmed, r.res)
	assert.Equal(t, 3, src.count())
}

func TestGate_TimesOutAfterMaxPolls(t *testing.T) {
	src := &scriptedSource{statuses: []Status{StatusPending}}
	clk := clock.NewFake(time.Unix(0, 0))
	g := NewGate(src, clk, GateConfig{PollInterval: 2 * time.Second, MaxPolls: 3})

	out := runGate(context.Background(), g)
	for i := 0; i < 2; i++ {
		clk.BlockUntil(1)
		clk.Advance(2 * time.Second)
	}

	r := <-out
	require.NoError(t, r.err)
	assert.Equal(t, TimedOut, r.res)
	assert.Equal(t, 3, src.count())
}

func TestGate_SourceErrorsCountAsPending(t *testing.T) {
	src := &scriptedSource{
		statuses: []Status{StatusPending, StatusConfirmed},
		errs:     []error{errors.New("adjtimex: operation not permitted")},
	}
	clk := clock.NewFake(time.Unix(0, 0))
	g := NewGate(src, clk, GateConfig{PollInterval: time.Second, MaxPolls: 5})

	out := runGate(context.Background(), g)
	clk.BlockUntil(1)
	clk.Advance(time.Second)

	r := <-out
	require.NoError(t, r.err)
	assert.Equal(t, Confirmed, r.res)
}

func TestGate_ContextCancelled(t *testing.T) {
	src := &scriptedSource{statuses: []Status{StatusPending}}
	clk := clock.NewFake(time.Unix(0, 0))
	g := NewGate(src, clk, GateConfig{PollInterval: time.Second, MaxPolls: 5})

	ctx, cancel := context.WithCancel(context.Background())
	out := runGate(ctx, g)
	clk.BlockUntil(1)
	cancel()

	r := <-out
	assert.ErrorIs(t, r.err, context.Canceled)
}

func TestKernelSource_Status(t *testing.T) {
	tests := []struct {
		name   string
		synced bool
		err    error
		want   Status
	}{
		{"synchronised", true, nil, StatusConfirmed},
		{"unsynchronised", false, nil, StatusPending},
		{"read error", false, errors.New("boom"), StatusPending},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := &KernelSource{read: func() (bool, error) { return tt.synced, tt.err }}
			got, err := k.Status(context.Background())
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.err, err)
		})
	}
}

func TestNTPSource_Status(t *testing.T) {
	src, err := NewNTPSource([]string{"a.example", "b.example"}, 500*time.Millisecond)
	require.NoError(t, err)

	var hosts []string
	offsets := []time.Duration{2 * time.Second, -100 * time.Millisecond}
	src.query = func(host string, _ ntp.QueryOptions) (*ntp.Response, error) {
		hosts = append(hosts, host)
		now := time.Now()
		return &ntp.Response{
			Stratum:       2,
			ClockOffset:   offsets[len(hosts)-1],
			RTT:           10 * time.Millisecond,
			Leap:          ntp.LeapNoWarning,
			Time:          now,
			ReferenceTime: now.Add(-time.Minute),
		}, nil
	}

	st, err := src.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusPending, st, "2s offset exceeds the limit")

	st, err = src.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, StatusConfirmed, st)
	assert.Equal(t, []string{"a.example", "b.example"}, hosts)
}

func TestNTPSource_QueryError(t *testing.T) {
	src, err := NewNTPSource([]string{"a.example"}, time.Second)
	require.NoError(t, err)
	src.query = func(string, ntp.QueryOptions) (*ntp.Response, error) {
		return nil, errors.New("i/o timeout")
	}

	st, err := src.Status(context.Background())
	assert.Equal(t, StatusPending, st)
	assert.Error(t, err)
}

func TestNewSource(t *testing.T) {
	s, err := NewSource(SourceConfig{Kind: "kernel"})
	require.NoError(t, err)
	assert.Equal(t, "kernel", s.Name())

	s, err = NewSource(SourceConfig{Kind: "ntp", Servers: []string{"pool.ntp.org"}})
	require.NoError(t, err)
	assert.Equal(t, "ntp", s.Name())

	_, err = NewSource(SourceConfig{Kind: "ntp"})
	assert.ErrorIs(t, err, ErrNoServers)

	_, err = NewSource(SourceConfig{Kind: "gps"})
	assert.ErrorIs(t, err, ErrUnknownSource)
}
