package bringup

import (
	"context"
	"errors"
	"fmt"
	"net/netip"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nerrad567/gray-logic-sensornode/internal/clock"
	"github.com/nerrad567/gray-logic-sensornode/internal/timesync"
)

// defaultEventBuffer is the capacity of the event stream.
const defaultEventBuffer = 32

// Wireless is the command side of the wireless station.
type Wireless interface {
	// Connect asks the station to (re)associate. Progress is reported
	// through notifications, not the return value.
	Connect(ctx context.Context) error
}

// Session is an established broker session lent to the reporting path.
type Session interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	IsConnected() bool
}

// Broker is the command side of the broker client.
type Broker interface {
	// Connect starts a session attempt and returns its handle. The attempt
	// resolves through session notifications.
	Connect(ctx context.Context) (Session, error)

	// Stop tears down a session returned by Connect.
	Stop(Session)
}

// SyncGate waits for a trustworthy clock.
type SyncGate interface {
	Wait(ctx context.Context) (timesync.Result, error)
}

// ReadyFunc receives the broker session the first time Ready is reached.
// It runs on the event loop and must not block.
type ReadyFunc func(Session)

// TransitionFunc observes every state change. It runs on the event loop.
type TransitionFunc func(from, to State)

// Logger defines the logging interface for the bringup package.
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

// Metrics receives bring-up counters.
type Metrics interface {
	SetState(State)
	ConnectAttempt(Stage)
	TerminalFailure(Stage)
	NotificationDropped(reason string)
}

type noopMetrics struct{}

func (noopMetrics) SetState(State)             {}
func (noopMetrics) ConnectAttempt(Stage)       {}
func (noopMetrics) TerminalFailure(Stage)      {}
func (noopMetrics) NotificationDropped(string) {}

// Config holds the per-stage retry policy.
type Config struct {
	// WirelessRetries is how many association failures are retried.
	WirelessRetries int

	// BrokerRetries is how many broker session failures are retried.
	BrokerRetries int

	// WirelessBackoff and BrokerBackoff delay each reissued connect.
	// The zero value reissues immediately.
	WirelessBackoff Backoff
	BrokerBackoff   Backoff

	// EventBuffer is the capacity of the event stream. 0 uses the default.
	EventBuffer int
}

// Deps are the collaborators the Orchestrator commands.
type Deps struct {
	Wireless Wireless
	Broker   Broker
	Gate     SyncGate

	// Clock times retry delays. nil uses the system clock.
	Clock clock.Clock
}

// Snapshot is a consistent read of the orchestrator's public state.
type Snapshot struct {
	State            State
	Since            time.Time
	ClockTrusted     bool
	Address          netip.Addr
	WirelessAttempts int
	BrokerAttempts   int
	Err              error
}

// internal event kinds, never produced by the Bridge
const (
	eventStart EventKind = 100 + iota
	eventSyncResolved
	eventRetryDue
)

type loopEvent struct {
	Event
	gen   uint64
	stage Stage
	sync  timesync.Result
}

// Orchestrator is the connectivity state machine.
//
// All transitions happen on the goroutine running Run. State, Snapshot and
// the Begin/Failed channels are safe to use from any goroutine.
type Orchestrator struct {
	cfg      Config
	wireless Wireless
	broker   Broker
	gate     SyncGate
	clock    clock.Clock
	logger   Logger
	metrics  Metrics

	onReady     ReadyFunc
	transitions []TransitionFunc

	events   chan loopEvent
	started  atomic.Bool
	running  atomic.Bool
	loopDone chan struct{}
	begin    chan struct{}
	failed   chan struct{}

	// Owned by the event loop.
	state          State
	wirelessBudget *RetryBudget
	brokerBudget   *RetryBudget
	session        Session
	readyFired     bool
	gateGen        uint64
	cancelGate     context.CancelFunc
	retryGen       uint64

	mu   sync.RWMutex
	snap Snapshot
}

// NewOrchestrator creates an Orchestrator in Idle. Run must be started
// before events are processed.
func NewOrchestrator(cfg Config, deps Deps) (*Orchestrator, error) {
	switch {
	case deps.Wireless == nil:
		return nil, errors.New("bringup: wireless collaborator is required")
	case deps.Broker == nil:
		return nil, errors.New("bringup: broker collaborator is required")
	case deps.Gate == nil:
		return nil, errors.New("bringup: sync gate is required")
	}
	if deps.Clock == nil {
		deps.Clock = clock.System()
	}
	if cfg.EventBuffer <= 0 {
		cfg.EventBuffer = defaultEventBuffer
	}

	return &Orchestrator{
		cfg:            cfg,
		wireless:       deps.Wireless,
		broker:         deps.Broker,
		gate:           deps.Gate,
		clock:          deps.Clock,
		logger:         noopLogger{},
		metrics:        noopMetrics{},
		events:         make(chan loopEvent, cfg.EventBuffer),
		loopDone:       make(chan struct{}),
		begin:          make(chan struct{}),
		failed:         make(chan struct{}),
		state:          StateIdle,
		wirelessBudget: NewRetryBudget(cfg.WirelessRetries),
		brokerBudget:   NewRetryBudget(cfg.BrokerRetries),
		snap:           Snapshot{State: StateIdle, Since: deps.Clock.Now()},
	}, nil
}

// SetLogger sets the logger. Call before Run.
func (o *Orchestrator) SetLogger(logger Logger) {
	o.logger = logger
}

// SetMetrics sets the metrics sink. Call before Run.
func (o *Orchestrator) SetMetrics(m Metrics) {
	o.metrics = m
}

// OnReady registers the ready callback. Call before Start.
func (o *Orchestrator) OnReady(fn ReadyFunc) {
	o.onReady = fn
}

// OnTransition registers a state change observer. Call before Run.
func (o *Orchestrator) OnTransition(fn TransitionFunc) {
	o.transitions = append(o.transitions, fn)
}

// Start requests bring-up. It is only accepted once, from Idle.
func (o *Orchestrator) Start() error {
	if !o.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	o.post(loopEvent{Event: Event{Kind: eventStart}})
	return nil
}

// Post enqueues an event. It blocks while the stream is full and drops the
// event once Run has returned.
func (o *Orchestrator) Post(ev Event) {
	o.post(loopEvent{Event: ev})
}

func (o *Orchestrator) post(ev loopEvent) {
	select {
	case o.events <- ev:
	case <-o.loopDone:
		o.logger.Debug("orchestrator stopped, dropping event", "event", ev.Kind)
	}
}

// Run consumes events until ctx is cancelled. Any live broker session is
// stopped on the way out.
func (o *Orchestrator) Run(ctx context.Context) error {
	if !o.running.CompareAndSwap(false, true) {
		return errors.New("bringup: Run called twice")
	}
	defer close(o.loopDone)

	for {
		select {
		case <-ctx.Done():
			o.stopGate()
			o.stopSession()
			return nil
		case ev := <-o.events:
			o.handle(ctx, ev)
		}
	}
}

// Begin is closed the first time Ready is reached. It is the one-way
// signal that arms the measurement scheduler.
func (o *Orchestrator) Begin() <-chan struct{} { return o.begin }

// Failed is closed when the orchestrator parks in Failed.
func (o *Orchestrator) Failed() <-chan struct{} { return o.failed }

// Wait blocks until Ready is first reached (nil), a terminal failure
// (the failure), or ctx ends.
func (o *Orchestrator) Wait(ctx context.Context) error {
	select {
	case <-o.begin:
		return nil
	default:
	}
	select {
	case <-o.begin:
		return nil
	case <-o.failed:
		return o.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current connectivity state.
func (o *Orchestrator) State() State {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snap.State
}

// ClockTrusted reports whether the last gate pass confirmed the clock.
func (o *Orchestrator) ClockTrusted() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snap.ClockTrusted
}

// Err returns the terminal failure, if any.
func (o *Orchestrator) Err() error {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snap.Err
}

// Snapshot returns a copy of the public state.
func (o *Orchestrator) Snapshot() Snapshot {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.snap
}

func (o *Orchestrator) update(fn func(s *Snapshot)) {
	o.mu.Lock()
	fn(&o.snap)
	o.mu.Unlock()
}

// handle applies one event. Events with no transition from the current
// state fall through to the final debug log and change nothing.
func (o *Orchestrator) handle(ctx context.Context, ev loopEvent) {
	switch o.state {
	case StateIdle:
		if ev.Kind == eventStart {
			o.transition(StateAssociatingWireless)
			o.connectWireless(ctx)
			return
		}

	case StateAssociatingWireless:
		switch ev.Kind {
		case EventAssociated:
			o.transition(StateWaitingForAddress)
			return
		case EventDisassociated:
			o.wirelessFailure(ctx)
			return
		case eventRetryDue:
			if ev.stage == StageWireless && ev.gen == o.retryGen {
				o.connectWireless(ctx)
				return
			}
		}

	case StateWaitingForAddress:
		switch ev.Kind {
		case EventAddressAssigned:
			o.wirelessBudget.RecordSuccess()
			o.update(func(s *Snapshot) {
				s.Address = ev.Address
				s.WirelessAttempts = 0
			})
			o.logger.Info("address assigned", "address", ev.Address)
			o.transition(StateSyncingTime)
			o.startGate(ctx)
			return
		case EventDisassociated:
			o.wirelessFailure(ctx)
			return
		}

	case StateSyncingTime:
		switch ev.Kind {
		case eventSyncResolved:
			if ev.gen == o.gateGen {
				o.syncResolved(ctx, ev.sync)
				return
			}
		case EventDisassociated:
			o.wirelessFailure(ctx)
			return
		}

	case StateConnectingBroker:
		switch ev.Kind {
		case EventSessionEstablished:
			o.brokerBudget.RecordSuccess()
			o.update(func(s *Snapshot) { s.BrokerAttempts = 0 })
			o.transition(StateReady)
			o.notifyReady()
			return
		case EventSessionError, EventSessionLost:
			o.brokerFailure(ctx, ev.Err)
			return
		case EventDisassociated:
			o.wirelessFailure(ctx)
			return
		case eventRetryDue:
			if ev.stage == StageBroker && ev.gen == o.retryGen {
				o.connectBroker(ctx)
				return
			}
		}

	case StateReady:
		switch ev.Kind {
		case EventAddressAssigned:
			o.logger.Info("address reassigned, re-running bring-up from time sync",
				"address", ev.Address)
			o.stopSession()
			o.update(func(s *Snapshot) { s.Address = ev.Address })
			o.transition(StateSyncingTime)
			o.startGate(ctx)
			return
		case EventDisassociated:
			// Losing the link after Ready is a fresh association cycle,
			// not a failed attempt.
			o.logger.Warn("association lost while ready", "error", ErrTransientAssociation)
			o.stopSession()
			o.transition(StateAssociatingWireless)
			o.connectWireless(ctx)
			return
		case EventSessionError, EventSessionLost:
			o.brokerFailure(ctx, ev.Err)
			return
		}

	case StateFailed:
		// terminal
	}

	o.logger.Debug("ignoring event", "state", o.state, "event", ev.Kind)
}

func (o *Orchestrator) transition(to State) {
	from := o.state
	if from == to {
		return
	}
	o.state = to
	now := o.clock.Now()
	o.update(func(s *Snapshot) {
		s.State = to
		s.Since = now
	})
	o.metrics.SetState(to)
	o.logger.Info("connectivity state changed", "from", from, "to", to)
	for _, fn := range o.transitions {
		fn(from, to)
	}
}

func (o *Orchestrator) connectWireless(ctx context.Context) {
	o.metrics.ConnectAttempt(StageWireless)
	if err := o.wireless.Connect(ctx); err != nil {
		o.logger.Warn("wireless connect command failed", "error", err)
		o.wirelessFailure(ctx)
	}
}

func (o *Orchestrator) connectBroker(ctx context.Context) {
	o.metrics.ConnectAttempt(StageBroker)
	s, err := o.broker.Connect(ctx)
	if err != nil {
		o.logger.Warn("broker connect command failed", "error", err)
		o.brokerFailure(ctx, err)
		return
	}
	o.session = s
}

// wirelessFailure handles an association failure in any pre-Ready state.
// Whatever the later stages were doing is abandoned.
func (o *Orchestrator) wirelessFailure(ctx context.Context) {
	o.stopGate()
	o.stopSession()

	if o.wirelessBudget.RecordFailure() == TerminalFailure {
		o.fail(StageWireless, fmt.Errorf("%w (max %d)", ErrTerminalAssociation, o.wirelessBudget.Max()))
		return
	}

	attempt := o.wirelessBudget.Attempts()
	o.update(func(s *Snapshot) { s.WirelessAttempts = attempt })
	o.logger.Info("retrying wireless association",
		"attempt", attempt, "max", o.wirelessBudget.Max(), "error", ErrTransientAssociation)
	o.transition(StateAssociatingWireless)
	o.scheduleRetry(ctx, StageWireless, o.cfg.WirelessBackoff.Delay(attempt))
}

func (o *Orchestrator) brokerFailure(ctx context.Context, cause error) {
	o.stopSession()

	if o.brokerBudget.RecordFailure() == TerminalFailure {
		err := fmt.Errorf("%w (max %d)", ErrTerminalBroker, o.brokerBudget.Max())
		if cause != nil {
			err = fmt.Errorf("%w: %w", err, cause)
		}
		o.fail(StageBroker, err)
		return
	}

	attempt := o.brokerBudget.Attempts()
	o.update(func(s *Snapshot) { s.BrokerAttempts = attempt })
	o.logger.Info("retrying broker connection",
		"attempt", attempt, "max", o.brokerBudget.Max(), "error", ErrTransientBroker, "cause", cause)
	o.transition(StateConnectingBroker)
	o.scheduleRetry(ctx, StageBroker, o.cfg.BrokerBackoff.Delay(attempt))
}

// scheduleRetry reissues the stage's connect now, or after d via a timer
// goroutine that posts eventRetryDue. Only the latest timer counts.
func (o *Orchestrator) scheduleRetry(ctx context.Context, stage Stage, d time.Duration) {
	o.retryGen++
	if d <= 0 {
		o.reissue(ctx, stage)
		return
	}

	gen := o.retryGen
	o.logger.Debug("connect retry scheduled", "stage", stage, "delay", d)
	go func() {
		select {
		case <-o.clock.After(d):
			o.post(loopEvent{Event: Event{Kind: eventRetryDue}, stage: stage, gen: gen})
		case <-ctx.Done():
		}
	}()
}

func (o *Orchestrator) reissue(ctx context.Context, stage Stage) {
	if stage == StageBroker {
		o.connectBroker(ctx)
		return
	}
	o.connectWireless(ctx)
}

func (o *Orchestrator) startGate(ctx context.Context) {
	o.stopGate()
	o.gateGen++
	gen := o.gateGen

	gctx, cancel := context.WithCancel(ctx)
	o.cancelGate = cancel
	go func() {
		res, err := o.gate.Wait(gctx)
		if err != nil {
			return
		}
		o.post(loopEvent{Event: Event{Kind: eventSyncResolved}, gen: gen, sync: res})
	}()
}

func (o *Orchestrator) stopGate() {
	if o.cancelGate != nil {
		o.cancelGate()
		o.cancelGate = nil
	}
}

func (o *Orchestrator) syncResolved(ctx context.Context, res timesync.Result) {
	o.cancelGate = nil
	trusted := res == timesync.Confirmed
	o.update(func(s *Snapshot) { s.ClockTrusted = trusted })
	if !trusted {
		o.logger.Warn("connecting broker without a confirmed clock", "error", ErrClockSyncTimeout)
	}
	o.transition(StateConnectingBroker)
	o.connectBroker(ctx)
}

func (o *Orchestrator) stopSession() {
	if o.session == nil {
		return
	}
	o.broker.Stop(o.session)
	o.session = nil
}

func (o *Orchestrator) notifyReady() {
	if o.readyFired {
		o.logger.Info("broker session re-established")
		return
	}
	o.readyFired = true

	if o.onReady == nil {
		o.logger.Warn("ready reached with no ready callback registered")
	} else {
		o.onReady(o.session)
	}
	close(o.begin)
}

func (o *Orchestrator) fail(stage Stage, err error) {
	o.stopGate()
	o.update(func(s *Snapshot) { s.Err = err })
	o.transition(StateFailed)
	o.metrics.TerminalFailure(stage)
	o.logger.Error("bring-up failed", "stage", stage, "error", err)
	close(o.failed)
}
