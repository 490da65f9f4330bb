package wireless

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/gray-logic-sensornode/internal/bringup"
	"github.com/nerrad567/gray-logic-sensornode/internal/clock"
	"github.com/nerrad567/gray-logic-sensornode/internal/infrastructure/config"
)

// defaultAssociationTimeout applies when the config leaves the deadline unset.
const defaultAssociationTimeout = 30 * time.Second

// Notifier receives lifecycle notifications (bringup.Bridge).
type Notifier interface {
	Notify(bringup.Notification)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(bringup.Notification)

// Notify calls f(n).
func (f NotifierFunc) Notify(n bringup.Notification) { f(n) }

// Logger defines the logging interface for the wireless package.
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

// Station is a wpa_supplicant-managed wireless interface.
//
// wpa_supplicant keeps retrying a failing network on its own without the
// link ever changing state, so every Connect arms a deadline: unless the
// link comes up (or goes down) first, the attempt is reported as
// disassociated when it expires. Each attempt thus yields exactly one
// outcome notification.
type Station struct {
	cfg     config.WirelessConfig
	wpa     *wpaCLI
	notify  Notifier
	logger  Logger
	clk     clock.Clock
	timeout time.Duration

	mu      sync.Mutex
	tracker linkTracker
	network int

	// deadline is closed to disarm the pending attempt's deadline; nil
	// when no attempt is outstanding.
	deadline chan struct{}
}

// NewStation creates a station for cfg.Interface that reports to notify.
func NewStation(cfg config.WirelessConfig, notify Notifier) *Station {
	timeout := cfg.GetAssociationTimeout()
	if timeout <= 0 {
		timeout = defaultAssociationTimeout
	}
	return &Station{
		cfg:     cfg,
		wpa:     &wpaCLI{bin: cfg.WPACLI, iface: cfg.Interface, run: execRunner},
		notify:  notify,
		logger:  noopLogger{},
		clk:     clock.System(),
		timeout: timeout,
		network: -1,
	}
}

// SetClock replaces the clock driving association deadlines (tests).
func (s *Station) SetClock(clk clock.Clock) {
	s.clk = clk
}

// SetLogger sets the logger for the station.
func (s *Station) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// SetRunner replaces the command runner (tests, or a sudo wrapper).
func (s *Station) SetRunner(run Runner) {
	s.wpa.run = run
}

// Configure registers the configured network with wpa_supplicant. With no
// SSID configured the supplicant's own configuration is used as is.
func (s *Station) Configure(ctx context.Context) error {
	if s.cfg.SSID == "" {
		s.logger.Info("no ssid configured, using existing wpa_supplicant networks", "interface", s.cfg.Interface)
		return nil
	}

	id, err := s.wpa.addNetwork(ctx, s.cfg.SSID, s.cfg.Password)
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.network = id
	s.mu.Unlock()

	s.logger.Info("wireless network configured", "interface", s.cfg.Interface, "ssid", s.cfg.SSID, "network_id", id)
	return nil
}

// Ping reports whether wpa_supplicant's control interface answers. It is
// the readiness probe for a supervised supplicant.
func (s *Station) Ping(ctx context.Context) error {
	return s.wpa.ping(ctx)
}

// SupplicantArgs returns the foreground wpa_supplicant command line for
// cfg's interface.
func SupplicantArgs(cfg config.WirelessConfig) []string {
	args := []string{"-i", cfg.Interface, "-c", cfg.Supplicant.ConfigFile}
	if cfg.Supplicant.Driver != "" {
		args = append(args, "-D", cfg.Supplicant.Driver)
	}
	return args
}

// Connect asks wpa_supplicant to (re)associate. The outcome is reported
// through the notifier: associated when the link comes up, disassociated
// when it goes down or the association deadline passes. An error means the
// request itself did not go through and no outcome will follow.
func (s *Station) Connect(ctx context.Context) error {
	s.logger.Debug("requesting association", "interface", s.cfg.Interface)
	if err := s.wpa.reconnect(ctx); err != nil {
		s.logger.Warn("association request failed", "interface", s.cfg.Interface, "error", err)
		return err
	}

	s.mu.Lock()
	s.disarmLocked()
	if s.tracker.known && s.tracker.up {
		s.mu.Unlock()
		// reconnect is a no-op on an associated link; report it as is.
		// Delivered off the caller's goroutine, which may be the
		// orchestrator's event loop.
		go s.deliver([]bringup.Notification{{Source: bringup.SourceWireless, Kind: bringup.KindAssociated}})
		return nil
	}
	deadline := make(chan struct{})
	s.deadline = deadline
	s.mu.Unlock()

	go s.awaitAssociation(ctx, deadline)
	return nil
}

// awaitAssociation reports the attempt owning deadline as failed once the
// association timeout passes, unless it was disarmed first.
func (s *Station) awaitAssociation(ctx context.Context, deadline chan struct{}) {
	select {
	case <-s.clk.After(s.timeout):
	case <-deadline:
		return
	case <-ctx.Done():
		return
	}

	s.mu.Lock()
	if s.deadline != deadline {
		s.mu.Unlock()
		return
	}
	s.deadline = nil
	out := s.tracker.expire()
	s.mu.Unlock()

	s.logger.Warn("association attempt timed out",
		"interface", s.cfg.Interface, "timeout", s.timeout)
	s.deliver(out)
}

func (s *Station) disarmLocked() {
	if s.deadline != nil {
		close(s.deadline)
		s.deadline = nil
	}
}

// Watch reports link and address changes until ctx ends. It returns nil on
// cancellation.
func (s *Station) Watch(ctx context.Context) error {
	return s.watch(ctx)
}

// emit feeds a tracker transition to the notifier. A link change settles
// the outstanding attempt.
func (s *Station) emit(fn func(*linkTracker) []bringup.Notification) {
	s.mu.Lock()
	out := fn(&s.tracker)
	for _, n := range out {
		if n.Kind == bringup.KindAssociated || n.Kind == bringup.KindDisassociated {
			s.disarmLocked()
			break
		}
	}
	s.mu.Unlock()

	s.deliver(out)
}

func (s *Station) deliver(out []bringup.Notification) {
	for _, n := range out {
		s.logger.Debug("link notification", "kind", n.Kind, "payload", n.Payload)
		s.notify.Notify(n)
	}
}
