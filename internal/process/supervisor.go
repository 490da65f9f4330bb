package process

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/nerrad567/gray-logic-sensornode/internal/clock"
	"github.com/nerrad567/gray-logic-sensornode/internal/wait"
)

// Status is the supervised process's lifecycle state.
type Status string

const (
	StatusStopped  Status = "stopped"
	StatusStarting Status = "starting"
	StatusRunning  Status = "running"
	StatusFailed   Status = "failed"
)

var (
	// ErrAlreadyRunning is returned by Start on a live supervisor.
	ErrAlreadyRunning = errors.New("process: already running")

	// ErrNotReady is returned by Start when the readiness probe never passed.
	ErrNotReady = errors.New("process: readiness probe did not pass")

	// ErrNotRunning is returned by HealthCheck when the process is down.
	ErrNotRunning = errors.New("process: not running")
)

// Config describes the supervised binary.
type Config struct {
	Name   string
	Binary string
	Args   []string

	// RestartDelay is the pause before restarting after an unexpected exit.
	RestartDelay time.Duration

	// MaxRestarts caps restarts; once exceeded the supervisor parks in
	// StatusFailed. 0 means never restart.
	MaxRestarts int

	// GracefulTimeout is how long Stop waits after SIGTERM before SIGKILL.
	GracefulTimeout time.Duration

	// Ready, when set, is probed every ReadyInterval until it returns nil
	// or ReadyTimeout passes. Start only returns once it has passed.
	Ready         func(ctx context.Context) error
	ReadyInterval time.Duration
	ReadyTimeout  time.Duration

	// OnExit observes every unexpected exit.
	OnExit func(err error)
}

// Logger defines the logging interface for the supervisor.
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

// Supervisor runs and restarts one child process.
//
// Thread Safety: all methods are safe for concurrent use.
type Supervisor struct {
	cfg    Config
	clock  clock.Clock
	logger Logger

	mu       sync.RWMutex
	cmd      *exec.Cmd
	status   Status
	restarts int
	lastErr  error
	started  time.Time
	stopping bool
	exited   chan error    // receives the current child's Wait result
	gone     chan struct{} // closed once the current child has exited
	stopCh   chan struct{} // closed by Stop
	done     chan struct{} // closed when the monitor returns
}

// New creates a stopped supervisor. Zero durations take defaults.
func New(cfg Config) *Supervisor {
	if cfg.RestartDelay <= 0 {
		cfg.RestartDelay = 5 * time.Second
	}
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = 10 * time.Second
	}
	if cfg.ReadyInterval <= 0 {
		cfg.ReadyInterval = 250 * time.Millisecond
	}
	if cfg.ReadyTimeout <= 0 {
		cfg.ReadyTimeout = 10 * time.Second
	}
	if cfg.Name == "" {
		cfg.Name = cfg.Binary
	}
	return &Supervisor{
		cfg:    cfg,
		clock:  clock.System(),
		logger: noopLogger{},
		status: StatusStopped,
	}
}

// SetLogger sets the logger for the supervisor.
func (s *Supervisor) SetLogger(logger Logger) {
	if logger != nil {
		s.logger = logger
	}
}

// Start launches the process, waits for readiness if a probe is
// configured, and begins supervising. The process lives until Stop or
// until ctx ends.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.status == StatusRunning || s.status == StatusStarting {
		s.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyRunning, s.cfg.Name)
	}
	s.status = StatusStarting
	s.stopping = false
	s.restarts = 0
	s.done = make(chan struct{})
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	if err := s.launch(ctx); err != nil {
		s.setFailed(err)
		close(s.done)
		return err
	}

	if err := s.awaitReady(ctx); err != nil {
		s.logger.Error("process never became ready", "name", s.cfg.Name, "error", err)
		go s.monitor(ctx)
		_ = s.Stop()
		s.setFailed(err)
		return err
	}

	go s.monitor(ctx)
	return nil
}

func (s *Supervisor) launch(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, s.cfg.Binary, s.cfg.Args...) //nolint:gosec // binary comes from node config
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("creating stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("creating stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting %s: %w", s.cfg.Name, err)
	}

	exited := make(chan error, 1)
	gone := make(chan struct{})
	var pipes sync.WaitGroup
	pipes.Add(2)
	go s.forward(&pipes, "stdout", stdout)
	go s.forward(&pipes, "stderr", stderr)
	go func() {
		// Wait closes the pipes, so drain them first.
		pipes.Wait()
		exited <- cmd.Wait()
		close(gone)
	}()

	s.mu.Lock()
	s.cmd = cmd
	s.exited = exited
	s.gone = gone
	s.status = StatusRunning
	s.started = s.clock.Now()
	stopping := s.stopping
	s.mu.Unlock()

	// Stop raced a restart and will not signal this child itself.
	if stopping {
		_ = unix.Kill(-cmd.Process.Pid, unix.SIGTERM)
	}

	s.logger.Info("process started", "name", s.cfg.Name, "pid", cmd.Process.Pid, "args", s.cfg.Args)
	return nil
}

// forward logs each output line of the child.
func (s *Supervisor) forward(wg *sync.WaitGroup, stream string, r io.Reader) {
	defer wg.Done()
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		s.logger.Debug("process output", "name", s.cfg.Name, "stream", stream, "line", sc.Text())
	}
}

func (s *Supervisor) awaitReady(ctx context.Context) error {
	if s.cfg.Ready == nil {
		return nil
	}
	s.mu.RLock()
	gone := s.gone
	s.mu.RUnlock()

	polls := int(s.cfg.ReadyTimeout/s.cfg.ReadyInterval) + 1
	var lastErr error
	outcome, err := wait.Poll(ctx, s.clock, s.cfg.ReadyInterval, polls, func(ctx context.Context) (bool, error) {
		select {
		case <-gone:
			return false, fmt.Errorf("%s exited during start-up", s.cfg.Name)
		default:
		}
		lastErr = s.cfg.Ready(ctx)
		return lastErr == nil, nil
	})
	switch {
	case outcome == wait.Success:
		return nil
	case err != nil:
		return fmt.Errorf("%w: %w", ErrNotReady, err)
	default:
		return fmt.Errorf("%w after %s: %w", ErrNotReady, s.cfg.ReadyTimeout, lastErr)
	}
}

// monitor restarts the child after unexpected exits.
func (s *Supervisor) monitor(ctx context.Context) {
	defer close(s.done)

	for {
		s.mu.RLock()
		exited := s.exited
		s.mu.RUnlock()

		var err error
		select {
		case err = <-exited:
		case <-ctx.Done():
			err = <-exited // CommandContext kills the child
		}

		s.mu.Lock()
		stopping := s.stopping
		if stopping {
			s.status = StatusStopped
		}
		s.mu.Unlock()
		if stopping {
			s.logger.Info("process stopped", "name", s.cfg.Name)
			return
		}
		if ctx.Err() != nil {
			s.setStatus(StatusStopped)
			return
		}

		s.logger.Warn("process exited unexpectedly", "name", s.cfg.Name, "error", err)
		if err == nil {
			err = errors.New("exited with status 0")
		}
		s.setFailed(err)
		if s.cfg.OnExit != nil {
			s.cfg.OnExit(err)
		}

		s.mu.Lock()
		s.restarts++
		attempt := s.restarts
		s.mu.Unlock()
		if attempt > s.cfg.MaxRestarts {
			s.logger.Error("restart budget exhausted", "name", s.cfg.Name, "restarts", attempt-1)
			return
		}

		s.logger.Info("restarting process", "name", s.cfg.Name, "attempt", attempt, "delay", s.cfg.RestartDelay)
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			s.setStatus(StatusStopped)
			return
		case <-s.clock.After(s.cfg.RestartDelay):
		}

		if err := s.launch(ctx); err != nil {
			s.logger.Error("restart failed", "name", s.cfg.Name, "error", err)
			s.setFailed(err)
			return
		}
	}
}

// Stop sends SIGTERM to the process group, escalating to SIGKILL after
// GracefulTimeout, and waits for the supervisor to wind down.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	if s.done == nil || s.stopping {
		s.mu.Unlock()
		return nil
	}
	s.stopping = true
	close(s.stopCh)
	cmd := s.cmd
	running := s.status == StatusRunning || s.status == StatusStarting
	done := s.done
	s.mu.Unlock()

	if running && cmd != nil && cmd.Process != nil {
		pid := cmd.Process.Pid
		s.logger.Info("stopping process", "name", s.cfg.Name, "pid", pid)
		if err := unix.Kill(-pid, unix.SIGTERM); err != nil && !errors.Is(err, unix.ESRCH) {
			s.logger.Warn("SIGTERM failed", "name", s.cfg.Name, "error", err)
		}

		select {
		case <-done:
			return nil
		case <-s.clock.After(s.cfg.GracefulTimeout):
			s.logger.Warn("graceful stop timed out, sending SIGKILL", "name", s.cfg.Name)
		}
		if err := unix.Kill(-pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			return fmt.Errorf("killing %s: %w", s.cfg.Name, err)
		}
	}
	<-done
	return nil
}

// HealthCheck reports ErrNotRunning unless the child is up.
func (s *Supervisor) HealthCheck(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !s.IsRunning() {
		return fmt.Errorf("%w: %s (%s)", ErrNotRunning, s.cfg.Name, s.Status())
	}
	return nil
}

// Status returns the current lifecycle state.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.status
}

// IsRunning reports whether the child is up.
func (s *Supervisor) IsRunning() bool { return s.Status() == StatusRunning }

// Restarts returns how many restarts have been attempted since Start.
func (s *Supervisor) Restarts() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.restarts
}

// LastError returns the cause of the most recent unexpected exit.
func (s *Supervisor) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}

// PID returns the child's pid, or 0 when it is not running.
func (s *Supervisor) PID() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status != StatusRunning || s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// Uptime returns how long the current child has been running.
func (s *Supervisor) Uptime() time.Duration {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.status != StatusRunning {
		return 0
	}
	return s.clock.Now().Sub(s.started)
}

func (s *Supervisor) setStatus(st Status) {
	s.mu.Lock()
	s.status = st
	s.mu.Unlock()
}

func (s *Supervisor) setFailed(err error) {
	s.mu.Lock()
	s.status = StatusFailed
	s.lastErr = err
	s.mu.Unlock()
}
