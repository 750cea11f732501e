// Package supervisor owns the lifecycle of the capture daemon: a single named
// long-running child process that is started, stopped, and inspected as a
// singleton.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sys/unix"

	"github.com/maidastach/guardian/internal/command"
	"github.com/maidastach/guardian/internal/failure"
)

// Sentinel errors. Both wrap failure.ErrInvalidAction.
var (
	ErrAlreadyRunning = fmt.Errorf("daemon is already running: %w", failure.ErrInvalidAction)
	ErrAlreadyStopped = fmt.Errorf("daemon is already stopped: %w", failure.ErrInvalidAction)
)

const (
	defaultStopTimeout = 10 * time.Second
	reapPollInterval   = 100 * time.Millisecond
)

// Launcher starts processes. Satisfied by *command.Runner.
type Launcher interface {
	Execute(ctx context.Context, cmd string, opts command.Options) (*command.Handle, error)
}

// Mounter mounts the recording drive. Satisfied by *mount.Controller.
type Mounter interface {
	Mount(ctx context.Context) error
}

// Config describes the supervised daemon.
type Config struct {
	// Name is the process name used to find untracked instances.
	Name string
	// Command is the command line that launches the daemon.
	Command     string
	StopTimeout time.Duration
	// ProcRoot overrides the procfs root (tests).
	ProcRoot string
}

// Status is a point-in-time view of the daemon.
type Status struct {
	Name       string    `json:"name"`
	PID        int       `json:"pid,omitempty"`
	Running    bool      `json:"running"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	ExitedAt   time.Time `json:"exited_at,omitzero"`
	ExitCode   *int      `json:"exit_code,omitempty"`
	NextAction string    `json:"next_action"`
}

// Supervisor starts and stops the daemon. All methods are safe for concurrent use.
type Supervisor struct {
	cfg      Config
	launcher Launcher
	mounter  Mounter
	logger   *slog.Logger

	killFunc  func(pid int, sig unix.Signal) error
	sleepFunc func(ctx context.Context, d time.Duration) error

	mu     sync.Mutex
	handle *command.Handle
}

// New creates a Supervisor. mounter may be nil when the daemon never needs
// the drive mounted first.
func New(cfg Config, launcher Launcher, mounter Mounter, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}

	if cfg.StopTimeout <= 0 {
		cfg.StopTimeout = defaultStopTimeout
	}

	if cfg.ProcRoot == "" {
		cfg.ProcRoot = DefaultProcRoot
	}

	return &Supervisor{
		cfg:       cfg,
		launcher:  launcher,
		mounter:   mounter,
		logger:    logger,
		killFunc:  unix.Kill,
		sleepFunc: timeSleep,
	}
}

// Start launches the daemon. It returns ErrAlreadyRunning, with no side
// effects, when a handle is already held. Stray same-named processes are
// killed first; with mountFirst the drive is mounted before launch.
func (s *Supervisor) Start(ctx context.Context, mountFirst bool) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle != nil {
		return s.statusLocked(), ErrAlreadyRunning
	}

	if err := s.killStrays(ctx); err != nil {
		return s.statusLocked(), err
	}

	if mountFirst {
		if s.mounter == nil {
			return s.statusLocked(), errors.New("supervisor: mount requested but no mounter configured")
		}

		if err := s.mounter.Mount(ctx); err != nil {
			return s.statusLocked(), fmt.Errorf("supervisor: mounting drive before start: %w", err)
		}
	}

	h, err := s.launcher.Execute(ctx, s.cfg.Command, command.Options{KeepAlive: true})
	if err != nil {
		return s.statusLocked(), fmt.Errorf("supervisor: starting %s: %w", s.cfg.Name, err)
	}

	s.handle = h

	s.logger.Info("daemon started",
		slog.String("name", s.cfg.Name),
		slog.Int("pid", h.PID),
	)

	return s.statusLocked(), nil
}

// Stop terminates the daemon: SIGTERM, then SIGKILL after the stop timeout.
// The returned status is the snapshot taken after exit and before the handle
// is released. Returns ErrAlreadyStopped when no handle is held.
func (s *Supervisor) Stop(ctx context.Context) (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.handle == nil {
		return s.statusLocked(), ErrAlreadyStopped
	}

	h := s.handle

	if !h.Exited() {
		if err := h.Signal(unix.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return s.statusLocked(), fmt.Errorf("supervisor: stopping %s: %w", s.cfg.Name, err)
		}

		waitCtx, cancel := context.WithTimeout(ctx, s.cfg.StopTimeout)
		err := h.Wait(waitCtx)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return s.statusLocked(), fmt.Errorf("supervisor: stopping %s: %w", s.cfg.Name, ctx.Err())
			}

			s.logger.Warn("daemon ignored SIGTERM, killing",
				slog.String("name", s.cfg.Name),
				slog.Int("pid", h.PID),
				slog.Duration("timeout", s.cfg.StopTimeout),
			)

			if err := h.Signal(unix.SIGKILL); err != nil && !errors.Is(err, os.ErrProcessDone) {
				return s.statusLocked(), fmt.Errorf("supervisor: killing %s: %w", s.cfg.Name, err)
			}

			if err := h.Wait(ctx); err != nil {
				return s.statusLocked(), fmt.Errorf("supervisor: waiting for %s: %w", s.cfg.Name, err)
			}
		}
	}

	snapshot := s.statusLocked()
	s.handle = nil

	s.logger.Info("daemon stopped",
		slog.String("name", s.cfg.Name),
		slog.Int("pid", snapshot.PID),
	)

	return snapshot, nil
}

// Status returns the current daemon status without changing it.
func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.statusLocked()
}

// Untracked returns PIDs of same-named processes this supervisor does not own.
func (s *Supervisor) Untracked() ([]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.untrackedLocked()
}

func (s *Supervisor) statusLocked() Status {
	st := Status{Name: s.cfg.Name, NextAction: "Start"}

	h := s.handle
	if h == nil {
		return st
	}

	st.PID = h.PID
	st.StartedAt = h.StartedAt

	if h.Exited() {
		st.ExitedAt = h.ExitedAt()
		code := h.ExitCode()
		st.ExitCode = &code
	} else {
		st.Running = true
	}

	// The handle is still held after an unexpected exit, so Stop is what
	// clears it.
	st.NextAction = "Stop"

	return st
}

func (s *Supervisor) untrackedLocked() ([]int, error) {
	pids, err := findByName(s.cfg.ProcRoot, s.cfg.Name)
	if err != nil {
		return nil, err
	}

	self := os.Getpid()
	tracked := 0

	if s.handle != nil {
		tracked = s.handle.PID
	}

	out := pids[:0]

	for _, pid := range pids {
		if pid == self || pid == tracked {
			continue
		}

		out = append(out, pid)
	}

	return out, nil
}

// killStrays kills same-named processes left behind by a previous run and
// waits for them to disappear.
func (s *Supervisor) killStrays(ctx context.Context) error {
	pids, err := s.untrackedLocked()
	if err != nil {
		return err
	}

	for _, pid := range pids {
		s.logger.Warn("killing untracked daemon process",
			slog.String("name", s.cfg.Name),
			slog.Int("pid", pid),
		)

		if err := s.killFunc(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			return fmt.Errorf("supervisor: killing stray pid %d: %w", pid, err)
		}
	}

	deadline := time.Now().Add(s.cfg.StopTimeout)

	for _, pid := range pids {
		for alive(s.cfg.ProcRoot, pid) {
			if time.Now().After(deadline) {
				return fmt.Errorf("supervisor: stray pid %s did not exit within %s", strconv.Itoa(pid), s.cfg.StopTimeout)
			}

			if err := s.sleepFunc(ctx, reapPollInterval); err != nil {
				return fmt.Errorf("supervisor: waiting for stray pid %d: %w", pid, err)
			}
		}
	}

	return nil
}

// timeSleep waits for the specified duration or until the context is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
