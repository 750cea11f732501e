package command

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"
)

// ErrNoProcess is returned when signaling a Handle that never started a process.
var ErrNoProcess = errors.New("command: no process")

// Handle is a started process: identity, start and exit times, exit code, and
// (for synchronous runs) captured output. Safe for concurrent use.
type Handle struct {
	Command   string
	Name      string
	PID       int
	StartedAt time.Time
	Stdout    string
	Stderr    string

	process *os.Process
	done    chan struct{}

	mu       sync.Mutex
	exitedAt time.Time
	exitCode int
	waitErr  error
}

func newHandle(command, argv0 string, startedAt time.Time) *Handle {
	return &Handle{
		Command:   command,
		Name:      processName(argv0),
		StartedAt: startedAt,
		done:      make(chan struct{}),
		exitCode:  -1,
	}
}

func (h *Handle) attach(p *os.Process) {
	h.process = p
	h.PID = p.Pid
}

func (h *Handle) finish(code int, waitErr error, at time.Time) {
	h.mu.Lock()
	h.exitCode = code
	h.waitErr = waitErr
	h.exitedAt = at
	h.mu.Unlock()

	close(h.done)
}

// Done is closed once the process has exited and been reaped. A zero Handle
// returns nil, which blocks forever in a select.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Exited reports whether the process has exited.
func (h *Handle) Exited() bool {
	if h.done == nil {
		return false
	}

	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// ExitedAt returns the exit time, or the zero time while running.
func (h *Handle) ExitedAt() time.Time {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.exitedAt
}

// ExitCode returns the exit code, or -1 while running or when killed by a signal.
func (h *Handle) ExitCode() int {
	h.mu.Lock()
	defer h.mu.Unlock()

	return h.exitCode
}

// Signal delivers sig to the process. Signaling an already reaped process
// returns os.ErrProcessDone.
func (h *Handle) Signal(sig os.Signal) error {
	if h.process == nil {
		return ErrNoProcess
	}

	if err := h.process.Signal(sig); err != nil {
		return fmt.Errorf("command: signaling pid %d: %w", h.PID, err)
	}

	return nil
}

// Wait blocks until the process exits or ctx is done.
func (h *Handle) Wait(ctx context.Context) error {
	if h.done == nil {
		return ErrNoProcess
	}

	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
