// Package command executes OS commands for the mount controller, the
// capture daemon supervisor, and the MIME probe. Commands can run elevated
// (prefixed with sudo or an equivalent), synchronously with captured output,
// or detached with a live Handle the caller owns.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Defaults used when Config leaves a field empty.
const (
	DefaultElevateWith = "sudo"
	DefaultShell       = "/bin/sh"
	revokeFlag         = "-k"
	chainSeparator     = " && "
)

// Options controls a single execution.
type Options struct {
	// KeepAlive returns as soon as the process starts; the child is reaped in
	// the background and its exit is observable through the Handle.
	KeepAlive bool

	// Elevated prefixes the command (every segment for ExecuteMany) with the
	// configured elevation program.
	Elevated bool
}

// Config holds the runner settings from the [command] config section.
type Config struct {
	ElevateWith string
	Shell       string
}

// ExitError reports a synchronous command that exited with a non-zero code.
// It carries the exit code and the captured output for logging.
type ExitError struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *ExitError) Error() string {
	out := strings.TrimSpace(e.Stderr)
	if out == "" {
		out = strings.TrimSpace(e.Stdout)
	}

	if out == "" {
		return fmt.Sprintf("command: %q failed to execute with exit code %d", e.Command, e.ExitCode)
	}

	return fmt.Sprintf("command: %q failed to execute with exit code %d: %s", e.Command, e.ExitCode, out)
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

// Runner executes commands. Safe for concurrent use.
type Runner struct {
	elevateWith string
	shell       string
	logger      *slog.Logger
	nowFunc     func() time.Time
}

// NewRunner creates a Runner. Empty config fields fall back to sudo and /bin/sh.
func NewRunner(cfg Config, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}

	elevate := strings.TrimSpace(cfg.ElevateWith)
	if elevate == "" {
		elevate = DefaultElevateWith
	}

	shell := strings.TrimSpace(cfg.Shell)
	if shell == "" {
		shell = DefaultShell
	}

	return &Runner{
		elevateWith: elevate,
		shell:       shell,
		logger:      logger,
		nowFunc:     time.Now,
	}
}

// Execute runs a single command line. Synchronous runs block until exit and
// return *ExitError for a non-zero exit code. KeepAlive runs return a live
// Handle immediately.
func (r *Runner) Execute(ctx context.Context, command string, opts Options) (*Handle, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, errors.New("command: empty command")
	}

	if opts.Elevated {
		command = r.elevateWith + " " + command
	}

	argv, err := Split(command)
	if err != nil {
		return nil, fmt.Errorf("command: parsing %q: %w", command, err)
	}

	return r.run(ctx, command, argv, opts.KeepAlive)
}

// ExecuteMany chains commands with a logical AND through the shell, so the
// first failing step aborts the rest. When elevated, every segment is
// elevated and a final de-elevation step is appended. An empty list is a
// successful no-op.
func (r *Runner) ExecuteMany(ctx context.Context, commands []string, opts Options) (*Handle, error) {
	if len(commands) == 0 {
		return &Handle{}, nil
	}

	line := r.joinCommands(commands, opts.Elevated)

	return r.run(ctx, line, []string{r.shell, "-c", line}, opts.KeepAlive)
}

// RevokeElevation drops cached elevated credentials (sudo -k).
func (r *Runner) RevokeElevation(ctx context.Context) (*Handle, error) {
	return r.Execute(ctx, revokeFlag, Options{Elevated: true})
}

// joinCommands builds the shell line for ExecuteMany.
func (r *Runner) joinCommands(commands []string, elevated bool) string {
	segments := make([]string, 0, len(commands)+1)

	for _, c := range commands {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}

		if elevated {
			c = r.elevateWith + " " + c
		}

		segments = append(segments, c)
	}

	if elevated {
		segments = append(segments, r.elevateWith+" "+revokeFlag)
	}

	return strings.Join(segments, chainSeparator)
}

func (r *Runner) run(ctx context.Context, command string, argv []string, keepAlive bool) (*Handle, error) {
	if keepAlive {
		return r.start(command, argv)
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	h := newHandle(command, argv[0], r.nowFunc())

	if err := cmd.Start(); err != nil {
		r.logger.Error("command failed to start",
			slog.String("command", command),
			slog.String("error", err.Error()),
		)

		return nil, fmt.Errorf("command: starting %q: %w", command, err)
	}

	h.attach(cmd.Process)
	waitErr := cmd.Wait()
	h.Stdout = stdout.String()
	h.Stderr = stderr.String()
	h.finish(exitCodeOf(cmd), waitErr, r.nowFunc())

	if waitErr != nil {
		if ctx.Err() != nil {
			r.logger.Warn("command canceled",
				slog.String("command", command),
				slog.String("error", ctx.Err().Error()),
			)

			return nil, fmt.Errorf("command: %q canceled: %w", command, ctx.Err())
		}

		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			ee := &ExitError{
				Command:  command,
				ExitCode: exitErr.ExitCode(),
				Stdout:   h.Stdout,
				Stderr:   h.Stderr,
				Err:      exitErr,
			}

			r.logger.Error("command failed",
				slog.String("command", command),
				slog.Int("exit_code", ee.ExitCode),
				slog.String("stderr", strings.TrimSpace(ee.Stderr)),
			)

			return nil, ee
		}

		r.logger.Error("command failed",
			slog.String("command", command),
			slog.String("error", waitErr.Error()),
		)

		return nil, fmt.Errorf("command: waiting for %q: %w", command, waitErr)
	}

	r.logger.Info("command executed successfully",
		slog.String("command", command),
		slog.Int("pid", h.PID),
		slog.Duration("elapsed", h.ExitedAt().Sub(h.StartedAt)),
	)

	return h, nil
}

// start launches a detached child. The process is not bound to a context;
// it ends when the Handle owner signals it.
func (r *Runner) start(command string, argv []string) (*Handle, error) {
	cmd := exec.Command(argv[0], argv[1:]...) //nolint:gosec // commands come from operator config
	cmd.SysProcAttr = detachedAttr()

	h := newHandle(command, argv[0], r.nowFunc())

	if err := cmd.Start(); err != nil {
		r.logger.Error("command failed to start",
			slog.String("command", command),
			slog.String("error", err.Error()),
		)

		return nil, fmt.Errorf("command: starting %q: %w", command, err)
	}

	h.attach(cmd.Process)

	go func() {
		waitErr := cmd.Wait()
		code := exitCodeOf(cmd)

		r.logger.Info("detached command exited",
			slog.String("command", command),
			slog.Int("pid", h.PID),
			slog.Int("exit_code", code),
		)

		h.finish(code, waitErr, r.nowFunc())
	}()

	r.logger.Info("command started",
		slog.String("command", command),
		slog.Int("pid", h.PID),
	)

	return h, nil
}

func exitCodeOf(cmd *exec.Cmd) int {
	if cmd.ProcessState == nil {
		return -1
	}

	return cmd.ProcessState.ExitCode()
}

// processName returns the executable base name for argv[0].
func processName(argv0 string) string {
	return filepath.Base(argv0)
}
