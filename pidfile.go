package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gofrs/flock"
	"golang.org/x/sys/unix"
)

// pidFilePermissions matches the standard config file permissions (owner rw, group/other r).
const pidFilePermissions = 0o644

// pidDirPermissions matches the standard directory permissions (owner rwx, group/other rx).
const pidDirPermissions = 0o755

// errDaemonNotRunning reports a missing or stale PID file.
var errDaemonNotRunning = errors.New("guardian daemon is not running")

// writePIDFile acquires an exclusive lock on path and writes the current
// process ID into it. Returns a cleanup function that removes the file and
// releases the lock. If the lock is held, another daemon is already running.
func writePIDFile(path string) (cleanup func(), err error) {
	if path == "" {
		return nil, errors.New("PID file path is empty, cannot determine state directory")
	}

	if mkdirErr := os.MkdirAll(filepath.Dir(path), pidDirPermissions); mkdirErr != nil {
		return nil, fmt.Errorf("creating PID file directory: %w", mkdirErr)
	}

	lock := flock.New(path, flock.SetFlag(os.O_CREATE|os.O_RDWR), flock.SetPermissions(pidFilePermissions))

	ok, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking PID file %s: %w", path, err)
	}

	if !ok {
		return nil, fmt.Errorf("another guardian daemon is already running (could not lock %s)", path)
	}

	if err := writePID(path); err != nil {
		_ = lock.Unlock()
		return nil, err
	}

	return func() {
		os.Remove(path)
		_ = lock.Unlock()
	}, nil
}

// writePID truncates path and writes the current PID. The file is opened
// separately from the lock handle; flock locks are per open file
// description, so this does not disturb the held lock.
func writePID(path string) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC, pidFilePermissions)
	if err != nil {
		return fmt.Errorf("opening PID file: %w", err)
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%d\n", os.Getpid()); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}

	// Sync to disk so readers see the PID immediately.
	if err := f.Sync(); err != nil {
		return fmt.Errorf("syncing PID file: %w", err)
	}

	return nil
}

// readPIDFile reads the PID from the given file path. Returns 0 and an error
// if the file does not exist or contains invalid content.
func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading PID file: %w", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("invalid PID in %s: %w", path, err)
	}

	return pid, nil
}

// livePID returns the daemon PID if the PID file names a live process.
// Stale PID files (process dead) are removed.
func livePID(pidPath string) (int, error) {
	pid, err := readPIDFile(pidPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("%w (no PID file at %s)", errDaemonNotRunning, pidPath)
		}

		return 0, err
	}

	proc, err := os.FindProcess(pid)
	if err != nil {
		return 0, fmt.Errorf("finding process %d: %w", pid, err)
	}

	// Signal 0 probes liveness without delivering anything.
	if err := proc.Signal(unix.Signal(0)); err != nil {
		os.Remove(pidPath)

		return 0, fmt.Errorf("%w (PID %d gone, stale PID file removed)", errDaemonNotRunning, pid)
	}

	return pid, nil
}

// sendSIGHUP sends SIGHUP to the daemon named by the PID file.
func sendSIGHUP(pidPath string) (int, error) {
	pid, err := livePID(pidPath)
	if err != nil {
		return 0, err
	}

	if err := unix.Kill(pid, unix.SIGHUP); err != nil {
		return 0, fmt.Errorf("sending SIGHUP to daemon (PID %d): %w", pid, err)
	}

	return pid, nil
}
