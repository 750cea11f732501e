package main

import (
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePIDFile_CreatesFileWithCurrentPID(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "guardian.pid")

	cleanup, err := writePIDFile(path)
	require.NoError(t, err)
	require.NotNil(t, cleanup)

	defer cleanup()

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)
}

func TestWritePIDFile_CreatesMissingDirectory(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "state", "guardian.pid")

	cleanup, err := writePIDFile(path)
	require.NoError(t, err)

	defer cleanup()

	assert.FileExists(t, path)
}

func TestWritePIDFile_LockPreventsSecondAcquisition(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "guardian.pid")

	cleanup1, err := writePIDFile(path)
	require.NoError(t, err)
	require.NotNil(t, cleanup1)

	defer cleanup1()

	// Second attempt should fail because the lock is held.
	cleanup2, err := writePIDFile(path)
	require.Error(t, err)
	assert.Nil(t, cleanup2)
	assert.Contains(t, err.Error(), "already running")
}

func TestWritePIDFile_CleanupRemovesFileAndReleasesLock(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "guardian.pid")

	cleanup, err := writePIDFile(path)
	require.NoError(t, err)

	cleanup()

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))

	// The lock is free again.
	cleanup2, err := writePIDFile(path)
	require.NoError(t, err)
	cleanup2()
}

func TestWritePIDFile_EmptyPath(t *testing.T) {
	t.Parallel()

	_, err := writePIDFile("")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "PID file path is empty")
}

func TestReadPIDFile_InvalidContent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "guardian.pid")
	require.NoError(t, os.WriteFile(path, []byte("not-a-pid\n"), 0o600))

	_, err := readPIDFile(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid PID")
}

func TestLivePID_MissingFile(t *testing.T) {
	t.Parallel()

	_, err := livePID(filepath.Join(t.TempDir(), "guardian.pid"))
	require.ErrorIs(t, err, errDaemonNotRunning)
	assert.Contains(t, err.Error(), "no PID file")
}

func TestLivePID_StaleFileRemoved(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "guardian.pid")

	// PIDs above the kernel's pid_max never exist.
	require.NoError(t, os.WriteFile(path, []byte("99999999\n"), 0o600))

	_, err := livePID(path)
	require.ErrorIs(t, err, errDaemonNotRunning)
	assert.Contains(t, err.Error(), "stale PID file removed")

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr))
}

func TestSendSIGHUP_DeliversToLiveProcess(t *testing.T) {
	t.Parallel()

	// Catch SIGHUP so the default action does not kill the test binary.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)

	defer signal.Stop(sigCh)

	path := filepath.Join(t.TempDir(), "guardian.pid")
	require.NoError(t, os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o600))

	pid, err := sendSIGHUP(path)
	require.NoError(t, err)
	assert.Equal(t, os.Getpid(), pid)

	select {
	case sig := <-sigCh:
		assert.Equal(t, syscall.SIGHUP, sig)
	case <-time.After(2 * time.Second):
		t.Fatal("SIGHUP not received within 2 seconds")
	}
}
