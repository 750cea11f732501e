package mount

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maidastach/guardian/internal/command"
)

// fakeRunner records every call and fails the command matching failOn.
type fakeRunner struct {
	mu      sync.Mutex
	calls   []string
	revokes int
	failOn  string
}

func (f *fakeRunner) Execute(_ context.Context, cmd string, opts command.Options) (*command.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if !opts.Elevated {
		return nil, errors.New("expected elevated command")
	}

	f.calls = append(f.calls, cmd)

	if f.failOn != "" && cmd == f.failOn {
		return nil, &command.ExitError{Command: cmd, ExitCode: 32, Stderr: "mount failed"}
	}

	return &command.Handle{Command: cmd}, nil
}

func (f *fakeRunner) RevokeElevation(context.Context) (*command.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.revokes++

	return &command.Handle{}, nil
}

func writeMountTable(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "mounts")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestMount_AlreadyMountedIssuesNoCommands(t *testing.T) {
	t.Parallel()

	point := t.TempDir()
	table := writeMountTable(t, "proc /proc proc rw 0 0\n/dev/sda1 "+point+" ext4 rw 0 0\n")
	runner := &fakeRunner{}

	c := NewController("/dev/sda1", point, runner, nil, WithMountTable(table))

	require.NoError(t, c.Mount(t.Context()))
	assert.Empty(t, runner.calls)
	assert.Zero(t, runner.revokes)
}

func TestMount_CreatesDirectoryAndMounts(t *testing.T) {
	t.Parallel()

	point := filepath.Join(t.TempDir(), "guardian")
	table := writeMountTable(t, "proc /proc proc rw 0 0\n")
	runner := &fakeRunner{}

	c := NewController("/dev/sda1", point, runner, nil, WithMountTable(table))

	require.NoError(t, c.Mount(t.Context()))
	assert.Equal(t, []string{
		"mkdir -p " + point,
		"mount /dev/sda1 " + point,
	}, runner.calls)
	assert.Equal(t, 1, runner.revokes)
}

func TestMount_DirectoryExistsOnlyMounts(t *testing.T) {
	t.Parallel()

	point := t.TempDir()
	// Same device mounted elsewhere does not count.
	table := writeMountTable(t, "/dev/sda1 /media/other ext4 rw 0 0\n")
	runner := &fakeRunner{}

	c := NewController("/dev/sda1", point, runner, nil, WithMountTable(table))

	require.NoError(t, c.Mount(t.Context()))
	assert.Equal(t, []string{"mount /dev/sda1 " + point}, runner.calls)
}

func TestMount_FailureShortCircuits(t *testing.T) {
	t.Parallel()

	point := filepath.Join(t.TempDir(), "guardian")
	table := writeMountTable(t, "")
	runner := &fakeRunner{failOn: "mkdir -p " + point}

	c := NewController("/dev/sda1", point, runner, nil, WithMountTable(table))

	err := c.Mount(t.Context())
	require.Error(t, err)

	var exitErr *command.ExitError
	require.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 32, exitErr.ExitCode)
	assert.Equal(t, []string{"mkdir -p " + point}, runner.calls)
	assert.Equal(t, 1, runner.revokes)
}

func TestMount_MissingMountTable(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	c := NewController("/dev/sda1", t.TempDir(), runner, nil,
		WithMountTable(filepath.Join(t.TempDir(), "absent")))

	assert.Error(t, c.Mount(t.Context()))
	assert.Empty(t, runner.calls)
}

func TestUnmount_AlwaysIssuesCommand(t *testing.T) {
	t.Parallel()

	runner := &fakeRunner{}
	c := NewController("/dev/sda1", "/mnt/guardian", runner, nil, WithMountTable(writeMountTable(t, "")))

	require.NoError(t, c.Unmount(t.Context()))
	assert.Equal(t, []string{"umount /mnt/guardian"}, runner.calls)
	assert.Equal(t, 1, runner.revokes)
}

func TestIsMounted_DecodesEscapes(t *testing.T) {
	t.Parallel()

	table := writeMountTable(t, `/dev/sdb1 /mnt/my\040drive vfat rw 0 0`+"\n")
	c := NewController("/dev/sdb1", "/mnt/my drive/", &fakeRunner{}, nil, WithMountTable(table))

	mounted, err := c.IsMounted()
	require.NoError(t, err)
	assert.True(t, mounted)
}

func TestUnescape(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "plain", unescape("plain"))
	assert.Equal(t, "a b\tc", unescape(`a\040b\011c`))
	assert.Equal(t, `back\slash`, unescape(`back\134slash`))
	assert.Equal(t, `trail\04`, unescape(`trail\04`))
}
