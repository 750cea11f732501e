package main

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckDirectory_Writable(t *testing.T) {
	t.Parallel()

	c := checkDirectory("monitor", t.TempDir())
	assert.True(t, c.Passed)
	assert.Equal(t, "read/write ok", c.Detail)
}

func TestCheckDirectory_NotConfigured(t *testing.T) {
	t.Parallel()

	c := checkDirectory("uploaded", "")
	assert.False(t, c.Passed)
	assert.Equal(t, "not configured", c.Detail)
}

func TestCheckDirectory_Missing(t *testing.T) {
	t.Parallel()

	c := checkDirectory("state", filepath.Join(t.TempDir(), "absent"))
	assert.False(t, c.Passed)
	assert.Equal(t, "does not exist", c.Detail)
}

func TestCheckDirectory_File(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))

	c := checkDirectory("monitor", path)
	assert.False(t, c.Passed)
	assert.Equal(t, "is not a directory", c.Detail)
}

func TestCheckDirectory_ReadOnly(t *testing.T) {
	t.Parallel()

	if os.Geteuid() == 0 {
		t.Skip("root bypasses permission checks")
	}

	dir := filepath.Join(t.TempDir(), "ro")
	require.NoError(t, os.Mkdir(dir, 0o500))
	t.Cleanup(func() { _ = os.Chmod(dir, 0o700) })

	c := checkDirectory("uploaded", dir)
	assert.False(t, c.Passed)
	assert.Contains(t, c.Detail, "insufficient permissions")
}
