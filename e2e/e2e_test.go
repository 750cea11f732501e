//go:build e2e

package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maidastach/guardian/testutil"
)

// credentialsEnv names a Drive service account key. Remote tests skip
// without it.
const credentialsEnv = "GUARDIAN_E2E_CREDENTIALS"

var (
	binaryPath  string
	credentials string
)

func TestMain(m *testing.M) {
	root := testutil.FindModuleRoot("..")
	testutil.LoadDotEnv(filepath.Join(root, ".env"))

	tmpDir, err := os.MkdirTemp("", "guardian-e2e-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "creating temp dir: %v\n", err)
		os.Exit(1)
	}

	binaryPath = filepath.Join(tmpDir, "guardian")

	cmd := exec.Command("go", "build", "-o", binaryPath, ".")
	cmd.Dir = root
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "building binary: %v\n", err)
		os.RemoveAll(tmpDir)
		os.Exit(1)
	}

	credentials = testutil.CredentialsFile(credentialsEnv)

	code := m.Run()
	os.RemoveAll(tmpDir)
	os.Exit(code)
}

// env is one isolated guardian installation: config, state, and capture
// directories under a temp root.
type env struct {
	root       string
	configPath string
	monitor    string
	stateDir   string
}

func newEnv(t *testing.T, credentialsFile string) *env {
	t.Helper()

	root := t.TempDir()
	e := &env{
		root:     root,
		monitor:  filepath.Join(root, "motion"),
		stateDir: filepath.Join(root, "state"),
	}

	require.NoError(t, os.MkdirAll(e.monitor, 0o755))

	e.configPath = testutil.WriteConfig(root, fmt.Sprintf(`
time_zone = "UTC"

[paths]
monitor = %q
uploaded = %q
heartbeat_marker = %q
stopped_marker = %q
state_dir = %q

[drive]
credentials_file = %q
folder_name = "guardian-e2e-%d"
`,
		e.monitor,
		filepath.Join(root, "uploaded"),
		filepath.Join(root, "am-i-online.txt"),
		filepath.Join(root, "app-stopped.txt"),
		e.stateDir,
		credentialsFile,
		time.Now().UnixNano(),
	))

	return e
}

func (e *env) run(t *testing.T, args ...string) (string, string, error) {
	t.Helper()

	cmd := exec.Command(binaryPath, append([]string{"--config", e.configPath}, args...)...)
	cmd.Env = append(os.Environ(),
		"XDG_CONFIG_HOME="+filepath.Join(e.root, "xdg-config"),
		"XDG_DATA_HOME="+filepath.Join(e.root, "xdg-data"),
		"GUARDIAN_WATCH_DIR=",
		"GUARDIAN_STATE_DIR=",
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	return stdout.String(), stderr.String(), err
}

func (e *env) mustRun(t *testing.T, args ...string) string {
	t.Helper()

	stdout, stderr, err := e.run(t, args...)
	if err != nil {
		t.Fatalf("guardian %v failed: %v\nstdout: %s\nstderr: %s", args, err, stdout, stderr)
	}

	return stdout
}

func TestE2E_Offline(t *testing.T) {
	e := newEnv(t, "")

	t.Run("config_show", func(t *testing.T) {
		stdout := e.mustRun(t, "--json", "config", "show")

		var out map[string]any
		require.NoError(t, json.Unmarshal([]byte(stdout), &out))
		assert.Equal(t, "UTC", out["TimeZone"])
	})

	t.Run("status", func(t *testing.T) {
		stdout := e.mustRun(t, "--json", "status")

		var out map[string]any
		require.NoError(t, json.Unmarshal([]byte(stdout), &out))
		assert.Contains(t, out, "records")
		assert.Contains(t, out, "mount")
	})

	t.Run("records_empty", func(t *testing.T) {
		stdout := e.mustRun(t, "records")
		assert.Contains(t, stdout, "No records.")
	})

	t.Run("sweep_without_daemon", func(t *testing.T) {
		_, stderr, err := e.run(t, "sweep")
		require.Error(t, err)
		assert.Contains(t, stderr, "not running")
	})

	t.Run("upload_without_credentials", func(t *testing.T) {
		_, stderr, err := e.run(t, "upload")
		require.Error(t, err)
		assert.Contains(t, stderr, "credentials_file")
	})
}

func TestE2E_UploadSingleFile(t *testing.T) {
	if credentials == "" {
		t.Skipf("%s not set", credentialsEnv)
	}

	e := newEnv(t, credentials)

	path := filepath.Join(e.root, "e2e.txt")
	require.NoError(t, os.WriteFile(path, []byte("guardian e2e\n"), 0o644))

	stdout := e.mustRun(t, "--json", "upload", path)

	var out map[string]string
	require.NoError(t, json.Unmarshal([]byte(stdout), &out))
	assert.Equal(t, path, out["path"])
	assert.NotEmpty(t, strings.TrimSpace(out["remote_id"]))
}
