package supervisor

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// DefaultProcRoot is the procfs mount point.
const DefaultProcRoot = "/proc"

// findByName returns the PIDs whose /proc/<pid>/comm equals name. Processes
// that exit during the scan are skipped.
func findByName(procRoot, name string) ([]int, error) {
	entries, err := os.ReadDir(procRoot)
	if err != nil {
		return nil, fmt.Errorf("supervisor: listing %s: %w", procRoot, err)
	}

	// comm is truncated to 15 bytes by the kernel.
	want := name
	if len(want) > 15 {
		want = want[:15]
	}

	var pids []int

	for _, e := range entries {
		pid, err := strconv.Atoi(e.Name())
		if err != nil || pid <= 0 {
			continue
		}

		comm, err := os.ReadFile(filepath.Join(procRoot, e.Name(), "comm"))
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) || errors.Is(err, fs.ErrPermission) {
				continue
			}

			return nil, fmt.Errorf("supervisor: reading comm for pid %d: %w", pid, err)
		}

		if strings.TrimSpace(string(comm)) == want {
			pids = append(pids, pid)
		}
	}

	return pids, nil
}

// alive reports whether procRoot still has an entry for pid.
func alive(procRoot string, pid int) bool {
	_, err := os.Stat(filepath.Join(procRoot, strconv.Itoa(pid)))
	return err == nil
}
