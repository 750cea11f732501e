package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
)

// maxLevenshteinDistance is the maximum edit distance for "did you mean?"
// suggestions when unknown config keys are detected.
const maxLevenshteinDistance = 3

// knownKeys maps each table ("" for the top level) to the keys it accepts.
var knownKeys = map[string][]string{
	"": {"time_zone", "shutdown_timeout"},
	"paths": {
		"drive", "mount", "monitor", "uploaded",
		"heartbeat_marker", "stopped_marker", "state_dir",
	},
	"stability":       {"poll_interval", "stable_for"},
	"tasks":           {"heartbeat", "cleanup", "upload"},
	"tasks.heartbeat": {"due_hours", "interval_hours"},
	"tasks.cleanup":   {"due_hours", "interval_hours"},
	"tasks.upload":    {"due_hours", "interval_hours"},
	"daemon":          {"name", "command", "mount_first", "stop_timeout"},
	"command":         {"elevate_with", "shell"},
	"drive": {
		"credentials_file", "folder_name", "folder_mime_type",
		"default_mime_type", "request_timeout", "missing_file_policy",
	},
	"logging": {"log_level", "log_format", "log_file"},
}

// topLevelNames lists the top-level keys together with table names, sorted
// for deterministic suggestions when two candidates tie.
var topLevelNames = func() []string {
	names := append([]string(nil), knownKeys[""]...)

	for table := range knownKeys {
		if table != "" && !strings.Contains(table, ".") {
			names = append(names, table)
		}
	}

	sort.Strings(names)

	return names
}()

// checkUnknownKeys inspects TOML metadata for undecoded keys and returns
// an error with "did you mean?" suggestions for each unknown key.
func checkUnknownKeys(md *toml.MetaData) error {
	var errs []error

	seen := make(map[string]bool)

	for _, key := range md.Undecoded() {
		err := unknownKeyError(key)

		// One error per unknown table, not one per key inside it.
		if seen[err.Error()] {
			continue
		}

		seen[err.Error()] = true
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// unknownKeyError builds the error for one undecoded key. The suggestion is
// drawn from the deepest table the key was found in.
func unknownKeyError(key toml.Key) error {
	table := ""

	for i, part := range key {
		candidates := knownKeys[table]
		if table == "" {
			candidates = topLevelNames
		}

		if !containsKey(candidates, part) {
			name := strings.Join(key[:i+1], ".")
			if suggestion := closestMatch(part, candidates); suggestion != "" {
				return fmt.Errorf("unknown config key %q, did you mean %q?", name, suggestion)
			}

			return fmt.Errorf("unknown config key %q", name)
		}

		if table == "" {
			table = part
		} else {
			table += "." + part
		}
	}

	return fmt.Errorf("unknown config key %q", key.String())
}

func containsKey(keys []string, key string) bool {
	for _, k := range keys {
		if k == key {
			return true
		}
	}

	return false
}

// closestMatch finds the closest known key by Levenshtein distance.
// Returns empty string if no match is within maxLevenshteinDistance.
func closestMatch(unknown string, known []string) string {
	best := ""
	bestDist := maxLevenshteinDistance + 1

	for _, k := range known {
		d := levenshtein(unknown, k)
		if d < bestDist {
			bestDist = d
			best = k
		}
	}

	if bestDist <= maxLevenshteinDistance {
		return best
	}

	return ""
}

// levenshtein computes the edit distance between two strings.
func levenshtein(a, b string) int {
	if a == "" {
		return len(b)
	}

	if b == "" {
		return len(a)
	}

	// Single-row optimization avoids allocating a full matrix.
	prev := make([]int, len(b)+1)
	curr := make([]int, len(b)+1)

	for j := range prev {
		prev[j] = j
	}

	for i := range len(a) {
		curr[0] = i + 1

		for j := range len(b) {
			cost := 1
			if a[i] == b[j] {
				cost = 0
			}

			curr[j+1] = min(curr[j]+1, prev[j+1]+1, prev[j]+cost)
		}

		prev, curr = curr, prev
	}

	return prev[len(b)]
}
