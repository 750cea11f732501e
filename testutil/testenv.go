// Package testutil provides shared test environment helpers for E2E tests.
// It depends only on stdlib so that E2E tests (which cannot import
// internal/) can use it.
package testutil

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadDotEnv reads KEY=VALUE pairs from a .env file at the given path.
// Missing file is not an error (CI sets env vars directly).
// Existing env vars take precedence over .env values.
func LoadDotEnv(envPath string) {
	f, err := os.Open(envPath)
	if err != nil {
		return
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		value = strings.Trim(value, "\"'")

		// Env vars take precedence over .env file.
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}

// FindModuleRoot walks up from the current directory to find go.mod.
// Returns the fallback if the root is not found.
func FindModuleRoot(fallback string) string {
	dir, err := os.Getwd()
	if err != nil {
		return fallback
	}

	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return fallback
		}

		dir = parent
	}
}

// CredentialsFile returns the service account key named by envVar, or ""
// when the variable is unset. A set variable naming an unreadable file
// crashes the process because the run was misconfigured.
func CredentialsFile(envVar string) string {
	path := os.Getenv(envVar)
	if path == "" {
		return ""
	}

	if _, err := os.Stat(path); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: %s=%q: %v\n", envVar, path, err)
		os.Exit(1)
	}

	return path
}

// WriteConfig writes a guardian config file into dir and returns its path.
// Crashes on failure because tests cannot proceed without it.
func WriteConfig(dir, content string) string {
	path := filepath.Join(dir, "config.toml")

	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: writing %s: %v\n", path, err)
		os.Exit(1)
	}

	return path
}
