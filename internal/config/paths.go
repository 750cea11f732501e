package config

import (
	"os"
	"path/filepath"
)

// Application directory name used under the XDG base directories.
const appName = "guardian"

// File names inside the config and state directories.
const (
	configFileName = "config.toml"
	ledgerFileName = "ledger.db"
	pidFileName    = "guardian.pid"
)

// DefaultConfigDir returns the directory for config files, respecting
// XDG_CONFIG_HOME (defaults to ~/.config/guardian).
func DefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".config", appName)
}

// DefaultDataDir returns the directory for the ledger database and PID
// file, respecting XDG_DATA_HOME (defaults to ~/.local/share/guardian).
func DefaultDataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, appName)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, ".local", "share", appName)
}

// DefaultConfigPath returns the full path to the default config file.
// This is the fallback when neither GUARDIAN_CONFIG nor --config is given.
func DefaultConfigPath() string {
	dir := DefaultConfigDir()
	if dir == "" {
		return ""
	}

	return filepath.Join(dir, configFileName)
}

// LedgerPath returns the SQLite ledger path inside stateDir.
func LedgerPath(stateDir string) string {
	return filepath.Join(stateDir, ledgerFileName)
}

// PIDPath returns the daemon PID file path inside stateDir.
func PIDPath(stateDir string) string {
	return filepath.Join(stateDir, pidFileName)
}
