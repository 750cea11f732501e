package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig   = "GUARDIAN_CONFIG"
	EnvWatchDir = "GUARDIAN_WATCH_DIR"
	EnvStateDir = "GUARDIAN_STATE_DIR"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // GUARDIAN_CONFIG: override config file path
	WatchDir   string // GUARDIAN_WATCH_DIR: capture directory override
	StateDir   string // GUARDIAN_STATE_DIR: ledger and PID file directory
}

// ReadEnvOverrides reads environment variables and returns any overrides found.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		WatchDir:   os.Getenv(EnvWatchDir),
		StateDir:   os.Getenv(EnvStateDir),
	}
}
