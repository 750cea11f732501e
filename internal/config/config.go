// Package config implements TOML configuration loading, validation, and
// path resolution for guardian. It supports a four-layer override chain
// (defaults -> config file -> environment -> CLI flags). Durations are
// written as Go duration strings ("30s", "10m") and task schedules as
// fractional hours.
package config

// Config is the top-level configuration structure parsed from a TOML file.
type Config struct {
	TimeZone        string          `toml:"time_zone"`
	ShutdownTimeout string          `toml:"shutdown_timeout"`
	Paths           PathsConfig     `toml:"paths"`
	Stability       StabilityConfig `toml:"stability"`
	Tasks           TasksConfig     `toml:"tasks"`
	Daemon          DaemonConfig    `toml:"daemon"`
	Command         CommandConfig   `toml:"command"`
	Drive           DriveConfig     `toml:"drive"`
	Logging         LoggingConfig   `toml:"logging"`
}

// PathsConfig locates the capture volume and everything guardian keeps on it.
type PathsConfig struct {
	Drive           string `toml:"drive"`
	Mount           string `toml:"mount"`
	Monitor         string `toml:"monitor"`
	Uploaded        string `toml:"uploaded"`
	HeartbeatMarker string `toml:"heartbeat_marker"`
	StoppedMarker   string `toml:"stopped_marker"`
	StateDir        string `toml:"state_dir"`
}

// StabilityConfig controls how long a new file must stop growing before it
// is ingested.
type StabilityConfig struct {
	PollInterval string `toml:"poll_interval"`
	StableFor    string `toml:"stable_for"`
}

// TaskConfig schedules one periodic job: first run after DueHours, then
// every IntervalHours.
type TaskConfig struct {
	DueHours      float64 `toml:"due_hours"`
	IntervalHours float64 `toml:"interval_hours"`
}

// TasksConfig groups the three periodic jobs.
type TasksConfig struct {
	Heartbeat TaskConfig `toml:"heartbeat"`
	Cleanup   TaskConfig `toml:"cleanup"`
	Upload    TaskConfig `toml:"upload"`
}

// DaemonConfig describes the supervised capture daemon.
type DaemonConfig struct {
	Name        string `toml:"name"`
	Command     string `toml:"command"`
	MountFirst  bool   `toml:"mount_first"`
	StopTimeout string `toml:"stop_timeout"`
}

// CommandConfig controls how OS commands are elevated and chained.
type CommandConfig struct {
	ElevateWith string `toml:"elevate_with"`
	Shell       string `toml:"shell"`
}

// DriveConfig configures the Google Drive remote.
type DriveConfig struct {
	CredentialsFile   string `toml:"credentials_file"`
	FolderName        string `toml:"folder_name"`
	FolderMimeType    string `toml:"folder_mime_type"`
	DefaultMimeType   string `toml:"default_mime_type"`
	RequestTimeout    string `toml:"request_timeout"`
	MissingFilePolicy string `toml:"missing_file_policy"`
}

// LoggingConfig controls log output: level, format, and destination.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
	LogFile   string `toml:"log_file"`
}

// CLIOverrides holds values from CLI flags that override config file and
// environment settings. Pointer fields distinguish "not specified" (nil)
// from "explicitly set to the zero value".
type CLIOverrides struct {
	ConfigPath string  // --config flag (empty = use default)
	WatchDir   *string // --watch flag
	LogLevel   *string // --log-level flag
}
