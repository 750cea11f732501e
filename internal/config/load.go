package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// Load reads and parses a TOML config file, validates it, and returns the
// resulting Config. Unknown keys are fatal errors with "did you mean?"
// suggestions.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}

	if err := checkUnknownKeys(&md); err != nil {
		return nil, err
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault reads a TOML config file if it exists, otherwise returns
// a Config populated with all default values.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return DefaultConfig(), nil
	}

	return Load(path)
}

// Resolved is the effective configuration after the override chain, with
// durations, schedules, and the time zone parsed into their typed forms.
type Resolved struct {
	ConfigPath      string
	TimeZone        string
	Location        *time.Location `json:"-"`
	ShutdownTimeout time.Duration
	Paths           PathsConfig
	PollInterval    time.Duration
	StableFor       time.Duration
	Heartbeat       Schedule
	Cleanup         Schedule
	Upload          Schedule
	Daemon          ResolvedDaemon
	Command         CommandConfig
	Drive           ResolvedDrive
	Logging         LoggingConfig
}

// Schedule is a parsed TaskConfig.
type Schedule struct {
	Due      time.Duration
	Interval time.Duration
}

// ResolvedDaemon is a parsed DaemonConfig.
type ResolvedDaemon struct {
	Name        string
	Command     string
	MountFirst  bool
	StopTimeout time.Duration
}

// ResolvedDrive is a parsed DriveConfig.
type ResolvedDrive struct {
	CredentialsFile   string
	FolderName        string
	FolderMimeType    string
	DefaultMimeType   string
	RequestTimeout    time.Duration
	MissingFilePolicy string
}

// LedgerPath returns the ledger database path for the resolved state dir.
func (r *Resolved) LedgerPath() string {
	return LedgerPath(r.Paths.StateDir)
}

// PIDPath returns the PID file path for the resolved state dir.
func (r *Resolved) PIDPath() string {
	return PIDPath(r.Paths.StateDir)
}

// Resolve loads configuration and applies the four-layer override chain:
// defaults -> config file -> environment variables -> CLI flags.
func Resolve(env EnvOverrides, cli CLIOverrides) (*Resolved, error) {
	// Config path: CLI > env > default.
	cfgPath := DefaultConfigPath()
	if env.ConfigPath != "" {
		cfgPath = env.ConfigPath
	}

	if cli.ConfigPath != "" {
		cfgPath = cli.ConfigPath
	}

	cfg, err := LoadOrDefault(cfgPath)
	if err != nil {
		return nil, err
	}

	if cfg.Paths.StateDir == "" {
		cfg.Paths.StateDir = DefaultDataDir()
	}

	if env.StateDir != "" {
		cfg.Paths.StateDir = env.StateDir
	}

	if env.WatchDir != "" {
		cfg.Paths.Monitor = env.WatchDir
	}

	if cli.WatchDir != nil {
		cfg.Paths.Monitor = *cli.WatchDir
	}

	if cli.LogLevel != nil {
		if errs := validateLogLevel(*cli.LogLevel); len(errs) > 0 {
			return nil, errors.Join(errs...)
		}

		cfg.Logging.LogLevel = *cli.LogLevel
	}

	resolved, err := resolve(cfg)
	if err != nil {
		return nil, err
	}

	resolved.ConfigPath = cfgPath

	if err := ValidateResolved(resolved); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return resolved, nil
}

// resolve converts a validated Config into its typed form.
func resolve(cfg *Config) (*Resolved, error) {
	loc, err := loadLocation(cfg.TimeZone)
	if err != nil {
		return nil, fmt.Errorf("time_zone: %w", err)
	}

	// Validate has already accepted every duration string.
	mustDuration := func(s string) time.Duration {
		d, _ := time.ParseDuration(s)
		return d
	}

	return &Resolved{
		TimeZone:        loc.String(),
		Location:        loc,
		ShutdownTimeout: mustDuration(cfg.ShutdownTimeout),
		Paths:           cfg.Paths,
		PollInterval:    mustDuration(cfg.Stability.PollInterval),
		StableFor:       mustDuration(cfg.Stability.StableFor),
		Heartbeat:       cfg.Tasks.Heartbeat.schedule(),
		Cleanup:         cfg.Tasks.Cleanup.schedule(),
		Upload:          cfg.Tasks.Upload.schedule(),
		Daemon: ResolvedDaemon{
			Name:        cfg.Daemon.Name,
			Command:     cfg.Daemon.Command,
			MountFirst:  cfg.Daemon.MountFirst,
			StopTimeout: mustDuration(cfg.Daemon.StopTimeout),
		},
		Command: cfg.Command,
		Drive: ResolvedDrive{
			CredentialsFile:   cfg.Drive.CredentialsFile,
			FolderName:        cfg.Drive.FolderName,
			FolderMimeType:    cfg.Drive.FolderMimeType,
			DefaultMimeType:   cfg.Drive.DefaultMimeType,
			RequestTimeout:    mustDuration(cfg.Drive.RequestTimeout),
			MissingFilePolicy: cfg.Drive.MissingFilePolicy,
		},
		Logging: cfg.Logging,
	}, nil
}

func (t TaskConfig) schedule() Schedule {
	return Schedule{
		Due:      hours(t.DueHours),
		Interval: hours(t.IntervalHours),
	}
}

func hours(h float64) time.Duration {
	return time.Duration(h * float64(time.Hour))
}

// loadLocation maps "Local" and "" to the host zone and everything else
// to the IANA database.
func loadLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}

	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown time zone %q: %w", name, err)
	}

	return loc, nil
}
