package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Validation range constants.
const (
	minPollInterval    = 100 * time.Millisecond
	minStableFor       = time.Second
	minStopTimeout     = time.Second
	minShutdownTimeout = time.Second
	minRequestTimeout  = time.Second
)

// Validate checks all configuration values and returns all errors found.
// It accumulates every error rather than stopping at the first, so a
// complete report can be fixed in one pass.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateTimeZone(cfg.TimeZone)...)
	errs = append(errs, validateDurationMin("shutdown_timeout", cfg.ShutdownTimeout, minShutdownTimeout)...)
	errs = append(errs, validatePaths(&cfg.Paths)...)
	errs = append(errs, validateStability(&cfg.Stability)...)
	errs = append(errs, validateTasks(&cfg.Tasks)...)
	errs = append(errs, validateDaemon(&cfg.Daemon)...)
	errs = append(errs, validateCommand(&cfg.Command)...)
	errs = append(errs, validateDrive(&cfg.Drive)...)
	errs = append(errs, validateLogging(&cfg.Logging)...)

	return errors.Join(errs...)
}

// ValidateResolved checks constraints that only make sense after the
// override chain (defaults -> file -> env -> CLI) has been applied.
func ValidateResolved(r *Resolved) error {
	var errs []error

	if !filepath.IsAbs(r.Paths.Monitor) {
		errs = append(errs, fmt.Errorf("paths.monitor: must be absolute, got %q", r.Paths.Monitor))
	}

	if r.Paths.StateDir == "" {
		errs = append(errs, errors.New("paths.state_dir: could not determine a state directory"))
	} else if !filepath.IsAbs(r.Paths.StateDir) {
		errs = append(errs, fmt.Errorf("paths.state_dir: must be absolute, got %q", r.Paths.StateDir))
	}

	return errors.Join(errs...)
}

func validateTimeZone(tz string) []error {
	if _, err := loadLocation(tz); err != nil {
		return []error{fmt.Errorf("time_zone: %w", err)}
	}

	return nil
}

func validatePaths(p *PathsConfig) []error {
	var errs []error

	required := []struct {
		field string
		value string
	}{
		{"paths.drive", p.Drive},
		{"paths.mount", p.Mount},
		{"paths.monitor", p.Monitor},
		{"paths.uploaded", p.Uploaded},
		{"paths.heartbeat_marker", p.HeartbeatMarker},
		{"paths.stopped_marker", p.StoppedMarker},
	}

	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			errs = append(errs, fmt.Errorf("%s: must not be empty", r.field))
			continue
		}

		if r.field != "paths.drive" && !filepath.IsAbs(r.value) {
			errs = append(errs, fmt.Errorf("%s: must be absolute, got %q", r.field, r.value))
		}
	}

	if p.StateDir != "" && !filepath.IsAbs(p.StateDir) {
		errs = append(errs, fmt.Errorf("paths.state_dir: must be absolute, got %q", p.StateDir))
	}

	return errs
}

func validateStability(s *StabilityConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("stability.poll_interval", s.PollInterval, minPollInterval)...)
	errs = append(errs, validateDurationMin("stability.stable_for", s.StableFor, minStableFor)...)

	return errs
}

func validateTasks(t *TasksConfig) []error {
	var errs []error

	errs = append(errs, validateTask("tasks.heartbeat", t.Heartbeat)...)
	errs = append(errs, validateTask("tasks.cleanup", t.Cleanup)...)
	errs = append(errs, validateTask("tasks.upload", t.Upload)...)

	return errs
}

func validateTask(field string, t TaskConfig) []error {
	var errs []error

	if t.DueHours < 0 {
		errs = append(errs, fmt.Errorf("%s.due_hours: must be >= 0, got %g", field, t.DueHours))
	}

	if t.IntervalHours <= 0 {
		errs = append(errs, fmt.Errorf("%s.interval_hours: must be > 0, got %g", field, t.IntervalHours))
	}

	return errs
}

func validateDaemon(d *DaemonConfig) []error {
	var errs []error

	if strings.TrimSpace(d.Name) == "" {
		errs = append(errs, errors.New("daemon.name: must not be empty"))
	}

	if strings.TrimSpace(d.Command) == "" {
		errs = append(errs, errors.New("daemon.command: must not be empty"))
	}

	errs = append(errs, validateDurationMin("daemon.stop_timeout", d.StopTimeout, minStopTimeout)...)

	return errs
}

func validateCommand(c *CommandConfig) []error {
	var errs []error

	if strings.TrimSpace(c.ElevateWith) == "" {
		errs = append(errs, errors.New("command.elevate_with: must not be empty"))
	}

	if !filepath.IsAbs(c.Shell) {
		errs = append(errs, fmt.Errorf("command.shell: must be an absolute path, got %q", c.Shell))
	}

	return errs
}

var validMissingFilePolicies = map[string]bool{
	PolicyMarkDeleted: true,
	PolicyKeepPending: true,
}

func validateDrive(d *DriveConfig) []error {
	var errs []error

	if strings.TrimSpace(d.FolderName) == "" {
		errs = append(errs, errors.New("drive.folder_name: must not be empty"))
	}

	if !strings.Contains(d.FolderMimeType, "/") {
		errs = append(errs, fmt.Errorf("drive.folder_mime_type: invalid MIME type %q", d.FolderMimeType))
	}

	if !strings.Contains(d.DefaultMimeType, "/") {
		errs = append(errs, fmt.Errorf("drive.default_mime_type: invalid MIME type %q", d.DefaultMimeType))
	}

	errs = append(errs, validateDurationMin("drive.request_timeout", d.RequestTimeout, minRequestTimeout)...)

	if !validMissingFilePolicies[d.MissingFilePolicy] {
		errs = append(errs, fmt.Errorf("drive.missing_file_policy: must be one of %s, %s; got %q",
			PolicyMarkDeleted, PolicyKeepPending, d.MissingFilePolicy))
	}

	return errs
}

var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

func validateLogLevel(level string) []error {
	if !validLogLevels[level] {
		return []error{fmt.Errorf("logging.log_level: must be one of debug, info, warn, error; got %q", level)}
	}

	return nil
}

var validLogFormats = map[string]bool{
	"auto": true,
	"text": true,
	"json": true,
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	errs = append(errs, validateLogLevel(l.LogLevel)...)

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("logging.log_format: must be one of auto, text, json; got %q", l.LogFormat))
	}

	return errs
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be >= %s, got %s", field, minimum, d)}
	}

	return nil
}
