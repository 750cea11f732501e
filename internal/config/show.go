package config

import (
	"fmt"
	"io"
)

// RenderEffective writes the resolved configuration as an annotated
// TOML-like summary to w. This powers "guardian config show".
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	ew.printf("# Effective configuration (file: %s)\n\n", r.ConfigPath)
	ew.printf("time_zone        = %q\n", r.Location.String())
	ew.printf("shutdown_timeout = %q\n\n", r.ShutdownTimeout.String())

	ew.printf("[paths]\n")
	ew.printf("  drive            = %q\n", r.Paths.Drive)
	ew.printf("  mount            = %q\n", r.Paths.Mount)
	ew.printf("  monitor          = %q\n", r.Paths.Monitor)
	ew.printf("  uploaded         = %q\n", r.Paths.Uploaded)
	ew.printf("  heartbeat_marker = %q\n", r.Paths.HeartbeatMarker)
	ew.printf("  stopped_marker   = %q\n", r.Paths.StoppedMarker)
	ew.printf("  state_dir        = %q\n\n", r.Paths.StateDir)

	ew.printf("[stability]\n")
	ew.printf("  poll_interval = %q\n", r.PollInterval.String())
	ew.printf("  stable_for    = %q\n\n", r.StableFor.String())

	renderSchedule(ew, "heartbeat", r.Heartbeat)
	renderSchedule(ew, "cleanup", r.Cleanup)
	renderSchedule(ew, "upload", r.Upload)

	ew.printf("[daemon]\n")
	ew.printf("  name         = %q\n", r.Daemon.Name)
	ew.printf("  command      = %q\n", r.Daemon.Command)
	ew.printf("  mount_first  = %t\n", r.Daemon.MountFirst)
	ew.printf("  stop_timeout = %q\n\n", r.Daemon.StopTimeout.String())

	ew.printf("[command]\n")
	ew.printf("  elevate_with = %q\n", r.Command.ElevateWith)
	ew.printf("  shell        = %q\n\n", r.Command.Shell)

	ew.printf("[drive]\n")
	ew.printf("  credentials_file    = %q\n", r.Drive.CredentialsFile)
	ew.printf("  folder_name         = %q\n", r.Drive.FolderName)
	ew.printf("  folder_mime_type    = %q\n", r.Drive.FolderMimeType)
	ew.printf("  default_mime_type   = %q\n", r.Drive.DefaultMimeType)
	ew.printf("  request_timeout     = %q\n", r.Drive.RequestTimeout.String())
	ew.printf("  missing_file_policy = %q\n\n", r.Drive.MissingFilePolicy)

	ew.printf("[logging]\n")
	ew.printf("  log_level  = %q\n", r.Logging.LogLevel)
	ew.printf("  log_format = %q\n", r.Logging.LogFormat)
	ew.printf("  log_file   = %q\n", r.Logging.LogFile)

	return ew.err
}

func renderSchedule(ew *errWriter, name string, s Schedule) {
	ew.printf("[tasks.%s]\n", name)
	ew.printf("  due_hours      = %g\n", s.Due.Hours())
	ew.printf("  interval_hours = %g\n\n", s.Interval.Hours())
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}
