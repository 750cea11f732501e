package config

// Default values for configuration options. These are layer 0 of the
// override chain and match a stock Raspberry Pi capture box.
const (
	defaultTimeZone          = "Local"
	defaultShutdownTimeout   = "30s"
	defaultDrive             = "/dev/sda1"
	defaultMount             = "/mnt/guardian"
	defaultMonitor           = "/mnt/guardian/motion"
	defaultUploaded          = "/mnt/guardian/uploaded"
	defaultHeartbeatMarker   = "/mnt/guardian/am-i-online.txt"
	defaultStoppedMarker     = "/mnt/guardian/app-stopped.txt"
	defaultPollInterval      = "30s"
	defaultStableFor         = "60s"
	defaultHeartbeatDue      = 0.01
	defaultHeartbeatInterval = 1
	defaultCleanupDue        = 1
	defaultCleanupInterval   = 24
	defaultUploadDue         = 0.5
	defaultUploadInterval    = 6
	defaultDaemonName        = "motion"
	defaultDaemonCommand     = "motion"
	defaultStopTimeout       = "10s"
	defaultElevateWith       = "sudo"
	defaultShell             = "/bin/sh"
	defaultFolderName        = "Guardian"
	defaultFolderMimeType    = "application/vnd.google-apps.folder"
	defaultFileMimeType      = "video/x-msvideo"
	defaultRequestTimeout    = "10m"
	defaultMissingFilePolicy = PolicyMarkDeleted
	defaultLogLevel          = "info"
	defaultLogFormat         = "auto"
)

// Missing file policies accepted by [drive] missing_file_policy.
const (
	PolicyMarkDeleted = "mark_deleted"
	PolicyKeepPending = "keep_pending"
)

// DefaultConfig returns a Config populated with all default values.
// This is both the starting point for TOML decoding (so unset fields keep
// their defaults) and the fallback when no config file exists.
func DefaultConfig() *Config {
	return &Config{
		TimeZone:        defaultTimeZone,
		ShutdownTimeout: defaultShutdownTimeout,
		Paths: PathsConfig{
			Drive:           defaultDrive,
			Mount:           defaultMount,
			Monitor:         defaultMonitor,
			Uploaded:        defaultUploaded,
			HeartbeatMarker: defaultHeartbeatMarker,
			StoppedMarker:   defaultStoppedMarker,
		},
		Stability: StabilityConfig{
			PollInterval: defaultPollInterval,
			StableFor:    defaultStableFor,
		},
		Tasks: TasksConfig{
			Heartbeat: TaskConfig{DueHours: defaultHeartbeatDue, IntervalHours: defaultHeartbeatInterval},
			Cleanup:   TaskConfig{DueHours: defaultCleanupDue, IntervalHours: defaultCleanupInterval},
			Upload:    TaskConfig{DueHours: defaultUploadDue, IntervalHours: defaultUploadInterval},
		},
		Daemon: DaemonConfig{
			Name:        defaultDaemonName,
			Command:     defaultDaemonCommand,
			MountFirst:  true,
			StopTimeout: defaultStopTimeout,
		},
		Command: CommandConfig{
			ElevateWith: defaultElevateWith,
			Shell:       defaultShell,
		},
		Drive: DriveConfig{
			FolderName:        defaultFolderName,
			FolderMimeType:    defaultFolderMimeType,
			DefaultMimeType:   defaultFileMimeType,
			RequestTimeout:    defaultRequestTimeout,
			MissingFilePolicy: defaultMissingFilePolicy,
		},
		Logging: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
	}
}
