package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/maidastach/guardian/internal/config"
)

// version is set at build time via ldflags.
var version = "dev"

// logFilePermissions leaves the log readable by the operator's tools.
const logFilePermissions = 0o644

// CLIFlags holds the global persistent flags.
type CLIFlags struct {
	ConfigPath string
	LogLevel   string
	JSON       bool
	Verbose    bool
	Quiet      bool
}

// CLIContext is built once by the root pre-run and shared by every
// subcommand through the command context.
type CLIContext struct {
	Flags  CLIFlags
	Cfg    *config.Resolved
	Logger *slog.Logger
	Stdout io.Writer

	closeLog func() error
}

type cliContextKey struct{}

// withCLIContext stores cc on ctx.
func withCLIContext(ctx context.Context, cc *CLIContext) context.Context {
	return context.WithValue(ctx, cliContextKey{}, cc)
}

// cliContextFrom returns the CLIContext stored on ctx, or nil.
func cliContextFrom(ctx context.Context) *CLIContext {
	cc, _ := ctx.Value(cliContextKey{}).(*CLIContext)
	return cc
}

// mustCLIContext returns the CLIContext or panics. Every subcommand runs
// after the root pre-run, so a missing context is a programming error.
func mustCLIContext(ctx context.Context) *CLIContext {
	cc := cliContextFrom(ctx)
	if cc == nil {
		panic("guardian: CLIContext missing from command context")
	}

	return cc
}

// newRootCmd builds and returns the fully-assembled root command with all
// subcommands registered. Called once from main().
func newRootCmd() *cobra.Command {
	var flags CLIFlags

	cmd := &cobra.Command{
		Use:   "guardian",
		Short: "Capture volume guardian",
		Long: `Watches a capture directory, waits for new recordings to stop growing,
records them in a local ledger and uploads them to Google Drive. Also
supervises the capture volume mount and the capture daemon.`,
		Version: version,
		// Errors are printed once by main, without usage noise.
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return loadConfig(cmd, flags)
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if cc := cliContextFrom(cmd.Context()); cc != nil && cc.closeLog != nil {
				return cc.closeLog()
			}

			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "config file path")
	cmd.PersistentFlags().StringVar(&flags.LogLevel, "log-level", "", "log level (debug, info, warn, error)")
	cmd.PersistentFlags().BoolVar(&flags.JSON, "json", false, "output in JSON format")
	cmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "enable debug logging")
	cmd.PersistentFlags().BoolVarP(&flags.Quiet, "quiet", "q", false, "suppress informational output")

	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newUploadCmd())
	cmd.AddCommand(newSweepCmd())
	cmd.AddCommand(newCleanCmd())
	cmd.AddCommand(newMountCmd())
	cmd.AddCommand(newUnmountCmd())
	cmd.AddCommand(newRecordsCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd())

	return cmd
}

// loadConfig resolves the effective configuration from the four-layer
// override chain, builds the logger, and stores both on the command context.
func loadConfig(cmd *cobra.Command, flags CLIFlags) error {
	cli := config.CLIOverrides{ConfigPath: flags.ConfigPath}

	if cmd.Flags().Changed("log-level") {
		cli.LogLevel = &flags.LogLevel
	}

	// Only the run command defines --watch.
	if f := cmd.Flags().Lookup("watch"); f != nil && f.Changed {
		watch := f.Value.String()
		cli.WatchDir = &watch
	}

	resolved, err := config.Resolve(config.ReadEnvOverrides(), cli)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, closeLog, err := buildLogger(&resolved.Logging, flags, os.Stderr)
	if err != nil {
		return err
	}

	logger.Debug("config resolved",
		slog.String("config_path", resolved.ConfigPath),
		slog.String("state_dir", resolved.Paths.StateDir),
	)

	cc := &CLIContext{
		Flags:    flags,
		Cfg:      resolved,
		Logger:   logger,
		Stdout:   cmd.OutOrStdout(),
		closeLog: closeLog,
	}

	cmd.SetContext(withCLIContext(cmd.Context(), cc))

	return nil
}

// buildLogger creates an slog.Logger configured by the resolved config and
// CLI flags. The config log level is the baseline; --verbose and --quiet
// override it. With log_file set, logs go to that file instead of stderr.
// The returned close function releases the log file, if any.
func buildLogger(cfg *config.LoggingConfig, flags CLIFlags, stderr *os.File) (*slog.Logger, func() error, error) {
	level := parseLevel(cfg.LogLevel)

	if flags.Verbose {
		level = slog.LevelDebug
	}

	if flags.Quiet {
		level = slog.LevelError
	}

	out := stderr
	closeLog := func() error { return nil }

	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, logFilePermissions)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file %s: %w", cfg.LogFile, err)
		}

		out = f
		closeLog = f.Close
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if useJSONLogs(cfg.LogFormat, out) {
		handler = slog.NewJSONHandler(out, opts)
	} else {
		handler = slog.NewTextHandler(out, opts)
	}

	return slog.New(handler), closeLog, nil
}

func parseLevel(s string) slog.Level {
	switch s {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// useJSONLogs resolves log_format. "auto" means text on a terminal and JSON
// everywhere else (journald, files, pipes).
func useJSONLogs(format string, out *os.File) bool {
	switch format {
	case "json":
		return true
	case "text":
		return false
	default:
		fd := out.Fd()
		return !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd)
	}
}
