package main

import (
	"context"
	"errors"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/maidastach/guardian/internal/mount"
	"github.com/maidastach/guardian/internal/scheduler"
	"github.com/maidastach/guardian/internal/stability"
	"github.com/maidastach/guardian/internal/supervisor"
	"github.com/maidastach/guardian/internal/watch"
)

// runOptions are the run command's own flags.
type runOptions struct {
	noMount  bool
	noDaemon bool
	unmount  bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the guardian daemon",
		Long: `Mount the capture volume, watch the capture directory, start the capture
daemon, and run the periodic heartbeat, cleanup, and upload jobs until
interrupted. SIGHUP triggers an immediate upload sweep.

Stop order: capture daemon, watchers, optional unmount, in-flight stability
checks, final cleanup and stopped marker, ledger.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runDaemon(cmd.Context(), mustCLIContext(cmd.Context()), opts)
		},
	}

	cmd.Flags().String("watch", "", "capture directory to watch (overrides paths.monitor)")
	cmd.Flags().BoolVar(&opts.noMount, "no-mount", false, "do not mount the capture volume")
	cmd.Flags().BoolVar(&opts.noDaemon, "no-daemon", false, "do not start the capture daemon")
	cmd.Flags().BoolVar(&opts.unmount, "unmount", false, "unmount the capture volume on exit")

	return cmd
}

func runDaemon(parent context.Context, cc *CLIContext, opts runOptions) error {
	logger := cc.Logger

	cleanupPID, err := writePIDFile(cc.Cfg.PIDPath())
	if err != nil {
		return err
	}
	defer cleanupPID()

	ctx := shutdownContext(parent, logger)

	// Everything after the first signal runs on a context that outlives it.
	stopCtx := context.WithoutCancel(parent)

	p, err := openPipeline(ctx, cc)
	if err != nil {
		return err
	}

	defer func() {
		if closeErr := p.Close(); closeErr != nil {
			logger.Warn("closing ledger", slog.String("error", closeErr.Error()))
		}
	}()

	mounter := newMountController(cc, p.runner)

	if !opts.noMount {
		if err := mounter.Mount(ctx); err != nil {
			return err
		}
	}

	for _, d := range pipelineDirectories(cc) {
		if !d.Passed {
			logger.Warn("directory check failed",
				slog.String("dir", d.Name),
				slog.String("path", d.Path),
				slog.String("detail", d.Detail),
			)
		}
	}

	detector := stability.NewDetector(ctx, cc.Cfg.PollInterval, cc.Cfg.StableFor, p.reconciler, logger)
	registry := watch.NewRegistry(cc.Cfg.Paths.Monitor, detector, logger)

	summary, err := registry.Watch("")
	if err != nil {
		return err
	}

	cc.Statusf("%s\n", summary)

	var sup *supervisor.Supervisor

	if !opts.noDaemon {
		sup = newSupervisor(cc, p.runner, mounter)

		st, startErr := sup.Start(ctx, cc.Cfg.Daemon.MountFirst && !opts.noMount)
		if startErr != nil {
			// Uploads keep working without the capture daemon.
			logger.Error("capture daemon did not start", slog.String("error", startErr.Error()))
		} else {
			cc.Statusf("Started %s (PID %d)\n", st.Name, st.PID)
		}
	}

	schedOpts := schedulerOptions(cc)
	sched := scheduler.New(logger, scheduler.Jobs(p.reconciler, schedOpts, logger)...)

	schedDone := make(chan error, 1)

	go func() { schedDone <- sched.Run(ctx) }()

	hup := sighupChannel(ctx)

	logger.Info("guardian running",
		slog.String("monitor", cc.Cfg.Paths.Monitor),
		slog.String("ledger", cc.Cfg.LedgerPath()),
	)

	for running := true; running; {
		select {
		case <-ctx.Done():
			running = false
		case <-hup:
			logger.Info("SIGHUP received, triggering upload sweep")
			sched.Trigger(scheduler.JobUpload)
		}
	}

	return stopDaemon(stopCtx, cc, opts, stopParts{
		supervisor: sup,
		registry:   registry,
		mounter:    mounter,
		detector:   detector,
		schedDone:  schedDone,
		pipeline:   p,
		schedOpts:  schedOpts,
	})
}

// stopParts carries what the stop sequence tears down.
type stopParts struct {
	supervisor *supervisor.Supervisor
	registry   *watch.Registry
	mounter    *mount.Controller
	detector   *stability.Detector
	schedDone  <-chan error
	pipeline   *pipeline
	schedOpts  scheduler.Options
}

// stopDaemon runs the stop sequence. Every step runs even when an earlier
// one failed; the failures are returned joined.
func stopDaemon(ctx context.Context, cc *CLIContext, opts runOptions, parts stopParts) error {
	logger := cc.Logger

	var errs []error

	if parts.supervisor != nil && parts.supervisor.Status().NextAction == "Stop" {
		if _, err := parts.supervisor.Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	if err := parts.registry.Close(); err != nil {
		errs = append(errs, err)
	}

	if opts.unmount {
		if err := parts.mounter.Unmount(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	parts.detector.Wait()

	if err := <-parts.schedDone; err != nil {
		errs = append(errs, err)
	}

	if err := scheduler.Shutdown(ctx, parts.pipeline.reconciler, parts.schedOpts, cc.Cfg.ShutdownTimeout, logger); err != nil {
		errs = append(errs, err)
	}

	err := errors.Join(errs...)
	if err != nil {
		logger.Error("guardian stopped with errors", slog.String("error", err.Error()))
		return err
	}

	logger.Info("guardian stopped")

	return nil
}
