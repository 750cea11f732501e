package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/maidastach/guardian/internal/uploader"
)

// Job names.
const (
	JobHeartbeat = "heartbeat"
	JobCleanup   = "cleanup"
	JobUpload    = "upload"
)

const markerTimeLayout = "2006-01-02 15:04:05 MST"

// Uploader is the reconciler surface the jobs use. Satisfied by *uploader.Reconciler.
type Uploader interface {
	UploadMissing(ctx context.Context) ([]uploader.Outcome, error)
	UploadOne(ctx context.Context, path string) (string, error)
	Clean(ctx context.Context) (uploader.CleanupSummary, error)
}

// Timing is the due time and interval of one job.
type Timing struct {
	Due      time.Duration
	Interval time.Duration
}

// Options configures the standard job set.
type Options struct {
	Heartbeat       Timing
	Cleanup         Timing
	Upload          Timing
	HeartbeatMarker string
	StoppedMarker   string
	// Location is the time zone for marker timestamps. Nil means local time.
	Location *time.Location
}

// Jobs builds the heartbeat, cleanup, and upload sweep jobs.
func Jobs(u Uploader, opts Options, logger *slog.Logger) []Job {
	if logger == nil {
		logger = slog.Default()
	}

	return []Job{
		{
			Name:     JobHeartbeat,
			Due:      opts.Heartbeat.Due,
			Interval: opts.Heartbeat.Interval,
			Run: func(ctx context.Context) error {
				return writeAndUpload(ctx, u, opts.HeartbeatMarker, opts.Location)
			},
		},
		{
			Name:     JobCleanup,
			Due:      opts.Cleanup.Due,
			Interval: opts.Cleanup.Interval,
			Run: func(ctx context.Context) error {
				summary, err := u.Clean(ctx)
				logger.Info("remote cleanup finished",
					slog.Int("total", summary.Total),
					slog.Int("deleted", summary.DeletedCount),
					slog.Bool("trashed", summary.Trashed),
				)

				return err
			},
		},
		{
			Name:     JobUpload,
			Due:      opts.Upload.Due,
			Interval: opts.Upload.Interval,
			Run: func(ctx context.Context) error {
				outcomes, err := u.UploadMissing(ctx)
				logger.Info("upload sweep finished", slog.Int("attempted", len(outcomes)))

				return err
			},
		},
	}
}

// Shutdown runs the stop sequence: write the stopped marker, clean the
// remote, then upload the marker. It is bounded by timeout and keeps going
// past failed steps; every failure is returned joined.
func Shutdown(ctx context.Context, u Uploader, opts Options, timeout time.Duration, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)

		defer cancel()
	}

	logger.Info("running shutdown sequence", slog.Duration("timeout", timeout))

	var errs []error

	markerWritten := true
	if err := writeMarker(opts.StoppedMarker, opts.Location); err != nil {
		errs = append(errs, err)
		markerWritten = false
	}

	if _, err := u.Clean(ctx); err != nil {
		errs = append(errs, fmt.Errorf("scheduler: final cleanup: %w", err))
	}

	if markerWritten {
		if _, err := u.UploadOne(ctx, opts.StoppedMarker); err != nil {
			errs = append(errs, fmt.Errorf("scheduler: uploading stopped marker: %w", err))
		}
	}

	err := errors.Join(errs...)
	if err != nil {
		logger.Error("shutdown sequence finished with errors", slog.String("error", err.Error()))
	} else {
		logger.Info("shutdown sequence finished")
	}

	return err
}

func writeAndUpload(ctx context.Context, u Uploader, path string, loc *time.Location) error {
	if err := writeMarker(path, loc); err != nil {
		return err
	}

	if _, err := u.UploadOne(ctx, path); err != nil {
		return fmt.Errorf("scheduler: uploading %s: %w", path, err)
	}

	return nil
}

// writeMarker writes the current time to path.
func writeMarker(path string, loc *time.Location) error {
	if path == "" {
		return errors.New("scheduler: marker path not configured")
	}

	if loc == nil {
		loc = time.Local
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("scheduler: creating marker directory: %w", err)
	}

	stamp := time.Now().In(loc).Format(markerTimeLayout) + "\n"
	if err := os.WriteFile(path, []byte(stamp), 0o644); err != nil { //nolint:gosec // marker is meant to be world readable
		return fmt.Errorf("scheduler: writing marker %s: %w", path, err)
	}

	return nil
}
