// Package stability decides when a newly created file has finished being
// written. Each file is polled independently; once its size has not changed
// for the stability window it is handed to ingestion.
package stability

import (
	"context"
	"errors"
	"io/fs"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Defaults for the poll loop.
const (
	DefaultPollInterval = 30 * time.Second
	DefaultStableFor    = 60 * time.Second
)

// Outcome is the terminal state of a single check.
type Outcome int

const (
	// OutcomeStable means the file was handed to ingestion.
	OutcomeStable Outcome = iota
	// OutcomeVanished means the file disappeared before it stabilized.
	OutcomeVanished
	// OutcomeError means reading the file size failed.
	OutcomeError
	// OutcomeCanceled means the detector was shut down mid-check.
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeStable:
		return "stable"
	case OutcomeVanished:
		return "vanished"
	case OutcomeError:
		return "error"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Ingester receives files once they are stable.
type Ingester interface {
	Ingest(ctx context.Context, path string) error
}

// Detector runs one polling loop per dispatched file.
type Detector struct {
	interval time.Duration
	window   time.Duration
	ingester Ingester
	logger   *slog.Logger

	nowFunc   func() time.Time
	sleepFunc func(ctx context.Context, d time.Duration) error
	statFunc  func(name string) (fs.FileInfo, error)

	ctx context.Context
	wg  sync.WaitGroup
}

// NewDetector creates a Detector. Checks started with Dispatch are bound to
// ctx; canceling it ends them with OutcomeCanceled.
func NewDetector(ctx context.Context, interval, window time.Duration, ingester Ingester, logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}

	if interval <= 0 {
		interval = DefaultPollInterval
	}

	if window <= 0 {
		window = DefaultStableFor
	}

	return &Detector{
		interval:  interval,
		window:    window,
		ingester:  ingester,
		logger:    logger,
		nowFunc:   time.Now,
		sleepFunc: timeSleep,
		statFunc:  os.Stat,
		ctx:       ctx,
	}
}

// Dispatch starts an independent check for path and returns immediately.
func (d *Detector) Dispatch(path string) {
	d.wg.Add(1)

	go func() {
		defer d.wg.Done()
		d.Check(d.ctx, path)
	}()
}

// Wait blocks until every dispatched check has finished.
func (d *Detector) Wait() {
	d.wg.Wait()
}

// Check polls path until it is stable, vanishes, fails, or ctx is canceled.
func (d *Detector) Check(ctx context.Context, path string) Outcome {
	logger := d.logger.With(slog.String("path", path))

	var lastSize int64 = -1

	lastChange := d.nowFunc()

	for {
		if err := d.sleepFunc(ctx, d.interval); err != nil {
			logger.Warn("stability check canceled", slog.String("error", err.Error()))
			return OutcomeCanceled
		}

		info, err := d.statFunc(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				logger.Warn("file vanished before it became stable")
				return OutcomeVanished
			}

			logger.Error("reading file size failed", slog.String("error", err.Error()))

			return OutcomeError
		}

		now := d.nowFunc()

		if size := info.Size(); size != lastSize {
			lastSize = size
			lastChange = now

			continue
		}

		if now.Sub(lastChange) > d.window {
			logger.Info("file is stable",
				slog.Int64("size", lastSize),
				slog.Duration("unchanged_for", now.Sub(lastChange)),
			)

			if err := d.ingester.Ingest(ctx, path); err != nil {
				logger.Error("ingesting stable file failed", slog.String("error", err.Error()))
			}

			return OutcomeStable
		}
	}
}

// timeSleep waits for the specified duration or until the context is canceled.
func timeSleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
