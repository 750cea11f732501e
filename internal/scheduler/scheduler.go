// Package scheduler runs guardian's periodic jobs (heartbeat, remote
// cleanup, upload sweep) and the ordered shutdown sequence.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"

	"golang.org/x/sync/errgroup"
)

// Job is a periodic task. Run first fires after Due and then every
// Interval. A job never overlaps itself.
type Job struct {
	Name     string
	Due      time.Duration
	Interval time.Duration
	Run      func(ctx context.Context) error
}

// Scheduler runs a fixed set of jobs until its context is canceled.
type Scheduler struct {
	jobs     []Job
	triggers map[string]chan struct{}
	logger   *slog.Logger
}

// New creates a Scheduler for jobs. Job names must be unique.
func New(logger *slog.Logger, jobs ...Job) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}

	triggers := make(map[string]chan struct{}, len(jobs))
	for _, j := range jobs {
		triggers[j.Name] = make(chan struct{}, 1)
	}

	return &Scheduler{jobs: jobs, triggers: triggers, logger: logger}
}

// Trigger asks the named job to run as soon as it is idle. Repeated triggers
// while one is pending collapse into a single run. Unknown names are
// ignored and reported as false.
func (s *Scheduler) Trigger(name string) bool {
	ch, ok := s.triggers[name]
	if !ok {
		return false
	}

	select {
	case ch <- struct{}{}:
	default:
	}

	return true
}

// Run blocks until ctx is canceled. Job failures are logged and never stop
// the scheduler.
func (s *Scheduler) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	for _, j := range s.jobs {
		g.Go(func() error {
			s.loop(gctx, j)
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("scheduler: %w", err)
	}

	return nil
}

func (s *Scheduler) loop(ctx context.Context, j Job) {
	s.logger.Info("job scheduled",
		slog.String("job", j.Name),
		slog.Duration("due", j.Due),
		slog.Duration("interval", j.Interval),
	)

	timer := time.NewTimer(j.Due)
	defer timer.Stop()

	trigger := s.triggers[j.Name]

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			s.runOnce(ctx, j)
			timer.Reset(j.Interval)
		case <-trigger:
			s.runOnce(ctx, j)
		}
	}
}

// runOnce executes a job, converting a panic into a logged error.
func (s *Scheduler) runOnce(ctx context.Context, j Job) {
	start := time.Now()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("job panicked",
				slog.String("job", j.Name),
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
	}()

	if err := j.Run(ctx); err != nil {
		s.logger.Error("job failed",
			slog.String("job", j.Name),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()),
		)

		return
	}

	s.logger.Debug("job finished",
		slog.String("job", j.Name),
		slog.Duration("elapsed", time.Since(start)),
	)
}
