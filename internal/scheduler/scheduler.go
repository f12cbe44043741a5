package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"fuel-watchtower/internal/logging"
)

// TickFunc is one poll iteration.
type TickFunc func(ctx context.Context)

// Options tune scheduler behaviour.
type Options struct {
	Name     string
	Interval time.Duration
}

// Scheduler runs a poll iteration, then sleeps for the full interval, until
// ctx is canceled. Iterations never overlap.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{
		opts:   opts,
		logger: logging.Component(logger, "scheduler").With().Str("loop", opts.Name).Logger(),
	}
}

// Run blocks, invoking tick once per interval until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	for {
		started := time.Now()
		tick(ctx)
		s.logger.Debug().Dur("took", time.Since(started)).Msg("poll iteration finished")

		if err := sleep(ctx, s.opts.Interval); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
