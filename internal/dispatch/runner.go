package dispatch

import (
	"context"
	"time"

	"leadflow_backend/platform/logger"
)

const defaultSweepInterval = time.Minute

// Runner triggers a sweep on every tick. A tick that finds the lease held
// is skipped, never queued.
type Runner struct {
	sweeper  *Sweeper
	interval time.Duration
	log      *logger.Logger
	now      func() time.Time
}

// NewRunner creates a Runner.
func NewRunner(sweeper *Sweeper, interval time.Duration, log *logger.Logger) *Runner {
	if interval <= 0 {
		interval = defaultSweepInterval
	}
	if log == nil {
		log = logger.Discard()
	}
	return &Runner{
		sweeper:  sweeper,
		interval: interval,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Run sweeps until ctx is cancelled.
func (r *Runner) Run(ctx context.Context) {
	if r == nil || r.sweeper == nil {
		return
	}

	r.tick(ctx)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

func (r *Runner) tick(ctx context.Context) {
	if _, err := r.sweeper.RunSweep(ctx, r.now()); err != nil && ctx.Err() == nil {
		r.log.Warn("dispatch sweep failed", "error", err)
	}
}
