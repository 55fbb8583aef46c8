package scheduler

import (
	"context"
	"fmt"
	"time"

	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/hibiken/asynq"
)

// Periodic enqueues a dispatch sweep on a fixed interval. It replaces the
// in-process ticker when sweeps run on dedicated workers.
type Periodic struct {
	scheduler *asynq.Scheduler
	log       *logger.Logger
}

func NewPeriodic(cfg config.SchedulerConfig, interval time.Duration, log *logger.Logger) (*Periodic, error) {
	if cfg.GetRedisURL() == "" {
		return nil, fmt.Errorf("redis url not configured")
	}
	opt, err := redisClientOpt(cfg.GetRedisURL(), cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}
	if interval <= 0 {
		interval = time.Minute
	}

	s := asynq.NewScheduler(opt, &asynq.SchedulerOpts{Location: time.UTC})
	if _, err := s.Register(cronSpec(interval), NewDispatchSweepTask(),
		asynq.Queue(queueName(cfg)),
		asynq.Unique(interval),
		asynq.MaxRetry(0),
	); err != nil {
		return nil, fmt.Errorf("register sweep schedule: %w", err)
	}
	return &Periodic{scheduler: s, log: log}, nil
}

func (p *Periodic) Run(ctx context.Context) {
	if p == nil || p.scheduler == nil {
		return
	}
	if err := p.scheduler.Start(); err != nil {
		p.log.Error("sweep scheduler failed to start", "error", err)
		return
	}
	<-ctx.Done()
	p.scheduler.Shutdown()
}

func cronSpec(interval time.Duration) string {
	return "@every " + interval.String()
}
