package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"leadflow_backend/internal/channel"
	"leadflow_backend/internal/dispatch"
	"leadflow_backend/internal/eventstream"
	"leadflow_backend/internal/followup"
	"leadflow_backend/internal/leads"
	"leadflow_backend/internal/metrics"
	"leadflow_backend/internal/notification"
	"leadflow_backend/internal/scheduler"
	"leadflow_backend/internal/textgen"
	"leadflow_backend/platform/ai/moonshot"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/db"
	"leadflow_backend/platform/events"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/phone"

	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting scheduler", "env", cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if err := withRetry(ctx, log, "database connection", 5, 2*time.Second, func() error {
		p, err := db.NewPool(ctx, cfg)
		if err != nil {
			return err
		}
		pool = p
		return nil
	}); err != nil {
		log.Error("failed to connect to database", "error", err)
		panic("failed to connect to database: " + err.Error())
	}
	defer pool.Close()

	rdb, err := dispatch.OpenRedis(ctx, cfg)
	if err != nil {
		log.Error("scheduler requires redis", "error", err)
		panic("failed to connect to redis: " + err.Error())
	}
	defer func() { _ = rdb.Close() }()

	eventBus := events.NewInMemoryBus(log)
	defer eventBus.Wait()

	forwarder := eventstream.NewForwarder(cfg, log)
	forwarder.Subscribe(eventBus)
	defer func() { _ = forwarder.Close() }()

	// No SSE feed in the worker; the notifier only logs here.
	notification.New(nil, log).RegisterHandlers(eventBus)

	phones := phone.NewNormalizer(cfg.GetPhoneDefaultRegion())
	leadService := leads.NewService(leads.NewRepository(pool), phones)
	followupRepo := followup.NewRepository(pool)
	followupService := followup.NewService(followupRepo, leadService, newTextGen(cfg), eventBus, log)

	sweeper := dispatch.NewSweeper(dispatch.Deps{
		Store:     followupRepo,
		Leads:     leadService,
		Transport: channel.NewDefaultRouter(cfg, phones, log),
		Lease:     dispatch.NewRedisLease(rdb, "", cfg.GetSweepLeaseTTL()),
		Bus:       eventBus,
		Observer:  metrics.New(),
		Log:       log,
	}, dispatch.Options{
		BatchSize:    cfg.GetSweepBatchSize(),
		Concurrency:  cfg.GetSweepConcurrency(),
		SendTimeout:  cfg.GetSendTimeout(),
		StoreTimeout: cfg.GetStoreTimeout(),
		MaxAttempts:  cfg.GetMaxDeliveryAttempts(),
		RetryBase:    cfg.GetRetryBaseDelay(),
		RetryMax:     cfg.GetRetryMaxDelay(),
		ClaimTTL:     cfg.GetSweepClaimTTL(),
	})

	worker, err := scheduler.NewWorker(cfg, followupService, sweeper, log)
	if err != nil {
		log.Error("failed to initialize scheduler worker", "error", err)
		panic("failed to initialize scheduler worker: " + err.Error())
	}

	periodic, err := scheduler.NewPeriodic(cfg, cfg.GetSweepInterval(), log)
	if err != nil {
		log.Error("failed to initialize sweep schedule", "error", err)
		panic("failed to initialize sweep schedule: " + err.Error())
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		periodic.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		worker.Run(ctx)
	}()

	log.Info("scheduler running", "queue", cfg.GetAsynqQueueName(), "sweepInterval", cfg.GetSweepInterval())
	wg.Wait()
	log.Info("scheduler stopped")
}

func newTextGen(cfg config.AIConfig) *textgen.Service {
	if !cfg.IsAIEnabled() {
		return textgen.New(nil, nil)
	}
	return textgen.New(
		moonshot.NewModel(moonshot.Config{APIKey: cfg.GetMoonshotAPIKey(), BaseURL: cfg.GetMoonshotBaseURL(), Model: cfg.GetAICheapModel()}),
		moonshot.NewModel(moonshot.Config{APIKey: cfg.GetMoonshotAPIKey(), BaseURL: cfg.GetMoonshotBaseURL(), Model: cfg.GetAISmartModel()}),
	)
}

func withRetry(ctx context.Context, log *logger.Logger, name string, attempts int, baseDelay time.Duration, fn func() error) error {
	if attempts < 1 {
		return fmt.Errorf("%s: invalid retry attempts", name)
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := fn(); err == nil {
			return nil
		} else {
			lastErr = err
			log.Warn("retryable operation failed", "operation", name, "attempt", attempt, "error", err)
		}

		if attempt < attempts {
			delay := time.Duration(attempt*attempt) * baseDelay
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}
	}

	return errors.New(name + ": " + lastErr.Error())
}
