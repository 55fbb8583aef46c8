package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"leadflow_backend/internal/archive"
	"leadflow_backend/internal/channel"
	"leadflow_backend/internal/dispatch"
	"leadflow_backend/internal/eventstream"
	"leadflow_backend/internal/followup"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/internal/http/router"
	"leadflow_backend/internal/leads"
	"leadflow_backend/internal/metrics"
	"leadflow_backend/internal/notification"
	"leadflow_backend/internal/notification/sse"
	"leadflow_backend/internal/qualification"
	"leadflow_backend/internal/routing"
	"leadflow_backend/internal/scheduler"
	"leadflow_backend/internal/textgen"
	"leadflow_backend/platform/ai/moonshot"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/db"
	"leadflow_backend/platform/events"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/phone"
	"leadflow_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"google.golang.org/adk/model"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	log := logger.New(cfg.Env)
	log.Info("starting server", "env", cfg.Env, "addr", cfg.HTTPAddr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ========================================================================
	// Infrastructure Layer
	// ========================================================================

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

	if err := withRetry(ctx, log, "database migrations", 5, 2*time.Second, func() error {
		return db.RunMigrations(ctx, pool)
	}); err != nil {
		log.Error("failed to run database migrations", "error", err)
		panic("failed to run database migrations: " + err.Error())
	}
	log.Info("database ready")

	eventBus := events.NewInMemoryBus(log)
	defer eventBus.Wait()

	forwarder := eventstream.NewForwarder(cfg, log)
	forwarder.Subscribe(eventBus)
	defer func() { _ = forwarder.Close() }()

	archiveStore := initArchive(ctx, cfg, log)

	jobs, closeJobs := initSchedulerClient(cfg, log)
	if closeJobs != nil {
		defer closeJobs()
	}

	rdb, err := dispatch.OpenRedis(ctx, cfg)
	if err != nil {
		log.Warn("redis unavailable; dispatch sweep disabled", "error", err)
	} else {
		defer func() { _ = rdb.Close() }()
	}

	val := validator.New()
	phones := phone.NewNormalizer(cfg.GetPhoneDefaultRegion())
	generator := initTextGen(cfg, log)
	promMetrics := metrics.New()

	// ========================================================================
	// Domain Modules (Composition Root)
	// ========================================================================

	leadsModule := leads.NewModule(leads.NewRepository(pool), phones, val)

	fit, timeline, budget, intent := cfg.GetScoringWeights()
	selector, err := qualification.NewSelector(qualification.Weights{Fit: fit, Timeline: timeline, Budget: budget, Intent: intent})
	if err != nil {
		panic("invalid scoring weights: " + err.Error())
	}
	qualificationModule := qualification.NewModule(qualification.Deps{
		Selector:  selector,
		Store:     qualification.NewRepository(pool),
		Leads:     leadsModule.Service(),
		Qualifier: generator,
		Archive:   archiveStore,
		Phones:    phones,
		Bus:       eventBus,
		Log:       log,
	}, val)

	rules, err := routing.LoadRules(cfg.GetRoutingRulesFile())
	if err != nil {
		panic("invalid routing rules: " + err.Error())
	}
	routingRepo := routing.NewRepository(pool)
	routingModule := routing.NewModule(routing.Deps{
		Rules:     rules,
		Tasks:     routingRepo,
		Decisions: routingRepo,
		Workload:  leadsModule.Service(),
		Scorer:    qualificationModule.Service(),
		Intents:   generator,
		Archive:   archiveStore,
		Bus:       eventBus,
		Log:       log,
	}, val)

	followupRepo := followup.NewRepository(pool)
	var materializeQueue followup.MaterializeQueue
	var sweepQueue dispatch.SweepQueue
	if jobs != nil {
		materializeQueue = jobs
		sweepQueue = jobs
	}
	followupModule := followup.NewModule(
		followup.NewService(followupRepo, leadsModule.Service(), generator, eventBus, log),
		materializeQueue,
		val,
	)

	notificationModule := notification.New(sse.New(log), log)
	notificationModule.RegisterHandlers(eventBus)

	modules := []apphttp.Module{
		leadsModule,
		qualificationModule,
		routingModule,
		followupModule,
		notificationModule,
	}

	if rdb != nil {
		sweeper := newSweeper(cfg, rdb, followupRepo, leadsModule.Service(), channel.NewDefaultRouter(cfg, phones, log), eventBus, promMetrics, log)
		modules = append(modules, dispatch.NewModule(sweeper, sweepQueue))
		go dispatch.NewRunner(sweeper, cfg.GetSweepInterval(), log).Run(ctx)
		log.Info("dispatch sweep started", "interval", cfg.GetSweepInterval())
	}

	app := &apphttp.App{
		Config:     cfg,
		Logger:     log,
		Health:     pool,
		Metrics:    promMetrics.Handler(),
		Middleware: []gin.HandlerFunc{promMetrics.Middleware()},
		Modules:    modules,
	}

	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           router.New(app),
		ReadHeaderTimeout: 10 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		log.Info("server listening", "addr", cfg.HTTPAddr)
		srvErr <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		log.Info("shutdown signal received, gracefully shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("server shutdown failed", "error", err)
		}
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			panic("server error: " + err.Error())
		}
	}
}

func newSweeper(cfg *config.Config, rdb *redis.Client, store dispatch.Store, leadReader dispatch.LeadReader, transport channel.Transport, bus events.Bus, observer dispatch.Observer, log *logger.Logger) *dispatch.Sweeper {
	return dispatch.NewSweeper(dispatch.Deps{
		Store:     store,
		Leads:     leadReader,
		Transport: transport,
		Lease:     dispatch.NewRedisLease(rdb, "", cfg.GetSweepLeaseTTL()),
		Bus:       bus,
		Observer:  observer,
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
}

func initTextGen(cfg config.AIConfig, log *logger.Logger) *textgen.Service {
	if !cfg.IsAIEnabled() {
		log.Warn("MOONSHOT_API_KEY not configured; text generation disabled")
		return textgen.New(nil, nil)
	}
	var cheap, smart model.LLM
	cheap = moonshot.NewModel(moonshot.Config{APIKey: cfg.GetMoonshotAPIKey(), BaseURL: cfg.GetMoonshotBaseURL(), Model: cfg.GetAICheapModel()})
	smart = moonshot.NewModel(moonshot.Config{APIKey: cfg.GetMoonshotAPIKey(), BaseURL: cfg.GetMoonshotBaseURL(), Model: cfg.GetAISmartModel()})
	return textgen.New(cheap, smart)
}

func initArchive(ctx context.Context, cfg config.ArchiveConfig, log *logger.Logger) *archive.Store {
	store, err := archive.New(cfg)
	if err != nil {
		log.Error("failed to initialize decision archive", "error", err)
		return nil
	}
	if store == nil {
		log.Info("MINIO_ENDPOINT not configured; decision archive disabled")
		return nil
	}
	if err := withRetry(ctx, log, "ensure decision bucket", 5, 2*time.Second, func() error {
		return store.EnsureBucket(ctx)
	}); err != nil {
		log.Error("decision archive unavailable", "error", err, "bucket", cfg.GetMinioBucketDecisions())
		return nil
	}
	return store
}

func initSchedulerClient(cfg config.SchedulerConfig, log *logger.Logger) (*scheduler.Client, func()) {
	if cfg.GetRedisURL() == "" {
		log.Warn("REDIS_URL not configured; sequences and manual sweeps run inline")
		return nil, nil
	}

	client, err := scheduler.NewClient(cfg)
	if err != nil {
		log.Error("failed to initialize scheduler client", "error", err)
		return nil, nil
	}

	return client, func() {
		_ = client.Close()
	}
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
