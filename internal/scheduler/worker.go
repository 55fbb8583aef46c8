package scheduler

import (
	"context"
	"fmt"
	"strings"
	"time"

	"leadflow_backend/internal/dispatch"
	"leadflow_backend/internal/followup"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// Materializer expands a sequence into scheduled follow-ups.
type Materializer interface {
	Materialize(ctx context.Context, p followup.MaterializeParams) (int, error)
}

// SweepRunner runs one dispatch sweep.
type SweepRunner interface {
	RunSweep(ctx context.Context, now time.Time) (dispatch.Summary, error)
}

type Worker struct {
	server *asynq.Server
	mux    *asynq.ServeMux
	log    *logger.Logger
}

type taskHandlers struct {
	materializer Materializer
	sweeper      SweepRunner
	log          *logger.Logger
	now          func() time.Time
}

func NewWorker(cfg config.SchedulerConfig, materializer Materializer, sweeper SweepRunner, log *logger.Logger) (*Worker, error) {
	redisURL := cfg.GetRedisURL()
	if redisURL == "" {
		return nil, fmt.Errorf("redis url not configured")
	}

	opt, err := redisClientOpt(redisURL, cfg.GetRedisTLSInsecure())
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency < 1 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues: map[string]int{
			queueName(cfg): 1,
		},
	})

	h := &taskHandlers{
		materializer: materializer,
		sweeper:      sweeper,
		log:          log,
		now:          func() time.Time { return time.Now().UTC() },
	}
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskMaterializeSequence, h.handleMaterialize)
	mux.HandleFunc(TaskDispatchSweep, h.handleSweep)

	return &Worker{server: server, mux: mux, log: log}, nil
}

func (w *Worker) Run(ctx context.Context) {
	if w == nil || w.server == nil {
		return
	}

	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()

	if err := w.server.Run(w.mux); err != nil {
		w.log.Error("scheduler worker stopped", "error", err)
	}
}

func (h *taskHandlers) handleMaterialize(ctx context.Context, task *asynq.Task) error {
	payload, err := ParseMaterializeSequencePayload(task)
	if err != nil {
		return skipRetry(err)
	}

	leadID, err := uuid.Parse(payload.LeadID)
	if err != nil {
		return skipRetry(err)
	}

	params := followup.MaterializeParams{
		SequenceType: strings.TrimSpace(payload.SequenceType),
		LeadID:       leadID,
		Channel:      payload.Channel,
	}
	if payload.BaseTime != nil {
		params.BaseTime = payload.BaseTime.UTC()
	}

	count, err := h.materializer.Materialize(ctx, params)
	if err != nil {
		return retryable(err)
	}
	h.log.Info("sequence materialized", "leadId", leadID, "sequenceType", params.SequenceType, "count", count)
	return nil
}

func (h *taskHandlers) handleSweep(ctx context.Context, _ *asynq.Task) error {
	_, err := h.sweeper.RunSweep(ctx, h.now())
	return retryable(err)
}

// retryable lets asynq retry only failures that may pass on a later attempt.
func retryable(err error) error {
	if err == nil {
		return nil
	}
	switch apperr.GetKind(err) {
	case apperr.KindConfiguration, apperr.KindValidation, apperr.KindNotFound, apperr.KindConflict:
		return skipRetry(err)
	}
	return err
}

func skipRetry(err error) error {
	return fmt.Errorf("%w: %w", asynq.SkipRetry, err)
}
