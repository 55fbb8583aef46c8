package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"

	"leadflow_backend/internal/dispatch"
	"leadflow_backend/internal/followup"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

type recordingMaterializer struct {
	got followup.MaterializeParams
	err error
}

func (m *recordingMaterializer) Materialize(_ context.Context, p followup.MaterializeParams) (int, error) {
	m.got = p
	if m.err != nil {
		return 0, m.err
	}
	return 3, nil
}

type stubSweeper struct {
	calledAt time.Time
	err      error
}

func (s *stubSweeper) RunSweep(_ context.Context, now time.Time) (dispatch.Summary, error) {
	s.calledAt = now
	return dispatch.Summary{}, s.err
}

func newTestHandlers(m Materializer, s SweepRunner) *taskHandlers {
	return &taskHandlers{
		materializer: m,
		sweeper:      s,
		log:          logger.Discard(),
		now:          func() time.Time { return time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC) },
	}
}

func TestHandleMaterialize(t *testing.T) {
	leadID := uuid.New()
	base := time.Date(2025, 3, 10, 8, 0, 0, 0, time.FixedZone("CET", 3600))
	task, err := NewMaterializeSequenceTask(MaterializeSequencePayload{
		LeadID:       leadID.String(),
		SequenceType: " reminder ",
		Channel:      "sms",
		BaseTime:     &base,
	})
	if err != nil {
		t.Fatal(err)
	}

	m := &recordingMaterializer{}
	if err := newTestHandlers(m, nil).handleMaterialize(context.Background(), task); err != nil {
		t.Fatalf("handleMaterialize: %v", err)
	}
	if m.got.LeadID != leadID || m.got.SequenceType != "reminder" || m.got.Channel != "sms" {
		t.Fatalf("params = %+v", m.got)
	}
	if !m.got.BaseTime.Equal(base) || m.got.BaseTime.Location() != time.UTC {
		t.Fatalf("base time = %v", m.got.BaseTime)
	}
}

func TestHandleMaterializeRetryPolicy(t *testing.T) {
	valid, _ := NewMaterializeSequenceTask(MaterializeSequencePayload{LeadID: uuid.NewString(), SequenceType: "nurture"})
	badID, _ := NewMaterializeSequenceTask(MaterializeSequencePayload{LeadID: "nope", SequenceType: "nurture"})

	tests := []struct {
		name      string
		task      *asynq.Task
		err       error
		wantSkip  bool
		wantError bool
	}{
		{"bad payload", asynq.NewTask(TaskMaterializeSequence, []byte("{")), nil, true, true},
		{"bad lead id", badID, nil, true, true},
		{"unknown sequence", valid, apperr.Configuration("unknown sequence"), true, true},
		{"database down", valid, apperr.Transient("insert", errors.New("timeout")), false, true},
		{"ok", valid, nil, false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := newTestHandlers(&recordingMaterializer{err: tt.err}, nil).handleMaterialize(context.Background(), tt.task)
			if (err != nil) != tt.wantError {
				t.Fatalf("err = %v", err)
			}
			if errors.Is(err, asynq.SkipRetry) != tt.wantSkip {
				t.Fatalf("skip retry = %v, want %v (%v)", errors.Is(err, asynq.SkipRetry), tt.wantSkip, err)
			}
		})
	}
}

func TestHandleSweep(t *testing.T) {
	s := &stubSweeper{}
	if err := newTestHandlers(nil, s).handleSweep(context.Background(), NewDispatchSweepTask()); err != nil {
		t.Fatalf("handleSweep: %v", err)
	}
	if s.calledAt.IsZero() {
		t.Fatal("sweep not run")
	}

	s.err = apperr.Transient("sweep lease unavailable", errors.New("redis down"))
	err := newTestHandlers(nil, s).handleSweep(context.Background(), NewDispatchSweepTask())
	if err == nil || errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("transient sweep error = %v", err)
	}
}

func TestRedisClientOpt(t *testing.T) {
	opt, err := redisClientOpt("redis://:secret@cache:6380/2", true)
	if err != nil {
		t.Fatal(err)
	}
	if opt.Addr != "cache:6380" || opt.Password != "secret" || opt.DB != 2 {
		t.Fatalf("opt = %+v", opt)
	}
	if opt.TLSConfig == nil || !opt.TLSConfig.InsecureSkipVerify {
		t.Fatal("insecure TLS not applied")
	}

	plain, _ := redisClientOpt("redis://cache:6379/0", false)
	if plain.TLSConfig != nil {
		t.Fatal("unexpected TLS config")
	}
}

func TestCronSpec(t *testing.T) {
	if got := cronSpec(90 * time.Second); got != "@every 1m30s" {
		t.Fatalf("cronSpec = %q", got)
	}
}
