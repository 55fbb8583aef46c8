package followup

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"leadflow_backend/internal/leads"
	"leadflow_backend/internal/textgen"
	"leadflow_backend/platform/apperr"

	"github.com/google/uuid"
)

type memStore struct {
	mu        sync.Mutex
	events    map[uuid.UUID]Event
	insertErr error
}

func newMemStore() *memStore { return &memStore{events: map[uuid.UUID]Event{}} }

func (m *memStore) InsertEvents(_ context.Context, events []Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.insertErr != nil {
		return m.insertErr
	}
	for _, e := range events {
		m.events[e.ID] = e
	}
	return nil
}

func (m *memStore) Get(_ context.Context, id uuid.UUID) (Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok {
		return Event{}, apperr.NotFound("follow-up not found")
	}
	return e, nil
}

func (m *memStore) List(_ context.Context, f ListFilter) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if f.LeadID != nil && e.LeadID != *f.LeadID {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (m *memStore) CompareAndSet(_ context.Context, id uuid.UUID, expected, next Status, t Transition) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.events[id]
	if !ok || e.Status != expected {
		return false, nil
	}
	e.Status = next
	if next == StatusSent {
		at := t.At
		e.SentAt = &at
	}
	m.events[id] = e
	return true, nil
}

func (m *memStore) setStatus(id uuid.UUID, s Status) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e := m.events[id]
	e.Status = s
	m.events[id] = e
}

type leadMap map[uuid.UUID]leads.Lead

func (l leadMap) Get(_ context.Context, id uuid.UUID) (leads.Lead, error) {
	lead, ok := l[id]
	if !ok {
		return leads.Lead{}, apperr.NotFound("lead not found")
	}
	return lead, nil
}

type stubGenerator struct {
	text string
	err  error
	kind string
}

func (g *stubGenerator) GenerateMessage(_ context.Context, _ textgen.LeadContext, kind, _ string) (string, error) {
	g.kind = kind
	return g.text, g.err
}

func TestMaterializeReminder(t *testing.T) {
	leadID := uuid.New()
	store := newMemStore()
	svc := NewService(store, leadMap{leadID: {ID: leadID, PreferredChannel: "whatsapp"}}, nil, nil, nil)

	base := time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC)
	n, err := svc.Materialize(context.Background(), MaterializeParams{SequenceType: "reminder", LeadID: leadID, BaseTime: base})
	if err != nil {
		t.Fatalf("Materialize: %v", err)
	}
	if n != 2 || len(store.events) != 2 {
		t.Fatalf("created %d, stored %d", n, len(store.events))
	}

	want := map[time.Time]bool{base.Add(time.Hour): true, base.Add(24 * time.Hour): true}
	for _, e := range store.events {
		if !want[e.ScheduledAt] || e.Channel != "whatsapp" || e.Status != StatusPending {
			t.Fatalf("unexpected event %+v", e)
		}
	}
}

func TestMaterializeFailures(t *testing.T) {
	leadID := uuid.New()
	l := leadMap{leadID: {ID: leadID}}

	store := newMemStore()
	svc := NewService(store, l, nil, nil, nil)
	if _, err := svc.Materialize(context.Background(), MaterializeParams{SequenceType: "unknown", LeadID: leadID}); !apperr.Is(err, apperr.KindConfiguration) {
		t.Fatalf("unknown sequence err = %v", err)
	}
	if _, err := svc.Materialize(context.Background(), MaterializeParams{SequenceType: "nurture", LeadID: uuid.New()}); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("missing lead err = %v", err)
	}
	if _, err := svc.Materialize(context.Background(), MaterializeParams{SequenceType: "nurture", LeadID: leadID, Channel: "fax"}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("bad channel err = %v", err)
	}

	store.insertErr = errors.New("tx aborted")
	if _, err := svc.Materialize(context.Background(), MaterializeParams{SequenceType: "nurture", LeadID: leadID}); err == nil {
		t.Fatal("expected insert failure")
	}
	if len(store.events) != 0 {
		t.Fatalf("partial sequence stored: %d events", len(store.events))
	}
}

func TestScheduleContent(t *testing.T) {
	leadID := uuid.New()
	l := leadMap{leadID: {ID: leadID, Name: "Ada"}}
	at := time.Date(2024, 6, 2, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		gen     *stubGenerator
		content string
		want    string
	}{
		{name: "explicit", gen: &stubGenerator{text: "unused"}, content: " Hi Ada ", want: "Hi Ada"},
		{name: "generated", gen: &stubGenerator{text: "Checking in!"}, want: "Checking in!"},
		{name: "generator failure", gen: &stubGenerator{err: textgen.ErrDisabled}, want: FallbackMessage},
		{name: "blank generation", gen: &stubGenerator{text: "   "}, want: FallbackMessage},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := NewService(newMemStore(), l, tt.gen, nil, nil)
			e, err := svc.Schedule(context.Background(), ScheduleParams{LeadID: leadID, Type: "check_in", ScheduledAt: at, Content: tt.content})
			if err != nil {
				t.Fatalf("Schedule: %v", err)
			}
			if e.Content != tt.want || e.Channel != "email" || !e.ScheduledAt.Equal(at) {
				t.Fatalf("event = %+v", e)
			}
		})
	}

	svc := NewService(newMemStore(), l, nil, nil, nil)
	e, err := svc.Schedule(context.Background(), ScheduleParams{LeadID: leadID, Type: "check_in", ScheduledAt: at})
	if err != nil || e.Content != FallbackMessage {
		t.Fatalf("no generator: %+v, %v", e, err)
	}
	if _, err := svc.Schedule(context.Background(), ScheduleParams{LeadID: leadID, ScheduledAt: at}); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("missing type err = %v", err)
	}
}

func TestCancel(t *testing.T) {
	leadID := uuid.New()
	store := newMemStore()
	svc := NewService(store, leadMap{leadID: {ID: leadID}}, nil, nil, nil)
	ctx := context.Background()

	e, err := svc.Schedule(ctx, ScheduleParams{LeadID: leadID, Type: "check_in", ScheduledAt: time.Now(), Content: "x"})
	if err != nil {
		t.Fatal(err)
	}

	got, err := svc.Cancel(ctx, e.ID)
	if err != nil || got.Status != StatusCancelled {
		t.Fatalf("first cancel: %+v, %v", got, err)
	}
	got, err = svc.Cancel(ctx, e.ID)
	if err != nil || got.Status != StatusCancelled {
		t.Fatalf("second cancel: %+v, %v", got, err)
	}

	sent, _ := svc.Schedule(ctx, ScheduleParams{LeadID: leadID, Type: "check_in", ScheduledAt: time.Now(), Content: "y"})
	store.setStatus(sent.ID, StatusSent)
	if _, err := svc.Cancel(ctx, sent.ID); !apperr.Is(err, apperr.KindConflict) {
		t.Fatalf("cancel sent err = %v", err)
	}
	if after, _ := svc.Get(ctx, sent.ID); after.Status != StatusSent {
		t.Fatalf("sent event changed to %s", after.Status)
	}

	if _, err := svc.Cancel(ctx, uuid.New()); !apperr.Is(err, apperr.KindNotFound) {
		t.Fatalf("missing event err = %v", err)
	}
}

func TestCancelClaimedEventConflicts(t *testing.T) {
	leadID := uuid.New()
	store := newMemStore()
	svc := NewService(store, leadMap{leadID: {ID: leadID}}, nil, nil, nil)
	ctx := context.Background()

	e, err := svc.Schedule(ctx, ScheduleParams{LeadID: leadID, Type: "check_in", ScheduledAt: time.Now(), Content: "x"})
	if err != nil {
		t.Fatal(err)
	}
	store.setStatus(e.ID, StatusProcessing)

	_, err = svc.Cancel(ctx, e.ID)
	if !apperr.Is(err, apperr.KindConflict) || !strings.Contains(err.Error(), "being delivered") {
		t.Fatalf("cancel claimed err = %v", err)
	}
	if after, _ := svc.Get(ctx, e.ID); after.Status != StatusProcessing {
		t.Fatalf("claimed event changed to %s", after.Status)
	}
}

func TestListClampsLimit(t *testing.T) {
	spy := &listSpy{memStore: newMemStore()}
	svc := NewService(spy, leadMap{}, nil, nil, nil)
	if _, err := svc.List(context.Background(), ListFilter{Limit: 500}); err != nil {
		t.Fatal(err)
	}
	if spy.limit != maxListLimit {
		t.Fatalf("limit = %d", spy.limit)
	}
}

type listSpy struct {
	*memStore
	limit int
}

func (s *listSpy) List(ctx context.Context, f ListFilter) ([]Event, error) {
	s.limit = f.Limit
	return s.memStore.List(ctx, f)
}
