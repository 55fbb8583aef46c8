package dispatch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"leadflow_backend/internal/channel"
	"leadflow_backend/internal/followup"
	"leadflow_backend/internal/leads"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/events"
	"leadflow_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var sweepNow = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

type memStore struct {
	mu       sync.Mutex
	events   map[uuid.UUID]*followup.Event
	queryErr error
	queries  int
}

func newMemStore(evts ...followup.Event) *memStore {
	s := &memStore{events: map[uuid.UUID]*followup.Event{}}
	for i := range evts {
		e := evts[i]
		s.events[e.ID] = &e
	}
	return s
}

func (s *memStore) ClaimDue(_ context.Context, now time.Time, limit int, claimUntil time.Time) ([]followup.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queries++
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	var out []followup.Event
	for _, e := range s.events {
		switch e.Status {
		case followup.StatusPending:
			if e.ScheduledAt.After(now) || (e.NextAttemptAt != nil && e.NextAttemptAt.After(now)) {
				continue
			}
		case followup.StatusProcessing:
			if e.ClaimedUntil == nil || e.ClaimedUntil.After(now) {
				continue
			}
		default:
			continue
		}
		until := claimUntil
		e.Status = followup.StatusProcessing
		e.ClaimedUntil = &until
		out = append(out, *e)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) CompareAndSet(_ context.Context, id uuid.UUID, expected, next followup.Status, t followup.Transition) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok || e.Status != expected {
		return false, nil
	}
	e.Status = next
	e.ClaimedUntil = nil
	if next == followup.StatusSent {
		at := t.At
		e.SentAt = &at
		if t.ProviderMessageID != "" {
			id := t.ProviderMessageID
			e.ProviderMessageID = &id
		}
	}
	return true, nil
}

func (s *memStore) RecordFailedAttempt(_ context.Context, id uuid.UUID, expectedAttempts int, f followup.FailedAttempt) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.events[id]
	if !ok || e.Status != followup.StatusProcessing || e.Attempts != expectedAttempts {
		return false, nil
	}
	e.Status = followup.StatusPending
	e.ClaimedUntil = nil
	e.Attempts = f.Attempts
	e.NextAttemptAt = f.NextAttemptAt
	reason := f.LastError
	e.LastError = &reason
	if f.Terminal {
		e.Status = followup.StatusFailed
	}
	return true, nil
}

func (s *memStore) get(id uuid.UUID) followup.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return *s.events[id]
}

type leadMap map[uuid.UUID]leads.Lead

func (m leadMap) Get(_ context.Context, id uuid.UUID) (leads.Lead, error) {
	l, ok := m[id]
	if !ok {
		return leads.Lead{}, apperr.NotFound("lead not found")
	}
	return l, nil
}

type fakeTransport struct {
	mu     sync.Mutex
	sent   []channel.Message
	result channel.Result
	delay  time.Duration
	// onSend runs before the send completes, while the event is claimed.
	onSend func(eventID string)
}

func (f *fakeTransport) Send(ctx context.Context, ch, recipient, content string, metadata map[string]string) channel.Result {
	if f.onSend != nil {
		f.onSend(metadata[channel.MetadataEventID])
	}
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return channel.Failed("send cancelled")
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, channel.Message{Channel: ch, Recipient: recipient, Content: content, Metadata: metadata})
	if f.result == (channel.Result{}) {
		return channel.Delivered("msg-" + uuid.NewString())
	}
	return f.result
}

func (f *fakeTransport) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type openLease struct {
	released atomic.Int32
}

func (l *openLease) TryAcquire(context.Context) (string, bool, error) { return "t", true, nil }
func (l *openLease) Extend(context.Context, string) (bool, error)     { return true, nil }
func (l *openLease) TTL() time.Duration                               { return 0 }
func (l *openLease) Release(context.Context, string) error {
	l.released.Add(1)
	return nil
}

type heldLease struct{ err error }

func (l heldLease) TryAcquire(context.Context) (string, bool, error) { return "", false, l.err }
func (l heldLease) Extend(context.Context, string) (bool, error)     { return false, nil }
func (l heldLease) TTL() time.Duration                               { return 0 }
func (l heldLease) Release(context.Context, string) error            { return nil }

// stolenLease is acquired but refuses every extension, as if another
// process took the key after it expired.
type stolenLease struct {
	ttl     time.Duration
	extends atomic.Int32
}

func (l *stolenLease) TryAcquire(context.Context) (string, bool, error) { return "t", true, nil }
func (l *stolenLease) Extend(context.Context, string) (bool, error) {
	l.extends.Add(1)
	return false, nil
}
func (l *stolenLease) TTL() time.Duration                    { return l.ttl }
func (l *stolenLease) Release(context.Context, string) error { return nil }

func dueEvent(leadID uuid.UUID, ch string, attempts int) followup.Event {
	return followup.Event{
		ID:           uuid.New(),
		LeadID:       leadID,
		SequenceType: "nurture",
		Channel:      ch,
		ScheduledAt:  sweepNow.Add(-time.Minute),
		Content:      "Checking in",
		Status:       followup.StatusPending,
		Attempts:     attempts,
	}
}

func testLeads() (leadMap, uuid.UUID) {
	id := uuid.New()
	return leadMap{id: {ID: id, Email: "ana@example.com", Phone: "+31612345678"}}, id
}

func newTestSweeper(store Store, lm leadMap, tr channel.Transport, lease Lease, bus events.Bus) *Sweeper {
	return newTestSweeperWith(store, lm, tr, lease, bus, Options{})
}

func newTestSweeperWith(store Store, lm leadMap, tr channel.Transport, lease Lease, bus events.Bus, opts Options) *Sweeper {
	return NewSweeper(Deps{
		Store:     store,
		Leads:     lm,
		Transport: tr,
		Lease:     lease,
		Bus:       bus,
		Log:       logger.Discard(),
	}, opts)
}

func TestRunSweepDeliversDueEvents(t *testing.T) {
	lm, leadID := testLeads()
	due := dueEvent(leadID, leads.ChannelEmail, 0)
	future := dueEvent(leadID, leads.ChannelEmail, 0)
	future.ScheduledAt = sweepNow.Add(time.Hour)
	store := newMemStore(due, future)
	tr := &fakeTransport{}
	lease := &openLease{}

	bus := events.NewInMemoryBus(logger.Discard())
	var published atomic.Int32
	bus.Subscribe(events.FollowUpSent{}.EventName(), events.HandlerFunc(func(context.Context, events.Event) error {
		published.Add(1)
		return nil
	}))

	summary, err := newTestSweeper(store, lm, tr, lease, bus).RunSweep(context.Background(), sweepNow)
	if err != nil {
		t.Fatalf("RunSweep: %v", err)
	}
	bus.Wait()

	if summary != (Summary{Sent: 1}) {
		t.Fatalf("summary = %+v", summary)
	}
	got := store.get(due.ID)
	if got.Status != followup.StatusSent || got.SentAt == nil || !got.SentAt.Equal(sweepNow) {
		t.Fatalf("due event = %+v", got)
	}
	if got.ProviderMessageID == nil {
		t.Fatal("provider message id not recorded")
	}
	if store.get(future.ID).Status != followup.StatusPending {
		t.Fatal("future event was touched")
	}
	if published.Load() != 1 {
		t.Fatalf("FollowUpSent published %d times", published.Load())
	}
	if lease.released.Load() != 1 {
		t.Fatal("lease not released")
	}

	msg := tr.sent[0]
	if msg.Recipient != "ana@example.com" {
		t.Errorf("recipient = %q", msg.Recipient)
	}
	if msg.Metadata[channel.MetadataSubject] != "Follow-up: nurture" || msg.Metadata[channel.MetadataEventID] != due.ID.String() {
		t.Errorf("metadata = %v", msg.Metadata)
	}
}

func TestRunSweepFailureSchedulesRetry(t *testing.T) {
	lm, leadID := testLeads()
	e := dueEvent(leadID, leads.ChannelSMS, 1)
	store := newMemStore(e)
	tr := &fakeTransport{result: channel.Failed("provider down")}

	summary, err := newTestSweeper(store, lm, tr, &openLease{}, nil).RunSweep(context.Background(), sweepNow)
	if err != nil {
		t.Fatalf("RunSweep: %v", err)
	}
	if summary != (Summary{Failed: 1}) {
		t.Fatalf("summary = %+v", summary)
	}

	got := store.get(e.ID)
	if got.Status != followup.StatusPending || got.Attempts != 2 {
		t.Fatalf("event = %+v", got)
	}
	wantNext := sweepNow.Add(2 * time.Minute)
	if got.NextAttemptAt == nil || !got.NextAttemptAt.Equal(wantNext) {
		t.Fatalf("next attempt = %v, want %v", got.NextAttemptAt, wantNext)
	}
	if got.LastError == nil || *got.LastError != "provider down" {
		t.Fatalf("last error = %v", got.LastError)
	}

	again, _ := newTestSweeper(store, lm, tr, &openLease{}, nil).RunSweep(context.Background(), sweepNow.Add(time.Minute))
	if again != (Summary{}) {
		t.Fatalf("event retried before backoff elapsed: %+v", again)
	}
}

func TestRunSweepTerminalFailure(t *testing.T) {
	lm, leadID := testLeads()
	e := dueEvent(leadID, leads.ChannelEmail, 4)
	store := newMemStore(e)
	tr := &fakeTransport{result: channel.Failed("mailbox full")}

	bus := events.NewInMemoryBus(logger.Discard())
	var failed events.FollowUpFailed
	var mu sync.Mutex
	bus.Subscribe(events.FollowUpFailed{}.EventName(), events.HandlerFunc(func(_ context.Context, ev events.Event) error {
		mu.Lock()
		defer mu.Unlock()
		failed = ev.(events.FollowUpFailed)
		return nil
	}))

	if _, err := newTestSweeper(store, lm, tr, &openLease{}, bus).RunSweep(context.Background(), sweepNow); err != nil {
		t.Fatalf("RunSweep: %v", err)
	}
	bus.Wait()

	got := store.get(e.ID)
	if got.Status != followup.StatusFailed || got.Attempts != 5 || got.NextAttemptAt != nil {
		t.Fatalf("event = %+v", got)
	}
	mu.Lock()
	defer mu.Unlock()
	if failed.EventID != e.ID || failed.Attempts != 5 || failed.Reason != "mailbox full" {
		t.Fatalf("FollowUpFailed = %+v", failed)
	}
}

func TestRunSweepUnresolvableRecipient(t *testing.T) {
	lm, leadID := testLeads()
	missingLead := dueEvent(uuid.New(), leads.ChannelEmail, 0)
	noEmail := dueEvent(leadID, leads.ChannelEmail, 0)
	lm[leadID] = leads.Lead{ID: leadID}
	store := newMemStore(missingLead, noEmail)
	tr := &fakeTransport{}

	summary, err := newTestSweeper(store, lm, tr, &openLease{}, nil).RunSweep(context.Background(), sweepNow)
	if err != nil {
		t.Fatalf("RunSweep: %v", err)
	}
	if summary != (Summary{Failed: 2}) {
		t.Fatalf("summary = %+v", summary)
	}
	if tr.count() != 0 {
		t.Fatalf("transport called %d times", tr.count())
	}
	for _, id := range []uuid.UUID{missingLead.ID, noEmail.ID} {
		if got := store.get(id); got.Attempts != 1 || got.Status != followup.StatusPending {
			t.Errorf("event %s = %+v", id, got)
		}
	}
}

func TestRunSweepSkipsWhenLeaseHeld(t *testing.T) {
	store := newMemStore()
	summary, err := newTestSweeper(store, leadMap{}, &fakeTransport{}, heldLease{}, nil).RunSweep(context.Background(), sweepNow)
	if err != nil {
		t.Fatalf("RunSweep: %v", err)
	}
	if !summary.Skipped {
		t.Fatalf("summary = %+v, want skipped", summary)
	}
	if store.queries != 0 {
		t.Fatal("skipped sweep scanned the store")
	}
}

func TestRunSweepInfrastructureErrors(t *testing.T) {
	_, err := newTestSweeper(newMemStore(), leadMap{}, &fakeTransport{}, heldLease{err: errors.New("redis down")}, nil).
		RunSweep(context.Background(), sweepNow)
	if !apperr.Is(err, apperr.KindTransient) {
		t.Fatalf("lease error = %v, want transient", err)
	}

	store := newMemStore()
	store.queryErr = errors.New("db down")
	lease := &openLease{}
	sweeper := newTestSweeper(store, leadMap{}, &fakeTransport{}, lease, nil)
	_, err = sweeper.RunSweep(context.Background(), sweepNow)
	if !apperr.Is(err, apperr.KindTransient) {
		t.Fatalf("query error = %v, want transient", err)
	}
	if lease.released.Load() != 1 {
		t.Fatal("lease not released after scan failure")
	}
	if sweeper.State() != StateIdle {
		t.Fatalf("state = %v, want idle", sweeper.State())
	}
}

func TestConcurrentSweepsDeliverOnce(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	lm, leadID := testLeads()
	e := dueEvent(leadID, leads.ChannelEmail, 0)
	store := newMemStore(e)
	tr := &fakeTransport{delay: 20 * time.Millisecond}

	a := newTestSweeper(store, lm, tr, NewRedisLease(rdb, "", time.Minute), nil)
	b := newTestSweeper(store, lm, tr, NewRedisLease(rdb, "", time.Minute), nil)

	var wg sync.WaitGroup
	summaries := make([]Summary, 2)
	for i, s := range []*Sweeper{a, b} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			summaries[i], _ = s.RunSweep(context.Background(), sweepNow)
		}()
	}
	wg.Wait()

	if sent := summaries[0].Sent + summaries[1].Sent; sent != 1 {
		t.Fatalf("sent = %d, summaries = %+v", sent, summaries)
	}
	if tr.count() != 1 {
		t.Fatalf("transport called %d times", tr.count())
	}
	if store.get(e.ID).Status != followup.StatusSent {
		t.Fatal("event not sent")
	}
}

func TestConcurrentSweepsWithoutLeaseRecordOnce(t *testing.T) {
	lm, leadID := testLeads()
	e := dueEvent(leadID, leads.ChannelEmail, 0)
	store := newMemStore(e)
	tr := &fakeTransport{delay: 10 * time.Millisecond}

	var wg sync.WaitGroup
	summaries := make([]Summary, 2)
	for i := range summaries {
		wg.Add(1)
		go func() {
			defer wg.Done()
			summaries[i], _ = newTestSweeper(store, lm, tr, &openLease{}, nil).RunSweep(context.Background(), sweepNow)
		}()
	}
	wg.Wait()

	if sent := summaries[0].Sent + summaries[1].Sent; sent != 1 {
		t.Fatalf("sent = %d, summaries = %+v", sent, summaries)
	}
	if got := store.get(e.ID); got.Status != followup.StatusSent {
		t.Fatalf("event = %+v", got)
	}
}

func TestSweepOutlivingLeaseDoesNotResend(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	lm, leadID := testLeads()
	first := dueEvent(leadID, leads.ChannelEmail, 0)
	second := dueEvent(leadID, leads.ChannelEmail, 0)
	store := newMemStore(first, second)
	tr := &fakeTransport{delay: 50 * time.Millisecond}
	opts := Options{Concurrency: 1}

	// While the first sweep is mid-send its lease expires and a second
	// sweep starts two minutes later.
	var (
		once    sync.Once
		late    Summary
		lateErr error
	)
	tr.onSend = func(string) {
		once.Do(func() {
			mr.FastForward(2 * time.Minute)
			b := newTestSweeperWith(store, lm, tr, NewRedisLease(rdb, "", time.Minute), nil, opts)
			late, lateErr = b.RunSweep(context.Background(), sweepNow.Add(2*time.Minute))
		})
	}

	a := newTestSweeperWith(store, lm, tr, NewRedisLease(rdb, "", time.Minute), nil, opts)
	summary, err := a.RunSweep(context.Background(), sweepNow)
	if err != nil {
		t.Fatalf("RunSweep: %v", err)
	}
	if lateErr != nil {
		t.Fatalf("late RunSweep: %v", lateErr)
	}

	if late.Skipped {
		t.Fatal("late sweep should have acquired the expired lease")
	}
	if late != (Summary{}) {
		t.Fatalf("late sweep touched claimed events: %+v", late)
	}
	if summary != (Summary{Sent: 2}) {
		t.Fatalf("summary = %+v", summary)
	}
	if tr.count() != 2 {
		t.Fatalf("transport called %d times, want 2", tr.count())
	}
	for _, id := range []uuid.UUID{first.ID, second.ID} {
		if got := store.get(id); got.Status != followup.StatusSent {
			t.Errorf("event %s = %+v", id, got)
		}
	}
}

func TestRunSweepReclaimsExpiredClaims(t *testing.T) {
	lm, leadID := testLeads()
	e := dueEvent(leadID, leads.ChannelEmail, 0)
	expired := sweepNow.Add(-time.Second)
	e.Status = followup.StatusProcessing
	e.ClaimedUntil = &expired
	held := dueEvent(leadID, leads.ChannelEmail, 0)
	until := sweepNow.Add(time.Minute)
	held.Status = followup.StatusProcessing
	held.ClaimedUntil = &until
	store := newMemStore(e, held)

	summary, err := newTestSweeper(store, lm, &fakeTransport{}, &openLease{}, nil).RunSweep(context.Background(), sweepNow)
	if err != nil {
		t.Fatalf("RunSweep: %v", err)
	}
	if summary != (Summary{Sent: 1}) {
		t.Fatalf("summary = %+v", summary)
	}
	if got := store.get(e.ID); got.Status != followup.StatusSent || got.ClaimedUntil != nil {
		t.Fatalf("expired claim = %+v", got)
	}
	if got := store.get(held.ID); got.Status != followup.StatusProcessing {
		t.Fatalf("live claim = %+v", got)
	}
}

func TestCancelDuringDispatchLeavesEventSent(t *testing.T) {
	lm, leadID := testLeads()
	e := dueEvent(leadID, leads.ChannelEmail, 0)
	store := newMemStore(e)

	var cancelled atomic.Bool
	tr := &fakeTransport{onSend: func(string) {
		ok, _ := store.CompareAndSet(context.Background(), e.ID, followup.StatusPending, followup.StatusCancelled, followup.Transition{})
		cancelled.Store(ok)
	}}

	summary, err := newTestSweeper(store, lm, tr, &openLease{}, nil).RunSweep(context.Background(), sweepNow)
	if err != nil {
		t.Fatalf("RunSweep: %v", err)
	}
	if cancelled.Load() {
		t.Fatal("cancel applied to an event being delivered")
	}
	if summary != (Summary{Sent: 1}) {
		t.Fatalf("summary = %+v", summary)
	}
	if got := store.get(e.ID); got.Status != followup.StatusSent {
		t.Fatalf("event = %+v, want sent", got)
	}
}

func TestRunSweepReleasesClaimsWhenLeaseLost(t *testing.T) {
	lm, leadID := testLeads()
	evts := []followup.Event{
		dueEvent(leadID, leads.ChannelEmail, 0),
		dueEvent(leadID, leads.ChannelEmail, 0),
		dueEvent(leadID, leads.ChannelEmail, 0),
	}
	store := newMemStore(evts...)
	tr := &fakeTransport{delay: 100 * time.Millisecond}
	lease := &stolenLease{ttl: 30 * time.Millisecond}

	summary, err := newTestSweeperWith(store, lm, tr, lease, nil, Options{Concurrency: 1}).RunSweep(context.Background(), sweepNow)
	if err != nil {
		t.Fatalf("RunSweep: %v", err)
	}
	if lease.extends.Load() == 0 {
		t.Fatal("lease never renewed")
	}
	if summary != (Summary{Sent: 1, Released: 2}) {
		t.Fatalf("summary = %+v", summary)
	}
	if tr.count() != 1 {
		t.Fatalf("transport called %d times, want 1", tr.count())
	}

	var pending int
	for _, e := range evts {
		got := store.get(e.ID)
		if got.Status == followup.StatusPending {
			pending++
			if got.Attempts != 0 || got.ClaimedUntil != nil {
				t.Errorf("released event = %+v", got)
			}
		}
	}
	if pending != 2 {
		t.Fatalf("pending after release = %d, want 2", pending)
	}
}

func TestRunSweepStopsStartingSendsBeforeClaimExpires(t *testing.T) {
	lm, leadID := testLeads()
	store := newMemStore(dueEvent(leadID, leads.ChannelEmail, 0), dueEvent(leadID, leads.ChannelEmail, 0))
	tr := &fakeTransport{delay: 60 * time.Millisecond}
	opts := Options{
		Concurrency:  1,
		SendTimeout:  100 * time.Millisecond,
		StoreTimeout: 5 * time.Millisecond,
		ClaimTTL:     150 * time.Millisecond,
	}

	summary, err := newTestSweeperWith(store, lm, tr, &openLease{}, nil, opts).RunSweep(context.Background(), sweepNow)
	if err != nil {
		t.Fatalf("RunSweep: %v", err)
	}
	if summary != (Summary{Sent: 1, Released: 1}) {
		t.Fatalf("summary = %+v", summary)
	}
}

func TestMinClaimTTL(t *testing.T) {
	tests := []struct {
		batch, conc int
		want        time.Duration
	}{
		{200, 8, 25 * 25 * time.Second},
		{10, 3, 4 * 25 * time.Second},
		{5, 0, 5 * 25 * time.Second},
	}
	for _, tt := range tests {
		if got := MinClaimTTL(tt.batch, tt.conc, 15*time.Second, 5*time.Second); got != tt.want {
			t.Errorf("MinClaimTTL(%d, %d) = %v, want %v", tt.batch, tt.conc, got, tt.want)
		}
	}
}
