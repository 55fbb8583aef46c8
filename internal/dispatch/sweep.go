package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"leadflow_backend/internal/channel"
	"leadflow_backend/internal/followup"
	"leadflow_backend/internal/leads"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/events"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// State is the phase of the sweep.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StateDispatching
)

func (s State) String() string {
	switch s {
	case StateScanning:
		return "scanning"
	case StateDispatching:
		return "dispatching"
	default:
		return "idle"
	}
}

// Store is the slice of the follow-up store the sweep needs. ClaimDue moves
// due events to processing so neither another sweep nor a cancel can touch
// them while they are being delivered.
type Store interface {
	ClaimDue(ctx context.Context, now time.Time, limit int, claimUntil time.Time) ([]followup.Event, error)
	CompareAndSet(ctx context.Context, id uuid.UUID, expected, next followup.Status, t followup.Transition) (bool, error)
	RecordFailedAttempt(ctx context.Context, id uuid.UUID, expectedAttempts int, f followup.FailedAttempt) (bool, error)
}

// LeadReader resolves the lead behind an event.
type LeadReader interface {
	Get(ctx context.Context, id uuid.UUID) (leads.Lead, error)
}

// Observer receives sweep and delivery measurements.
type Observer interface {
	ObserveSweep(summary Summary, elapsed time.Duration)
	ObserveDelivery(channel string, outcome string)
}

// Summary reports one sweep. Released counts claimed events handed back
// unsent because the sweep lost its lease or ran out of claim time.
type Summary struct {
	Sent      int  `json:"sent"`
	Failed    int  `json:"failed"`
	Conflicts int  `json:"conflicts"`
	Released  int  `json:"released,omitempty"`
	Skipped   bool `json:"skipped"`
}

// Options tune the sweep. Zero values take defaults.
type Options struct {
	BatchSize    int
	Concurrency  int
	SendTimeout  time.Duration
	StoreTimeout time.Duration
	MaxAttempts  int
	RetryBase    time.Duration
	RetryMax     time.Duration
	// ClaimTTL is how long claimed events stay reserved for this sweep.
	// It must cover a full batch; see MinClaimTTL.
	ClaimTTL time.Duration
}

// MinClaimTTL is the longest a batch can take: every wave of Concurrency
// events spends at most one send and two store round trips.
func MinClaimTTL(batchSize, concurrency int, send, store time.Duration) time.Duration {
	if concurrency < 1 {
		concurrency = 1
	}
	waves := (batchSize + concurrency - 1) / concurrency
	return time.Duration(waves) * (send + 2*store)
}

func (o Options) perEvent() time.Duration {
	return o.SendTimeout + 2*o.StoreTimeout
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 200
	}
	if o.Concurrency <= 0 {
		o.Concurrency = 8
	}
	if o.SendTimeout <= 0 {
		o.SendTimeout = 15 * time.Second
	}
	if o.StoreTimeout <= 0 {
		o.StoreTimeout = 5 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.RetryBase <= 0 {
		o.RetryBase = time.Minute
	}
	if o.RetryMax <= 0 {
		o.RetryMax = time.Hour
	}
	if o.ClaimTTL <= 0 {
		o.ClaimTTL = MinClaimTTL(o.BatchSize, o.Concurrency, o.SendTimeout, o.StoreTimeout) + time.Minute
	}
	return o
}

// Deps groups Sweeper collaborators. Bus and Observer may be nil.
type Deps struct {
	Store     Store
	Leads     LeadReader
	Transport channel.Transport
	Lease     Lease
	Bus       events.Bus
	Observer  Observer
	Log       *logger.Logger
}

// Sweeper delivers due follow-ups under an exclusive lease.
type Sweeper struct {
	store     Store
	leads     LeadReader
	transport channel.Transport
	lease     Lease
	bus       events.Bus
	observer  Observer
	log       *logger.Logger
	opts      Options
	state     atomic.Int32
}

// NewSweeper creates a Sweeper.
func NewSweeper(d Deps, opts Options) *Sweeper {
	s := &Sweeper{
		store:     d.Store,
		leads:     d.Leads,
		transport: d.Transport,
		lease:     d.Lease,
		bus:       d.Bus,
		observer:  d.Observer,
		log:       d.Log,
		opts:      opts.withDefaults(),
	}
	if s.log == nil {
		s.log = logger.Discard()
	}
	return s
}

// State returns the current sweep phase.
func (s *Sweeper) State() State {
	return State(s.state.Load())
}

type outcome int

const (
	outcomeSent outcome = iota
	outcomeFailed
	outcomeConflict
	outcomeReleased
)

// RunSweep delivers every event due at now. It returns an error only when
// the lease backend or the claim fails; per-event failures are counted.
//
// The lease is renewed while the sweep runs. If renewal fails, or the claim
// window is about to close, events not yet started are handed back to
// pending and only in-flight sends are finished.
func (s *Sweeper) RunSweep(ctx context.Context, now time.Time) (Summary, error) {
	started := time.Now()
	ctx = context.WithValue(ctx, logger.SweepIDKey, uuid.NewString())

	token, ok, err := s.lease.TryAcquire(ctx)
	if err != nil {
		return Summary{}, apperr.Transient("sweep lease unavailable", err)
	}
	if !ok {
		summary := Summary{Skipped: true}
		s.finish(ctx, summary, started)
		return summary, nil
	}
	defer s.release(ctx, token)
	defer s.state.Store(int32(StateIdle))

	leaseCtx, leaseLost := context.WithCancel(ctx)
	defer leaseLost()
	stopRenewal := s.renewLease(ctx, token, leaseLost)
	defer stopRenewal()

	s.state.Store(int32(StateScanning))
	scanCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	due, err := s.store.ClaimDue(scanCtx, now, s.opts.BatchSize, now.Add(s.opts.ClaimTTL))
	cancel()
	if err != nil {
		s.log.WithContext(ctx).DatabaseError("claim due follow-ups", err)
		return Summary{}, apperr.Transient("claim due follow-ups", err)
	}

	// No event may start once a send could outlive its claim.
	startBy := s.opts.ClaimTTL - s.opts.perEvent()
	if startBy <= 0 {
		startBy = s.opts.ClaimTTL
	}
	startCtx, cancelStart := context.WithTimeout(leaseCtx, startBy)
	defer cancelStart()

	s.state.Store(int32(StateDispatching))
	var (
		mu      sync.Mutex
		summary Summary
	)
	g := new(errgroup.Group)
	g.SetLimit(s.opts.Concurrency)
	for _, e := range due {
		g.Go(func() error {
			var result outcome
			if startCtx.Err() != nil {
				result = s.releaseClaim(ctx, e)
			} else {
				result = s.deliver(ctx, now, e)
			}
			mu.Lock()
			defer mu.Unlock()
			switch result {
			case outcomeSent:
				summary.Sent++
			case outcomeFailed:
				summary.Failed++
			case outcomeConflict:
				summary.Conflicts++
			case outcomeReleased:
				summary.Released++
			}
			return nil
		})
	}
	_ = g.Wait()

	s.finish(ctx, summary, started)
	return summary, nil
}

// renewLease extends the lease every third of its TTL until stopped. When an
// extension fails it calls lost and gives up.
func (s *Sweeper) renewLease(ctx context.Context, token string, lost context.CancelFunc) func() {
	every := s.lease.TTL() / 3
	if every <= 0 {
		return func() {}
	}

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				extCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
				ok, err := s.lease.Extend(extCtx, token)
				cancel()
				if err != nil || !ok {
					s.log.WithContext(ctx).Warn("sweep lease lost, stopping dispatch", "error", err)
					lost()
					return
				}
			}
		}
	}()
	return func() {
		close(done)
		wg.Wait()
	}
}

func (s *Sweeper) releaseClaim(ctx context.Context, e followup.Event) outcome {
	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.StoreTimeout)
	defer cancel()
	if _, err := s.store.CompareAndSet(storeCtx, e.ID, followup.StatusProcessing, followup.StatusPending, followup.Transition{}); err != nil {
		// The claim lapses on its own at claimed_until.
		s.log.WithContext(ctx).DatabaseError("release follow-up claim", err, "eventId", e.ID)
	}
	s.observe(e.Channel, "released")
	return outcomeReleased
}

func (s *Sweeper) finish(ctx context.Context, summary Summary, started time.Time) {
	elapsed := time.Since(started)
	s.log.WithContext(ctx).SweepCompleted(summary.Sent, summary.Failed, summary.Conflicts, summary.Released, summary.Skipped, elapsed)
	if s.observer != nil {
		s.observer.ObserveSweep(summary, elapsed)
	}
}

func (s *Sweeper) release(ctx context.Context, token string) {
	relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.StoreTimeout)
	defer cancel()
	if err := s.lease.Release(relCtx, token); err != nil {
		s.log.WithContext(ctx).Warn("failed to release sweep lease", "error", err)
	}
}

func (s *Sweeper) deliver(ctx context.Context, now time.Time, e followup.Event) outcome {
	lookupCtx, cancel := context.WithTimeout(ctx, s.opts.StoreTimeout)
	lead, err := s.leads.Get(lookupCtx, e.LeadID)
	cancel()
	if err != nil {
		return s.fail(ctx, now, e, "resolve lead: "+err.Error())
	}
	recipient, err := leads.RecipientFor(lead, e.Channel)
	if err != nil {
		return s.fail(ctx, now, e, "resolve recipient: "+err.Error())
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.opts.SendTimeout)
	res := s.transport.Send(sendCtx, e.Channel, recipient, e.Content, map[string]string{
		channel.MetadataSubject:      "Follow-up: " + e.SequenceType,
		channel.MetadataEventID:      e.ID.String(),
		channel.MetadataSequenceType: e.SequenceType,
	})
	cancel()
	if !res.Success {
		return s.fail(ctx, now, e, res.Error)
	}

	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.StoreTimeout)
	defer cancel()
	applied, err := s.store.CompareAndSet(storeCtx, e.ID, followup.StatusProcessing, followup.StatusSent, followup.Transition{
		At:                now,
		ProviderMessageID: res.ProviderMessageID,
	})
	if err != nil {
		// Delivered but not recorded; the claim lapses and a later sweep resends.
		s.log.WithContext(ctx).DatabaseError("record sent follow-up", err,
			"eventId", e.ID, "providerMessageId", res.ProviderMessageID)
		s.observe(e.Channel, "store_error")
		return outcomeFailed
	}
	if !applied {
		s.observe(e.Channel, "conflict")
		return outcomeConflict
	}

	s.observe(e.Channel, "sent")
	if s.bus != nil {
		s.bus.Publish(ctx, events.FollowUpSent{
			BaseEvent:         events.At(now),
			EventID:           e.ID,
			LeadID:            e.LeadID,
			Channel:           e.Channel,
			ProviderMessageID: res.ProviderMessageID,
		})
	}
	return outcomeSent
}

func (s *Sweeper) fail(ctx context.Context, now time.Time, e followup.Event, reason string) outcome {
	attempts := e.Attempts + 1
	failure := followup.FailedAttempt{
		Attempts:  attempts,
		LastError: reason,
		Terminal:  attempts >= s.opts.MaxAttempts,
	}
	if !failure.Terminal {
		next := now.Add(Backoff(s.opts.RetryBase, s.opts.RetryMax, attempts))
		failure.NextAttemptAt = &next
	}

	storeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.StoreTimeout)
	defer cancel()
	applied, err := s.store.RecordFailedAttempt(storeCtx, e.ID, e.Attempts, failure)
	if err != nil {
		s.log.WithContext(ctx).DatabaseError("record delivery failure", err, "eventId", e.ID)
	}
	if err == nil && !applied {
		s.observe(e.Channel, "conflict")
		return outcomeConflict
	}

	s.log.WithContext(ctx).DeliveryFailed(e.ID.String(), e.Channel, attempts, failure.Terminal, reason)
	s.observe(e.Channel, "failed")
	if failure.Terminal && err == nil && s.bus != nil {
		s.bus.Publish(ctx, events.FollowUpFailed{
			BaseEvent: events.At(now),
			EventID:   e.ID,
			LeadID:    e.LeadID,
			Channel:   e.Channel,
			Attempts:  attempts,
			Reason:    reason,
		})
	}
	return outcomeFailed
}

func (s *Sweeper) observe(channelName, result string) {
	if s.observer != nil {
		s.observer.ObserveDelivery(channelName, result)
	}
}
