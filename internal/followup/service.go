package followup

import (
	"context"
	"strings"
	"time"

	"leadflow_backend/internal/leads"
	"leadflow_backend/internal/textgen"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/events"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100

	// FallbackMessage is used when generated content is unavailable.
	FallbackMessage = "Following up on your inquiry. How can we help?"
)

// Store persists follow-up events.
type Store interface {
	InsertEvents(ctx context.Context, events []Event) error
	Get(ctx context.Context, id uuid.UUID) (Event, error)
	List(ctx context.Context, filter ListFilter) ([]Event, error)
	CompareAndSet(ctx context.Context, id uuid.UUID, expected, next Status, t Transition) (bool, error)
}

// LeadReader loads the lead a sequence is scheduled for.
type LeadReader interface {
	Get(ctx context.Context, id uuid.UUID) (leads.Lead, error)
}

// MessageGenerator writes follow-up content for a lead.
type MessageGenerator interface {
	GenerateMessage(ctx context.Context, lead textgen.LeadContext, kind, channel string) (string, error)
}

// Service materializes sequences and manages follow-up events.
type Service struct {
	store     Store
	leads     LeadReader
	generator MessageGenerator
	bus       events.Bus
	log       *logger.Logger
	now       func() time.Time
}

// NewService creates a follow-up Service. generator and bus may be nil.
func NewService(store Store, leadReader LeadReader, generator MessageGenerator, bus events.Bus, log *logger.Logger) *Service {
	return &Service{
		store:     store,
		leads:     leadReader,
		generator: generator,
		bus:       bus,
		log:       log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// MaterializeParams is the input to Materialize.
type MaterializeParams struct {
	SequenceType string
	LeadID       uuid.UUID
	BaseTime     time.Time
	// Channel overrides the lead's preferred channel.
	Channel string
}

// Materialize stores one pending event per step of the sequence, all or
// nothing, and returns how many were created.
func (s *Service) Materialize(ctx context.Context, p MaterializeParams) (int, error) {
	def, err := Lookup(p.SequenceType)
	if err != nil {
		return 0, err
	}
	lead, err := s.leads.Get(ctx, p.LeadID)
	if err != nil {
		return 0, err
	}
	channel, err := resolveChannel(p.Channel, lead)
	if err != nil {
		return 0, err
	}

	base := p.BaseTime
	if base.IsZero() {
		base = s.now()
	}
	planned := Plan(def, p.LeadID, channel, base)
	if err := s.store.InsertEvents(ctx, planned); err != nil {
		if s.log != nil {
			s.log.WithContext(ctx).DatabaseError("insert follow-up sequence", err, "leadId", p.LeadID, "sequence", def.Name)
		}
		return 0, err
	}

	if s.log != nil {
		s.log.Info("follow-up sequence materialized", "leadId", p.LeadID, "sequence", def.Name, "count", len(planned))
	}
	if s.bus != nil {
		s.bus.Publish(ctx, events.SequenceMaterialized{
			BaseEvent:    events.NewBaseEvent(),
			LeadID:       p.LeadID,
			SequenceType: def.Name,
			Count:        len(planned),
		})
	}
	return len(planned), nil
}

// ScheduleParams is the input to Schedule.
type ScheduleParams struct {
	LeadID      uuid.UUID
	Type        string
	ScheduledAt time.Time
	// Content is generated when empty.
	Content string
	Channel string
}

// Schedule stores a single ad-hoc follow-up.
func (s *Service) Schedule(ctx context.Context, p ScheduleParams) (Event, error) {
	kind := strings.TrimSpace(p.Type)
	if kind == "" {
		return Event{}, apperr.Validation("follow-up type is required")
	}
	if p.ScheduledAt.IsZero() {
		return Event{}, apperr.Validation("scheduledAt is required")
	}
	lead, err := s.leads.Get(ctx, p.LeadID)
	if err != nil {
		return Event{}, err
	}
	channel, err := resolveChannel(p.Channel, lead)
	if err != nil {
		return Event{}, err
	}

	content := strings.TrimSpace(p.Content)
	if content == "" {
		content = s.generate(ctx, lead, kind, channel)
	}

	e := Event{
		ID:           uuid.New(),
		LeadID:       p.LeadID,
		SequenceType: kind,
		Channel:      channel,
		ScheduledAt:  p.ScheduledAt.UTC(),
		Content:      content,
		Status:       StatusPending,
	}
	if err := s.store.InsertEvents(ctx, []Event{e}); err != nil {
		return Event{}, err
	}
	return s.store.Get(ctx, e.ID)
}

func (s *Service) generate(ctx context.Context, lead leads.Lead, kind, channel string) string {
	if s.generator == nil {
		return FallbackMessage
	}
	text, err := s.generator.GenerateMessage(ctx, textgen.LeadContext{
		Name:    lead.Name,
		Company: lead.Company,
	}, kind, channel)
	if err != nil || strings.TrimSpace(text) == "" {
		if err != nil && s.log != nil {
			s.log.Warn("follow-up generation failed, using fallback", "leadId", lead.ID, "error", err)
		}
		return FallbackMessage
	}
	return strings.TrimSpace(text)
}

// Cancel moves a pending event to cancelled. Cancelling a cancelled event
// is a no-op. An event a sweep has claimed for delivery, or one already
// sent or failed, cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, id uuid.UUID) (Event, error) {
	ok, err := s.store.CompareAndSet(ctx, id, StatusPending, StatusCancelled, Transition{At: s.now()})
	if err != nil {
		return Event{}, err
	}
	e, err := s.store.Get(ctx, id)
	if err != nil {
		return Event{}, err
	}
	if ok {
		if s.bus != nil {
			s.bus.Publish(ctx, events.FollowUpCancelled{BaseEvent: events.NewBaseEvent(), EventID: e.ID, LeadID: e.LeadID})
		}
		return e, nil
	}
	switch e.Status {
	case StatusCancelled:
		return e, nil
	case StatusProcessing:
		return Event{}, apperr.Conflict("follow-up is being delivered")
	}
	return Event{}, apperr.Conflict("follow-up is already " + string(e.Status))
}

// Get returns one event.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Event, error) {
	return s.store.Get(ctx, id)
}

// List returns events matching the filter, at most 100.
func (s *Service) List(ctx context.Context, f ListFilter) ([]Event, error) {
	if f.Limit <= 0 {
		f.Limit = defaultListLimit
	}
	if f.Limit > maxListLimit {
		f.Limit = maxListLimit
	}
	return s.store.List(ctx, f)
}

func resolveChannel(requested string, lead leads.Lead) (string, error) {
	channel := strings.ToLower(strings.TrimSpace(requested))
	if channel == "" {
		channel = lead.PreferredChannel
	}
	if channel == "" {
		channel = leads.ChannelEmail
	}
	if !leads.IsKnownChannel(channel) {
		return "", apperr.Validation("unknown channel: " + channel)
	}
	return channel, nil
}
