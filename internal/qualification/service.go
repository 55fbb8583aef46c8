package qualification

import (
	"context"
	"time"

	"leadflow_backend/internal/leads"
	"leadflow_backend/internal/textgen"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/events"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

const maxVersionRetries = 3

// Result is the latest qualification of a lead. Each re-qualification
// overwrites it and bumps Version.
type Result struct {
	LeadID             uuid.UUID `json:"leadId"`
	QualityScore       float64   `json:"qualityScore"`
	Priority           Priority  `json:"priority"`
	Recommendations    []string  `json:"recommendations"`
	Strategy           Strategy  `json:"strategy"`
	Rank               Rank      `json:"rank,omitempty"`
	RankRecommendation string    `json:"rankRecommendation,omitempty"`
	QualifiedAt        time.Time `json:"qualifiedAt"`
	Version            int64     `json:"version"`
}

// ResultStore persists qualification results with optimistic versioning.
type ResultStore interface {
	// Version returns the current result version of a lead (0 if never qualified).
	Version(ctx context.Context, leadID uuid.UUID) (int64, error)
	// Save writes the result if the stored version still equals expected and
	// returns the new version. A mismatch is a KindConflict error.
	Save(ctx context.Context, result Result, expected int64) (int64, error)
	Get(ctx context.Context, leadID uuid.UUID) (Result, error)
}

// LeadReader loads lead profiles.
type LeadReader interface {
	Get(ctx context.Context, id uuid.UUID) (leads.Lead, error)
}

// ConversationQualifier turns a transcript into structured signals.
type ConversationQualifier interface {
	Qualify(ctx context.Context, lead textgen.LeadContext, conversation []textgen.Turn) (textgen.Qualification, error)
}

// Archiver stores immutable snapshots for audit.
type Archiver interface {
	ArchiveScore(ctx context.Context, leadID uuid.UUID, snapshot any) error
}

// PhoneValidator reports whether a phone number is dialable.
type PhoneValidator interface {
	IsValid(input string) bool
}

// Service qualifies leads.
type Service struct {
	selector  *Selector
	store     ResultStore
	leads     LeadReader
	qualifier ConversationQualifier
	archive   Archiver
	phones    PhoneValidator
	bus       events.Bus
	log       *logger.Logger
	locks     *keyedMutex
	now       func() time.Time
}

// Deps groups the Service collaborators. Qualifier, Archive and Phones are optional.
type Deps struct {
	Selector  *Selector
	Store     ResultStore
	Leads     LeadReader
	Qualifier ConversationQualifier
	Archive   Archiver
	Phones    PhoneValidator
	Bus       events.Bus
	Log       *logger.Logger
}

// NewService creates a qualification Service.
func NewService(d Deps) *Service {
	return &Service{
		selector:  d.Selector,
		store:     d.Store,
		leads:     d.Leads,
		qualifier: d.Qualifier,
		archive:   d.Archive,
		phones:    d.Phones,
		bus:       d.Bus,
		log:       d.Log,
		locks:     newKeyedMutex(),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Evaluate scores a signal bundle without persisting anything.
func (s *Service) Evaluate(signal LeadSignal) (Score, Priority, []string) {
	return Evaluate(s.selector, signal)
}

// Evaluate scores a signal bundle with the scorer the selector picks.
func Evaluate(selector *Selector, signal LeadSignal) (Score, Priority, []string) {
	score := selector.For(signal).Score(signal)
	priority := PriorityFor(score.Value)
	return score, priority, Recommendations(priority, signal.RecommendedSteps)
}

// Qualify scores the lead from the given signals and stores the result.
// Concurrent calls for the same lead are serialized.
func (s *Service) Qualify(ctx context.Context, leadID uuid.UUID, signal LeadSignal) (Result, error) {
	if _, err := s.leads.Get(ctx, leadID); err != nil {
		return Result{}, err
	}
	return s.qualify(ctx, leadID, signal)
}

// QualifyProfile scores the lead from its stored firmographic profile.
func (s *Service) QualifyProfile(ctx context.Context, leadID uuid.UUID) (Result, error) {
	lead, err := s.leads.Get(ctx, leadID)
	if err != nil {
		return Result{}, err
	}
	return s.qualify(ctx, leadID, s.ProfileSignal(lead))
}

// QualifyConversation asks the text-generation collaborator to read the
// conversation and qualifies the lead from its structured answer.
func (s *Service) QualifyConversation(ctx context.Context, leadID uuid.UUID, conversation []textgen.Turn) (Result, error) {
	lead, err := s.leads.Get(ctx, leadID)
	if err != nil {
		return Result{}, err
	}
	if s.qualifier == nil {
		return Result{}, apperr.Configuration("conversation qualification is not configured")
	}

	q, err := s.qualifier.Qualify(ctx, textgen.LeadContext{
		Name:     lead.Name,
		Company:  lead.Company,
		Industry: lead.Industry,
	}, conversation)
	if err != nil {
		return Result{}, apperr.Transient("conversation qualification failed", err)
	}

	signal := s.ProfileSignal(lead)
	signal.AIFitScore = q.QualityScore
	signal.TimelineText = q.Timeline
	signal.BudgetText = q.Budget
	signal.IntentScore = q.IntentScore
	signal.RecommendedSteps = q.RecommendedNextSteps
	if !signal.HasConversational() {
		// An empty model answer still scores in weighted mode, at neutral fit.
		neutral := Neutral * 100
		signal.AIFitScore = &neutral
	}
	return s.qualify(ctx, leadID, signal)
}

// Get returns the latest stored result.
func (s *Service) Get(ctx context.Context, leadID uuid.UUID) (Result, error) {
	return s.store.Get(ctx, leadID)
}

// ProfileSignal builds the firmographic part of a signal from a lead record.
func (s *Service) ProfileSignal(lead leads.Lead) LeadSignal {
	hasPhone := lead.HasPhone()
	if hasPhone && s.phones != nil {
		hasPhone = s.phones.IsValid(lead.Phone)
	}
	return LeadSignal{
		CompanySize:    lead.CompanySize,
		EngagementRate: lead.EngagementRate,
		BudgetAmount:   lead.BudgetAmount,
		Industry:       lead.Industry,
		HasEmail:       lead.HasEmail(),
		HasPhone:       hasPhone,
	}
}

func (s *Service) qualify(ctx context.Context, leadID uuid.UUID, signal LeadSignal) (Result, error) {
	unlock := s.locks.Lock(leadID)
	defer unlock()

	score, priority, recs := s.Evaluate(signal)
	result := Result{
		LeadID:             leadID,
		QualityScore:       score.Value,
		Priority:           priority,
		Recommendations:    recs,
		Strategy:           score.Strategy,
		Rank:               score.Rank,
		RankRecommendation: score.RankRecommendation,
		QualifiedAt:        s.now(),
	}

	var lastErr error
	for attempt := 0; attempt < maxVersionRetries; attempt++ {
		current, err := s.store.Version(ctx, leadID)
		if err != nil {
			return Result{}, err
		}
		version, err := s.store.Save(ctx, result, current)
		if err == nil {
			result.Version = version
			s.afterSave(ctx, result)
			return result, nil
		}
		if !apperr.Is(err, apperr.KindConflict) {
			if s.log != nil {
				s.log.WithContext(ctx).DatabaseError("save qualification", err, "leadId", leadID)
			}
			return Result{}, err
		}
		lastErr = err
	}
	return Result{}, lastErr
}

func (s *Service) afterSave(ctx context.Context, result Result) {
	if s.bus != nil {
		s.bus.Publish(ctx, events.LeadQualified{
			BaseEvent:    events.NewBaseEvent(),
			LeadID:       result.LeadID,
			QualityScore: result.QualityScore,
			Priority:     string(result.Priority),
			Strategy:     string(result.Strategy),
			Rank:         string(result.Rank),
		})
	}
	if s.archive != nil {
		if err := s.archive.ArchiveScore(ctx, result.LeadID, result); err != nil && s.log != nil {
			s.log.Warn("failed to archive qualification", "leadId", result.LeadID, "error", err)
		}
	}
}
