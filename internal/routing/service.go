package routing

import (
	"context"
	"strings"
	"time"

	"leadflow_backend/internal/leads"
	"leadflow_backend/internal/qualification"
	"leadflow_backend/internal/textgen"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/events"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/sanitize"

	"github.com/google/uuid"
)

const (
	defaultListLimit = 50
	maxListLimit     = 100
)

// TaskStore persists tasks.
type TaskStore interface {
	CreateTask(ctx context.Context, task Task) (Task, error)
	GetTask(ctx context.Context, id uuid.UUID) (Task, error)
	ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error)
	// UpdateStatus moves a task only if it is still in the expected status.
	UpdateStatus(ctx context.Context, id uuid.UUID, expected, next TaskStatus) (Task, error)
	Assign(ctx context.Context, id uuid.UUID, memberID uuid.UUID) (Task, error)
}

// DecisionStore appends routing decisions.
type DecisionStore interface {
	AppendDecision(ctx context.Context, d Decision) error
	ListDecisions(ctx context.Context, leadID uuid.UUID) ([]Decision, error)
}

// Workload reads current team members. Loads are owned elsewhere; routing
// never changes them.
type Workload interface {
	Members(ctx context.Context, team string) ([]leads.TeamMember, error)
}

// LeadScorer scores a lead before it is routed.
type LeadScorer interface {
	QualifyProfile(ctx context.Context, leadID uuid.UUID) (qualification.Result, error)
}

// IntentClassifier labels inbound content.
type IntentClassifier interface {
	ClassifyIntent(ctx context.Context, message string) (textgen.Intent, error)
}

// Archiver stores routing decisions for audit.
type Archiver interface {
	ArchiveDecision(ctx context.Context, leadID uuid.UUID, decision any) error
}

// Deps groups Service collaborators. Intents and Archive are optional.
type Deps struct {
	Rules     *RuleTable
	Tasks     TaskStore
	Decisions DecisionStore
	Workload  Workload
	Scorer    LeadScorer
	Intents   IntentClassifier
	Archive   Archiver
	Bus       events.Bus
	Log       *logger.Logger
}

// Service routes content to teams and leads to members.
type Service struct {
	rules     *RuleTable
	tasks     TaskStore
	decisions DecisionStore
	workload  Workload
	scorer    LeadScorer
	intents   IntentClassifier
	archive   Archiver
	bus       events.Bus
	log       *logger.Logger
	now       func() time.Time
}

// NewService creates a routing Service.
func NewService(d Deps) *Service {
	return &Service{
		rules:     d.Rules,
		tasks:     d.Tasks,
		decisions: d.Decisions,
		workload:  d.Workload,
		scorer:    d.Scorer,
		intents:   d.Intents,
		archive:   d.Archive,
		bus:       d.Bus,
		log:       d.Log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// RouteContent matches content against the rule table. It never fails.
func (s *Service) RouteContent(content string) Route {
	return s.rules.Match(content)
}

// RouteTaskParams is the input to RouteTask.
type RouteTaskParams struct {
	LeadID  *uuid.UUID
	Content string
	Title   string
}

// RouteTask creates a task for the team the content routes to.
func (s *Service) RouteTask(ctx context.Context, p RouteTaskParams) (Task, error) {
	p.Content = sanitize.Text(p.Content)
	route := s.RouteContent(p.Content)
	now := s.now()

	title := sanitize.Field(p.Title)
	if title == "" {
		title = defaultTitle(route.TaskType)
	}

	intent := textgen.IntentOther
	if s.intents != nil {
		// ClassifyIntent already degrades to OTHER on failure.
		intent, _ = s.intents.ClassifyIntent(ctx, p.Content)
	}

	task, err := s.tasks.CreateTask(ctx, Task{
		ID:           uuid.New(),
		LeadID:       p.LeadID,
		Title:        title,
		Description:  p.Content,
		TaskType:     route.TaskType,
		Intent:       string(intent),
		AssignedTeam: route.Team,
		Priority:     route.Priority,
		DueAt:        DueAt(route.Priority, now),
		Status:       TaskOpen,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		if s.log != nil {
			s.log.WithContext(ctx).DatabaseError("create task", err, "leadId", p.LeadID)
		}
		return Task{}, err
	}

	if s.bus != nil {
		s.bus.Publish(ctx, events.TaskRouted{
			BaseEvent: events.At(now),
			TaskID:    task.ID,
			LeadID:    task.LeadID,
			TaskType:  task.TaskType,
			Team:      task.AssignedTeam,
			Priority:  string(task.Priority),
			Intent:    task.Intent,
			DueAt:     task.DueAt,
			Title:     task.Title,
		})
	}
	return task, nil
}

// RouteToMember scores the lead, picks the least-loaded member of the team
// (any team when empty) and appends a routing decision. No members means a
// decision without an assignee.
func (s *Service) RouteToMember(ctx context.Context, leadID uuid.UUID, team string) (Decision, error) {
	team = strings.ToLower(strings.TrimSpace(team))

	result, err := s.scorer.QualifyProfile(ctx, leadID)
	if err != nil {
		return Decision{}, err
	}

	members, err := s.workload.Members(ctx, team)
	if err != nil {
		return Decision{}, err
	}

	decision := Decision{
		ID:        uuid.New(),
		LeadID:    leadID,
		Team:      team,
		Score:     result.QualityScore,
		DecidedAt: s.now(),
	}
	if member, ok := SelectMember(members); ok {
		id := member.ID
		decision.AssignedMemberID = &id
		decision.Team = member.Team
	}
	if decision.Team == "" {
		decision.Team = s.rules.Match("").Team
	}

	if err := s.decisions.AppendDecision(ctx, decision); err != nil {
		if s.log != nil {
			s.log.WithContext(ctx).DatabaseError("append routing decision", err, "leadId", leadID)
		}
		return Decision{}, err
	}
	s.afterDecision(ctx, decision)
	return decision, nil
}

func (s *Service) afterDecision(ctx context.Context, d Decision) {
	if s.bus != nil {
		s.bus.Publish(ctx, events.LeadAssigned{
			BaseEvent:        events.At(d.DecidedAt),
			DecisionID:       d.ID,
			LeadID:           d.LeadID,
			Team:             d.Team,
			AssignedMemberID: d.AssignedMemberID,
			Score:            d.Score,
		})
	}
	if s.archive != nil {
		if err := s.archive.ArchiveDecision(ctx, d.LeadID, d); err != nil && s.log != nil {
			s.log.Warn("failed to archive routing decision", "leadId", d.LeadID, "error", err)
		}
	}
}

// Decisions returns the routing history of a lead, newest first.
func (s *Service) Decisions(ctx context.Context, leadID uuid.UUID) ([]Decision, error) {
	return s.decisions.ListDecisions(ctx, leadID)
}

// GetTask returns a task by id.
func (s *Service) GetTask(ctx context.Context, id uuid.UUID) (Task, error) {
	return s.tasks.GetTask(ctx, id)
}

// ListTasks returns tasks matching the filter.
func (s *Service) ListTasks(ctx context.Context, filter TaskFilter) ([]Task, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultListLimit
	}
	if filter.Limit > maxListLimit {
		filter.Limit = maxListLimit
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}
	filter.Team = strings.ToLower(strings.TrimSpace(filter.Team))
	return s.tasks.ListTasks(ctx, filter)
}

// UpdateStatus moves a task to the given status if the lifecycle allows it.
// Setting the current status again is a no-op.
func (s *Service) UpdateStatus(ctx context.Context, id uuid.UUID, status TaskStatus) (Task, error) {
	if _, ok := statusOrder[status]; !ok {
		return Task{}, apperr.Validation("unknown task status")
	}
	task, err := s.tasks.GetTask(ctx, id)
	if err != nil {
		return Task{}, err
	}
	if task.Status == status {
		return task, nil
	}
	if !CanTransition(task.Status, status) {
		return Task{}, transitionError(task.Status, status)
	}
	return s.tasks.UpdateStatus(ctx, id, task.Status, status)
}

// AssignTask sets the assignee of a task.
func (s *Service) AssignTask(ctx context.Context, id uuid.UUID, memberID uuid.UUID) (Task, error) {
	return s.tasks.Assign(ctx, id, memberID)
}
