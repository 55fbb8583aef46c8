package events

import (
	"time"

	"github.com/google/uuid"
)

// LeadQualified is published after a qualification result is stored.
type LeadQualified struct {
	BaseEvent
	LeadID       uuid.UUID `json:"leadId"`
	QualityScore float64   `json:"qualityScore"`
	Priority     string    `json:"priority"`
	Strategy     string    `json:"strategy"`
	Rank         string    `json:"rank,omitempty"`
}

func (e LeadQualified) EventName() string { return "lead.qualified" }

// TaskRouted is published when a task is created for a team.
type TaskRouted struct {
	BaseEvent
	TaskID     uuid.UUID  `json:"taskId"`
	LeadID     *uuid.UUID `json:"leadId,omitempty"`
	TaskType   string     `json:"taskType"`
	Team       string     `json:"team"`
	Priority   string     `json:"priority"`
	Intent     string     `json:"intent"`
	AssignedTo *uuid.UUID `json:"assignedTo,omitempty"`
	DueAt      time.Time  `json:"dueAt"`
	Title      string     `json:"title"`
}

func (e TaskRouted) EventName() string { return "task.routed" }

// LeadAssigned is published when a routing decision is appended.
type LeadAssigned struct {
	BaseEvent
	DecisionID       uuid.UUID  `json:"decisionId"`
	LeadID           uuid.UUID  `json:"leadId"`
	Team             string     `json:"team"`
	AssignedMemberID *uuid.UUID `json:"assignedMemberId,omitempty"`
	Score            float64    `json:"score"`
}

func (e LeadAssigned) EventName() string { return "lead.assigned" }

// SequenceMaterialized is published after a sequence's events are stored.
type SequenceMaterialized struct {
	BaseEvent
	LeadID       uuid.UUID `json:"leadId"`
	SequenceType string    `json:"sequenceType"`
	Count        int       `json:"count"`
}

func (e SequenceMaterialized) EventName() string { return "followup.sequence_materialized" }

// FollowUpSent is published after a follow-up moves to sent.
type FollowUpSent struct {
	BaseEvent
	EventID           uuid.UUID `json:"eventId"`
	LeadID            uuid.UUID `json:"leadId"`
	Channel           string    `json:"channel"`
	ProviderMessageID string    `json:"providerMessageId,omitempty"`
}

func (e FollowUpSent) EventName() string { return "followup.sent" }

// FollowUpFailed is published when a follow-up exhausts its attempts.
type FollowUpFailed struct {
	BaseEvent
	EventID  uuid.UUID `json:"eventId"`
	LeadID   uuid.UUID `json:"leadId"`
	Channel  string    `json:"channel"`
	Attempts int       `json:"attempts"`
	Reason   string    `json:"reason"`
}

func (e FollowUpFailed) EventName() string { return "followup.failed" }

// FollowUpCancelled is published when a pending follow-up is cancelled.
type FollowUpCancelled struct {
	BaseEvent
	EventID uuid.UUID `json:"eventId"`
	LeadID  uuid.UUID `json:"leadId"`
}

func (e FollowUpCancelled) EventName() string { return "followup.cancelled" }
