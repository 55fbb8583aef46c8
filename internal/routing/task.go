package routing

import (
	"fmt"
	"strings"
	"time"

	"leadflow_backend/internal/qualification"
	"leadflow_backend/platform/apperr"

	"github.com/google/uuid"
)

// TaskStatus is the lifecycle state of a task.
type TaskStatus string

const (
	TaskOpen       TaskStatus = "open"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskClosed     TaskStatus = "closed"
)

var statusOrder = map[TaskStatus]int{
	TaskOpen:       0,
	TaskInProgress: 1,
	TaskCompleted:  2,
	TaskClosed:     3,
}

// ParseTaskStatus reads a status label.
func ParseTaskStatus(raw string) (TaskStatus, bool) {
	s := TaskStatus(strings.ToLower(strings.TrimSpace(raw)))
	_, ok := statusOrder[s]
	return s, ok
}

// CanTransition reports whether a task may move from one status to another.
// Statuses only move forward, except that a closed task may be reopened.
func CanTransition(from, to TaskStatus) bool {
	if from == TaskClosed && to == TaskOpen {
		return true
	}
	fromRank, okFrom := statusOrder[from]
	toRank, okTo := statusOrder[to]
	return okFrom && okTo && toRank > fromRank
}

// Task is a routed unit of work for a team.
type Task struct {
	ID           uuid.UUID              `json:"id"`
	LeadID       *uuid.UUID             `json:"leadId,omitempty"`
	Title        string                 `json:"title"`
	Description  string                 `json:"description"`
	TaskType     string                 `json:"taskType"`
	Intent       string                 `json:"intent"`
	AssignedTeam string                 `json:"assignedTeam"`
	AssignedTo   *uuid.UUID             `json:"assignedTo,omitempty"`
	Priority     qualification.Priority `json:"priority"`
	DueAt        time.Time              `json:"dueAt"`
	Status       TaskStatus             `json:"status"`
	CreatedAt    time.Time              `json:"createdAt"`
	UpdatedAt    time.Time              `json:"updatedAt"`
}

// Decision is an append-only record of a lead being routed to a team.
type Decision struct {
	ID               uuid.UUID  `json:"id"`
	LeadID           uuid.UUID  `json:"leadId"`
	Team             string     `json:"team"`
	AssignedMemberID *uuid.UUID `json:"assignedMemberId,omitempty"`
	Score            float64    `json:"score"`
	DecidedAt        time.Time  `json:"decidedAt"`
}

// TaskFilter narrows ListTasks. Zero fields are ignored.
type TaskFilter struct {
	LeadID *uuid.UUID
	Team   string
	Status TaskStatus
	Limit  int
	Offset int
}

func defaultTitle(taskType string) string {
	if taskType == "" {
		return "Task"
	}
	return strings.ToUpper(taskType[:1]) + taskType[1:] + " Task"
}

func transitionError(from, to TaskStatus) error {
	return apperr.Conflict(fmt.Sprintf("task cannot move from %s to %s", from, to))
}
