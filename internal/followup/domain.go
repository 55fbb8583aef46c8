package followup

import (
	"time"

	"github.com/google/uuid"
)

// Status is the delivery state of a follow-up event. Pending moves to one
// of sent, failed or cancelled exactly once. Processing marks an event a
// sweep has claimed for delivery; it returns to pending only when that
// delivery attempt did not go out.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// ParseStatus reads a status label.
func ParseStatus(raw string) (Status, bool) {
	switch s := Status(raw); s {
	case StatusPending, StatusProcessing, StatusSent, StatusFailed, StatusCancelled:
		return s, true
	}
	return "", false
}

// Event is one scheduled follow-up message.
type Event struct {
	ID                uuid.UUID  `json:"id"`
	LeadID            uuid.UUID  `json:"leadId"`
	SequenceType      string     `json:"sequenceType"`
	Channel           string     `json:"channel"`
	ScheduledAt       time.Time  `json:"scheduledAt"`
	Content           string     `json:"content"`
	Status            Status     `json:"status"`
	SentAt            *time.Time `json:"sentAt,omitempty"`
	Attempts          int        `json:"attempts"`
	NextAttemptAt     *time.Time `json:"nextAttemptAt,omitempty"`
	LastError         *string    `json:"lastError,omitempty"`
	ProviderMessageID *string    `json:"providerMessageId,omitempty"`
	ClaimedUntil      *time.Time `json:"claimedUntil,omitempty"`
	CreatedAt         time.Time  `json:"createdAt"`
	UpdatedAt         time.Time  `json:"updatedAt"`
}

// Transition carries the fields written alongside a status change.
type Transition struct {
	At                time.Time
	ProviderMessageID string
}

// FailedAttempt records a delivery failure on a claimed event. The event
// goes back to pending unless Terminal is set.
type FailedAttempt struct {
	Attempts      int
	NextAttemptAt *time.Time
	LastError     string
	Terminal      bool
}

// ListFilter narrows List. Zero fields are ignored.
type ListFilter struct {
	LeadID       *uuid.UUID
	SequenceType string
	Status       Status
	Limit        int
}
