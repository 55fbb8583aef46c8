// Package leads owns lead contact records and the team roster that the
// routing engine balances work across.
package leads

import (
	"time"

	"github.com/google/uuid"
)

// Contact channels a lead can be reached on.
const (
	ChannelEmail    = "email"
	ChannelSMS      = "sms"
	ChannelWhatsApp = "whatsapp"
	ChannelChat     = "chat"
	ChannelForm     = "form"
)

// Lead is a prospective customer with the firmographic attributes used
// by additive scoring.
type Lead struct {
	ID               uuid.UUID `json:"id"`
	Name             string    `json:"name"`
	Email            string    `json:"email"`
	Phone            string    `json:"phone"`
	ChatHandle       string    `json:"chatHandle"`
	Company          string    `json:"company"`
	Industry         string    `json:"industry"`
	CompanySize      int       `json:"companySize"`
	EngagementRate   float64   `json:"engagementRate"`
	BudgetAmount     float64   `json:"budgetAmount"`
	PreferredChannel string    `json:"preferredChannel"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// HasEmail reports whether the lead carries a plausible email address.
func (l Lead) HasEmail() bool {
	return containsAt(l.Email)
}

// HasPhone reports whether the lead carries a phone number.
func (l Lead) HasPhone() bool {
	return trimmed(l.Phone) != ""
}

// TeamMember is a routable member of a team. CurrentLoad is read fresh on
// every routing call.
type TeamMember struct {
	ID          uuid.UUID `json:"id"`
	Team        string    `json:"team"`
	Name        string    `json:"name"`
	CurrentLoad int       `json:"currentLoad"`
	CreatedAt   time.Time `json:"createdAt"`
}

// CreateLeadParams carries the fields for a new lead.
type CreateLeadParams struct {
	Name             string
	Email            string
	Phone            string
	ChatHandle       string
	Company          string
	Industry         string
	CompanySize      int
	EngagementRate   float64
	BudgetAmount     float64
	PreferredChannel string
}

// CreateMemberParams carries the fields for a new team member.
type CreateMemberParams struct {
	Team        string
	Name        string
	CurrentLoad int
}

// ListParams pages through leads.
type ListParams struct {
	Limit  int
	Offset int
}
