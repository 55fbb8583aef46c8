package leads

import (
	"context"
	"strings"

	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/sanitize"

	"github.com/google/uuid"
)

const maxListLimit = 100

// Store is the persistence surface the lead service depends on.
type Store interface {
	CreateLead(ctx context.Context, p CreateLeadParams) (Lead, error)
	GetLead(ctx context.Context, id uuid.UUID) (Lead, error)
	ListLeads(ctx context.Context, p ListParams) ([]Lead, error)
	CreateMember(ctx context.Context, p CreateMemberParams) (TeamMember, error)
	ListMembers(ctx context.Context, team string) ([]TeamMember, error)
}

// PhoneNormalizer formats phone numbers to E.164.
type PhoneNormalizer interface {
	NormalizeE164(input string) string
}

// Service manages leads and team members.
type Service struct {
	store Store
	phone PhoneNormalizer
}

// NewService creates a lead Service.
func NewService(store Store, phone PhoneNormalizer) *Service {
	return &Service{store: store, phone: phone}
}

// Create normalizes and stores a new lead.
func (s *Service) Create(ctx context.Context, p CreateLeadParams) (Lead, error) {
	p.Name = sanitize.Field(p.Name)
	p.Company = sanitize.Field(p.Company)
	p.Industry = sanitize.Field(p.Industry)
	p.Email = strings.ToLower(strings.TrimSpace(p.Email))
	if s.phone != nil {
		p.Phone = s.phone.NormalizeE164(p.Phone)
	}
	p.PreferredChannel = strings.ToLower(strings.TrimSpace(p.PreferredChannel))
	if p.PreferredChannel == "" {
		p.PreferredChannel = ChannelEmail
	}
	if !IsKnownChannel(p.PreferredChannel) {
		return Lead{}, apperr.Validation("unsupported preferred channel: " + p.PreferredChannel)
	}
	if p.CompanySize < 0 {
		p.CompanySize = 0
	}
	return s.store.CreateLead(ctx, p)
}

// Get returns a lead by id.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Lead, error) {
	return s.store.GetLead(ctx, id)
}

// List pages through leads. Limit is clamped to 1..100.
func (s *Service) List(ctx context.Context, p ListParams) ([]Lead, error) {
	if p.Limit <= 0 || p.Limit > maxListLimit {
		p.Limit = maxListLimit
	}
	if p.Offset < 0 {
		p.Offset = 0
	}
	return s.store.ListLeads(ctx, p)
}

// CreateMember adds a member to a team.
func (s *Service) CreateMember(ctx context.Context, p CreateMemberParams) (TeamMember, error) {
	p.Team = strings.ToLower(strings.TrimSpace(p.Team))
	p.Name = strings.TrimSpace(p.Name)
	if p.Team == "" || p.Name == "" {
		return TeamMember{}, apperr.Validation("team and name are required")
	}
	if p.CurrentLoad < 0 {
		p.CurrentLoad = 0
	}
	return s.store.CreateMember(ctx, p)
}

// Members returns a team's current roster. Loads are never cached.
func (s *Service) Members(ctx context.Context, team string) ([]TeamMember, error) {
	return s.store.ListMembers(ctx, strings.ToLower(strings.TrimSpace(team)))
}
