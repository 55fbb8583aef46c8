package leads

import (
	"context"
	"errors"

	"leadflow_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const errRepoNotConfigured = "leads repository not configured"

// Repository persists leads and team members in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const leadColumns = `id, name, email, phone, chat_handle, company, industry, company_size,
	engagement_rate, budget_amount, preferred_channel, created_at, updated_at`

func scanLead(row pgx.Row) (Lead, error) {
	var l Lead
	err := row.Scan(&l.ID, &l.Name, &l.Email, &l.Phone, &l.ChatHandle, &l.Company, &l.Industry,
		&l.CompanySize, &l.EngagementRate, &l.BudgetAmount, &l.PreferredChannel, &l.CreatedAt, &l.UpdatedAt)
	return l, err
}

// CreateLead inserts a lead and returns the stored row.
func (r *Repository) CreateLead(ctx context.Context, p CreateLeadParams) (Lead, error) {
	if r == nil || r.pool == nil {
		return Lead{}, errors.New(errRepoNotConfigured)
	}

	row := r.pool.QueryRow(ctx,
		`INSERT INTO leads (id, name, email, phone, chat_handle, company, industry, company_size,
			engagement_rate, budget_amount, preferred_channel)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 RETURNING `+leadColumns,
		uuid.New(), p.Name, p.Email, p.Phone, p.ChatHandle, p.Company, p.Industry, p.CompanySize,
		p.EngagementRate, p.BudgetAmount, p.PreferredChannel,
	)
	return scanLead(row)
}

// GetLead loads a lead by id.
func (r *Repository) GetLead(ctx context.Context, id uuid.UUID) (Lead, error) {
	if r == nil || r.pool == nil {
		return Lead{}, errors.New(errRepoNotConfigured)
	}

	lead, err := scanLead(r.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, apperr.NotFound("lead not found")
	}
	return lead, err
}

// ListLeads returns leads newest first.
func (r *Repository) ListLeads(ctx context.Context, p ListParams) ([]Lead, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New(errRepoNotConfigured)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT `+leadColumns+` FROM leads ORDER BY created_at DESC, id LIMIT $1 OFFSET $2`,
		p.Limit, p.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, lead)
	}
	return out, rows.Err()
}

// CreateMember inserts a team member.
func (r *Repository) CreateMember(ctx context.Context, p CreateMemberParams) (TeamMember, error) {
	if r == nil || r.pool == nil {
		return TeamMember{}, errors.New(errRepoNotConfigured)
	}

	var m TeamMember
	err := r.pool.QueryRow(ctx,
		`INSERT INTO team_members (id, team, name, current_load)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, team, name, current_load, created_at`,
		uuid.New(), p.Team, p.Name, p.CurrentLoad,
	).Scan(&m.ID, &m.Team, &m.Name, &m.CurrentLoad, &m.CreatedAt)
	return m, err
}

// ListMembers returns the members of a team in a stable input order.
// An empty team returns every member.
func (r *Repository) ListMembers(ctx context.Context, team string) ([]TeamMember, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New(errRepoNotConfigured)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, team, name, current_load, created_at
		 FROM team_members
		 WHERE $1 = '' OR team = $1
		 ORDER BY created_at, id`,
		team,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []TeamMember
	for rows.Next() {
		var m TeamMember
		if err := rows.Scan(&m.ID, &m.Team, &m.Name, &m.CurrentLoad, &m.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
