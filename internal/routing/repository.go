package routing

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"leadflow_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const errRepoNotConfigured = "routing repository not configured"

// Repository persists tasks and routing decisions in Postgres.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const taskColumns = `id, lead_id, title, description, task_type, intent, assigned_team, assigned_to,
	priority, due_at, status, created_at, updated_at`

func scanTask(row pgx.Row) (Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.LeadID, &t.Title, &t.Description, &t.TaskType, &t.Intent, &t.AssignedTeam,
		&t.AssignedTo, &t.Priority, &t.DueAt, &t.Status, &t.CreatedAt, &t.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Task{}, apperr.NotFound("task not found")
	}
	return t, err
}

func (r *Repository) CreateTask(ctx context.Context, t Task) (Task, error) {
	if r == nil || r.pool == nil {
		return Task{}, errors.New(errRepoNotConfigured)
	}

	return scanTask(r.pool.QueryRow(ctx,
		`INSERT INTO tasks (id, lead_id, title, description, task_type, intent, assigned_team, assigned_to,
			priority, due_at, status, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		 RETURNING `+taskColumns,
		t.ID, t.LeadID, t.Title, t.Description, t.TaskType, t.Intent, t.AssignedTeam, t.AssignedTo,
		string(t.Priority), t.DueAt, string(t.Status), t.CreatedAt, t.UpdatedAt,
	))
}

func (r *Repository) GetTask(ctx context.Context, id uuid.UUID) (Task, error) {
	if r == nil || r.pool == nil {
		return Task{}, errors.New(errRepoNotConfigured)
	}

	return scanTask(r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id))
}

func (r *Repository) ListTasks(ctx context.Context, f TaskFilter) ([]Task, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New(errRepoNotConfigured)
	}

	var (
		where []string
		args  []interface{}
	)
	add := func(clause string, value interface{}) {
		args = append(args, value)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if f.LeadID != nil {
		add("lead_id = $%d", *f.LeadID)
	}
	if f.Team != "" {
		add("assigned_team = $%d", f.Team)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}

	query := `SELECT ` + taskColumns + ` FROM tasks`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit, f.Offset)
	query += fmt.Sprintf(` ORDER BY due_at ASC, id LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	tasks := make([]Task, 0)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

func (r *Repository) UpdateStatus(ctx context.Context, id uuid.UUID, expected, next TaskStatus) (Task, error) {
	if r == nil || r.pool == nil {
		return Task{}, errors.New(errRepoNotConfigured)
	}

	task, err := scanTask(r.pool.QueryRow(ctx,
		`UPDATE tasks SET status = $3, updated_at = now()
		 WHERE id = $1 AND status = $2
		 RETURNING `+taskColumns,
		id, string(expected), string(next),
	))
	if apperr.Is(err, apperr.KindNotFound) {
		return Task{}, apperr.Conflict("task status changed concurrently")
	}
	return task, err
}

func (r *Repository) Assign(ctx context.Context, id uuid.UUID, memberID uuid.UUID) (Task, error) {
	if r == nil || r.pool == nil {
		return Task{}, errors.New(errRepoNotConfigured)
	}

	return scanTask(r.pool.QueryRow(ctx,
		`UPDATE tasks SET assigned_to = $2, updated_at = now()
		 WHERE id = $1
		 RETURNING `+taskColumns,
		id, memberID,
	))
}

func (r *Repository) AppendDecision(ctx context.Context, d Decision) error {
	if r == nil || r.pool == nil {
		return errors.New(errRepoNotConfigured)
	}

	_, err := r.pool.Exec(ctx,
		`INSERT INTO routing_decisions (id, lead_id, team, assigned_member_id, score, decided_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		d.ID, d.LeadID, d.Team, d.AssignedMemberID, d.Score, d.DecidedAt,
	)
	return err
}

func (r *Repository) ListDecisions(ctx context.Context, leadID uuid.UUID) ([]Decision, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New(errRepoNotConfigured)
	}

	rows, err := r.pool.Query(ctx,
		`SELECT id, lead_id, team, assigned_member_id, score, decided_at
		 FROM routing_decisions WHERE lead_id = $1
		 ORDER BY decided_at DESC`,
		leadID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	decisions := make([]Decision, 0)
	for rows.Next() {
		var d Decision
		if err := rows.Scan(&d.ID, &d.LeadID, &d.Team, &d.AssignedMemberID, &d.Score, &d.DecidedAt); err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}
