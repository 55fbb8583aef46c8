package followup

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"leadflow_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const errRepoNotConfigured = "follow-up repository not configured"

// Repository stores follow-up events in Postgres. Every status change is a
// compare-and-set conditioned on the expected current status.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const eventColumns = `id, lead_id, sequence_type, channel, scheduled_at, content, status, sent_at,
	attempts, next_attempt_at, last_error, provider_message_id, claimed_until, created_at, updated_at`

func scanEvent(row pgx.Row) (Event, error) {
	var e Event
	err := row.Scan(&e.ID, &e.LeadID, &e.SequenceType, &e.Channel, &e.ScheduledAt, &e.Content, &e.Status,
		&e.SentAt, &e.Attempts, &e.NextAttemptAt, &e.LastError, &e.ProviderMessageID, &e.ClaimedUntil, &e.CreatedAt, &e.UpdatedAt)
	return e, err
}

// InsertEvents writes all events in one transaction.
func (r *Repository) InsertEvents(ctx context.Context, events []Event) error {
	if r == nil || r.pool == nil {
		return errors.New(errRepoNotConfigured)
	}
	if len(events) == 0 {
		return nil
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(
			`INSERT INTO follow_up_events (id, lead_id, sequence_type, channel, scheduled_at, content, status)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			e.ID, e.LeadID, e.SequenceType, e.Channel, e.ScheduledAt, e.Content, string(e.Status),
		)
	}
	if err := tx.SendBatch(ctx, batch).Close(); err != nil {
		return fmt.Errorf("insert follow-up events: %w", err)
	}
	return tx.Commit(ctx)
}

func (r *Repository) Get(ctx context.Context, id uuid.UUID) (Event, error) {
	if r == nil || r.pool == nil {
		return Event{}, errors.New(errRepoNotConfigured)
	}

	e, err := scanEvent(r.pool.QueryRow(ctx, `SELECT `+eventColumns+` FROM follow_up_events WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Event{}, apperr.NotFound("follow-up not found")
	}
	return e, err
}

func (r *Repository) List(ctx context.Context, f ListFilter) ([]Event, error) {
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
	if f.SequenceType != "" {
		add("sequence_type = $%d", f.SequenceType)
	}
	if f.Status != "" {
		add("status = $%d", string(f.Status))
	}

	query := `SELECT ` + eventColumns + ` FROM follow_up_events`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	args = append(args, f.Limit)
	query += fmt.Sprintf(` ORDER BY scheduled_at ASC, id LIMIT $%d`, len(args))

	return r.query(ctx, query, args...)
}

// ClaimDue moves up to limit due events to processing and returns them.
// Due means pending, scheduled at or before now and past any retry
// backoff, or processing with a claim that expired before now (a sweep
// that died mid-delivery). Rows locked by a concurrent claim are skipped.
func (r *Repository) ClaimDue(ctx context.Context, now time.Time, limit int, claimUntil time.Time) ([]Event, error) {
	if r == nil || r.pool == nil {
		return nil, errors.New(errRepoNotConfigured)
	}
	if limit < 1 {
		limit = 50
	}

	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `WITH cte AS (
		SELECT id
		FROM follow_up_events
		WHERE (status = 'pending' AND scheduled_at <= $1
		       AND (next_attempt_at IS NULL OR next_attempt_at <= $1))
		   OR (status = 'processing' AND claimed_until <= $1)
		ORDER BY scheduled_at ASC
		LIMIT $2
		FOR UPDATE SKIP LOCKED
	)
	UPDATE follow_up_events f
	SET status = 'processing', claimed_until = $3, updated_at = now()
	FROM cte
	WHERE f.id = cte.id
	RETURNING `+prefixed("f.", eventColumns), now, limit, claimUntil)
	if err != nil {
		return nil, err
	}
	out, err := collectEvents(rows)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return out, nil
}

func prefixed(alias, columns string) string {
	parts := strings.Split(columns, ",")
	for i, p := range parts {
		parts[i] = alias + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}

func (r *Repository) query(ctx context.Context, sql string, args ...interface{}) ([]Event, error) {
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return collectEvents(rows)
}

func collectEvents(rows pgx.Rows) ([]Event, error) {
	defer rows.Close()

	out := make([]Event, 0)
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// CompareAndSet moves an event from expected to next. It reports false when
// the event was no longer in the expected status.
func (r *Repository) CompareAndSet(ctx context.Context, id uuid.UUID, expected, next Status, t Transition) (bool, error) {
	if r == nil || r.pool == nil {
		return false, errors.New(errRepoNotConfigured)
	}

	var sentAt *time.Time
	if next == StatusSent {
		at := t.At
		sentAt = &at
	}
	var providerID *string
	if t.ProviderMessageID != "" {
		providerID = &t.ProviderMessageID
	}

	tag, err := r.pool.Exec(ctx,
		`UPDATE follow_up_events
		 SET status = $3,
		     sent_at = COALESCE($4, sent_at),
		     provider_message_id = COALESCE($5, provider_message_id),
		     next_attempt_at = NULL,
		     claimed_until = NULL,
		     updated_at = now()
		 WHERE id = $1 AND status = $2`,
		id, string(expected), string(next), sentAt, providerID,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// RecordFailedAttempt stores attempt bookkeeping for a claimed event and
// releases the claim. The write only applies while the event is processing
// with expectedAttempts.
func (r *Repository) RecordFailedAttempt(ctx context.Context, id uuid.UUID, expectedAttempts int, f FailedAttempt) (bool, error) {
	if r == nil || r.pool == nil {
		return false, errors.New(errRepoNotConfigured)
	}

	status := StatusPending
	if f.Terminal {
		status = StatusFailed
	}
	tag, err := r.pool.Exec(ctx,
		`UPDATE follow_up_events
		 SET status = $3, attempts = $4, next_attempt_at = $5, last_error = $6,
		     claimed_until = NULL, updated_at = now()
		 WHERE id = $1 AND status = 'processing' AND attempts = $2`,
		id, expectedAttempts, string(status), f.Attempts, f.NextAttemptAt, f.LastError,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
