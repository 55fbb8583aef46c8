package qualification

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"leadflow_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const errRepoNotConfigured = "qualification repository not configured"

// Repository stores qualification results on the leads table.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) Version(ctx context.Context, leadID uuid.UUID) (int64, error) {
	if r == nil || r.pool == nil {
		return 0, errors.New(errRepoNotConfigured)
	}

	var version int64
	err := r.pool.QueryRow(ctx, `SELECT version FROM leads WHERE id = $1`, leadID).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperr.NotFound("lead not found")
	}
	return version, err
}

func (r *Repository) Save(ctx context.Context, result Result, expected int64) (int64, error) {
	if r == nil || r.pool == nil {
		return 0, errors.New(errRepoNotConfigured)
	}

	recs, err := json.Marshal(result.Recommendations)
	if err != nil {
		return 0, err
	}
	var rank *string
	if result.Rank != "" {
		value := string(result.Rank)
		rank = &value
	}

	var version int64
	err = r.pool.QueryRow(ctx,
		`UPDATE leads
		 SET quality_score = $2, priority = $3, rank = $4, strategy = $5,
		     recommendations = $6, qualified_at = $7, version = version + 1, updated_at = now()
		 WHERE id = $1 AND version = $8
		 RETURNING version`,
		result.LeadID, result.QualityScore, string(result.Priority), rank, string(result.Strategy),
		recs, result.QualifiedAt, expected,
	).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, apperr.Conflict("lead qualification was updated concurrently")
	}
	return version, err
}

func (r *Repository) Get(ctx context.Context, leadID uuid.UUID) (Result, error) {
	if r == nil || r.pool == nil {
		return Result{}, errors.New(errRepoNotConfigured)
	}

	var (
		res      Result
		score    *float64
		priority *string
		rank     *string
		strategy *string
		recs     []byte
		at       *time.Time
	)
	err := r.pool.QueryRow(ctx,
		`SELECT id, quality_score, priority, rank, strategy, recommendations, qualified_at, version
		 FROM leads WHERE id = $1`,
		leadID,
	).Scan(&res.LeadID, &score, &priority, &rank, &strategy, &recs, &at, &res.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return Result{}, apperr.NotFound("lead not found")
	}
	if err != nil {
		return Result{}, err
	}
	if score == nil || at == nil {
		return Result{}, apperr.NotFound("lead has not been qualified")
	}
	res.QualifiedAt = *at

	res.QualityScore = *score
	if priority != nil {
		res.Priority = Priority(*priority)
	}
	if strategy != nil {
		res.Strategy = Strategy(*strategy)
	}
	if rank != nil {
		res.Rank = Rank(*rank)
		res.RankRecommendation = res.Rank.Recommendation()
	}
	if err := json.Unmarshal(recs, &res.Recommendations); err != nil {
		return Result{}, err
	}
	return res, nil
}
