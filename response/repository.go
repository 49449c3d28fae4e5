package response

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned by repositories when no response row exists.
var ErrNotFound = errors.New("response: not found")

// Repository persists responses. ListByCheck must return insertion order.
type Repository interface {
	Create(ctx context.Context, r Response) (Response, error)
	Get(ctx context.Context, id string) (Response, error)
	ListByCheck(ctx context.Context, checkID string) ([]Response, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const responseColumns = `id::text, check_id::text, respondent_id, respondent_role, is_monitoring_appropriate,
	has_external_risk_changed, has_maturity_increased, freeform_feedback, suggested_changes, is_private, submitted_at`

func (r *PGRepository) Create(ctx context.Context, resp Response) (Response, error) {
	const query = `
		INSERT INTO proportionality_responses (id, check_id, respondent_id, respondent_role, is_monitoring_appropriate,
			has_external_risk_changed, has_maturity_increased, freeform_feedback, suggested_changes, is_private, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		RETURNING ` + responseColumns

	suggested := resp.SuggestedChanges
	if suggested == nil {
		suggested = []string{}
	}

	created, err := scanResponse(r.pool.QueryRow(ctx, query,
		resp.ID,
		resp.CheckID,
		resp.RespondentID,
		resp.RespondentRole,
		resp.IsMonitoringAppropriate,
		resp.HasExternalRiskChanged,
		resp.HasMaturityIncreased,
		resp.FreeformFeedback,
		suggested,
		resp.IsPrivate,
		resp.SubmittedAt,
	))
	if err != nil {
		return Response{}, fmt.Errorf("response: insert: %w", err)
	}
	return created, nil
}

func (r *PGRepository) Get(ctx context.Context, id string) (Response, error) {
	const query = `SELECT ` + responseColumns + ` FROM proportionality_responses WHERE id::text = $1`

	resp, err := scanResponse(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Response{}, ErrNotFound
		}
		return Response{}, fmt.Errorf("response: get: %w", err)
	}
	return resp, nil
}

func (r *PGRepository) ListByCheck(ctx context.Context, checkID string) ([]Response, error) {
	const query = `SELECT ` + responseColumns + `
		FROM proportionality_responses
		WHERE check_id::text = $1
		ORDER BY seq ASC`

	rows, err := r.pool.Query(ctx, query, checkID)
	if err != nil {
		return nil, fmt.Errorf("response: list by check: %w", err)
	}
	defer rows.Close()

	out := make([]Response, 0, 4)
	for rows.Next() {
		resp, err := scanResponse(rows)
		if err != nil {
			return nil, fmt.Errorf("response: scan: %w", err)
		}
		out = append(out, resp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("response: iterate: %w", err)
	}
	return out, nil
}

func scanResponse(row pgx.Row) (Response, error) {
	var resp Response
	err := row.Scan(
		&resp.ID,
		&resp.CheckID,
		&resp.RespondentID,
		&resp.RespondentRole,
		&resp.IsMonitoringAppropriate,
		&resp.HasExternalRiskChanged,
		&resp.HasMaturityIncreased,
		&resp.FreeformFeedback,
		&resp.SuggestedChanges,
		&resp.IsPrivate,
		&resp.SubmittedAt,
	)
	return resp, err
}
