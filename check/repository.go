package check

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned by repositories when no check row exists.
var ErrNotFound = errors.New("check: not found")

// Repository persists checks.
type Repository interface {
	Create(ctx context.Context, c Check) (Check, error)
	Get(ctx context.Context, id string) (Check, error)
	Update(ctx context.Context, c Check) (Check, error)
	// ListByChild returns the child's checks, newest first.
	ListByChild(ctx context.Context, childID string) ([]Check, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const checkColumns = `id::text, family_id, child_id, monitoring_start_date, trigger_type, status, check_completed_date, created_at, updated_at`

func (r *PGRepository) Create(ctx context.Context, c Check) (Check, error) {
	const query = `
		INSERT INTO proportionality_checks (id, family_id, child_id, monitoring_start_date, trigger_type, status, check_completed_date, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + checkColumns

	created, err := scanCheck(r.pool.QueryRow(ctx, query,
		c.ID,
		c.FamilyID,
		c.ChildID,
		c.MonitoringStartDate,
		c.TriggerType,
		c.Status,
		c.CheckCompletedDate,
		c.CreatedAt,
		c.UpdatedAt,
	))
	if err != nil {
		return Check{}, fmt.Errorf("check: insert: %w", err)
	}
	return created, nil
}

func (r *PGRepository) Get(ctx context.Context, id string) (Check, error) {
	const query = `SELECT ` + checkColumns + ` FROM proportionality_checks WHERE id::text = $1`

	c, err := scanCheck(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Check{}, ErrNotFound
		}
		return Check{}, fmt.Errorf("check: get: %w", err)
	}
	return c, nil
}

func (r *PGRepository) Update(ctx context.Context, c Check) (Check, error) {
	const query = `
		UPDATE proportionality_checks
		SET status = $2,
		    check_completed_date = $3,
		    updated_at = $4
		WHERE id::text = $1
		RETURNING ` + checkColumns

	updated, err := scanCheck(r.pool.QueryRow(ctx, query, c.ID, c.Status, c.CheckCompletedDate, c.UpdatedAt))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Check{}, ErrNotFound
		}
		return Check{}, fmt.Errorf("check: update: %w", err)
	}
	return updated, nil
}

func (r *PGRepository) ListByChild(ctx context.Context, childID string) ([]Check, error) {
	const query = `SELECT ` + checkColumns + `
		FROM proportionality_checks
		WHERE child_id = $1
		ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, childID)
	if err != nil {
		return nil, fmt.Errorf("check: list by child: %w", err)
	}
	defer rows.Close()

	out := make([]Check, 0, 4)
	for rows.Next() {
		c, err := scanCheck(rows)
		if err != nil {
			return nil, fmt.Errorf("check: scan: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("check: iterate: %w", err)
	}
	return out, nil
}

func scanCheck(row pgx.Row) (Check, error) {
	var c Check
	err := row.Scan(
		&c.ID,
		&c.FamilyID,
		&c.ChildID,
		&c.MonitoringStartDate,
		&c.TriggerType,
		&c.Status,
		&c.CheckCompletedDate,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	return c, err
}
