package disagreement

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a disagreement id is unknown.
var ErrNotFound = errors.New("disagreement: not found")

// Repository persists disagreement records.
type Repository interface {
	Create(ctx context.Context, rec Record) (Record, error)
	Get(ctx context.Context, id string) (Record, error)
	// Resolve stamps the resolution, overwriting any earlier one.
	Resolve(ctx context.Context, rec Record) (Record, error)
	// ListUnresolvedByFamily returns open records, oldest first.
	ListUnresolvedByFamily(ctx context.Context, familyID string) ([]Record, error)
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const recordColumns = `id::text, check_id::text, family_id, child_id, child_response, parent_responses,
	disagreement_type, surfaced_at, resolved_at, resolution`

func (r *PGRepository) Create(ctx context.Context, rec Record) (Record, error) {
	const query = `
		INSERT INTO check_disagreements (id, check_id, family_id, child_id, child_response, parent_responses,
			disagreement_type, surfaced_at, resolved_at, resolution)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7, $8, $9, $10)
		RETURNING ` + recordColumns

	parents, err := json.Marshal(rec.ParentResponses)
	if err != nil {
		return Record{}, fmt.Errorf("disagreement: marshal parent responses: %w", err)
	}

	created, err := scanRecord(r.pool.QueryRow(ctx, query,
		rec.ID,
		rec.CheckID,
		rec.FamilyID,
		rec.ChildID,
		rec.ChildResponse,
		string(parents),
		rec.DisagreementType,
		rec.SurfacedAt,
		rec.ResolvedAt,
		rec.Resolution,
	))
	if err != nil {
		return Record{}, fmt.Errorf("disagreement: insert: %w", err)
	}
	return created, nil
}

func (r *PGRepository) Get(ctx context.Context, id string) (Record, error) {
	const query = `SELECT ` + recordColumns + ` FROM check_disagreements WHERE id::text = $1`

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("disagreement: get: %w", err)
	}
	return rec, nil
}

func (r *PGRepository) Resolve(ctx context.Context, rec Record) (Record, error) {
	const query = `
		UPDATE check_disagreements
		SET resolved_at = $2,
		    resolution = $3
		WHERE id::text = $1
		RETURNING ` + recordColumns

	updated, err := scanRecord(r.pool.QueryRow(ctx, query, rec.ID, rec.ResolvedAt, rec.Resolution))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Record{}, ErrNotFound
		}
		return Record{}, fmt.Errorf("disagreement: resolve: %w", err)
	}
	return updated, nil
}

func (r *PGRepository) ListUnresolvedByFamily(ctx context.Context, familyID string) ([]Record, error) {
	const query = `SELECT ` + recordColumns + `
		FROM check_disagreements
		WHERE family_id = $1 AND resolved_at IS NULL
		ORDER BY surfaced_at ASC`

	rows, err := r.pool.Query(ctx, query, familyID)
	if err != nil {
		return nil, fmt.Errorf("disagreement: list unresolved: %w", err)
	}
	defer rows.Close()

	out := make([]Record, 0, 4)
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("disagreement: scan: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("disagreement: iterate: %w", err)
	}
	return out, nil
}

func scanRecord(row pgx.Row) (Record, error) {
	var (
		rec     Record
		parents []byte
	)
	err := row.Scan(
		&rec.ID,
		&rec.CheckID,
		&rec.FamilyID,
		&rec.ChildID,
		&rec.ChildResponse,
		&parents,
		&rec.DisagreementType,
		&rec.SurfacedAt,
		&rec.ResolvedAt,
		&rec.Resolution,
	)
	if err != nil {
		return Record{}, err
	}
	if err := json.Unmarshal(parents, &rec.ParentResponses); err != nil {
		return Record{}, fmt.Errorf("disagreement: decode parent responses: %w", err)
	}
	return rec, nil
}
