package auth

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrMemberNotFound signals that the member does not exist.
	ErrMemberNotFound = errors.New("auth: member not found")
	// ErrDuplicateEmail signals that the email is already registered.
	ErrDuplicateEmail = errors.New("auth: email already exists")
	// ErrFamilyExists signals that a new family was requested under an id that
	// already has members.
	ErrFamilyExists = errors.New("auth: family already exists")
)

// Repository handles data access for authentication.
type Repository interface {
	CreateMember(ctx context.Context, params CreateMemberParams) (Member, error)
	GetMemberByEmail(ctx context.Context, email string) (Member, error)
	GetMemberByID(ctx context.Context, memberID string) (Member, error)
	ListFamily(ctx context.Context, familyID string) ([]Member, error)
}

// CreateMemberParams contains write parameters for creating members. With
// NewFamily set the insert fails with ErrFamilyExists when FamilyID already
// has members.
type CreateMemberParams struct {
	ID           string
	FamilyID     string
	Email        string
	FullName     string
	PasswordHash string
	Role         Role
	NewFamily    bool
}

// PGRepository implements Repository backed by PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const memberColumns = `id::text, family_id, email, full_name, password_hash, role, created_at, updated_at`

func (r *PGRepository) CreateMember(ctx context.Context, params CreateMemberParams) (Member, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return Member{}, fmt.Errorf("auth: begin: %w", err)
	}
	defer tx.Rollback(ctx)

	// Membership changes for one family are serialized until commit.
	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1::text))`, params.FamilyID); err != nil {
		return Member{}, fmt.Errorf("auth: lock family: %w", err)
	}
	if params.NewFamily {
		var exists bool
		if err := tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM family_members WHERE family_id = $1)`, params.FamilyID).
			Scan(&exists); err != nil {
			return Member{}, fmt.Errorf("auth: check family: %w", err)
		}
		if exists {
			return Member{}, ErrFamilyExists
		}
	}

	insertSQL := `
		INSERT INTO family_members (id, family_id, email, full_name, password_hash, role)
		VALUES ($1, $2, lower($3), $4, $5, $6)
		RETURNING ` + memberColumns

	member, err := scanMember(tx.QueryRow(ctx, insertSQL,
		params.ID, params.FamilyID, params.Email, params.FullName, params.PasswordHash, params.Role))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Member{}, ErrDuplicateEmail
		}
		return Member{}, fmt.Errorf("auth: create member: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return Member{}, fmt.Errorf("auth: commit member: %w", err)
	}
	return member, nil
}

func (r *PGRepository) GetMemberByEmail(ctx context.Context, email string) (Member, error) {
	selectSQL := `SELECT ` + memberColumns + ` FROM family_members WHERE email = lower($1)`

	member, err := scanMember(r.pool.QueryRow(ctx, selectSQL, email))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Member{}, ErrMemberNotFound
		}
		return Member{}, fmt.Errorf("auth: get member by email: %w", err)
	}
	return member, nil
}

func (r *PGRepository) GetMemberByID(ctx context.Context, memberID string) (Member, error) {
	selectSQL := `SELECT ` + memberColumns + ` FROM family_members WHERE id::text = $1`

	member, err := scanMember(r.pool.QueryRow(ctx, selectSQL, memberID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Member{}, ErrMemberNotFound
		}
		return Member{}, fmt.Errorf("auth: get member by id: %w", err)
	}
	return member, nil
}

func (r *PGRepository) ListFamily(ctx context.Context, familyID string) ([]Member, error) {
	selectSQL := `SELECT ` + memberColumns + ` FROM family_members WHERE family_id = $1 ORDER BY created_at`

	rows, err := r.pool.Query(ctx, selectSQL, familyID)
	if err != nil {
		return nil, fmt.Errorf("auth: list family: %w", err)
	}
	defer rows.Close()

	var members []Member
	for rows.Next() {
		member, err := scanMember(rows)
		if err != nil {
			return nil, fmt.Errorf("auth: scan member: %w", err)
		}
		members = append(members, member)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("auth: iterate members: %w", err)
	}
	return members, nil
}

func scanMember(row pgx.Row) (Member, error) {
	var member Member
	err := row.Scan(
		&member.ID,
		&member.FamilyID,
		&member.Email,
		&member.FullName,
		&member.PasswordHash,
		&member.Role,
		&member.CreatedAt,
		&member.UpdatedAt,
	)
	if err != nil {
		return Member{}, err
	}
	return member, nil
}
