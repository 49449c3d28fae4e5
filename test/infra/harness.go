package infra

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/jackc/pgx/v5/pgxpool"
)

// DSNEnv names the variable that points the harness at an existing database
// instead of starting a container.
const DSNEnv = "FAMWATCH_TEST_PG_DSN"

// Harness owns a migrated Postgres database for integration tests. The
// database comes from, in order: an explicit DSN, DSNEnv, a Docker container,
// or a local Postgres on 127.0.0.1.
type Harness struct {
	container *PGContainer
	pool      *pgxpool.Pool
	dsn       string
	teardown  func(context.Context) error
}

func NewHarness(ctx context.Context, dsn string) (*Harness, error) {
	if dsn == "" {
		dsn = os.Getenv(DSNEnv)
	}
	shared := dsn != ""

	h := &Harness{}
	if !shared {
		var err error
		if dockerAvailable(ctx) {
			h.container, dsn, err = StartPostgres16(ctx)
			if err != nil {
				return nil, fmt.Errorf("start postgres container: %w", err)
			}
		} else {
			dsn, err = InitLocalDatabase(ctx)
			if err != nil {
				return nil, fmt.Errorf("init local database: %w", err)
			}
		}
	}
	h.dsn = dsn

	pool, teardown, err := OpenMigrated(ctx, dsn, shared)
	if err != nil {
		_ = h.container.Terminate(ctx)
		return nil, err
	}
	h.pool = pool
	h.teardown = teardown
	return h, nil
}

func (h *Harness) Pool() *pgxpool.Pool {
	return h.pool
}

// DSN returns the connection string for direct connections.
func (h *Harness) DSN() string {
	return h.dsn
}

func (h *Harness) Close(ctx context.Context) {
	if h.pool != nil {
		h.pool.Close()
	}
	if h.teardown != nil {
		_ = h.teardown(ctx)
	}
	_ = h.container.Terminate(ctx)
}

// Reset truncates every table so a test starts from an empty schema.
func (h *Harness) Reset(ctx context.Context) error {
	const truncateSQL = `TRUNCATE TABLE check_disagreements, proportionality_responses, proportionality_checks, family_members CASCADE`
	if _, err := h.pool.Exec(ctx, truncateSQL); err != nil {
		return fmt.Errorf("reset: %w", err)
	}
	return nil
}

func dockerAvailable(ctx context.Context) bool {
	if _, err := exec.LookPath("docker"); err != nil {
		return false
	}
	c := exec.CommandContext(ctx, "docker", "info")
	c.Stdout = io.Discard
	c.Stderr = io.Discard
	return c.Run() == nil
}
