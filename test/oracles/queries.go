package oracles

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Oracle is a query that must return no rows while the system is healthy.
type Oracle struct {
	Name string
	SQL  string
}

func All() []Oracle {
	return []Oracle{
		{
			Name: "O1_child_answers_private",
			SQL: `SELECT id FROM proportionality_responses
                  WHERE is_private <> (respondent_role = 'child')`,
		},
		{
			Name: "O2_completion_stamped",
			SQL: `SELECT id FROM proportionality_checks
                  WHERE (status = 'completed') <> (check_completed_date IS NOT NULL)`,
		},
		{
			Name: "O3_single_active_check",
			SQL: `SELECT child_id, COUNT(*) FROM proportionality_checks
                  WHERE status <> 'completed'
                  GROUP BY child_id HAVING COUNT(*) > 1`,
		},
		{
			Name: "O4_resolution_pairs",
			SQL: `SELECT id FROM check_disagreements
                  WHERE (resolved_at IS NULL) <> (resolution IS NULL)`,
		},
		{
			Name: "O5_disagreement_matches_check",
			SQL: `SELECT d.id FROM check_disagreements d
                  JOIN proportionality_checks c ON c.id = d.check_id
                  WHERE d.family_id <> c.family_id OR d.child_id <> c.child_id`,
		},
		{
			Name: "O6_disagreement_has_both_sides",
			SQL: `SELECT d.id FROM check_disagreements d
                  WHERE jsonb_array_length(d.parent_responses) = 0
                     OR NOT EXISTS (
                         SELECT 1 FROM proportionality_responses r
                         WHERE r.check_id = d.check_id AND r.respondent_role = 'child')`,
		},
		{
			Name: "O7_resolved_after_surfaced",
			SQL: `SELECT id FROM check_disagreements
                  WHERE resolved_at IS NOT NULL AND resolved_at < surfaced_at`,
		},
	}
}

// Run executes all oracles and returns the first failure (name and sample row
// text) or an empty name if all pass.
func Run(ctx context.Context, pool *pgxpool.Pool) (string, string, error) {
	for _, o := range All() {
		rows, err := pool.Query(ctx, o.SQL)
		if err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
		if rows.Next() {
			vals, err := rows.Values()
			rows.Close()
			if err != nil {
				return o.Name, "", err
			}
			return o.Name, fmt.Sprintf("%v", vals), nil
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return o.Name, "", fmt.Errorf("oracle %s: %w", o.Name, err)
		}
	}
	return "", "", nil
}
