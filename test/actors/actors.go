// Package actors drives the review workflow concurrently against a real
// database. Individual operation failures are counted, not fatal: chaos kills
// connections underneath the actors and the oracles judge the outcome.
package actors

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"famwatch/check"
	"famwatch/disagreement"
	"famwatch/response"
)

type Stats struct {
	Ops      atomic.Int64
	Failures atomic.Int64
}

func (s *Stats) record(err error) {
	s.Ops.Add(1)
	if err != nil {
		s.Failures.Add(1)
	}
}

func loop(ctx context.Context, rng *rand.Rand, stats *Stats, stop <-chan struct{}, step func() error) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stop:
			return nil
		default:
		}
		stats.record(step())
		time.Sleep(time.Duration(5+rng.Intn(20)) * time.Millisecond)
	}
}

func randomChoice(rng *rand.Rand) response.Choice {
	return response.Choices[rng.Intn(len(response.Choices))]
}

// Respondent keeps answering the check as one family member.
func Respondent(ctx context.Context, svc *response.Service, checkID, memberID string, role response.Role, rng *rand.Rand, stats *Stats, stop <-chan struct{}) error {
	return loop(ctx, rng, stats, stop, func() error {
		feedback := fmt.Sprintf("answer from %s", memberID)
		_, err := svc.SubmitResponse(ctx, response.SubmitParams{
			CheckID:                 checkID,
			RespondentID:            memberID,
			RespondentRole:          role,
			IsMonitoringAppropriate: randomChoice(rng),
			FreeformFeedback:        &feedback,
			SuggestedChanges:        []string{"screen time"},
		})
		return err
	})
}

// Surfacer repeatedly records the current disagreement for a check.
func Surfacer(ctx context.Context, svc *disagreement.Service, checkID string, rng *rand.Rand, stats *Stats, stop <-chan struct{}) error {
	return loop(ctx, rng, stats, stop, func() error {
		_, err := svc.SurfaceForCheck(ctx, checkID)
		return err
	})
}

// Resolver closes whatever disagreements are open for the family.
func Resolver(ctx context.Context, svc *disagreement.Service, familyID string, rng *rand.Rand, stats *Stats, stop <-chan struct{}) error {
	return loop(ctx, rng, stats, stop, func() error {
		open, err := svc.GetUnresolvedDisagreements(ctx, familyID)
		if err != nil {
			return err
		}
		for _, d := range open {
			if _, err := svc.MarkDisagreementResolved(ctx, d.ID, "talked it through"); err != nil {
				return err
			}
		}
		return nil
	})
}

// Cycler opens, starts and completes annual checks for a child, one at a
// time.
func Cycler(ctx context.Context, svc *check.Service, params check.CreateParams, rng *rand.Rand, stats *Stats, stop <-chan struct{}) error {
	return loop(ctx, rng, stats, stop, func() error {
		c, _, err := svc.EnsureAnnualCheck(ctx, params)
		if err != nil {
			return err
		}
		if c == nil {
			return fmt.Errorf("child %s not eligible", params.ChildID)
		}
		if _, err := svc.MarkInProgress(ctx, c.ID); err != nil {
			return err
		}
		_, err = svc.MarkCompleted(ctx, c.ID)
		return err
	})
}
