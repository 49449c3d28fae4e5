package disagreement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"famwatch/check"
	"famwatch/events"
	"famwatch/logging"
	"famwatch/response"
)

// ErrCheckNotFound is returned by SurfaceForCheck for an unknown check id.
var ErrCheckNotFound = errors.New("disagreement: check not found")

// ResponseLister supplies every response recorded for a check.
type ResponseLister interface {
	GetAllResponsesForCheck(ctx context.Context, checkID string) ([]response.Response, error)
}

// CheckReader looks up a check, returning nil when it does not exist.
type CheckReader interface {
	GetCheck(ctx context.Context, id string) (*check.Check, error)
}

// Service detects disagreements between a child and their guardians and
// tracks their resolution.
type Service struct {
	repo        Repository
	responses   ResponseLister
	checks      CheckReader
	publisher   events.Publisher
	logger      *zap.Logger
	idGenerator func() string
	now         func() time.Time
}

func NewService(repo Repository, responses ResponseLister, checks CheckReader, publisher events.Publisher, logger *zap.Logger) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{
		repo:        repo,
		responses:   responses,
		checks:      checks,
		publisher:   publisher,
		logger:      logging.OrNop(logger),
		idGenerator: func() string { return uuid.NewString() },
		now:         time.Now,
	}
}

func (s *Service) WithIDGenerator(gen func() string) *Service {
	s.idGenerator = gen
	return s
}

func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// DetectDisagreement compares the check's responses. It needs at least one
// child and one parent response; when the child answered more than once the
// first answer is used. Only the check's own child counts as the child side.
// Returns nil when there is nothing to report.
func (s *Service) DetectDisagreement(ctx context.Context, checkID string) (*Detection, error) {
	c, all, err := s.load(ctx, checkID)
	if err != nil {
		return nil, err
	}
	childID := ""
	if c != nil {
		childID = c.ChildID
	}
	return detect(all, childID), nil
}

// load fetches the check and its responses concurrently. The check is nil
// when no reader is configured or the id is unknown.
func (s *Service) load(ctx context.Context, checkID string) (*check.Check, []response.Response, error) {
	var (
		c   *check.Check
		all []response.Response
	)
	g, gctx := errgroup.WithContext(ctx)
	if s.checks != nil {
		g.Go(func() error {
			var err error
			c, err = s.checks.GetCheck(gctx, checkID)
			if err != nil {
				return fmt.Errorf("disagreement: load check: %w", err)
			}
			return nil
		})
	}
	g.Go(func() error {
		var err error
		all, err = s.responses.GetAllResponsesForCheck(gctx, checkID)
		if err != nil {
			return fmt.Errorf("disagreement: load responses: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return c, all, nil
}

// detect picks the child side and the parent side out of all. When childID is
// set, child responses from anyone else are ignored.
func detect(all []response.Response, childID string) *Detection {
	var (
		child      *response.Response
		parents    []ParentResponse
		parentVals []response.Choice
	)
	for i := range all {
		r := all[i]
		switch r.RespondentRole {
		case response.RoleChild:
			if child == nil && (childID == "" || r.RespondentID == childID) {
				child = &r
			}
		case response.RoleParent:
			parents = append(parents, ParentResponse{ParentID: r.RespondentID, Response: r.IsMonitoringAppropriate})
			parentVals = append(parentVals, r.IsMonitoringAppropriate)
		}
	}
	if child == nil || len(parents) == 0 {
		return nil
	}

	kind := CategorizeDisagreement(child.IsMonitoringAppropriate, parentVals)
	if kind == nil {
		return nil
	}
	return &Detection{
		ChildResponse:    child.IsMonitoringAppropriate,
		ParentResponses:  parents,
		DisagreementType: *kind,
	}
}

// CreateDisagreementRecord persists the current detection for the check, with
// childID's answer as the child side. Returns nil, and writes nothing, when no
// disagreement is detected.
func (s *Service) CreateDisagreementRecord(ctx context.Context, checkID, familyID, childID string) (*Record, error) {
	all, err := s.responses.GetAllResponsesForCheck(ctx, checkID)
	if err != nil {
		return nil, fmt.Errorf("disagreement: load responses: %w", err)
	}
	detection := detect(all, childID)
	if detection == nil {
		return nil, nil
	}
	return s.persist(ctx, checkID, familyID, childID, *detection)
}

// SurfaceForCheck is CreateDisagreementRecord with family and child taken from
// the stored check.
func (s *Service) SurfaceForCheck(ctx context.Context, checkID string) (*Record, error) {
	if s.checks == nil {
		return nil, fmt.Errorf("disagreement: no check reader configured")
	}

	c, all, err := s.load(ctx, checkID)
	if err != nil {
		return nil, err
	}
	if c == nil {
		return nil, fmt.Errorf("%w: %s", ErrCheckNotFound, checkID)
	}
	detection := detect(all, c.ChildID)
	if detection == nil {
		return nil, nil
	}
	return s.persist(ctx, c.ID, c.FamilyID, c.ChildID, *detection)
}

func (s *Service) persist(ctx context.Context, checkID, familyID, childID string, d Detection) (*Record, error) {
	created, err := s.repo.Create(ctx, Record{
		ID:               s.idGenerator(),
		CheckID:          checkID,
		FamilyID:         familyID,
		ChildID:          childID,
		ChildResponse:    d.ChildResponse,
		ParentResponses:  d.ParentResponses,
		DisagreementType: d.DisagreementType,
		SurfacedAt:       s.now(),
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("disagreement surfaced",
		zap.String("disagreement_id", created.ID),
		zap.String("check_id", created.CheckID),
		zap.String("type", string(created.DisagreementType)),
	)
	// The payload names the kind of disagreement only; individual answers stay out.
	events.Emit(ctx, s.publisher, s.logger, events.TopicDisagreementSurfaced, map[string]any{
		"disagreement_id": created.ID,
		"check_id":        created.CheckID,
		"family_id":       created.FamilyID,
		"child_id":        created.ChildID,
		"type":            string(created.DisagreementType),
	}, created.SurfacedAt)
	return &created, nil
}

// GetDisagreement returns nil when the id is unknown.
func (s *Service) GetDisagreement(ctx context.Context, id string) (*Record, error) {
	rec, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (s *Service) GetUnresolvedDisagreements(ctx context.Context, familyID string) ([]Record, error) {
	return s.repo.ListUnresolvedByFamily(ctx, familyID)
}

// MarkDisagreementResolved records the outcome of the family conversation.
// Resolving again overwrites the timestamp and text. An unknown id is an
// error wrapping ErrNotFound.
func (s *Service) MarkDisagreementResolved(ctx context.Context, id, resolution string) (Record, error) {
	now := s.now()
	updated, err := s.repo.Resolve(ctx, Record{
		ID:         id,
		ResolvedAt: &now,
		Resolution: &resolution,
	})
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return Record{}, err
	}

	s.logger.Info("disagreement resolved",
		zap.String("disagreement_id", updated.ID),
		zap.String("check_id", updated.CheckID),
	)
	events.Emit(ctx, s.publisher, s.logger, events.TopicDisagreementResolved, map[string]any{
		"disagreement_id": updated.ID,
		"check_id":        updated.CheckID,
		"family_id":       updated.FamilyID,
	}, now)
	return updated, nil
}
