package response

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"famwatch/logging"
)

var (
	ErrInvalidRole   = errors.New("response: invalid respondent role")
	ErrInvalidChoice = errors.New("response: invalid monitoring choice")
	// ErrForbidden is returned when the viewer may not see a child's answer.
	ErrForbidden = errors.New("response: forbidden")
)

// Service records participant answers and gates who may read them.
type Service struct {
	repo        Repository
	logger      *zap.Logger
	idGenerator func() string
	now         func() time.Time
}

func NewService(repo Repository, logger *zap.Logger) *Service {
	return &Service{
		repo:        repo,
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

// SubmitResponse appends a response. A repeat submission from the same
// respondent is stored as an additional record.
func (s *Service) SubmitResponse(ctx context.Context, params SubmitParams) (Response, error) {
	if params.CheckID == "" {
		return Response{}, fmt.Errorf("response: missing check id")
	}
	if params.RespondentID == "" {
		return Response{}, fmt.Errorf("response: missing respondent id")
	}
	if !params.RespondentRole.Valid() {
		return Response{}, fmt.Errorf("%w: %q", ErrInvalidRole, params.RespondentRole)
	}
	if !params.IsMonitoringAppropriate.Valid() {
		return Response{}, fmt.Errorf("%w: %q", ErrInvalidChoice, params.IsMonitoringAppropriate)
	}

	created, err := s.repo.Create(ctx, Response{
		ID:                      s.idGenerator(),
		CheckID:                 params.CheckID,
		RespondentID:            params.RespondentID,
		RespondentRole:          params.RespondentRole,
		IsMonitoringAppropriate: params.IsMonitoringAppropriate,
		HasExternalRiskChanged:  params.HasExternalRiskChanged,
		HasMaturityIncreased:    params.HasMaturityIncreased,
		FreeformFeedback:        params.FreeformFeedback,
		SuggestedChanges:        params.SuggestedChanges,
		IsPrivate:               params.RespondentRole == RoleChild,
		SubmittedAt:             s.now(),
	})
	if err != nil {
		return Response{}, err
	}

	// The answer itself is never logged.
	s.logger.Info("proportionality response submitted",
		zap.String("check_id", created.CheckID),
		zap.String("response_id", created.ID),
		zap.String("respondent_role", string(created.RespondentRole)),
	)
	return created, nil
}

// GetAllResponsesForCheck returns every response in insertion order. It does
// not apply the privacy gate; callers acting for a person must use
// VisibleResponses.
func (s *Service) GetAllResponsesForCheck(ctx context.Context, checkID string) ([]Response, error) {
	return s.repo.ListByCheck(ctx, checkID)
}

// VisibleResponses returns the responses viewerID may read.
func (s *Service) VisibleResponses(ctx context.Context, checkID, viewerID string) ([]Response, error) {
	all, err := s.repo.ListByCheck(ctx, checkID)
	if err != nil {
		return nil, err
	}
	out := make([]Response, 0, len(all))
	for _, r := range all {
		if CanViewResponse(viewerID, r) {
			out = append(out, r)
		}
	}
	return out, nil
}

// GetResponseForViewer returns nil for an unknown id and ErrForbidden when the
// privacy gate denies the viewer.
func (s *Service) GetResponseForViewer(ctx context.Context, id, viewerID string) (*Response, error) {
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	if !CanViewResponse(viewerID, r) {
		return nil, ErrForbidden
	}
	return &r, nil
}

// HasAllPartiesResponded reports whether every expected child and parent has
// at least one response with the matching role.
func (s *Service) HasAllPartiesResponded(ctx context.Context, checkID string, expectedChildIDs, expectedParentIDs []string) (bool, error) {
	all, err := s.repo.ListByCheck(ctx, checkID)
	if err != nil {
		return false, err
	}

	seen := map[Role]map[string]bool{
		RoleChild:  {},
		RoleParent: {},
	}
	for _, r := range all {
		if ids, ok := seen[r.RespondentRole]; ok {
			ids[r.RespondentID] = true
		}
	}

	for _, id := range expectedChildIDs {
		if !seen[RoleChild][id] {
			return false, nil
		}
	}
	for _, id := range expectedParentIDs {
		if !seen[RoleParent][id] {
			return false, nil
		}
	}
	return true, nil
}

func (s *Service) GetResponseSummary(ctx context.Context, checkID string) (Summary, error) {
	all, err := s.repo.ListByCheck(ctx, checkID)
	if err != nil {
		return Summary{}, err
	}

	summary := Summary{TotalResponses: len(all)}
	for _, r := range all {
		switch r.RespondentRole {
		case RoleChild:
			summary.ChildResponded = true
		case RoleParent:
			summary.ParentResponseCount++
		}
	}
	return summary, nil
}

// CanViewResponse encodes the child-privacy rule: a respondent may always read
// their own response, and nobody else may read a private one. Family
// membership is enforced by the caller's authorization layer.
func CanViewResponse(viewerID string, r Response) bool {
	if viewerID != "" && viewerID == r.RespondentID {
		return true
	}
	return !r.IsPrivate
}

// CanViewResponse is the method form of the package-level gate.
func (s *Service) CanViewResponse(viewerID string, r Response) bool {
	return CanViewResponse(viewerID, r)
}
