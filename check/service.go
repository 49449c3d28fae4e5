package check

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"famwatch/events"
	"famwatch/logging"
)

// Service gates and tracks the periodic proportionality review of a child.
type Service struct {
	repo        Repository
	publisher   events.Publisher
	logger      *zap.Logger
	idGenerator func() string
	now         func() time.Time
}

func NewService(repo Repository, publisher events.Publisher, logger *zap.Logger) *Service {
	if publisher == nil {
		publisher = events.NopPublisher{}
	}
	return &Service{
		repo:        repo,
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

// NextEligibleDate is the first instant at which a check may be opened for
// monitoring that began at monitoringStart. Month arithmetic follows the
// calendar, so Jan 15 becomes eligible on Jan 15 of the following year.
func NextEligibleDate(monitoringStart time.Time) time.Time {
	return monitoringStart.AddDate(0, EligibilityMonths, 0)
}

// IsEligible reports whether at least twelve calendar months separate
// monitoringStart from now. childID is accepted for call-site symmetry and
// does not affect the result.
func (s *Service) IsEligible(childID string, monitoringStart, now time.Time) bool {
	return !now.Before(NextEligibleDate(monitoringStart))
}

// CreateCheck opens a pending check. Prior checks for the child are not
// consulted; see EnsureAnnualCheck for the guarded variant.
func (s *Service) CreateCheck(ctx context.Context, params CreateParams) (Check, error) {
	if params.FamilyID == "" {
		return Check{}, fmt.Errorf("check: missing family id")
	}
	if params.ChildID == "" {
		return Check{}, fmt.Errorf("check: missing child id")
	}
	if params.TriggerType == "" {
		params.TriggerType = TriggerAnnual
	}

	now := s.now()
	created, err := s.repo.Create(ctx, Check{
		ID:                  s.idGenerator(),
		FamilyID:            params.FamilyID,
		ChildID:             params.ChildID,
		MonitoringStartDate: params.MonitoringStartDate,
		TriggerType:         params.TriggerType,
		Status:              StatusPending,
		CreatedAt:           now,
		UpdatedAt:           now,
	})
	if err != nil {
		return Check{}, err
	}

	s.logger.Info("proportionality check created",
		zap.String("check_id", created.ID),
		zap.String("child_id", created.ChildID),
		zap.String("trigger_type", string(created.TriggerType)),
	)
	s.emit(ctx, events.TopicCheckCreated, created, now)
	return created, nil
}

// EnsureAnnualCheck opens an annual check when the child is eligible and has
// no active check. It returns the active check (new or existing) and whether
// one was created; nil when the child is not yet eligible.
func (s *Service) EnsureAnnualCheck(ctx context.Context, params CreateParams) (*Check, bool, error) {
	active, err := s.GetActiveCheck(ctx, params.ChildID)
	if err != nil {
		return nil, false, err
	}
	if active != nil {
		return active, false, nil
	}
	if !s.IsEligible(params.ChildID, params.MonitoringStartDate, s.now()) {
		return nil, false, nil
	}

	params.TriggerType = TriggerAnnual
	created, err := s.CreateCheck(ctx, params)
	if err != nil {
		return nil, false, err
	}
	return &created, true, nil
}

// GetCheck returns nil when the id is unknown.
func (s *Service) GetCheck(ctx context.Context, id string) (*Check, error) {
	c, err := s.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &c, nil
}

// GetActiveCheck returns the most recently created non-completed check for
// the child, or nil.
func (s *Service) GetActiveCheck(ctx context.Context, childID string) (*Check, error) {
	checks, err := s.repo.ListByChild(ctx, childID)
	if err != nil {
		return nil, err
	}
	for _, c := range checks {
		if c.Active() {
			return &c, nil
		}
	}
	return nil, nil
}

// ListForChild returns the child's check history, newest first.
func (s *Service) ListForChild(ctx context.Context, childID string) ([]Check, error) {
	return s.repo.ListByChild(ctx, childID)
}

// MarkInProgress moves a pending check to in_progress. Checks already in
// progress or completed are returned unchanged. Unknown ids yield nil.
func (s *Service) MarkInProgress(ctx context.Context, id string) (*Check, error) {
	c, err := s.GetCheck(ctx, id)
	if err != nil || c == nil {
		return c, err
	}
	if c.Status != StatusPending {
		return c, nil
	}

	now := s.now()
	c.Status = StatusInProgress
	c.UpdatedAt = now
	updated, err := s.update(ctx, *c)
	if err != nil || updated == nil {
		return updated, err
	}

	s.logger.Info("proportionality check in progress", zap.String("check_id", updated.ID))
	s.emit(ctx, events.TopicCheckInProgress, *updated, now)
	return updated, nil
}

// MarkCompleted moves the check to completed from any state and stamps
// CheckCompletedDate. Completing twice keeps the first stamp. Unknown ids
// yield nil.
func (s *Service) MarkCompleted(ctx context.Context, id string) (*Check, error) {
	c, err := s.GetCheck(ctx, id)
	if err != nil || c == nil {
		return c, err
	}
	if c.Status == StatusCompleted && c.CheckCompletedDate != nil {
		return c, nil
	}

	now := s.now()
	c.Status = StatusCompleted
	c.CheckCompletedDate = &now
	c.UpdatedAt = now
	updated, err := s.update(ctx, *c)
	if err != nil || updated == nil {
		return updated, err
	}

	s.logger.Info("proportionality check completed", zap.String("check_id", updated.ID))
	s.emit(ctx, events.TopicCheckCompleted, *updated, now)
	return updated, nil
}

func (s *Service) update(ctx context.Context, c Check) (*Check, error) {
	updated, err := s.repo.Update(ctx, c)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &updated, nil
}

func (s *Service) emit(ctx context.Context, topic string, c Check, at time.Time) {
	events.Emit(ctx, s.publisher, s.logger, topic, map[string]any{
		"check_id":     c.ID,
		"family_id":    c.FamilyID,
		"child_id":     c.ChildID,
		"status":       string(c.Status),
		"trigger_type": string(c.TriggerType),
	}, at)
}
