package check

import "time"

// TriggerType records why a check was opened. Values other than TriggerAnnual
// are carried through untouched.
type TriggerType string

const TriggerAnnual TriggerType = "annual"

// Status represents the lifecycle of a proportionality check.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// EligibilityMonths is the calendar-month interval between continuous
// monitoring start and the first review.
const EligibilityMonths = 12

// Check mirrors the proportionality_checks table.
type Check struct {
	ID                  string
	FamilyID            string
	ChildID             string
	MonitoringStartDate time.Time
	TriggerType         TriggerType
	Status              Status
	CheckCompletedDate  *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// Active reports whether the check still awaits completion.
func (c Check) Active() bool {
	return c.Status != StatusCompleted
}

// CreateParams enumerates caller-supplied fields for a new check.
type CreateParams struct {
	FamilyID            string
	ChildID             string
	MonitoringStartDate time.Time
	TriggerType         TriggerType
}
