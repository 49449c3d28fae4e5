package disagreement

import (
	"time"

	"famwatch/response"
)

// Type classifies how the child and guardians disagree.
type Type string

const (
	TypeChildWantsLess  Type = "child_wants_less"
	TypeParentWantsMore Type = "parent_wants_more"
	TypeMixed           Type = "mixed"
)

// Direction summarizes which way a single choice leans.
type Direction string

const (
	DirectionLess    Direction = "less"
	DirectionMore    Direction = "more"
	DirectionNeutral Direction = "neutral"
)

// ParentResponse pairs a guardian with their choice.
type ParentResponse struct {
	ParentID string          `json:"parentId"`
	Response response.Choice `json:"response"`
}

// Detection is the outcome of comparing a check's responses.
type Detection struct {
	ChildResponse    response.Choice
	ParentResponses  []ParentResponse
	DisagreementType Type
}

// Record mirrors the check_disagreements table. FamilyID and ChildID are
// copied from the originating check.
type Record struct {
	ID               string
	CheckID          string
	FamilyID         string
	ChildID          string
	ChildResponse    response.Choice
	ParentResponses  []ParentResponse
	DisagreementType Type
	SurfacedAt       time.Time
	ResolvedAt       *time.Time
	Resolution       *string
}

func (r Record) Resolved() bool {
	return r.ResolvedAt != nil
}
