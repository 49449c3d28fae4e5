package response

import "time"

// Role identifies which side of the family a respondent speaks for.
type Role string

const (
	RoleChild  Role = "child"
	RoleParent Role = "parent"
)

func (r Role) Valid() bool {
	return r == RoleChild || r == RoleParent
}

// Choice is a respondent's answer to "is monitoring still appropriate",
// ordered from least to most monitoring desired.
type Choice string

const (
	ChoiceGraduate    Choice = "graduate"
	ChoiceReduce      Choice = "reduce"
	ChoiceDiscuss     Choice = "discuss"
	ChoiceAppropriate Choice = "appropriate"
	ChoiceIncrease    Choice = "increase"
)

// Choices lists every valid choice in ascending severity.
var Choices = []Choice{ChoiceGraduate, ChoiceReduce, ChoiceDiscuss, ChoiceAppropriate, ChoiceIncrease}

func (c Choice) Valid() bool {
	for _, known := range Choices {
		if c == known {
			return true
		}
	}
	return false
}

// Response mirrors the proportionality_responses table. Records are immutable
// once written.
type Response struct {
	ID                      string
	CheckID                 string
	RespondentID            string
	RespondentRole          Role
	IsMonitoringAppropriate Choice
	HasExternalRiskChanged  *bool
	HasMaturityIncreased    *bool
	FreeformFeedback        *string
	SuggestedChanges        []string
	IsPrivate               bool
	SubmittedAt             time.Time
}

// SubmitParams carries one participant's answer. IsPrivate is derived and
// cannot be supplied.
type SubmitParams struct {
	CheckID                 string
	RespondentID            string
	RespondentRole          Role
	IsMonitoringAppropriate Choice
	HasExternalRiskChanged  *bool
	HasMaturityIncreased    *bool
	FreeformFeedback        *string
	SuggestedChanges        []string
}

// Summary is an aggregate view of a check's responses without any answers.
type Summary struct {
	TotalResponses      int
	ChildResponded      bool
	ParentResponseCount int
}
