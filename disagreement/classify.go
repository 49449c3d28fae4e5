package disagreement

import "famwatch/response"

var severity = map[response.Choice]int{
	response.ChoiceGraduate:    0,
	response.ChoiceReduce:      1,
	response.ChoiceDiscuss:     2,
	response.ChoiceAppropriate: 3,
	response.ChoiceIncrease:    4,
}

// Severity ranks a choice from 0 (least monitoring wanted) to 4 (most).
// Unknown choices rank -1.
func Severity(c response.Choice) int {
	if s, ok := severity[c]; ok {
		return s
	}
	return -1
}

// AreResponsesDifferent reports whether two choices are at least one severity
// step apart. Every pair of distinct known choices qualifies.
func AreResponsesDifferent(a, b response.Choice) bool {
	if a == b {
		return false
	}
	diff := Severity(a) - Severity(b)
	if diff < 0 {
		diff = -diff
	}
	return diff >= 1
}

// ChildPreferenceDirection maps a choice onto less / more / neutral.
func ChildPreferenceDirection(c response.Choice) Direction {
	switch c {
	case response.ChoiceGraduate, response.ChoiceReduce:
		return DirectionLess
	case response.ChoiceIncrease:
		return DirectionMore
	default:
		return DirectionNeutral
	}
}

// CategorizeDisagreement classifies the child's choice against the parents'.
// It returns nil when there are no parent responses or when the parents agree
// with the child.
//
// Disagreement between parents outranks everything and yields TypeMixed.
// Otherwise the first parent response stands for the parents. When the
// choices differ but neither directional rule applies (for example discuss
// against appropriate) the result is TypeChildWantsLess.
func CategorizeDisagreement(child response.Choice, parents []response.Choice) *Type {
	if len(parents) == 0 {
		return nil
	}

	distinct := make([]response.Choice, 0, len(parents))
	seen := make(map[response.Choice]bool, len(parents))
	for _, p := range parents {
		if !seen[p] {
			seen[p] = true
			distinct = append(distinct, p)
		}
	}
	if len(distinct) > 1 {
		for i := 0; i < len(distinct); i++ {
			for j := i + 1; j < len(distinct); j++ {
				if AreResponsesDifferent(distinct[i], distinct[j]) {
					return typePtr(TypeMixed)
				}
			}
		}
	}

	consensus := parents[0]
	if consensus == child {
		return nil
	}

	childDir := ChildPreferenceDirection(child)
	parentDir := ChildPreferenceDirection(consensus)
	switch {
	case childDir == DirectionLess && parentDir != DirectionLess:
		return typePtr(TypeChildWantsLess)
	case parentDir == DirectionMore && childDir != DirectionMore:
		return typePtr(TypeParentWantsMore)
	default:
		return typePtr(TypeChildWantsLess)
	}
}

func typePtr(t Type) *Type {
	return &t
}
