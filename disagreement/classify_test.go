package disagreement

import (
	"testing"

	"famwatch/response"
)

func TestSeverityOrdering(t *testing.T) {
	for i, c := range response.Choices {
		if got := Severity(c); got != i {
			t.Fatalf("expected severity %d for %s, got %d", i, c, got)
		}
	}
	if got := Severity("unknown"); got != -1 {
		t.Fatalf("expected -1 for unknown choice, got %d", got)
	}
}

func TestAreResponsesDifferent(t *testing.T) {
	for _, a := range response.Choices {
		for _, b := range response.Choices {
			if got := AreResponsesDifferent(a, b); got != (a != b) {
				t.Fatalf("AreResponsesDifferent(%s, %s) = %v", a, b, got)
			}
		}
	}
}

func TestChildPreferenceDirection(t *testing.T) {
	cases := map[response.Choice]Direction{
		response.ChoiceGraduate:    DirectionLess,
		response.ChoiceReduce:      DirectionLess,
		response.ChoiceDiscuss:     DirectionNeutral,
		response.ChoiceAppropriate: DirectionNeutral,
		response.ChoiceIncrease:    DirectionMore,
	}
	for c, want := range cases {
		if got := ChildPreferenceDirection(c); got != want {
			t.Fatalf("expected %s for %s, got %s", want, c, got)
		}
	}
}

func TestCategorizeDisagreement_AgreementIsNil(t *testing.T) {
	for _, c := range response.Choices {
		if got := CategorizeDisagreement(c, []response.Choice{c}); got != nil {
			t.Fatalf("expected nil for matching %s, got %s", c, *got)
		}
	}
}

func TestCategorizeDisagreement_NoParentsIsNil(t *testing.T) {
	for _, c := range response.Choices {
		if got := CategorizeDisagreement(c, nil); got != nil {
			t.Fatalf("expected nil without parents for %s, got %s", c, *got)
		}
	}
}

func TestCategorizeDisagreement_ParentSplitIsMixed(t *testing.T) {
	parents := []response.Choice{response.ChoiceReduce, response.ChoiceIncrease}
	for _, child := range response.Choices {
		got := CategorizeDisagreement(child, parents)
		if got == nil || *got != TypeMixed {
			t.Fatalf("expected mixed for child %s, got %v", child, got)
		}
	}
}

func TestCategorizeDisagreement_Directional(t *testing.T) {
	cases := []struct {
		name    string
		child   response.Choice
		parents []response.Choice
		want    Type
	}{
		{"graduate vs appropriate", response.ChoiceGraduate, []response.Choice{response.ChoiceAppropriate}, TypeChildWantsLess},
		{"reduce vs increase", response.ChoiceReduce, []response.Choice{response.ChoiceIncrease}, TypeChildWantsLess},
		{"appropriate vs increase", response.ChoiceAppropriate, []response.Choice{response.ChoiceIncrease}, TypeParentWantsMore},
		{"discuss vs increase", response.ChoiceDiscuss, []response.Choice{response.ChoiceIncrease}, TypeParentWantsMore},
		{"agreeing parents", response.ChoiceGraduate, []response.Choice{response.ChoiceDiscuss, response.ChoiceDiscuss}, TypeChildWantsLess},
		// Neither directional rule applies.
		{"discuss vs appropriate", response.ChoiceDiscuss, []response.Choice{response.ChoiceAppropriate}, TypeChildWantsLess},
		{"increase vs appropriate", response.ChoiceIncrease, []response.Choice{response.ChoiceAppropriate}, TypeChildWantsLess},
		{"graduate vs reduce", response.ChoiceGraduate, []response.Choice{response.ChoiceReduce}, TypeChildWantsLess},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := CategorizeDisagreement(tc.child, tc.parents)
			if got == nil {
				t.Fatalf("expected %s, got nil", tc.want)
			}
			if *got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, *got)
			}
		})
	}
}
