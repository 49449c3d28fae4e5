package disagreement

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"famwatch/check"
	"famwatch/events"
	"famwatch/response"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (r *recordingPublisher) Publish(_ context.Context, evt events.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, evt)
	return nil
}

type fixture struct {
	checks    *check.Service
	responses *response.Service
	svc       *Service
	pub       *recordingPublisher
	now       time.Time
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	pub := &recordingPublisher{}

	checks := check.NewService(check.NewMemoryRepository(), nil, nil).WithClock(clock)
	responses := response.NewService(response.NewMemoryRepository(), nil).WithClock(clock)
	seq := 0
	svc := NewService(NewMemoryRepository(), responses, checks, pub, nil).
		WithClock(clock).
		WithIDGenerator(func() string {
			seq++
			return fmt.Sprintf("dis-%d", seq)
		})
	return &fixture{checks: checks, responses: responses, svc: svc, pub: pub, now: now}
}

func (f *fixture) openCheck(t *testing.T) check.Check {
	t.Helper()
	c, err := f.checks.CreateCheck(context.Background(), check.CreateParams{
		FamilyID:            "family-1",
		ChildID:             "child-1",
		MonitoringStartDate: f.now.AddDate(-1, -1, 0),
	})
	if err != nil {
		t.Fatalf("create check: %v", err)
	}
	return c
}

func (f *fixture) submit(t *testing.T, checkID, respondentID string, role response.Role, choice response.Choice) {
	t.Helper()
	_, err := f.responses.SubmitResponse(context.Background(), response.SubmitParams{
		CheckID:                 checkID,
		RespondentID:            respondentID,
		RespondentRole:          role,
		IsMonitoringAppropriate: choice,
	})
	if err != nil {
		t.Fatalf("submit %s: %v", respondentID, err)
	}
}

func TestDetectDisagreement_Scenarios(t *testing.T) {
	cases := []struct {
		name    string
		child   response.Choice
		parents []response.Choice
		want    Type
	}{
		{"child wants less", response.ChoiceGraduate, []response.Choice{response.ChoiceAppropriate}, TypeChildWantsLess},
		{"parent wants more", response.ChoiceAppropriate, []response.Choice{response.ChoiceIncrease}, TypeParentWantsMore},
		{"parents split", response.ChoiceAppropriate, []response.Choice{response.ChoiceReduce, response.ChoiceIncrease}, TypeMixed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture(t)
			c := f.openCheck(t)
			f.submit(t, c.ID, "child-1", response.RoleChild, tc.child)
			for i, p := range tc.parents {
				f.submit(t, c.ID, fmt.Sprintf("parent-%d", i+1), response.RoleParent, p)
			}

			got, err := f.svc.DetectDisagreement(context.Background(), c.ID)
			if err != nil {
				t.Fatalf("detect: %v", err)
			}
			if got == nil {
				t.Fatalf("expected %s, got nil", tc.want)
			}
			if got.DisagreementType != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got.DisagreementType)
			}
			if got.ChildResponse != tc.child {
				t.Fatalf("expected child response %s, got %s", tc.child, got.ChildResponse)
			}
			if len(got.ParentResponses) != len(tc.parents) {
				t.Fatalf("expected %d parent responses, got %d", len(tc.parents), len(got.ParentResponses))
			}
		})
	}
}

func TestDetectDisagreement_AgreementCreatesNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.openCheck(t)
	f.submit(t, c.ID, "child-1", response.RoleChild, response.ChoiceAppropriate)
	f.submit(t, c.ID, "parent-1", response.RoleParent, response.ChoiceAppropriate)

	detection, err := f.svc.DetectDisagreement(ctx, c.ID)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	if detection != nil {
		t.Fatalf("expected no disagreement, got %+v", detection)
	}

	rec, err := f.svc.CreateDisagreementRecord(ctx, c.ID, c.FamilyID, c.ChildID)
	if err != nil {
		t.Fatalf("create record: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected no record, got %+v", rec)
	}
	open, _ := f.svc.GetUnresolvedDisagreements(ctx, c.FamilyID)
	if len(open) != 0 {
		t.Fatalf("expected no unresolved disagreements, got %d", len(open))
	}
	if len(f.pub.events) != 0 {
		t.Fatalf("expected no events, got %d", len(f.pub.events))
	}
}

func TestDetectDisagreement_RequiresBothSides(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.openCheck(t)

	f.submit(t, c.ID, "child-1", response.RoleChild, response.ChoiceGraduate)
	if got, _ := f.svc.DetectDisagreement(ctx, c.ID); got != nil {
		t.Fatalf("expected nil with child only, got %+v", got)
	}

	other := f.openCheck(t)
	f.submit(t, other.ID, "parent-1", response.RoleParent, response.ChoiceIncrease)
	if got, _ := f.svc.DetectDisagreement(ctx, other.ID); got != nil {
		t.Fatalf("expected nil with parent only, got %+v", got)
	}
}

func TestDetectDisagreement_FirstChildResponseWins(t *testing.T) {
	f := newFixture(t)
	c := f.openCheck(t)
	f.submit(t, c.ID, "child-1", response.RoleChild, response.ChoiceGraduate)
	f.submit(t, c.ID, "child-1", response.RoleChild, response.ChoiceAppropriate)
	f.submit(t, c.ID, "parent-1", response.RoleParent, response.ChoiceAppropriate)

	got, err := f.svc.DetectDisagreement(context.Background(), c.ID)
	if err != nil {
		t.Fatalf("detect: %v", err)
	}
	want := &Detection{
		ChildResponse:    response.ChoiceGraduate,
		ParentResponses:  []ParentResponse{{ParentID: "parent-1", Response: response.ChoiceAppropriate}},
		DisagreementType: TypeChildWantsLess,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("detection mismatch (-want +got):\n%s", diff)
	}
}

func TestDetectDisagreement_IgnoresOtherChildren(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.openCheck(t)
	f.submit(t, c.ID, "child-2", response.RoleChild, response.ChoiceGraduate)
	f.submit(t, c.ID, "child-1", response.RoleChild, response.ChoiceAppropriate)
	f.submit(t, c.ID, "parent-1", response.RoleParent, response.ChoiceAppropriate)

	if got, err := f.svc.DetectDisagreement(ctx, c.ID); err != nil || got != nil {
		t.Fatalf("expected no disagreement, got %+v (err %v)", got, err)
	}
	if rec, err := f.svc.SurfaceForCheck(ctx, c.ID); err != nil || rec != nil {
		t.Fatalf("expected nothing surfaced, got %+v (err %v)", rec, err)
	}
	if rec, err := f.svc.CreateDisagreementRecord(ctx, c.ID, c.FamilyID, c.ChildID); err != nil || rec != nil {
		t.Fatalf("expected no record, got %+v (err %v)", rec, err)
	}

	other := f.openCheck(t)
	f.submit(t, other.ID, "child-2", response.RoleChild, response.ChoiceGraduate)
	f.submit(t, other.ID, "parent-1", response.RoleParent, response.ChoiceAppropriate)
	if got, _ := f.svc.DetectDisagreement(ctx, other.ID); got != nil {
		t.Fatalf("expected nil without the check's own child, got %+v", got)
	}
}

func TestResolveRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.openCheck(t)
	f.submit(t, c.ID, "child-1", response.RoleChild, response.ChoiceGraduate)
	f.submit(t, c.ID, "parent-1", response.RoleParent, response.ChoiceAppropriate)

	rec, err := f.svc.CreateDisagreementRecord(ctx, c.ID, c.FamilyID, c.ChildID)
	if err != nil {
		t.Fatalf("create record: %v", err)
	}
	if rec == nil {
		t.Fatalf("expected a record")
	}
	if rec.Resolved() {
		t.Fatalf("expected new record to be unresolved")
	}

	open, err := f.svc.GetUnresolvedDisagreements(ctx, "family-1")
	if err != nil {
		t.Fatalf("list unresolved: %v", err)
	}
	if len(open) != 1 || open[0].ID != rec.ID {
		t.Fatalf("expected record %s to be unresolved, got %+v", rec.ID, open)
	}

	resolved, err := f.svc.MarkDisagreementResolved(ctx, rec.ID, "Family agreed to reduce monitoring")
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Resolution == nil || *resolved.Resolution != "Family agreed to reduce monitoring" {
		t.Fatalf("unexpected resolution %v", resolved.Resolution)
	}
	if resolved.ResolvedAt == nil || !resolved.ResolvedAt.Equal(f.now) {
		t.Fatalf("expected resolvedAt %v, got %v", f.now, resolved.ResolvedAt)
	}

	open, _ = f.svc.GetUnresolvedDisagreements(ctx, "family-1")
	if len(open) != 0 {
		t.Fatalf("expected resolved record to be excluded, got %d", len(open))
	}

	stored, _ := f.svc.GetDisagreement(ctx, rec.ID)
	if stored == nil || !stored.Resolved() {
		t.Fatalf("expected stored record to be resolved, got %+v", stored)
	}

	if len(f.pub.events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(f.pub.events))
	}
	if f.pub.events[0].Topic != events.TopicDisagreementSurfaced || f.pub.events[1].Topic != events.TopicDisagreementResolved {
		t.Fatalf("unexpected topics %s, %s", f.pub.events[0].Topic, f.pub.events[1].Topic)
	}
	for _, evt := range f.pub.events {
		for key := range evt.Payload {
			if strings.Contains(key, "response") {
				t.Fatalf("payload leaks answers via %q", key)
			}
		}
	}
}

func TestMarkDisagreementResolved_OverwritesOnSecondCall(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.openCheck(t)
	f.submit(t, c.ID, "child-1", response.RoleChild, response.ChoiceReduce)
	f.submit(t, c.ID, "parent-1", response.RoleParent, response.ChoiceIncrease)
	rec, _ := f.svc.CreateDisagreementRecord(ctx, c.ID, c.FamilyID, c.ChildID)

	if _, err := f.svc.MarkDisagreementResolved(ctx, rec.ID, "first"); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	second, err := f.svc.MarkDisagreementResolved(ctx, rec.ID, "second")
	if err != nil {
		t.Fatalf("resolve again: %v", err)
	}
	if *second.Resolution != "second" {
		t.Fatalf("expected overwrite, got %q", *second.Resolution)
	}
}

func TestMarkDisagreementResolved_UnknownID(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.MarkDisagreementResolved(context.Background(), "missing", "text")
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), "missing") {
		t.Fatalf("expected error to carry the id, got %q", err.Error())
	}
}

func TestGetDisagreement_UnknownIsNil(t *testing.T) {
	f := newFixture(t)
	rec, err := f.svc.GetDisagreement(context.Background(), "missing")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec != nil {
		t.Fatalf("expected nil, got %+v", rec)
	}
}

func TestSurfaceForCheck(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.openCheck(t)
	f.submit(t, c.ID, "child-1", response.RoleChild, response.ChoiceAppropriate)
	f.submit(t, c.ID, "parent-1", response.RoleParent, response.ChoiceIncrease)

	rec, err := f.svc.SurfaceForCheck(ctx, c.ID)
	if err != nil {
		t.Fatalf("surface: %v", err)
	}
	if rec == nil {
		t.Fatalf("expected a record")
	}
	if rec.FamilyID != "family-1" || rec.ChildID != "child-1" {
		t.Fatalf("expected ids copied from check, got %s/%s", rec.FamilyID, rec.ChildID)
	}
	if rec.DisagreementType != TypeParentWantsMore {
		t.Fatalf("expected parent_wants_more, got %s", rec.DisagreementType)
	}

	if _, err := f.svc.SurfaceForCheck(ctx, "no-such-check"); !errors.Is(err, ErrCheckNotFound) {
		t.Fatalf("expected ErrCheckNotFound, got %v", err)
	}
}

func TestConcurrentRecordsAreAllKept(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	c := f.openCheck(t)
	f.submit(t, c.ID, "child-1", response.RoleChild, response.ChoiceGraduate)
	f.submit(t, c.ID, "parent-1", response.RoleParent, response.ChoiceAppropriate)

	svc := NewService(NewMemoryRepository(), f.responses, f.checks, nil, nil)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := svc.CreateDisagreementRecord(ctx, c.ID, c.FamilyID, c.ChildID); err != nil {
				t.Errorf("create record: %v", err)
			}
		}()
	}
	wg.Wait()

	open, _ := svc.GetUnresolvedDisagreements(ctx, c.FamilyID)
	if len(open) != 8 {
		t.Fatalf("expected 8 records, got %d", len(open))
	}
}
