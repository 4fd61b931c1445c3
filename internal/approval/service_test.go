package approval_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"crisiscrew.org/internal/approval"
	"crisiscrew.org/internal/approval/approvaltest"
)

func TestInMemoryStoreContract(t *testing.T) {
	approvaltest.RunStoreContract(t, func(t *testing.T) approval.Store {
		return approval.NewInMemory()
	})
}

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time {
	c.t = c.t.Add(time.Second)
	return c.t
}

func newService(t *testing.T, artifacts ...string) (*approval.Service, *fakeClock) {
	t.Helper()
	known := make(map[string]bool, len(artifacts))
	for _, id := range artifacts {
		known[id] = true
	}
	lookup := approval.ArtifactLookupFunc(func(_ context.Context, id string) (bool, error) {
		return known[id], nil
	})
	clock := &fakeClock{t: time.Date(2024, 12, 19, 10, 0, 0, 0, time.UTC)}
	return approval.NewService(approval.NewInMemory(), lookup, approval.WithClock(clock.now)), clock
}

func TestApprovalHappyPath(t *testing.T) {
	svc, _ := newService(t, "artifact-x")
	ctx := context.Background()

	a, err := svc.Request(ctx, "artifact-x", "user1", "")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if a.Status != approval.StatusPending || a.ActedByUserID != nil || a.ActedAt != nil || a.Notes != nil {
		t.Fatalf("unexpected fresh approval: %+v", a)
	}

	acted, err := svc.Act(ctx, a.ID, approval.ActionApprove, "user2", "")
	if err != nil {
		t.Fatalf("Act: %v", err)
	}
	if acted.Status != approval.StatusApproved {
		t.Fatalf("unexpected status: %s", acted.Status)
	}
	if acted.ActedByUserID == nil || *acted.ActedByUserID != "user2" {
		t.Fatalf("acted_by not set: %v", acted.ActedByUserID)
	}
	if acted.ActedAt == nil || !acted.ActedAt.After(a.CreatedAt) {
		t.Fatalf("acted_at not set after created_at: %v", acted.ActedAt)
	}
	if acted.RequestedByUserID != "user1" || !acted.CreatedAt.Equal(a.CreatedAt) {
		t.Fatalf("immutable fields changed: %+v", acted)
	}
}

func TestApprovalTerminalEnforcement(t *testing.T) {
	svc, _ := newService(t, "artifact-x")
	ctx := context.Background()

	a, _ := svc.Request(ctx, "artifact-x", "user1", "")
	if _, err := svc.Act(ctx, a.ID, approval.ActionApprove, "user2", ""); err != nil {
		t.Fatalf("Act: %v", err)
	}
	if _, err := svc.Act(ctx, a.ID, approval.ActionReject, "user3", "nope"); !errors.Is(err, approval.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	got, err := svc.Get(ctx, a.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != approval.StatusApproved || *got.ActedByUserID != "user2" {
		t.Fatalf("record changed after rejection: %+v", got)
	}
}

func TestApprovalRejectPath(t *testing.T) {
	svc, _ := newService(t, "artifact-x")
	ctx := context.Background()
	a, _ := svc.Request(ctx, "artifact-x", "user1", "")
	got, err := svc.Act(ctx, a.ID, approval.ActionReject, "user2", "tone is off")
	if err != nil {
		t.Fatalf("Act: %v", err)
	}
	if got.Status != approval.StatusRejected || *got.Notes != "tone is off" {
		t.Fatalf("unexpected rejection: %+v", got)
	}
	if _, err := svc.Act(ctx, a.ID, approval.ActionApprove, "user2", ""); !errors.Is(err, approval.ErrInvalidState) {
		t.Fatalf("rejected approvals are terminal, got %v", err)
	}
}

func TestApprovalNotFound(t *testing.T) {
	svc, _ := newService(t, "artifact-x")
	if _, err := svc.Act(context.Background(), "nonexistent-id", approval.ActionApprove, "user2", ""); !errors.Is(err, approval.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestApprovalRequestUnknownArtifact(t *testing.T) {
	svc, _ := newService(t)
	if _, err := svc.Request(context.Background(), "ghost", "user1", ""); !errors.Is(err, approval.ErrArtifactNotFound) {
		t.Fatalf("expected ErrArtifactNotFound, got %v", err)
	}
}

func TestApprovalLookupFailure(t *testing.T) {
	boom := errors.New("db down")
	lookup := approval.ArtifactLookupFunc(func(context.Context, string) (bool, error) { return false, boom })
	svc := approval.NewService(approval.NewInMemory(), lookup)
	if _, err := svc.Request(context.Background(), "a", "user1", ""); !errors.Is(err, boom) {
		t.Fatalf("expected wrapped lookup error, got %v", err)
	}
}

func TestApprovalNotesPreservation(t *testing.T) {
	svc, _ := newService(t, "artifact-x")
	ctx := context.Background()

	a, _ := svc.Request(ctx, "artifact-x", "user1", "please check tone")
	got, err := svc.Act(ctx, a.ID, approval.ActionApprove, "user2", "")
	if err != nil {
		t.Fatalf("Act: %v", err)
	}
	if got.Notes == nil || *got.Notes != "please check tone" {
		t.Fatalf("notes should be preserved, got %v", got.Notes)
	}

	b, _ := svc.Request(ctx, "artifact-x", "user1", "please check tone")
	got, err = svc.Act(ctx, b.ID, approval.ActionApprove, "user2", "looks fine")
	if err != nil {
		t.Fatalf("Act: %v", err)
	}
	if got.Notes == nil || *got.Notes != "looks fine" {
		t.Fatalf("notes should be overwritten, got %v", got.Notes)
	}
}

func TestApprovalListingOrder(t *testing.T) {
	svc, _ := newService(t, "artifact-x")
	ctx := context.Background()

	var created []string
	for i := 0; i < 3; i++ {
		a, err := svc.Request(ctx, "artifact-x", "user1", "")
		if err != nil {
			t.Fatalf("Request: %v", err)
		}
		created = append(created, a.ID)
	}
	items, err := svc.ListByArtifact(ctx, "artifact-x")
	if err != nil {
		t.Fatalf("ListByArtifact: %v", err)
	}
	if len(items) != 3 || items[0].ID != created[2] || items[1].ID != created[1] || items[2].ID != created[0] {
		t.Fatalf("unexpected order: %+v", items)
	}

	empty, err := svc.ListByArtifact(ctx, "never-seen")
	if err != nil || len(empty) != 0 {
		t.Fatalf("expected empty list, got %v %v", empty, err)
	}
}

func TestActRejectsInvalidActionBeforeLookup(t *testing.T) {
	st := &countingStore{Store: approval.NewInMemory()}
	svc := approval.NewService(st, approval.ArtifactLookupFunc(func(context.Context, string) (bool, error) { return true, nil }))
	if _, err := svc.Act(context.Background(), "whatever", approval.Action{}, "user2", ""); !errors.Is(err, approval.ErrInvalidAction) {
		t.Fatalf("expected ErrInvalidAction, got %v", err)
	}
	if st.calls != 0 {
		t.Fatalf("store touched %d times", st.calls)
	}
}

func TestParseAction(t *testing.T) {
	cases := map[string]approval.Status{"approve": approval.StatusApproved, "REJECT": approval.StatusRejected}
	for in, want := range cases {
		a, err := approval.ParseAction(in)
		if err != nil {
			t.Fatalf("ParseAction(%q): %v", in, err)
		}
		if a.Target() != want {
			t.Fatalf("ParseAction(%q).Target() = %s, want %s", in, a.Target(), want)
		}
	}
	for _, bad := range []string{"", "approved", "aprove", "pending"} {
		if _, err := approval.ParseAction(bad); !errors.Is(err, approval.ErrInvalidAction) {
			t.Fatalf("ParseAction(%q) error = %v", bad, err)
		}
	}
}

func TestRequestValidatesInput(t *testing.T) {
	svc, _ := newService(t, "artifact-x")
	if _, err := svc.Request(context.Background(), "artifact-x", "  ", ""); !errors.Is(err, approval.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
}

type countingStore struct {
	approval.Store
	calls int
}

func (s *countingStore) Transition(ctx context.Context, id string, d approval.Decision) (approval.Approval, error) {
	s.calls++
	return s.Store.Transition(ctx, id, d)
}

func (s *countingStore) Get(ctx context.Context, id string) (approval.Approval, error) {
	s.calls++
	return s.Store.Get(ctx, id)
}

func TestApprovalWhitespaceNotesArePresent(t *testing.T) {
	svc, _ := newService(t, "artifact-x")
	ctx := context.Background()

	a, err := svc.Request(ctx, "artifact-x", "user1", "  ")
	if err != nil {
		t.Fatalf("Request: %v", err)
	}
	if a.Notes == nil || *a.Notes != "  " {
		t.Fatalf("whitespace notes should be stored, got %v", a.Notes)
	}

	b, _ := svc.Request(ctx, "artifact-x", "user1", "please check tone")
	got, err := svc.Act(ctx, b.ID, approval.ActionApprove, "user2", " ")
	if err != nil {
		t.Fatalf("Act: %v", err)
	}
	if got.Notes == nil || *got.Notes != " " {
		t.Fatalf("whitespace notes should overwrite, got %v", got.Notes)
	}
}
