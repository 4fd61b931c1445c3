// Package approvaltest holds a behavioral suite every approval.Store backend must pass.
package approvaltest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"crisiscrew.org/internal/approval"
	"crisiscrew.org/internal/ids"
)

// Factory returns a fresh, empty store.
type Factory func(t *testing.T) approval.Store

// RunStoreContract exercises st against the approval.Store contract.
func RunStoreContract(t *testing.T, factory Factory) {
	t.Helper()

	t.Run("create and get", func(t *testing.T) {
		ctx := context.Background()
		st := factory(t)
		a := pending("artifact-1", time.Now().UTC(), "please check tone")
		if err := st.Create(ctx, a); err != nil {
			t.Fatalf("Create: %v", err)
		}
		got, err := st.Get(ctx, a.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if got.Status != approval.StatusPending || got.RequestedByUserID != "user-1" {
			t.Fatalf("unexpected approval: %+v", got)
		}
		if got.ActedByUserID != nil || got.ActedAt != nil {
			t.Fatalf("fresh approval must not be acted: %+v", got)
		}
		if got.Notes == nil || *got.Notes != "please check tone" {
			t.Fatalf("notes not stored: %+v", got.Notes)
		}
		if !got.CreatedAt.Equal(a.CreatedAt) {
			t.Fatalf("created_at changed: %v != %v", got.CreatedAt, a.CreatedAt)
		}
	})

	t.Run("get unknown", func(t *testing.T) {
		st := factory(t)
		if _, err := st.Get(context.Background(), "missing"); !errors.Is(err, approval.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("list unknown artifact", func(t *testing.T) {
		st := factory(t)
		items, err := st.ListByArtifact(context.Background(), "nobody")
		if err != nil {
			t.Fatalf("ListByArtifact: %v", err)
		}
		if len(items) != 0 {
			t.Fatalf("expected empty list, got %d", len(items))
		}
	})

	t.Run("list newest first", func(t *testing.T) {
		ctx := context.Background()
		st := factory(t)
		base := time.Date(2024, 12, 19, 10, 0, 0, 0, time.UTC)
		var created []string
		for i := 0; i < 3; i++ {
			a := pending("artifact-x", base.Add(time.Duration(i)*time.Minute), "")
			if err := st.Create(ctx, a); err != nil {
				t.Fatalf("Create %d: %v", i, err)
			}
			created = append(created, a.ID)
		}
		if err := st.Create(ctx, pending("artifact-y", base, "")); err != nil {
			t.Fatalf("Create other: %v", err)
		}

		items, err := st.ListByArtifact(ctx, "artifact-x")
		if err != nil {
			t.Fatalf("ListByArtifact: %v", err)
		}
		if len(items) != 3 {
			t.Fatalf("expected 3 approvals, got %d", len(items))
		}
		for i, item := range items {
			if want := created[len(created)-1-i]; item.ID != want {
				t.Fatalf("position %d = %s, want %s", i, item.ID, want)
			}
		}
	})

	t.Run("transition once", func(t *testing.T) {
		ctx := context.Background()
		st := factory(t)
		a := pending("artifact-1", time.Now().UTC(), "please check tone")
		if err := st.Create(ctx, a); err != nil {
			t.Fatalf("Create: %v", err)
		}
		actedAt := time.Now().UTC().Truncate(time.Microsecond)
		got, err := st.Transition(ctx, a.ID, approval.Decision{
			Status:  approval.StatusApproved,
			ActedBy: "user-2",
			ActedAt: actedAt,
		})
		if err != nil {
			t.Fatalf("Transition: %v", err)
		}
		if got.Status != approval.StatusApproved || got.ActedByUserID == nil || *got.ActedByUserID != "user-2" {
			t.Fatalf("unexpected transition result: %+v", got)
		}
		if got.ActedAt == nil || !got.ActedAt.Equal(actedAt) {
			t.Fatalf("acted_at not recorded: %v", got.ActedAt)
		}
		if got.Notes == nil || *got.Notes != "please check tone" {
			t.Fatalf("notes should be preserved: %v", got.Notes)
		}

		notes := "too late"
		_, err = st.Transition(ctx, a.ID, approval.Decision{
			Status:  approval.StatusRejected,
			ActedBy: "user-3",
			ActedAt: time.Now().UTC(),
			Notes:   &notes,
		})
		if !errors.Is(err, approval.ErrInvalidState) {
			t.Fatalf("expected ErrInvalidState, got %v", err)
		}
		stored, err := st.Get(ctx, a.ID)
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		if stored.Status != approval.StatusApproved || *stored.ActedByUserID != "user-2" || *stored.Notes != "please check tone" {
			t.Fatalf("terminal record changed: %+v", stored)
		}
	})

	t.Run("transition overwrites notes", func(t *testing.T) {
		ctx := context.Background()
		st := factory(t)
		a := pending("artifact-1", time.Now().UTC(), "please check tone")
		if err := st.Create(ctx, a); err != nil {
			t.Fatalf("Create: %v", err)
		}
		notes := "looks fine"
		got, err := st.Transition(ctx, a.ID, approval.Decision{
			Status:  approval.StatusApproved,
			ActedBy: "user-2",
			ActedAt: time.Now().UTC(),
			Notes:   &notes,
		})
		if err != nil {
			t.Fatalf("Transition: %v", err)
		}
		if got.Notes == nil || *got.Notes != "looks fine" {
			t.Fatalf("notes not overwritten: %v", got.Notes)
		}
	})

	t.Run("transition unknown", func(t *testing.T) {
		st := factory(t)
		_, err := st.Transition(context.Background(), "nonexistent-id", approval.Decision{
			Status:  approval.StatusApproved,
			ActedBy: "user-2",
			ActedAt: time.Now().UTC(),
		})
		if !errors.Is(err, approval.ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("concurrent transitions have one winner", func(t *testing.T) {
		ctx := context.Background()
		st := factory(t)
		a := pending("artifact-1", time.Now().UTC(), "")
		if err := st.Create(ctx, a); err != nil {
			t.Fatalf("Create: %v", err)
		}

		const n = 16
		var (
			wg        sync.WaitGroup
			mu        sync.Mutex
			wins      int
			conflicts int
		)
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				status := approval.StatusApproved
				if i%2 == 1 {
					status = approval.StatusRejected
				}
				_, err := st.Transition(ctx, a.ID, approval.Decision{
					Status:  status,
					ActedBy: "reviewer",
					ActedAt: time.Now().UTC(),
				})
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					wins++
				case errors.Is(err, approval.ErrInvalidState):
					conflicts++
				default:
					t.Errorf("unexpected error: %v", err)
				}
			}(i)
		}
		wg.Wait()
		if wins != 1 || conflicts != n-1 {
			t.Fatalf("wins=%d conflicts=%d, want 1 and %d", wins, conflicts, n-1)
		}
	})
}

func pending(artifactID string, at time.Time, notes string) approval.Approval {
	a := approval.Approval{
		ID:                ids.NewAt(at),
		ArtifactID:        artifactID,
		Status:            approval.StatusPending,
		RequestedByUserID: "user-1",
		CreatedAt:         at.Truncate(time.Microsecond),
	}
	if notes != "" {
		a.Notes = &notes
	}
	return a
}
