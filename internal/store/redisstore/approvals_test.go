package redisstore

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"crisiscrew.org/internal/approval"
	"crisiscrew.org/internal/approval/approvaltest"
)

func newStore(t *testing.T, prefix string) (*ApprovalStore, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		mr.Close()
	})
	return NewApprovalStore(client, prefix), mr
}

func TestApprovalStoreContract(t *testing.T) {
	approvaltest.RunStoreContract(t, func(t *testing.T) approval.Store {
		st, _ := newStore(t, "test")
		return st
	})
}

func TestApprovalStoreKeyLayout(t *testing.T) {
	st, mr := newStore(t, "")
	ctx := context.Background()
	a := approval.Approval{
		ID: "ap-1", ArtifactID: "art-1", Status: approval.StatusPending,
		RequestedByUserID: "user1", CreatedAt: time.Date(2024, 12, 19, 10, 0, 0, 0, time.UTC),
	}
	if err := st.Create(ctx, a); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !mr.Exists("crisiscrew:approval:ap-1") {
		t.Fatalf("approval document missing; keys=%v", mr.Keys())
	}
	members, err := mr.ZMembers("crisiscrew:artifact_approvals:art-1")
	if err != nil || len(members) != 1 || members[0] != "ap-1" {
		t.Fatalf("artifact index = %v, %v", members, err)
	}
}

func TestApprovalStoreSkipsDanglingIndexEntries(t *testing.T) {
	st, mr := newStore(t, "test")
	ctx := context.Background()
	a := approval.Approval{
		ID: "ap-1", ArtifactID: "art-1", Status: approval.StatusPending,
		RequestedByUserID: "user1", CreatedAt: time.Now().UTC(),
	}
	if err := st.Create(ctx, a); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if _, err := mr.ZAdd("test:artifact_approvals:art-1", 1, "ap-gone"); err != nil {
		t.Fatalf("ZAdd: %v", err)
	}
	items, err := st.ListByArtifact(ctx, "art-1")
	if err != nil {
		t.Fatalf("ListByArtifact: %v", err)
	}
	if len(items) != 1 || items[0].ID != "ap-1" {
		t.Fatalf("unexpected items: %+v", items)
	}
}

// rewriteHook writes key through a second client before every pipeline, so
// each WATCH in Transition is invalidated.
type rewriteHook struct {
	other *redis.Client
	key   string
	value string
	hits  int
}

func (h *rewriteHook) DialHook(next redis.DialHook) redis.DialHook {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		return next(ctx, network, addr)
	}
}

func (h *rewriteHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return next
}

func (h *rewriteHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		h.hits++
		if err := h.other.Set(ctx, h.key, h.value, 0).Err(); err != nil {
			return err
		}
		return next(ctx, cmds)
	}
}

func TestApprovalTransitionContentionIsInvalidState(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	other := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = client.Close()
		_ = other.Close()
	})
	st := NewApprovalStore(client, "test")
	ctx := context.Background()

	a := approval.Approval{
		ID: "ap-1", ArtifactID: "art-1", Status: approval.StatusPending,
		RequestedByUserID: "user1", CreatedAt: time.Date(2024, 12, 19, 10, 0, 0, 0, time.UTC),
	}
	if err := st.Create(ctx, a); err != nil {
		t.Fatalf("Create: %v", err)
	}
	raw, err := other.Get(ctx, "test:approval:ap-1").Result()
	if err != nil {
		t.Fatalf("Get raw: %v", err)
	}
	hook := &rewriteHook{other: other, key: "test:approval:ap-1", value: raw}
	client.AddHook(hook)

	_, err = st.Transition(ctx, "ap-1", approval.Decision{
		Status:  approval.StatusApproved,
		ActedBy: "user2",
		ActedAt: time.Date(2024, 12, 19, 11, 0, 0, 0, time.UTC),
	})
	if !errors.Is(err, approval.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if errors.Is(err, redis.TxFailedErr) {
		t.Fatalf("transaction error leaked: %v", err)
	}
	if hook.hits != maxTxAttempts {
		t.Fatalf("expected %d attempts, got %d", maxTxAttempts, hook.hits)
	}
	got, err := st.Get(ctx, "ap-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != approval.StatusPending || got.ActedByUserID != nil {
		t.Fatalf("record changed by a lost transaction: %+v", got)
	}
}
