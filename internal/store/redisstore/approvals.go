// Package redisstore keeps approvals in Redis: one JSON document per
// approval plus a sorted set per artifact scored by creation time.
package redisstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"crisiscrew.org/internal/approval"
)

const maxTxAttempts = 5

// ApprovalStore implements approval.Store on Redis.
type ApprovalStore struct {
	rdb       redis.UniversalClient
	keyPrefix string
}

var _ approval.Store = (*ApprovalStore)(nil)

// NewApprovalStore creates a store whose keys live under keyPrefix
// ("crisiscrew" when empty).
func NewApprovalStore(rdb redis.UniversalClient, keyPrefix string) *ApprovalStore {
	return &ApprovalStore{rdb: rdb, keyPrefix: keyPrefix}
}

func (s *ApprovalStore) key(parts ...string) string {
	prefix := s.keyPrefix
	if prefix == "" {
		prefix = "crisiscrew"
	}
	return fmt.Sprintf("%s:%s", prefix, strings.Join(parts, ":"))
}

func (s *ApprovalStore) approvalKey(id string) string { return s.key("approval", id) }

func (s *ApprovalStore) artifactKey(artifactID string) string {
	return s.key("artifact_approvals", artifactID)
}

func (s *ApprovalStore) Create(ctx context.Context, a approval.Approval) error {
	if a.ID == "" || a.ArtifactID == "" {
		return approval.ErrInvalidInput
	}
	raw, err := json.Marshal(a)
	if err != nil {
		return err
	}
	key := s.approvalKey(a.ID)
	return s.rdb.Watch(ctx, func(tx *redis.Tx) error {
		n, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if n > 0 {
			return fmt.Errorf("%w: duplicate approval id", approval.ErrInvalidInput)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, 0)
			pipe.ZAdd(ctx, s.artifactKey(a.ArtifactID), redis.Z{
				Score:  float64(a.CreatedAt.UnixMicro()),
				Member: a.ID,
			})
			return nil
		})
		return err
	}, key)
}

func (s *ApprovalStore) Get(ctx context.Context, id string) (approval.Approval, error) {
	raw, err := s.rdb.Get(ctx, s.approvalKey(id)).Result()
	if errors.Is(err, redis.Nil) {
		return approval.Approval{}, approval.ErrNotFound
	}
	if err != nil {
		return approval.Approval{}, err
	}
	return decode(raw)
}

func (s *ApprovalStore) ListByArtifact(ctx context.Context, artifactID string) ([]approval.Approval, error) {
	ids, err := s.rdb.ZRevRange(ctx, s.artifactKey(artifactID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]approval.Approval, 0, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.approvalKey(id)
	}
	vals, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		a, err := decode(raw)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	approval.SortNewestFirst(out)
	return out, nil
}

// Transition applies d under WATCH so a concurrent writer aborts the
// transaction; the retry then observes the new status. When every attempt
// loses, the record is re-read: a missing record is ErrNotFound, anything
// else is ErrInvalidState.
func (s *ApprovalStore) Transition(ctx context.Context, id string, d approval.Decision) (approval.Approval, error) {
	key := s.approvalKey(id)
	var result approval.Approval
	for attempt := 1; ; attempt++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			raw, err := tx.Get(ctx, key).Result()
			if errors.Is(err, redis.Nil) {
				return approval.ErrNotFound
			}
			if err != nil {
				return err
			}
			current, err := decode(raw)
			if err != nil {
				return err
			}
			if current.Status != approval.StatusPending {
				return approval.ErrInvalidState
			}
			next := d.Apply(current)
			updated, err := json.Marshal(next)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				return pipe.Set(ctx, key, updated, 0).Err()
			})
			if err == nil {
				result = next
			}
			return err
		}, key)

		if err == nil {
			return result, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return approval.Approval{}, err
		}
		if attempt < maxTxAttempts {
			continue
		}
		return approval.Approval{}, s.contended(ctx, id)
	}
}

func (s *ApprovalStore) contended(ctx context.Context, id string) error {
	current, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if current.Status != approval.StatusPending {
		return approval.ErrInvalidState
	}
	return fmt.Errorf("%w: concurrent updates after %d attempts", approval.ErrInvalidState, maxTxAttempts)
}

func decode(raw string) (approval.Approval, error) {
	var a approval.Approval
	if err := json.Unmarshal([]byte(raw), &a); err != nil {
		return approval.Approval{}, fmt.Errorf("decode approval: %w", err)
	}
	return a, nil
}
