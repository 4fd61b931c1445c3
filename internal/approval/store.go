package approval

import (
	"context"
	"sync"
)

// Store persists approvals. Implementations must make Transition atomic: the
// decision is written only if the record is still pending at write time.
type Store interface {
	Create(ctx context.Context, a Approval) error
	Get(ctx context.Context, id string) (Approval, error)
	// ListByArtifact returns approvals newest first; unknown artifacts yield an empty list.
	ListByArtifact(ctx context.Context, artifactID string) ([]Approval, error)
	// Transition returns ErrNotFound for unknown ids and ErrInvalidState when
	// the approval has already left pending.
	Transition(ctx context.Context, id string, d Decision) (Approval, error)
}

// ArtifactLookup answers whether an artifact exists.
type ArtifactLookup interface {
	Exists(ctx context.Context, artifactID string) (bool, error)
}

// ArtifactLookupFunc adapts a function to ArtifactLookup.
type ArtifactLookupFunc func(ctx context.Context, artifactID string) (bool, error)

func (f ArtifactLookupFunc) Exists(ctx context.Context, artifactID string) (bool, error) {
	return f(ctx, artifactID)
}

// InMemory implements Store in process memory.
type InMemory struct {
	mu         sync.Mutex
	items      map[string]Approval
	byArtifact map[string][]string
}

var _ Store = (*InMemory)(nil)

// NewInMemory creates an empty store.
func NewInMemory() *InMemory {
	return &InMemory{
		items:      make(map[string]Approval),
		byArtifact: make(map[string][]string),
	}
}

func (s *InMemory) Create(ctx context.Context, a Approval) error {
	if a.ID == "" || a.ArtifactID == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.items[a.ID]; exists {
		return ErrInvalidInput
	}
	s.items[a.ID] = clone(a)
	s.byArtifact[a.ArtifactID] = append(s.byArtifact[a.ArtifactID], a.ID)
	return nil
}

func (s *InMemory) Get(ctx context.Context, id string) (Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.items[id]
	if !ok {
		return Approval{}, ErrNotFound
	}
	return clone(a), nil
}

func (s *InMemory) ListByArtifact(ctx context.Context, artifactID string) ([]Approval, error) {
	s.mu.Lock()
	ids := s.byArtifact[artifactID]
	out := make([]Approval, 0, len(ids))
	for _, id := range ids {
		out = append(out, clone(s.items[id]))
	}
	s.mu.Unlock()

	SortNewestFirst(out)
	return out, nil
}

func (s *InMemory) Transition(ctx context.Context, id string, d Decision) (Approval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.items[id]
	if !ok {
		return Approval{}, ErrNotFound
	}
	if current.Status != StatusPending {
		return Approval{}, ErrInvalidState
	}
	next := d.Apply(current)
	s.items[id] = next
	return clone(next), nil
}

func clone(a Approval) Approval {
	if a.ActedByUserID != nil {
		v := *a.ActedByUserID
		a.ActedByUserID = &v
	}
	if a.Notes != nil {
		v := *a.Notes
		a.Notes = &v
	}
	if a.ActedAt != nil {
		v := *a.ActedAt
		a.ActedAt = &v
	}
	return a
}
