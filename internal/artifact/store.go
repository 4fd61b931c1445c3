package artifact

import (
	"context"
	"sync"
)

// Store persists artifacts. Exists makes every Store usable as an
// approval.ArtifactLookup.
type Store interface {
	Create(ctx context.Context, a Artifact) error
	Get(ctx context.Context, id string) (Artifact, error)
	Exists(ctx context.Context, id string) (bool, error)
}

// InMemory implements Store in process memory.
type InMemory struct {
	mu    sync.RWMutex
	items map[string]Artifact
}

var _ Store = (*InMemory)(nil)

func NewInMemory() *InMemory {
	return &InMemory{items: make(map[string]Artifact)}
}

func (s *InMemory) Create(ctx context.Context, a Artifact) error {
	if a.ID == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[a.ID]; ok {
		return ErrInvalidInput
	}
	s.items[a.ID] = a
	return nil
}

func (s *InMemory) Get(ctx context.Context, id string) (Artifact, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.items[id]
	if !ok {
		return Artifact{}, ErrNotFound
	}
	return a, nil
}

func (s *InMemory) Exists(ctx context.Context, id string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.items[id]
	return ok, nil
}
