// Package approval manages the request/decision lifecycle of artifact
// reviews: pending -> approved | rejected, each record decided exactly once.
package approval

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"crisiscrew.org/internal/ids"
	"crisiscrew.org/internal/obs"
)

// Service enforces the approval state machine over a Store. It keeps no
// state of its own; every call goes to the store.
type Service struct {
	store     Store
	artifacts ArtifactLookup
	now       func() time.Time
	newID     func(time.Time) string
}

// Option configures Service.
type Option func(*Service)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithIDGenerator overrides identifier minting.
func WithIDGenerator(gen func(time.Time) string) Option {
	return func(s *Service) {
		if gen != nil {
			s.newID = gen
		}
	}
}

// NewService wires the workflow to its store and artifact lookup.
func NewService(store Store, artifacts ArtifactLookup, opts ...Option) *Service {
	s := &Service{
		store:     store,
		artifacts: artifacts,
		now:       func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		newID:     ids.NewAt,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListByArtifact returns the artifact's approvals, newest first.
func (s *Service) ListByArtifact(ctx context.Context, artifactID string) ([]Approval, error) {
	return s.store.ListByArtifact(ctx, strings.TrimSpace(artifactID))
}

// Get loads one approval.
func (s *Service) Get(ctx context.Context, id string) (Approval, error) {
	return s.store.Get(ctx, strings.TrimSpace(id))
}

// Request opens a pending approval for an existing artifact. Empty notes are
// stored as null.
func (s *Service) Request(ctx context.Context, artifactID, requestedBy, notes string) (Approval, error) {
	artifactID = strings.TrimSpace(artifactID)
	requestedBy = strings.TrimSpace(requestedBy)
	if artifactID == "" || requestedBy == "" {
		return Approval{}, ErrInvalidInput
	}

	exists, err := s.artifacts.Exists(ctx, artifactID)
	if err != nil {
		return Approval{}, fmt.Errorf("lookup artifact: %w", err)
	}
	if !exists {
		return Approval{}, ErrArtifactNotFound
	}

	now := s.now()
	a := Approval{
		ID:                s.newID(now),
		ArtifactID:        artifactID,
		Status:            StatusPending,
		RequestedByUserID: requestedBy,
		Notes:             optionalNotes(notes),
		CreatedAt:         now,
	}
	if err := s.store.Create(ctx, a); err != nil {
		return Approval{}, fmt.Errorf("create approval: %w", err)
	}
	obs.ApprovalRequested()
	return a, nil
}

// Act records a decision on a pending approval. Non-empty notes replace the
// stored notes; otherwise existing notes are kept.
func (s *Service) Act(ctx context.Context, approvalID string, action Action, actedBy, notes string) (Approval, error) {
	if !action.valid() {
		return Approval{}, ErrInvalidAction
	}
	approvalID = strings.TrimSpace(approvalID)
	actedBy = strings.TrimSpace(actedBy)
	if approvalID == "" || actedBy == "" {
		return Approval{}, ErrInvalidInput
	}

	updated, err := s.store.Transition(ctx, approvalID, Decision{
		Status:  action.Target(),
		ActedBy: actedBy,
		ActedAt: s.now(),
		Notes:   optionalNotes(notes),
	})
	if err != nil {
		if errors.Is(err, ErrInvalidState) {
			obs.ApprovalConflict()
		}
		return Approval{}, err
	}
	obs.ApprovalDecided(string(updated.Status))
	return updated, nil
}
