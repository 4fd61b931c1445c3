// Package artifact holds the communication drafts that go through legal
// linting and approval.
package artifact

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"crisiscrew.org/internal/ids"
)

// Kind is the communication format of an artifact.
type Kind string

const (
	KindHolding       Kind = "holding"
	KindPressRelease  Kind = "press_release"
	KindInternal      Kind = "internal"
	KindFAQ           Kind = "faq"
	KindTalkingPoints Kind = "talking_points"
	KindSocialPack    Kind = "social_pack"
	KindStatusUpdate  Kind = "status_update"
)

var kinds = map[Kind]struct{}{
	KindHolding: {}, KindPressRelease: {}, KindInternal: {}, KindFAQ: {},
	KindTalkingPoints: {}, KindSocialPack: {}, KindStatusUpdate: {},
}

// ParseKind validates s against the known kinds.
func ParseKind(s string) (Kind, error) {
	k := Kind(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := kinds[k]; !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidKind, s)
	}
	return k, nil
}

var (
	ErrNotFound     = errors.New("artifact not found")
	ErrInvalidKind  = errors.New("invalid artifact kind")
	ErrInvalidInput = errors.New("invalid artifact")
)

// Artifact is one version of a drafted communication.
type Artifact struct {
	ID         string    `json:"id"`
	IncidentID string    `json:"incident_id"`
	Kind       Kind      `json:"kind"`
	Version    int       `json:"version"`
	AuthorID   string    `json:"author_id,omitempty"`
	Text       string    `json:"text"`
	CreatedAt  time.Time `json:"created_at"`
}

// Draft is the caller-supplied part of a new artifact.
type Draft struct {
	IncidentID string `json:"incident_id"`
	Kind       string `json:"kind"`
	Version    int    `json:"version,omitempty"`
	Text       string `json:"text"`
}

// Build validates d and stamps id, author and creation time. Version
// defaults to 1.
func Build(d Draft, authorID string, now time.Time) (Artifact, error) {
	kind, err := ParseKind(d.Kind)
	if err != nil {
		return Artifact{}, err
	}
	incident := strings.TrimSpace(d.IncidentID)
	if incident == "" {
		return Artifact{}, fmt.Errorf("%w: incident_id required", ErrInvalidInput)
	}
	if strings.TrimSpace(d.Text) == "" {
		return Artifact{}, fmt.Errorf("%w: text required", ErrInvalidInput)
	}
	version := d.Version
	switch {
	case version == 0:
		version = 1
	case version < 0:
		return Artifact{}, fmt.Errorf("%w: version must be positive", ErrInvalidInput)
	}
	return Artifact{
		ID:         ids.NewAt(now),
		IncidentID: incident,
		Kind:       kind,
		Version:    version,
		AuthorID:   strings.TrimSpace(authorID),
		Text:       d.Text,
		CreatedAt:  now,
	}, nil
}
