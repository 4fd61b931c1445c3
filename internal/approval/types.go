package approval

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Status is the lifecycle state of an approval.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Terminal reports whether no further transition may leave s.
func (s Status) Terminal() bool {
	return s == StatusApproved || s == StatusRejected
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	return s == StatusPending || s.Terminal()
}

// Action is a reviewer decision. Only ActionApprove and ActionReject exist.
type Action struct {
	name   string
	target Status
}

var (
	ActionApprove = Action{name: "approve", target: StatusApproved}
	ActionReject  = Action{name: "reject", target: StatusRejected}
)

// ParseAction maps "approve" or "reject" to an Action.
func ParseAction(s string) (Action, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case ActionApprove.name:
		return ActionApprove, nil
	case ActionReject.name:
		return ActionReject, nil
	}
	return Action{}, fmt.Errorf("%w: %q", ErrInvalidAction, s)
}

func (a Action) String() string { return a.name }

// Target is the status the action moves a pending approval to.
func (a Action) Target() Status { return a.target }

func (a Action) valid() bool { return a == ActionApprove || a == ActionReject }

// Approval is one review request for an artifact.
type Approval struct {
	ID                string     `json:"id"`
	ArtifactID        string     `json:"artifact_id"`
	Status            Status     `json:"status"`
	RequestedByUserID string     `json:"requested_by_user_id"`
	ActedByUserID     *string    `json:"acted_by_user_id"`
	Notes             *string    `json:"notes"`
	CreatedAt         time.Time  `json:"created_at"`
	ActedAt           *time.Time `json:"acted_at"`
}

// Decision is the write applied by a successful transition.
type Decision struct {
	Status  Status
	ActedBy string
	ActedAt time.Time
	// Notes replaces the stored notes when non-nil.
	Notes *string
}

// Apply returns a with the decision applied. It does not check the current status.
func (d Decision) Apply(a Approval) Approval {
	a.Status = d.Status
	actedBy := d.ActedBy
	a.ActedByUserID = &actedBy
	actedAt := d.ActedAt
	a.ActedAt = &actedAt
	if d.Notes != nil {
		notes := *d.Notes
		a.Notes = &notes
	}
	return a
}

var (
	ErrNotFound         = errors.New("approval not found")
	ErrArtifactNotFound = errors.New("artifact not found")
	ErrInvalidState     = errors.New("approval not pending")
	ErrInvalidAction    = errors.New("invalid action (must be approve or reject)")
	ErrInvalidInput     = errors.New("invalid input")
)

// optionalNotes turns empty notes into nil. Whitespace-only notes are kept
// as given.
func optionalNotes(notes string) *string {
	if notes == "" {
		return nil
	}
	return &notes
}

// SortNewestFirst orders approvals by creation time descending, breaking ties
// by id descending.
func SortNewestFirst(items []Approval) {
	sort.SliceStable(items, func(i, j int) bool {
		if !items[i].CreatedAt.Equal(items[j].CreatedAt) {
			return items[i].CreatedAt.After(items[j].CreatedAt)
		}
		return items[i].ID > items[j].ID
	})
}
