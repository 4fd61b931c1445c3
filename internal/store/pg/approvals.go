package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"crisiscrew.org/internal/approval"
)

const approvalColumns = `id, artifact_id, status, requested_by_user_id, acted_by_user_id, notes, created_at, acted_at`

// ApprovalStore implements approval.Store on the approvals table.
type ApprovalStore struct {
	db *sql.DB
}

var _ approval.Store = (*ApprovalStore)(nil)

func (s *ApprovalStore) Create(ctx context.Context, a approval.Approval) error {
	_, err := s.db.ExecContext(ctx, `
		insert into approvals(id, artifact_id, status, requested_by_user_id, notes, created_at)
		values ($1,$2,$3,$4,$5,$6)
	`, a.ID, a.ArtifactID, string(a.Status), a.RequestedByUserID, nullString(a.Notes), a.CreatedAt)
	switch pgCode(err) {
	case "":
	case codeUniqueViolation:
		return fmt.Errorf("%w: duplicate approval id", approval.ErrInvalidInput)
	case codeForeignKeyViolation:
		return approval.ErrArtifactNotFound
	}
	return err
}

func (s *ApprovalStore) Get(ctx context.Context, id string) (approval.Approval, error) {
	row := s.db.QueryRowContext(ctx, `select `+approvalColumns+` from approvals where id=$1`, id)
	a, err := scanApproval(row)
	if errors.Is(err, sql.ErrNoRows) {
		return approval.Approval{}, approval.ErrNotFound
	}
	return a, err
}

func (s *ApprovalStore) ListByArtifact(ctx context.Context, artifactID string) ([]approval.Approval, error) {
	rows, err := s.db.QueryContext(ctx, `
		select `+approvalColumns+`
		from approvals
		where artifact_id=$1
		order by created_at desc, id desc
	`, artifactID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := []approval.Approval{}
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// Transition writes the decision only while the row is still pending, so two
// concurrent deciders cannot both succeed.
func (s *ApprovalStore) Transition(ctx context.Context, id string, d approval.Decision) (approval.Approval, error) {
	row := s.db.QueryRowContext(ctx, `
		update approvals
		set status=$2, acted_by_user_id=$3, acted_at=$4, notes=coalesce($5, notes)
		where id=$1 and status='pending'
		returning `+approvalColumns,
		id, string(d.Status), d.ActedBy, d.ActedAt, nullString(d.Notes))
	a, err := scanApproval(row)
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return approval.Approval{}, err
	}

	var status string
	err = s.db.QueryRowContext(ctx, `select status from approvals where id=$1`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return approval.Approval{}, approval.ErrNotFound
	}
	if err != nil {
		return approval.Approval{}, err
	}
	return approval.Approval{}, approval.ErrInvalidState
}

type scanner interface {
	Scan(dest ...any) error
}

func scanApproval(sc scanner) (approval.Approval, error) {
	var (
		a       approval.Approval
		status  string
		actedBy sql.NullString
		notes   sql.NullString
		actedAt sql.NullTime
	)
	if err := sc.Scan(&a.ID, &a.ArtifactID, &status, &a.RequestedByUserID, &actedBy, &notes, &a.CreatedAt, &actedAt); err != nil {
		return approval.Approval{}, err
	}
	a.Status = approval.Status(status)
	a.ActedByUserID = stringPtr(actedBy)
	a.Notes = stringPtr(notes)
	a.CreatedAt = a.CreatedAt.UTC()
	a.ActedAt = timePtr(actedAt)
	return a, nil
}
