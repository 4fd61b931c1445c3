package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"crisiscrew.org/internal/artifact"
)

// ArtifactStore implements artifact.Store on the artifacts table.
type ArtifactStore struct {
	db *sql.DB
}

var _ artifact.Store = (*ArtifactStore)(nil)

func (s *ArtifactStore) Create(ctx context.Context, a artifact.Artifact) error {
	_, err := s.db.ExecContext(ctx, `
		insert into artifacts(id, incident_id, kind, version, author_id, text, created_at)
		values ($1,$2,$3,$4,nullif($5,''),$6,$7)
	`, a.ID, a.IncidentID, string(a.Kind), a.Version, a.AuthorID, a.Text, a.CreatedAt)
	if pgCode(err) == codeUniqueViolation {
		return fmt.Errorf("%w: duplicate artifact id", artifact.ErrInvalidInput)
	}
	return err
}

func (s *ArtifactStore) Get(ctx context.Context, id string) (artifact.Artifact, error) {
	var (
		a      artifact.Artifact
		kind   string
		author sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		select id, incident_id, kind, version, author_id, text, created_at
		from artifacts where id=$1
	`, id).Scan(&a.ID, &a.IncidentID, &kind, &a.Version, &author, &a.Text, &a.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return artifact.Artifact{}, artifact.ErrNotFound
	}
	if err != nil {
		return artifact.Artifact{}, err
	}
	a.Kind = artifact.Kind(kind)
	a.AuthorID = author.String
	a.CreatedAt = a.CreatedAt.UTC()
	return a, nil
}

func (s *ArtifactStore) Exists(ctx context.Context, id string) (bool, error) {
	var ok bool
	err := s.db.QueryRowContext(ctx, `select exists(select 1 from artifacts where id=$1)`, id).Scan(&ok)
	return ok, err
}
