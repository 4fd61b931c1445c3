package pg

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"

	"crisiscrew.org/internal/approval"
	"crisiscrew.org/internal/artifact"
)

var approvalCols = []string{"id", "artifact_id", "status", "requested_by_user_id", "acted_by_user_id", "notes", "created_at", "acted_at"}

func newMock(t *testing.T) (*Store, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() {
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Errorf("unmet expectations: %v", err)
		}
		db.Close()
	})
	return New(db), mock
}

func TestApprovalTransitionApplies(t *testing.T) {
	st, mock := newMock(t)
	created := time.Date(2024, 12, 19, 10, 0, 0, 0, time.UTC)
	acted := created.Add(time.Minute)

	mock.ExpectQuery("update approvals").
		WithArgs("ap-1", "approved", "user2", acted, sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(approvalCols).
			AddRow("ap-1", "art-1", "approved", "user1", "user2", "please check", created, acted))

	got, err := st.Approvals().Transition(context.Background(), "ap-1", approval.Decision{
		Status: approval.StatusApproved, ActedBy: "user2", ActedAt: acted,
	})
	if err != nil {
		t.Fatalf("Transition: %v", err)
	}
	if got.Status != approval.StatusApproved || *got.ActedByUserID != "user2" || !got.ActedAt.Equal(acted) {
		t.Fatalf("unexpected approval: %+v", got)
	}
	if got.Notes == nil || *got.Notes != "please check" {
		t.Fatalf("notes lost: %v", got.Notes)
	}
}

func TestApprovalTransitionNotPending(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery("update approvals").WillReturnRows(sqlmock.NewRows(approvalCols))
	mock.ExpectQuery("select status from approvals").WithArgs("ap-1").
		WillReturnRows(sqlmock.NewRows([]string{"status"}).AddRow("rejected"))

	_, err := st.Approvals().Transition(context.Background(), "ap-1", approval.Decision{
		Status: approval.StatusApproved, ActedBy: "user2", ActedAt: time.Now(),
	})
	if !errors.Is(err, approval.ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestApprovalTransitionUnknown(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery("update approvals").WillReturnRows(sqlmock.NewRows(approvalCols))
	mock.ExpectQuery("select status from approvals").WithArgs("ghost").
		WillReturnRows(sqlmock.NewRows([]string{"status"}))

	_, err := st.Approvals().Transition(context.Background(), "ghost", approval.Decision{
		Status: approval.StatusRejected, ActedBy: "user2", ActedAt: time.Now(),
	})
	if !errors.Is(err, approval.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestApprovalListByArtifact(t *testing.T) {
	st, mock := newMock(t)
	t1 := time.Date(2024, 12, 19, 10, 0, 0, 0, time.UTC)
	t2 := t1.Add(time.Hour)
	mock.ExpectQuery("select .* from approvals\\s+where artifact_id=\\$1\\s+order by created_at desc, id desc").
		WithArgs("art-1").
		WillReturnRows(sqlmock.NewRows(approvalCols).
			AddRow("ap-2", "art-1", "pending", "user1", nil, nil, t2, nil).
			AddRow("ap-1", "art-1", "approved", "user1", "user2", "ok", t1, t2))

	items, err := st.Approvals().ListByArtifact(context.Background(), "art-1")
	if err != nil {
		t.Fatalf("ListByArtifact: %v", err)
	}
	if len(items) != 2 || items[0].ID != "ap-2" || items[1].ID != "ap-1" {
		t.Fatalf("unexpected items: %+v", items)
	}
	if items[0].ActedByUserID != nil || items[0].Notes != nil || items[0].ActedAt != nil {
		t.Fatalf("null columns should map to nil: %+v", items[0])
	}
}

func TestApprovalListEmpty(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery("select .* from approvals").WithArgs("nobody").WillReturnRows(sqlmock.NewRows(approvalCols))
	items, err := st.Approvals().ListByArtifact(context.Background(), "nobody")
	if err != nil || items == nil || len(items) != 0 {
		t.Fatalf("expected empty non-nil list, got %v %v", items, err)
	}
}

func TestApprovalGetNotFound(t *testing.T) {
	st, mock := newMock(t)
	mock.ExpectQuery("select .* from approvals where id=\\$1").WithArgs("ghost").WillReturnRows(sqlmock.NewRows(approvalCols))
	if _, err := st.Approvals().Get(context.Background(), "ghost"); !errors.Is(err, approval.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestApprovalCreateMapsConstraintErrors(t *testing.T) {
	st, mock := newMock(t)
	a := approval.Approval{ID: "ap-1", ArtifactID: "art-1", Status: approval.StatusPending, RequestedByUserID: "user1", CreatedAt: time.Now()}

	mock.ExpectExec("insert into approvals").WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec("insert into approvals").WillReturnError(&pgconn.PgError{Code: codeUniqueViolation})
	mock.ExpectExec("insert into approvals").WillReturnError(&pgconn.PgError{Code: codeForeignKeyViolation})

	ctx := context.Background()
	if err := st.Approvals().Create(ctx, a); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := st.Approvals().Create(ctx, a); !errors.Is(err, approval.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}
	if err := st.Approvals().Create(ctx, a); !errors.Is(err, approval.ErrArtifactNotFound) {
		t.Fatalf("expected ErrArtifactNotFound, got %v", err)
	}
}

func TestArtifactStore(t *testing.T) {
	st, mock := newMock(t)
	created := time.Date(2024, 12, 19, 10, 0, 0, 0, time.UTC)
	cols := []string{"id", "incident_id", "kind", "version", "author_id", "text", "created_at"}

	mock.ExpectExec("insert into artifacts").
		WithArgs("art-1", "inc-1", "faq", 1, "user1", "We never comment.", created).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectQuery("select id, incident_id, kind").WithArgs("art-1").
		WillReturnRows(sqlmock.NewRows(cols).AddRow("art-1", "inc-1", "faq", 1, nil, "We never comment.", created))
	mock.ExpectQuery("select id, incident_id, kind").WithArgs("ghost").WillReturnRows(sqlmock.NewRows(cols))
	mock.ExpectQuery("select exists").WithArgs("art-1").WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	ctx := context.Background()
	arts := st.Artifacts()
	err := arts.Create(ctx, artifact.Artifact{
		ID: "art-1", IncidentID: "inc-1", Kind: artifact.KindFAQ, Version: 1,
		AuthorID: "user1", Text: "We never comment.", CreatedAt: created,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	got, err := arts.Get(ctx, "art-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Kind != artifact.KindFAQ || got.AuthorID != "" || got.Text != "We never comment." {
		t.Fatalf("unexpected artifact: %+v", got)
	}
	if _, err := arts.Get(ctx, "ghost"); !errors.Is(err, artifact.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	ok, err := arts.Exists(ctx, "art-1")
	if err != nil || !ok {
		t.Fatalf("Exists = %v, %v", ok, err)
	}
}
