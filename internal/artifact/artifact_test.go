package artifact

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestBuild(t *testing.T) {
	now := time.Date(2024, 12, 19, 10, 0, 0, 0, time.UTC)
	a, err := Build(Draft{IncidentID: "inc-1", Kind: "Press_Release", Text: "We are investigating."}, "user1", now)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if a.ID == "" || a.Kind != KindPressRelease || a.Version != 1 || a.AuthorID != "user1" || !a.CreatedAt.Equal(now) {
		t.Fatalf("unexpected artifact: %+v", a)
	}
}

func TestBuildValidation(t *testing.T) {
	now := time.Now()
	cases := []struct {
		name string
		in   Draft
		want error
	}{
		{"unknown kind", Draft{IncidentID: "i", Kind: "tweet", Text: "x"}, ErrInvalidKind},
		{"missing incident", Draft{Kind: "faq", Text: "x"}, ErrInvalidInput},
		{"blank text", Draft{IncidentID: "i", Kind: "faq", Text: "  "}, ErrInvalidInput},
		{"negative version", Draft{IncidentID: "i", Kind: "faq", Text: "x", Version: -1}, ErrInvalidInput},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := Build(tc.in, "u", now); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	s := NewInMemory()
	a, _ := Build(Draft{IncidentID: "inc", Kind: "holding", Text: "Holding statement."}, "u", time.Now())
	if err := s.Create(ctx, a); err != nil {
		t.Fatalf("Create: %v", err)
	}
	if err := s.Create(ctx, a); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("duplicate create should fail, got %v", err)
	}
	got, err := s.Get(ctx, a.ID)
	if err != nil || got != a {
		t.Fatalf("Get = %+v, %v", got, err)
	}
	if ok, _ := s.Exists(ctx, a.ID); !ok {
		t.Fatal("Exists should report true")
	}
	if ok, _ := s.Exists(ctx, "missing"); ok {
		t.Fatal("Exists should report false for unknown id")
	}
	if _, err := s.Get(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
