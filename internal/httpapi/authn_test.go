package httpapi

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"crisiscrew.org/internal/auth"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
}

func TestRequirePermissionAllowsGrantedPermission(t *testing.T) {
	handler := RequirePermission(auth.PermApprovalsAct)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/internal", nil)
	req = req.WithContext(auth.ContextWithPrincipal(req.Context(), auth.NewPrincipal("user-1", []string{"legal"})))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
}

func TestRequirePermissionRejectsMissingPermission(t *testing.T) {
	handler := RequirePermission(auth.PermApprovalsAct)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/internal", nil)
	req = req.WithContext(auth.ContextWithPrincipal(req.Context(), auth.NewPrincipal("user-1", []string{"viewer"})))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if got := rr.Header().Get("WWW-Authenticate"); !strings.Contains(got, "insufficient_scope") {
		t.Fatalf("expected insufficient_scope challenge, got %q", got)
	}
}

func TestRequirePermissionRejectsMissingPrincipal(t *testing.T) {
	handler := RequirePermission(auth.PermApprovalsAct)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/internal", nil)
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if got := rr.Header().Get("WWW-Authenticate"); got == "" {
		t.Fatalf("expected WWW-Authenticate header set")
	}
}

func TestAuthenticate(t *testing.T) {
	t.Setenv("CRISISCREW_AUTH_SECRET", "test-secret")
	auth.ResetSecretForTests()
	t.Cleanup(auth.ResetSecretForTests)

	token, err := auth.GenerateToken("user-9", []string{"comms"}, time.Minute)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	var seen string
	handler := Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = callerID(r)
		w.WriteHeader(http.StatusOK)
	}))

	cases := []struct {
		name   string
		header string
		want   int
	}{
		{"valid", "Bearer " + token, http.StatusOK},
		{"lowercase scheme", "bearer " + token, http.StatusOK},
		{"missing", "", http.StatusUnauthorized},
		{"basic", "Basic Zm9vOmJhcg==", http.StatusUnauthorized},
		{"garbage", "Bearer not-a-jwt", http.StatusUnauthorized},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seen = ""
			req := httptest.NewRequest(http.MethodGet, "/v1/approvals/artifact/x", nil)
			if tc.header != "" {
				req.Header.Set(authHeader, tc.header)
			}
			rr := httptest.NewRecorder()
			handler.ServeHTTP(rr, req)
			if rr.Code != tc.want {
				t.Fatalf("expected %d, got %d", tc.want, rr.Code)
			}
			if tc.want == http.StatusOK && seen != "user-9" {
				t.Fatalf("principal not attached, got %q", seen)
			}
		})
	}
}
