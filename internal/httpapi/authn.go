package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"crisiscrew.org/internal/auth"
	"crisiscrew.org/internal/obs"
)

const (
	authHeader = "Authorization"
	bearer     = "Bearer "

	wwwAuthenticate = `Bearer realm="crisiscrew"`
)

// Authenticate verifies the bearer token and stores the caller's principal
// in the request context.
func Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := extractBearerToken(r.Header.Get(authHeader))
		if err != nil {
			unauthorized(w, r, err.Error())
			return
		}

		claims, err := auth.ParseAndValidate(token)
		if err != nil {
			if errors.Is(err, auth.ErrInvalidToken) {
				unauthorized(w, r, "invalid token")
				return
			}
			obs.Error("token verification unavailable", map[string]any{"error": err, "request_id": RequestIDFromContext(r.Context())})
			writeError(w, r, http.StatusInternalServerError, "authentication error")
			return
		}

		ctx := auth.ContextWithPrincipal(r.Context(), auth.PrincipalFromClaims(claims))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequirePermission answers 401 without a principal and 403 when the
// principal lacks perm.
func RequirePermission(perm string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			principal, ok := auth.PrincipalFromContext(r.Context())
			if !ok {
				unauthorized(w, r, "authentication required")
				return
			}
			if !principal.HasPermission(perm) {
				w.Header().Set("WWW-Authenticate", wwwAuthenticate+`, error="insufficient_scope", scope="`+perm+`"`)
				writeError(w, r, http.StatusForbidden, "missing permission "+perm)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// protect chains authentication and a permission check in front of h.
func (a *API) protect(perm string, h http.HandlerFunc) http.Handler {
	return Authenticate(RequirePermission(perm)(h))
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("WWW-Authenticate", wwwAuthenticate)
	writeError(w, r, http.StatusUnauthorized, msg)
}

// callerID returns the authenticated subject; protected routes always have one.
func callerID(r *http.Request) string {
	if p, ok := auth.PrincipalFromContext(r.Context()); ok {
		return p.UserID
	}
	return ""
}

func extractBearerToken(header string) (string, error) {
	header = strings.TrimSpace(header)
	if header == "" {
		return "", errors.New("missing bearer token")
	}
	if len(header) < len(bearer) || !strings.EqualFold(header[:len(bearer)], bearer) {
		return "", errors.New("invalid authorization scheme")
	}
	token := strings.TrimSpace(header[len(bearer):])
	if token == "" {
		return "", errors.New("missing bearer token")
	}
	return token, nil
}
