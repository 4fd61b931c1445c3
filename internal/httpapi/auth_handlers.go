package httpapi

import (
	"net/http"
	"strings"
	"time"

	"crisiscrew.org/internal/audit"
	"crisiscrew.org/internal/auth"
)

type tokenRequest struct {
	User  string   `json:"user"`
	Roles []string `json:"roles"`
}

type tokenResponse struct {
	Token       string    `json:"token"`
	ExpiresAt   time.Time `json:"expires_at"`
	Permissions []string  `json:"permissions"`
}

// handleAuthToken mints a development token. Only routed when token issuing
// is enabled in config.
func (a *API) handleAuthToken(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	user := strings.TrimSpace(req.User)
	if user == "" {
		writeError(w, r, http.StatusBadRequest, "user is required")
		return
	}
	roles := make([]string, 0, len(req.Roles))
	for _, role := range req.Roles {
		role = strings.ToLower(strings.TrimSpace(role))
		if role == "" {
			continue
		}
		if !auth.KnownRole(role) {
			writeError(w, r, http.StatusBadRequest, "unknown role "+role)
			return
		}
		roles = append(roles, role)
	}
	if len(roles) == 0 {
		writeError(w, r, http.StatusBadRequest, "roles are required")
		return
	}

	token, err := auth.GenerateToken(user, roles, a.tokenTTL)
	if err != nil {
		internalError(w, r, err)
		return
	}

	expiresAt := a.now().Add(a.tokenTTL)
	_ = audit.LogEvent(r.Context(), audit.EventTokenIssued, map[string]any{
		"user":       user,
		"roles":      roles,
		"expires_at": expiresAt.Format(time.RFC3339),
	})

	writeJSON(w, http.StatusOK, tokenResponse{
		Token:       token,
		ExpiresAt:   expiresAt,
		Permissions: auth.PermissionsForRoles(roles),
	})
}
