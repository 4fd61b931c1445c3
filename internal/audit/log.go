// Package audit writes one JSON line per security-relevant action to the
// shared service logger.
package audit

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"crisiscrew.org/internal/auth"
	"crisiscrew.org/internal/obs"
)

// Audited events.
const (
	EventApprovalRequest = "approval.request"
	EventApprovalApprove = "approval.approve"
	EventApprovalReject  = "approval.reject"
	EventArtifactCreate  = "artifact.create"
	EventLegalLint       = "legal.lint"
	EventTokenIssued     = "auth.token.issued"
)

type ctxKey string

const requestIDKey ctxKey = "audit_request_id"

// WithRequestID attaches the request identifier to the context for audit logging.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// RequestIDFromContext returns the request id attached by WithRequestID.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// LogEvent writes an audit entry enriched with request id and, when the
// request is authenticated, the acting user and roles.
func LogEvent(ctx context.Context, event string, fields map[string]any) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := map[string]any{
		"ts":    time.Now().UTC().Format(time.RFC3339Nano),
		"type":  "audit",
		"event": event,
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry["request_id"] = rid
	}
	if p, ok := auth.PrincipalFromContext(ctx); ok && p.UserID != "" {
		entry["user_id"] = p.UserID
		if len(p.Roles) > 0 {
			entry["roles"] = p.Roles
		}
	}
	copyFields := make(map[string]any, len(fields))
	for k, v := range fields {
		copyFields[k] = v
	}
	entry["fields"] = copyFields

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	obs.Logger().Println(string(data))
	return nil
}
