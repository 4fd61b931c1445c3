// Package client is a typed HTTP client for the crisiscrew gateway. Error
// responses are mapped back to the approval and artifact sentinels so callers
// can use errors.Is across the wire.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"crisiscrew.org/internal/approval"
	"crisiscrew.org/internal/artifact"
	"crisiscrew.org/internal/auth"
	"crisiscrew.org/internal/redline"
)

// APIError is a non-2xx gateway response.
type APIError struct {
	Status    int
	Message   string
	RequestID string
}

func (e *APIError) Error() string {
	if e.RequestID != "" {
		return fmt.Sprintf("gateway: %d %s (request %s)", e.Status, e.Message, e.RequestID)
	}
	return fmt.Sprintf("gateway: %d %s", e.Status, e.Message)
}

// Client talks to one gateway base URL.
type Client struct {
	base  *url.URL
	http  *http.Client
	token string
}

type Option func(*Client)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithToken sets the bearer token sent on every request.
func WithToken(token string) Option {
	return func(c *Client) { c.token = token }
}

func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http or https, got %q", baseURL)
	}
	c := &Client{base: u, http: &http.Client{Timeout: 10 * time.Second}}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// SetToken replaces the bearer token.
func (c *Client) SetToken(token string) { c.token = token }

// IssueToken calls the development token endpoint and keeps the result.
func (c *Client) IssueToken(ctx context.Context, user string, roles ...string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	body := map[string]any{"user": user, "roles": roles}
	if err := c.do(ctx, http.MethodPost, "/v1/auth/token", nil, body, "", &out); err != nil {
		return "", err
	}
	c.token = out.Token
	return out.Token, nil
}

func (c *Client) Lint(ctx context.Context, text string, order redline.Order) ([]redline.Redline, error) {
	var out []redline.Redline
	err := c.do(ctx, http.MethodPost, "/v1/legal/lint", orderQuery(order), map[string]string{"text": text}, "", &out)
	return out, err
}

func (c *Client) LintArtifact(ctx context.Context, artifactID string, order redline.Order) ([]redline.Redline, error) {
	var out []redline.Redline
	err := c.do(ctx, http.MethodPost, "/v1/artifacts/"+url.PathEscape(artifactID)+"/legal/lint", orderQuery(order), nil, "", &out)
	return out, err
}

func (c *Client) CreateArtifact(ctx context.Context, d artifact.Draft) (artifact.Artifact, error) {
	var out artifact.Artifact
	body := map[string]any{"incident_id": d.IncidentID, "kind": d.Kind, "text": d.Text}
	if d.Version > 0 {
		body["version"] = d.Version
	}
	err := c.do(ctx, http.MethodPost, "/v1/artifacts", nil, body, "", &out)
	return out, err
}

func (c *Client) GetArtifact(ctx context.Context, id string) (artifact.Artifact, error) {
	var out artifact.Artifact
	err := c.do(ctx, http.MethodGet, "/v1/artifacts/"+url.PathEscape(id), nil, nil, "", &out)
	return out, err
}

// RequestApproval opens an approval. A non-empty idemKey is sent as
// Idempotency-Key.
func (c *Client) RequestApproval(ctx context.Context, artifactID, notes, idemKey string) (approval.Approval, error) {
	var out approval.Approval
	var body any
	if notes != "" {
		body = map[string]string{"notes": notes}
	}
	err := c.do(ctx, http.MethodPost, "/v1/approvals/artifact/"+url.PathEscape(artifactID)+"/request", nil, body, idemKey, &out)
	return out, err
}

func (c *Client) Act(ctx context.Context, approvalID string, action approval.Action, notes string) (approval.Approval, error) {
	var out approval.Approval
	body := map[string]string{"action": action.String(), "notes": notes}
	err := c.do(ctx, http.MethodPost, "/v1/approvals/"+url.PathEscape(approvalID)+"/act", nil, body, "", &out)
	return out, err
}

func (c *Client) ListApprovals(ctx context.Context, artifactID string) ([]approval.Approval, error) {
	var out []approval.Approval
	err := c.do(ctx, http.MethodGet, "/v1/approvals/artifact/"+url.PathEscape(artifactID), nil, nil, "", &out)
	return out, err
}

func orderQuery(o redline.Order) url.Values {
	if o == redline.OrderByTerm {
		return nil
	}
	return url.Values{"order": []string{o.String()}}
}

func (c *Client) do(ctx context.Context, method, path string, query url.Values, body any, idemKey string, out any) error {
	u := *c.base
	u.Path = c.base.Path + path
	u.RawQuery = query.Encode()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	if idemKey != "" {
		req.Header.Set("Idempotency-Key", idemKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return mapGatewayError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

// mapGatewayError turns an error response into an *APIError wrapping the
// matching domain sentinel when there is one.
func mapGatewayError(resp *http.Response) error {
	var payload struct {
		Error     string `json:"error"`
		RequestID string `json:"request_id"`
	}
	_ = json.NewDecoder(io.LimitReader(resp.Body, 64<<10)).Decode(&payload)
	apiErr := &APIError{Status: resp.StatusCode, Message: payload.Error, RequestID: payload.RequestID}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}

	var sentinels []error
	has := func(err error) bool { return strings.HasPrefix(payload.Error, err.Error()) }
	switch resp.StatusCode {
	case http.StatusNotFound:
		switch {
		case has(artifact.ErrNotFound):
			// Both packages use the same message for a missing artifact.
			sentinels = append(sentinels, artifact.ErrNotFound, approval.ErrArtifactNotFound)
		default:
			sentinels = append(sentinels, approval.ErrNotFound)
		}
	case http.StatusConflict:
		if has(approval.ErrInvalidState) {
			sentinels = append(sentinels, approval.ErrInvalidState)
		}
	case http.StatusBadRequest:
		switch {
		case has(approval.ErrInvalidAction):
			sentinels = append(sentinels, approval.ErrInvalidAction)
		case has(artifact.ErrInvalidKind):
			sentinels = append(sentinels, artifact.ErrInvalidKind)
		}
	case http.StatusUnauthorized:
		sentinels = append(sentinels, auth.ErrUnauthenticated)
	case http.StatusForbidden:
		sentinels = append(sentinels, auth.ErrForbidden)
	}
	if len(sentinels) == 0 {
		return apiErr
	}
	return errors.Join(append(sentinels, apiErr)...)
}
