// Package httpapi is the JSON gateway in front of the linter and the
// approval workflow.
package httpapi

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/redis/go-redis/v9"

	"crisiscrew.org/internal/approval"
	"crisiscrew.org/internal/artifact"
	"crisiscrew.org/internal/auth"
	"crisiscrew.org/internal/idempotency"
	"crisiscrew.org/internal/obs"
	"crisiscrew.org/internal/redline"
)

const serviceName = "crisiscrew-gateway"

// ReadyProbe pings the configured backing services.
type ReadyProbe struct {
	DB    *sql.DB
	Redis redis.UniversalClient
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	var errs []error
	if rp.DB != nil {
		if err := rp.DB.PingContext(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if rp.Redis != nil {
		if err := rp.Redis.Ping(ctx).Err(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type readinessChecker interface {
	Check(ctx context.Context) error
}

// Deps are the services the API fronts.
type Deps struct {
	Approvals *approval.Service
	Artifacts artifact.Store
	Linter    *redline.Linter
	Ready     readinessChecker
	Version   string
}

// Option configures API.
type Option func(*API)

// WithTokenIssuer exposes POST /v1/auth/token, minting tokens valid for ttl.
func WithTokenIssuer(ttl time.Duration) Option {
	return func(a *API) {
		a.issueTokens = true
		if ttl > 0 {
			a.tokenTTL = ttl
		}
	}
}

// WithSelfApprovalForbidden rejects decisions by the approval's requester.
func WithSelfApprovalForbidden() Option {
	return func(a *API) { a.forbidSelfApproval = true }
}

// WithRateLimit sets the per-client token bucket.
func WithRateLimit(burst, perSecond int) Option {
	return func(a *API) {
		if burst > 0 && perSecond > 0 {
			a.rateBurst, a.ratePerSec = burst, perSecond
		}
	}
}

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBodyBytes = n
		}
	}
}

// WithIdempotency enables Idempotency-Key handling on POST routes.
func WithIdempotency(store *idempotency.Store) Option {
	return func(a *API) { a.idem = store }
}

// API is the HTTP layer.
type API struct {
	router *mux.Router

	approvals *approval.Service
	artifacts artifact.Store
	linter    *redline.Linter
	ready     readinessChecker
	idem      *idempotency.Store
	version   string
	now       func() time.Time

	issueTokens        bool
	tokenTTL           time.Duration
	forbidSelfApproval bool
	rateBurst          int
	ratePerSec         int
	maxBodyBytes       int64
}

func New(deps Deps, opts ...Option) *API {
	a := &API{
		router:       mux.NewRouter(),
		approvals:    deps.Approvals,
		artifacts:    deps.Artifacts,
		linter:       deps.Linter,
		ready:        deps.Ready,
		version:      deps.Version,
		now:          func() time.Time { return time.Now().UTC() },
		tokenTTL:     15 * time.Minute,
		rateBurst:    20,
		ratePerSec:   10,
		maxBodyBytes: 1 << 20,
	}
	if a.linter == nil {
		a.linter = redline.New()
	}
	if a.ready == nil {
		a.ready = ReadyProbe{}
	}
	for _, opt := range opts {
		opt(a)
	}
	a.routes()
	return a
}

func (a *API) routes() {
	r := a.router
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "resource not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	// ops
	r.HandleFunc("/healthz", a.Healthz).Methods(http.MethodGet)
	r.HandleFunc("/readyz", a.Ready).Methods(http.MethodGet)
	r.HandleFunc("/v1/info", a.Info).Methods(http.MethodGet)
	r.Handle("/metrics", obs.Handler()).Methods(http.MethodGet)
	if a.issueTokens {
		r.HandleFunc("/v1/auth/token", a.handleAuthToken).Methods(http.MethodPost)
	}

	// legal
	r.Handle("/v1/legal/lint", a.protect(auth.PermLegalLint, a.handleLintText)).Methods(http.MethodPost)
	r.Handle("/v1/artifacts/{artifactId}/legal/lint", a.protect(auth.PermLegalLint, a.handleLintArtifact)).Methods(http.MethodPost)

	// artifacts
	r.Handle("/v1/artifacts", a.protect(auth.PermArtifactsWrite, a.idempotent(a.handleCreateArtifact))).Methods(http.MethodPost)
	r.Handle("/v1/artifacts/{artifactId}", a.protect(auth.PermApprovalsRead, a.handleGetArtifact)).Methods(http.MethodGet)

	// approvals
	r.Handle("/v1/approvals/artifact/{artifactId}", a.protect(auth.PermApprovalsRead, a.handleListApprovals)).Methods(http.MethodGet)
	r.Handle("/v1/approvals/artifact/{artifactId}/request", a.protect(auth.PermApprovalsRequest, a.idempotent(a.handleRequestApproval))).Methods(http.MethodPost)
	r.Handle("/v1/approvals/{approvalId}/act", a.protect(auth.PermApprovalsAct, a.idempotent(a.handleActApproval))).Methods(http.MethodPost)
}

// Handler returns the fully wrapped handler: metrics, request id, access
// log, hardening headers, CORS, rate limit and body cap, then the router.
func (a *API) Handler() http.Handler {
	var h http.Handler = a.router
	h = MaxBodyBytes(h, a.maxBodyBytes)
	h = RateLimit(h, a.rateBurst, a.ratePerSec)
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		obs.SetReady(false)
		obs.Warn("readiness check failed", map[string]any{"error": err, "request_id": RequestIDFromContext(r.Context())})
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    a.now().Format(time.RFC3339),
		"version": a.version,
		"terms":   a.linter.Table().Len(),
		"order":   a.linter.Order().String(),
	})
}

// --- helpers ---

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
