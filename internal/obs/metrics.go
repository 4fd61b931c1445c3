package obs

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP metrics
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	readyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "ready",
		Help: "1 when the last readiness probe succeeded.",
	})
)

// Domain metrics
var (
	redlineScans = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "redline_scans_total",
		Help: "Texts scanned by the legal linter.",
	})

	redlineMatches = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "redline_matches_total",
			Help: "Redlines produced, by severity.",
		},
		[]string{"severity"},
	)

	approvalRequests = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "approval_requests_total",
		Help: "Approvals opened.",
	})

	approvalDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "approval_decisions_total",
			Help: "Approvals decided, by resulting status.",
		},
		[]string{"status"},
	)

	approvalConflicts = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "approval_conflicts_total",
		Help: "Decisions refused because the approval was no longer pending.",
	})
)

var initOnce sync.Once

// Init registers all collectors in the default registry. Safe to call more than once.
func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			httpInFlight, httpRequestsTotal, httpRequestDuration, readyGauge,
			redlineScans, redlineMatches,
			approvalRequests, approvalDecisions, approvalConflicts,
		)
	})
}

// Handler serves the Prometheus exposition endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// SetReady records the outcome of a readiness probe.
func SetReady(ok bool) {
	if ok {
		readyGauge.Set(1)
		return
	}
	readyGauge.Set(0)
}

// RedlineScan counts one linter pass and its matches per severity.
func RedlineScan(bySeverity map[string]int) {
	redlineScans.Inc()
	for sev, n := range bySeverity {
		if n > 0 {
			redlineMatches.WithLabelValues(sev).Add(float64(n))
		}
	}
}

func ApprovalRequested()            { approvalRequests.Inc() }
func ApprovalDecided(status string) { approvalDecisions.WithLabelValues(status).Inc() }
func ApprovalConflict()             { approvalConflicts.Inc() }

// Instrument measures RPS, latency and in-flight requests.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// CanonicalPath replaces identifiers in known routes with ":id" so metric
// label cardinality stays bounded.
func CanonicalPath(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		p = p[:i]
	}
	if p == "" {
		return "/"
	}
	parts := strings.Split(strings.TrimPrefix(p, "/"), "/")
	switch {
	case len(parts) == 3 && parts[0] == "v1" && parts[1] == "artifacts":
		return "/v1/artifacts/:id"
	case len(parts) == 5 && parts[0] == "v1" && parts[1] == "artifacts" && parts[3] == "legal" && parts[4] == "lint":
		return "/v1/artifacts/:id/legal/lint"
	case len(parts) == 4 && parts[0] == "v1" && parts[1] == "approvals" && parts[2] == "artifact":
		return "/v1/approvals/artifact/:id"
	case len(parts) == 5 && parts[0] == "v1" && parts[1] == "approvals" && parts[2] == "artifact" && parts[4] == "request":
		return "/v1/approvals/artifact/:id/request"
	case len(parts) == 4 && parts[0] == "v1" && parts[1] == "approvals" && parts[3] == "act":
		return "/v1/approvals/:id/act"
	}
	return p
}

// statusWriter is a local copy so we know the response code.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
