package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"crisiscrew.org/internal/audit"
	"crisiscrew.org/internal/obs"
	"crisiscrew.org/internal/redline"
)

type lintRequest struct {
	Text string `json:"text"`
}

type lintReport struct {
	ArtifactID  string            `json:"artifact_id,omitempty"`
	Redlines    []redline.Redline `json:"redlines"`
	Summary     redline.Summary   `json:"summary"`
	Revised     *string           `json:"revised,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
}

type lintOptions struct {
	order  redline.Order
	report bool
	apply  bool
}

func parseLintOptions(r *http.Request) (lintOptions, error) {
	q := r.URL.Query()
	var opts lintOptions
	order, err := redline.ParseOrder(q.Get("order"))
	if err != nil {
		return opts, err
	}
	opts.order = order
	if v := q.Get("report"); v != "" {
		if opts.report, err = strconv.ParseBool(v); err != nil {
			return opts, errInvalidQuery("report")
		}
	}
	if v := q.Get("apply"); v != "" {
		if opts.apply, err = strconv.ParseBool(v); err != nil {
			return opts, errInvalidQuery("apply")
		}
	}
	if opts.apply {
		opts.report = true
	}
	return opts, nil
}

func (a *API) handleLintText(w http.ResponseWriter, r *http.Request) {
	opts, err := parseLintOptions(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	var req lintRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	a.writeLint(w, r, "", req.Text, opts)
}

func (a *API) handleLintArtifact(w http.ResponseWriter, r *http.Request) {
	opts, err := parseLintOptions(r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	art, err := a.artifacts.Get(r.Context(), mux.Vars(r)["artifactId"])
	if err != nil {
		handleArtifactError(w, r, err)
		return
	}
	a.writeLint(w, r, art.ID, art.Text, opts)
}

func (a *API) writeLint(w http.ResponseWriter, r *http.Request, artifactID, text string, opts lintOptions) {
	linter := a.linter
	if opts.order != linter.Order() {
		linter = linter.WithOrder(opts.order)
	}
	redlines := linter.Lint(text)
	summary := redline.Summarize(redlines)

	counts := make(map[string]int, len(summary.BySeverity))
	for sev, n := range summary.BySeverity {
		counts[string(sev)] = n
	}
	obs.RedlineScan(counts)

	fields := map[string]any{
		"redlines": summary.Total,
		"chars":    len([]rune(text)),
	}
	if artifactID != "" {
		fields["artifact_id"] = artifactID
	}
	_ = audit.LogEvent(r.Context(), audit.EventLegalLint, fields)

	if !opts.report {
		writeJSON(w, http.StatusOK, redlines)
		return
	}
	report := lintReport{
		ArtifactID:  artifactID,
		Redlines:    redlines,
		Summary:     summary,
		GeneratedAt: a.now(),
	}
	if opts.apply {
		revised, _ := redline.Apply(text, redlines)
		report.Revised = &revised
	}
	writeJSON(w, http.StatusOK, report)
}
