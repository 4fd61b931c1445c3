package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"crisiscrew.org/internal/artifact"
	"crisiscrew.org/internal/audit"
)

type createArtifactRequest struct {
	IncidentID string `json:"incident_id"`
	Kind       string `json:"kind"`
	Version    int    `json:"version"`
	Text       string `json:"text"`
}

func (a *API) handleCreateArtifact(w http.ResponseWriter, r *http.Request) {
	var req createArtifactRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	art, err := artifact.Build(artifact.Draft{
		IncidentID: req.IncidentID,
		Kind:       req.Kind,
		Version:    req.Version,
		Text:       req.Text,
	}, callerID(r), a.now())
	if err != nil {
		handleArtifactError(w, r, err)
		return
	}
	if err := a.artifacts.Create(r.Context(), art); err != nil {
		handleArtifactError(w, r, err)
		return
	}

	_ = audit.LogEvent(r.Context(), audit.EventArtifactCreate, map[string]any{
		"artifact_id": art.ID,
		"incident_id": art.IncidentID,
		"kind":        string(art.Kind),
		"version":     art.Version,
	})
	w.Header().Set("Location", "/v1/artifacts/"+art.ID)
	writeJSON(w, http.StatusCreated, art)
}

func (a *API) handleGetArtifact(w http.ResponseWriter, r *http.Request) {
	art, err := a.artifacts.Get(r.Context(), mux.Vars(r)["artifactId"])
	if err != nil {
		handleArtifactError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, art)
}
