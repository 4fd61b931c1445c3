package httpapi

import (
	"net/http"

	"github.com/gorilla/mux"

	"crisiscrew.org/internal/approval"
	"crisiscrew.org/internal/audit"
)

type requestApprovalBody struct {
	Notes string `json:"notes"`
}

type actApprovalBody struct {
	Action string `json:"action"`
	Notes  string `json:"notes"`
}

func (a *API) handleListApprovals(w http.ResponseWriter, r *http.Request) {
	items, err := a.approvals.ListByArtifact(r.Context(), mux.Vars(r)["artifactId"])
	if err != nil {
		handleApprovalError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

func (a *API) handleRequestApproval(w http.ResponseWriter, r *http.Request) {
	var body requestApprovalBody
	if err := decodeOptionalJSON(w, r, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	created, err := a.approvals.Request(r.Context(), mux.Vars(r)["artifactId"], callerID(r), body.Notes)
	if err != nil {
		handleApprovalError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), audit.EventApprovalRequest, map[string]any{
		"approval_id": created.ID,
		"artifact_id": created.ArtifactID,
	})
	writeJSON(w, http.StatusCreated, created)
}

func (a *API) handleActApproval(w http.ResponseWriter, r *http.Request) {
	var body actApprovalBody
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	action, err := approval.ParseAction(body.Action)
	if err != nil {
		handleApprovalError(w, r, err)
		return
	}

	id := mux.Vars(r)["approvalId"]
	actor := callerID(r)
	if a.forbidSelfApproval {
		current, err := a.approvals.Get(r.Context(), id)
		if err != nil {
			handleApprovalError(w, r, err)
			return
		}
		if current.RequestedByUserID == actor {
			writeError(w, r, http.StatusForbidden, "requester cannot decide their own approval")
			return
		}
	}

	updated, err := a.approvals.Act(r.Context(), id, action, actor, body.Notes)
	if err != nil {
		handleApprovalError(w, r, err)
		return
	}

	event := audit.EventApprovalApprove
	if updated.Status == approval.StatusRejected {
		event = audit.EventApprovalReject
	}
	_ = audit.LogEvent(r.Context(), event, map[string]any{
		"approval_id": updated.ID,
		"artifact_id": updated.ArtifactID,
		"status":      string(updated.Status),
	})
	writeJSON(w, http.StatusOK, updated)
}
