package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"crisiscrew.org/internal/approval"
	"crisiscrew.org/internal/artifact"
	"crisiscrew.org/internal/obs"
)

var errEmptyBody = errors.New("request body is required")

func errInvalidQuery(name string) error {
	return fmt.Errorf("invalid %s query parameter", name)
}

// decodeJSON reads exactly one JSON value. The body size is capped by the
// MaxBodyBytes middleware.
func decodeJSON(_ http.ResponseWriter, r *http.Request, dst any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errEmptyBody
		}
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("request body exceeds %d bytes", tooLarge.Limit)
		}
		return err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		if err == nil {
			return errors.New("unexpected data after JSON body")
		}
		return err
	}
	return nil
}

// decodeOptionalJSON is decodeJSON that accepts an empty body.
func decodeOptionalJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	if err := decodeJSON(w, r, dst); err != nil && !errors.Is(err, errEmptyBody) {
		return err
	}
	return nil
}

func handleApprovalError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, approval.ErrInvalidAction), errors.Is(err, approval.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, approval.ErrNotFound), errors.Is(err, approval.ErrArtifactNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, approval.ErrInvalidState):
		writeError(w, r, http.StatusConflict, err.Error())
	default:
		internalError(w, r, err)
	}
}

func handleArtifactError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, artifact.ErrInvalidKind), errors.Is(err, artifact.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, artifact.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	default:
		internalError(w, r, err)
	}
}

func internalError(w http.ResponseWriter, r *http.Request, err error) {
	obs.Error("request failed", map[string]any{
		"error":      err,
		"method":     r.Method,
		"path":       r.URL.Path,
		"request_id": RequestIDFromContext(r.Context()),
	})
	writeError(w, r, http.StatusInternalServerError, "internal error")
}

func writeError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	payload := map[string]any{
		"error": msg,
	}
	if rid := RequestIDFromContext(r.Context()); rid != "" {
		payload["request_id"] = rid
	}
	writeJSON(w, code, payload)
}
