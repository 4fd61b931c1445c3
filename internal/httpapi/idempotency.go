package httpapi

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"time"

	"crisiscrew.org/internal/idempotency"
	"crisiscrew.org/internal/obs"
)

// recorder tees the response so it can be stored for replay.
type recorder struct {
	http.ResponseWriter
	status int
	body   bytes.Buffer
}

func (rw *recorder) WriteHeader(code int) {
	if rw.status == 0 {
		rw.status = code
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *recorder) Write(b []byte) (int, error) {
	if rw.status == 0 {
		rw.status = http.StatusOK
	}
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}

// idempotent replays the stored response for a repeated Idempotency-Key.
// Requests without the header, or with no store configured, pass through.
func (a *API) idempotent(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		clientKey := r.Header.Get(idempotency.Header)
		if a.idem == nil || clientKey == "" {
			h(w, r)
			return
		}
		if err := idempotency.ValidateKey(clientKey); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}

		key := a.idem.Key(callerID(r), r.Method, r.URL.Path, clientKey)
		rec, err := a.idem.Reserve(r.Context(), key)
		switch {
		case errors.Is(err, idempotency.ErrInFlight):
			writeError(w, r, http.StatusConflict, err.Error())
			return
		case err != nil:
			internalError(w, r, err)
			return
		case rec != nil:
			w.Header().Set(idempotency.Header, clientKey)
			idempotency.Replay(w, rec)
			return
		}

		w.Header().Set(idempotency.Header, clientKey)
		rw := &recorder{ResponseWriter: w}
		h(rw, r)

		// The client may have gone away; the outcome must still be recorded.
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 2*time.Second)
		defer cancel()
		if rw.status == 0 || rw.status >= http.StatusInternalServerError {
			if err := a.idem.Release(ctx, key); err != nil {
				obs.Warn("idempotency release failed", map[string]any{"error": err, "request_id": RequestIDFromContext(r.Context())})
			}
			return
		}
		if err := a.idem.Complete(ctx, key, idempotency.Record{
			Status:      rw.status,
			ContentType: rw.Header().Get("Content-Type"),
			Body:        rw.body.Bytes(),
		}); err != nil {
			obs.Warn("idempotency store failed", map[string]any{"error": err, "request_id": RequestIDFromContext(r.Context())})
		}
	}
}
