package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/oapi-codegen/nullable"

	"github.com/fernweh-app/journal-core/internal/app/reconcile"
	"github.com/fernweh-app/journal-core/internal/app/tracking"
	"github.com/fernweh-app/journal-core/internal/app/trips"
	"github.com/fernweh-app/journal-core/internal/app/users"
)

// ErrorResponse is the wire shape of every non-2xx body.
type ErrorResponse struct {
	Error struct {
		Code      string                            `json:"code"`
		Message   string                            `json:"message"`
		Details   nullable.Nullable[map[string]any] `json:"details,omitempty"`
		RequestID nullable.Nullable[string]         `json:"requestId,omitempty"`
	} `json:"error"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details map[string]any) {
	var er ErrorResponse
	er.Error.Code = code
	er.Error.Message = message
	if details != nil {
		er.Error.Details = nullable.NewNullableWithValue(details)
	}
	if rid := middleware.GetReqID(r.Context()); rid != "" {
		er.Error.RequestID = nullable.NewNullableWithValue(rid)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(er)
}

// writeServiceError maps app-layer and tracking errors onto the error body.
// Anything unrecognized becomes a 500 without leaking internals.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var te *trips.Error
	if errors.As(err, &te) {
		writeError(w, r, te.Status, te.Code, te.Message, te.Details)
		return
	}
	var ue *users.Error
	if errors.As(err, &ue) {
		writeError(w, r, ue.Status, ue.Code, ue.Message, ue.Details)
		return
	}
	if se, ok := reconcile.IsStale(err); ok {
		if se.Reason == reconcile.StaleDeleted {
			writeError(w, r, http.StatusConflict, "STALE_REFERENCE", se.Error(), map[string]any{"id": se.ID})
		} else {
			writeError(w, r, http.StatusNotFound, "NOT_FOUND", se.Error(), map[string]any{"id": se.ID})
		}
		return
	}
	switch {
	case errors.Is(err, tracking.ErrAlreadyTracking):
		writeError(w, r, http.StatusConflict, "ALREADY_TRACKING", err.Error(), nil)
	case errors.Is(err, tracking.ErrEmptyTitle), errors.Is(err, tracking.ErrInvalidCoordinate):
		writeError(w, r, http.StatusUnprocessableEntity, "VALIDATION_ERROR", err.Error(), nil)
	default:
		writeError(w, r, http.StatusInternalServerError, "INTERNAL_ERROR", "internal error", nil)
	}
}
