package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"fulfillment-orchestrator/internal/app"
	"fulfillment-orchestrator/internal/core"
)

type errorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// writeError writes a structured JSON error response.
func writeError(w http.ResponseWriter, r *http.Request, message, code string, status int) {
	writeErrorDetails(w, r, message, code, status, nil)
}

func writeErrorDetails(w http.ResponseWriter, r *http.Request, message, code string, status int, details any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	resp := errorResponse{
		Error:     message,
		Code:      code,
		RequestID: requestIDFromContext(r.Context()),
		Details:   details,
	}
	_ = json.NewEncoder(w).Encode(resp)
}

// writeJSON writes a JSON response with status 200.
func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

type conflictDetails struct {
	Document       core.DocumentKind `json:"document,omitempty"`
	DocumentID     int               `json:"document_id,omitempty"`
	DocumentNumber string            `json:"document_number,omitempty"`
	OrderLineID    int               `json:"order_line_id,omitempty"`
	Key         core.StockKey     `json:"key"`
	Requested   string            `json:"requested"`
	Available   string            `json:"available"`
}

// writeServiceError maps an application error to its HTTP status and code.
// Clients branch on the code, so codes never change once published.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		blocked  *core.PolicyBlockedError
		stale    *core.StalePlanError
		conflict *core.ReservationConflictError
		trans    *core.InvalidTransitionError
		cfg      *core.ConfigurationError
		dep      *core.DependencyError
	)
	switch {
	case errors.As(err, &blocked):
		writeError(w, r, err.Error(), "PLAN_BLOCKED", http.StatusConflict)
	case errors.As(err, &stale):
		writeErrorDetails(w, r, "stock changed, re-plan", "STALE_PLAN", http.StatusConflict, stale.Changes)
	case errors.As(err, &conflict):
		writeErrorDetails(w, r, err.Error(), "RESERVATION_CONFLICT", http.StatusConflict, conflictDetails{
			Document:       conflict.Document,
			DocumentID:     conflict.DocumentID,
			DocumentNumber: conflict.DocumentNumber,
			OrderLineID:    conflict.OrderLineID,
			Key:            conflict.Key,
			Requested:      conflict.Requested.String(),
			Available:      conflict.Available.String(),
		})
	case errors.Is(err, core.ErrPlanTampered):
		writeError(w, r, err.Error(), "PLAN_TAMPERED", http.StatusBadRequest)
	case errors.Is(err, core.ErrPlanOrderMismatch):
		writeError(w, r, err.Error(), "PLAN_ORDER_MISMATCH", http.StatusBadRequest)
	case errors.Is(err, core.ErrUnknownPolicy):
		writeError(w, r, err.Error(), "UNKNOWN_POLICY", http.StatusBadRequest)
	case errors.Is(err, app.ErrInvalidRequest):
		writeError(w, r, err.Error(), "BAD_REQUEST", http.StatusBadRequest)
	case errors.Is(err, core.ErrOrderNotFound),
		errors.Is(err, core.ErrDocumentNotFound),
		errors.Is(err, core.ErrProductNotFound),
		errors.Is(err, app.ErrWarehouseNotFound):
		writeError(w, r, err.Error(), "NOT_FOUND", http.StatusNotFound)
	case errors.Is(err, core.ErrOrderNotPlannable):
		writeError(w, r, err.Error(), "ORDER_NOT_PLANNABLE", http.StatusConflict)
	case errors.As(err, &trans):
		writeError(w, r, err.Error(), "INVALID_TRANSITION", http.StatusUnprocessableEntity)
	case errors.As(err, &cfg):
		writeError(w, r, err.Error(), "CONFIGURATION_ERROR", http.StatusUnprocessableEntity)
	case errors.As(err, &dep):
		writeError(w, r, "a dependency is unavailable: "+dep.Op, "DEPENDENCY_UNAVAILABLE", http.StatusServiceUnavailable)
	default:
		writeError(w, r, "internal server error", "INTERNAL_ERROR", http.StatusInternalServerError)
	}
}
