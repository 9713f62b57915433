package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gyaneshwarpardhi/actionflow/internal/action"
	"github.com/gyaneshwarpardhi/actionflow/internal/dag"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the error envelope. Code is set for engine errors so
// clients can branch without matching on the message.
type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

func writeEngineError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	writeJSON(w, status, errorResponse{Error: err.Error(), Code: code})
}

// classify maps engine errors onto an HTTP status and a stable code.
func classify(err error) (int, string) {
	switch {
	// NotConfigured wraps NotFound for unknown schedule targets; check it first.
	case errors.Is(err, action.ErrNotConfigured):
		return http.StatusPreconditionFailed, "not_configured"
	case errors.Is(err, action.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, action.ErrAlreadyRunning):
		return http.StatusConflict, "already_running"
	case errors.Is(err, action.ErrDependencyUnmet):
		return http.StatusPreconditionFailed, "dependency_unmet"
	case errors.Is(err, action.ErrTimeout):
		return http.StatusGatewayTimeout, "timeout"
	case errors.Is(err, action.ErrHandlerFailure):
		return http.StatusInternalServerError, "handler_failure"
	case errors.Is(err, action.ErrInvalidAction),
		errors.Is(err, action.ErrInvalidSchedule):
		return http.StatusBadRequest, "invalid"
	case errors.Is(err, dag.ErrCycle):
		return http.StatusBadRequest, "cycle"
	}
	return http.StatusInternalServerError, "internal"
}
