package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/gyaneshwarpardhi/actionflow/internal/action"
	"github.com/gyaneshwarpardhi/actionflow/internal/config"
	"github.com/gyaneshwarpardhi/actionflow/internal/engine"
	"github.com/gyaneshwarpardhi/actionflow/internal/event"
	"github.com/gyaneshwarpardhi/actionflow/internal/history"
)

const (
	defaultHistoryLimit = 50
	maxHistoryLimit     = 1000
	overloadedLoad      = 0.9
)

// HistoryReader is the read side of the outcome store.
type HistoryReader interface {
	ListRecent(ctx context.Context, n int) ([]event.Outcome, error)
	ListByAction(ctx context.Context, actionID string, n int) ([]event.Outcome, error)
	FindTicket(ctx context.Context, ticket string) (*event.Outcome, error)
}

// Handler holds all HTTP handler dependencies.
type Handler struct {
	eng     *engine.Engine
	loader  *config.Loader
	history HistoryReader
	mux     *http.ServeMux
}

// New creates an HTTP handler and registers all routes. loader and hist may
// be nil; their routes then answer 501.
func New(eng *engine.Engine, loader *config.Loader, hist HistoryReader) http.Handler {
	h := &Handler{eng: eng, loader: loader, history: hist, mux: http.NewServeMux()}

	h.mux.HandleFunc("POST /v1/actions/{id}/run", h.runAction)
	h.mux.HandleFunc("GET /v1/actions", h.listActions)
	h.mux.HandleFunc("GET /v1/actions/{id}", h.getAction)
	h.mux.HandleFunc("PUT /v1/actions/{id}/schedule", h.setSchedule)
	h.mux.HandleFunc("DELETE /v1/actions/{id}/schedule", h.clearSchedule)
	h.mux.HandleFunc("GET /v1/status", h.status)
	h.mux.HandleFunc("GET /v1/history", h.listHistory)
	h.mux.HandleFunc("POST /v1/config/reload", h.reloadConfig)
	h.mux.HandleFunc("GET /healthz", h.healthz)
	h.mux.HandleFunc("GET /readyz", h.readyz)
	h.mux.Handle("GET /metrics", promhttp.Handler())

	return loggingMiddleware(h.mux)
}

// POST /v1/actions/{id}/run: dispatch by the action's execution mode.
func (h *Handler) runAction(w http.ResponseWriter, r *http.Request) {
	var args action.Args
	if err := json.NewDecoder(r.Body).Decode(&args); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}

	res, err := h.eng.Run(r.Context(), r.PathValue("id"), args)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	status := http.StatusOK
	if !res.Mode.Immediate() {
		status = http.StatusAccepted
	}
	writeJSON(w, status, res)
}

// GET /v1/actions
func (h *Handler) listActions(w http.ResponseWriter, r *http.Request) {
	actions := h.eng.List()
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":   len(actions),
		"actions": actions,
	})
}

// GET /v1/actions/{id}
func (h *Handler) getAction(w http.ResponseWriter, r *http.Request) {
	snap, err := h.eng.Describe(r.PathValue("id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

type scheduleRequest struct {
	Interval string `json:"interval"`
	Cron     string `json:"cron"`
	MaxRuns  int    `json:"max_runs"`
}

// PUT /v1/actions/{id}/schedule: body {"interval":"30s","cron":"","max_runs":0}.
func (h *Handler) setSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid JSON: %s", err))
		return
	}
	spec := action.ScheduleSpec{Cron: req.Cron, MaxRuns: req.MaxRuns}
	if req.Interval != "" {
		d, err := time.ParseDuration(req.Interval)
		if err != nil {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid interval: %s", err))
			return
		}
		spec.Interval = d
	}

	id := r.PathValue("id")
	if err := h.eng.SetSchedule(id, spec); err != nil {
		writeEngineError(w, err)
		return
	}
	snap, err := h.eng.Describe(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap.Schedule)
}

// DELETE /v1/actions/{id}/schedule
func (h *Handler) clearSchedule(w http.ResponseWriter, r *http.Request) {
	if err := h.eng.ClearSchedule(r.PathValue("id")); err != nil {
		writeEngineError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /v1/status
func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.eng.Status())
}

// GET /v1/history?action_id=&ticket=&limit=
func (h *Handler) listHistory(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeError(w, http.StatusNotImplemented, "history store is disabled")
		return
	}
	q := r.URL.Query()

	if ticket := q.Get("ticket"); ticket != "" {
		o, err := h.history.FindTicket(r.Context(), ticket)
		if errors.Is(err, history.ErrNoRecord) {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, o)
		return
	}

	limit := defaultHistoryLimit
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxHistoryLimit)
	}

	var (
		out []event.Outcome
		err error
	)
	if id := q.Get("action_id"); id != "" {
		out, err = h.history.ListByAction(r.Context(), id, limit)
	} else {
		out, err = h.history.ListRecent(r.Context(), limit)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if out == nil {
		out = []event.Outcome{}
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"count":    len(out),
		"outcomes": out,
	})
}

// POST /v1/config/reload: re-read the config file and apply it.
func (h *Handler) reloadConfig(w http.ResponseWriter, r *http.Request) {
	if h.loader == nil {
		writeError(w, http.StatusNotImplemented, "no config file loaded")
		return
	}
	cfg, err := h.loader.Reload()
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"reloaded":      true,
		"version":       cfg.Version,
		"actions_count": len(cfg.Actions),
	})
}

// GET /healthz: always 200 (liveness probe).
func (h *Handler) healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /readyz: 503 if system load is above 90%.
func (h *Handler) readyz(w http.ResponseWriter, r *http.Request) {
	load := h.eng.Load()
	if load > overloadedLoad {
		writeJSON(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status": "overloaded",
			"load":   load,
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ready",
		"load":   load,
	})
}
