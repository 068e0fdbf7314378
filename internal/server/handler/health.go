// Package handler contains the HTTP handlers of the read-only status API.
package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/basisops/fundmon/internal/history"
)

// HealthHandler serves the liveness endpoint. Beyond a bare "up", it reports
// how far the run has progressed and how old the last committed tick is, so
// an external monitor can tell a healthy server with a stalled pipeline from
// a healthy pipeline.
type HealthHandler struct {
	store   *history.Store
	started time.Time
	logger  *slog.Logger
}

// NewHealthHandler creates a HealthHandler reading run progress from the
// given history store.
func NewHealthHandler(store *history.Store, logger *slog.Logger) *HealthHandler {
	return &HealthHandler{
		store:   store,
		started: time.Now().UTC(),
		logger:  logHandler(logger, "health"),
	}
}

// HealthCheck reports liveness and run progress.
// GET /api/health
func (h *HealthHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	now := time.Now().UTC()
	body := map[string]any{
		"status":         "ok",
		"timestamp":      now.Format(time.RFC3339),
		"uptime_seconds": int64(now.Sub(h.started).Seconds()),
		"run_id":         h.store.Run().ID,
		"ticks":          h.store.Len(),
	}
	if last, ok := h.store.Last(); ok {
		body["last_tick_age_seconds"] = int64(now.Sub(last.Timestamp).Seconds())
	}
	writeJSON(w, http.StatusOK, body)
}
