package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/basisops/fundmon/internal/domain"
	"github.com/basisops/fundmon/internal/history"
)

// StatusHandler exposes the in-memory run history: overall run status, the
// latest committed record, and the tick series.
type StatusHandler struct {
	store  *history.Store
	logger *slog.Logger
}

// NewStatusHandler creates a StatusHandler reading from the given history
// store.
func NewStatusHandler(store *history.Store, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		store:  store,
		logger: logHandler(logger, "status"),
	}
}

// runStatus is the GET /api/status response body.
type runStatus struct {
	RunID        string              `json:"run_id"`
	Mode         domain.StrategyMode `json:"mode"`
	PrimaryAsset string              `json:"primary_asset"`
	ShareClass   string              `json:"share_class"`
	StartedAt    time.Time           `json:"started_at"`
	Ticks        int                 `json:"ticks"`

	LastTimestamp *time.Time `json:"last_timestamp,omitempty"`
	// HealthFactor is a number, or the string "inf" for a debt-free run.
	HealthFactor     any                      `json:"health_factor,omitempty"`
	RiskStatus       domain.LiquidationStatus `json:"risk_status,omitempty"`
	NetDeltaPrimary  *float64                 `json:"net_delta_primary_asset,omitempty"`
	TotalValue       *float64                 `json:"total_value,omitempty"`
	CumulativePnL    float64                  `json:"cumulative_pnl"`
	WarningsLastTick int                      `json:"warnings_last_tick"`
}

// GetStatus summarizes the current run.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	run := h.store.Run()
	st := runStatus{
		RunID:        run.ID,
		Mode:         run.Mode,
		PrimaryAsset: run.PrimaryAsset,
		ShareClass:   run.ShareClass,
		StartedAt:    run.StartedAt,
		Ticks:        h.store.Len(),
	}

	for _, rec := range h.store.Records() {
		if rec.PnL != nil {
			st.CumulativePnL += rec.PnL.BalanceBased
		}
	}

	if last, ok := h.store.Last(); ok {
		st.LastTimestamp = &last.Timestamp
		st.HealthFactor = domain.HealthFactorJSON(last.Risk.HealthFactor)
		st.RiskStatus = last.Risk.Status
		st.NetDeltaPrimary = &last.Exposure.NetDeltaPrimaryAsset
		st.TotalValue = &last.Exposure.TotalValue
		st.WarningsLastTick = len(last.Warnings)
	}

	writeJSON(w, http.StatusOK, st)
}

// GetLatest returns the most recent committed tick record in full.
// GET /api/ticks/latest
func (h *StatusHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	rec, ok := h.store.Last()
	if !ok {
		writeError(w, http.StatusNotFound, "no ticks committed yet")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// GetTick returns one committed record by sequence number.
// GET /api/ticks/{seq}
func (h *StatusHandler) GetTick(w http.ResponseWriter, r *http.Request) {
	seq, err := strconv.Atoi(r.PathValue("seq"))
	if err != nil || seq < 0 {
		writeError(w, http.StatusBadRequest, "invalid sequence number")
		return
	}
	rec, ok := h.store.At(seq)
	if !ok {
		writeError(w, http.StatusNotFound, "tick not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// ListTicks returns the most recent records, newest last.
// GET /api/ticks?limit=N
func (h *StatusHandler) ListTicks(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r)
	records := h.store.Records()
	if len(records) > limit {
		records = records[len(records)-limit:]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"ticks": records,
		"count": len(records),
	})
}

// ListPnL returns the per-tick P&L series.
// GET /api/pnl?limit=N
func (h *StatusHandler) ListPnL(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r)
	records := h.store.Records()

	series := make([]*domain.PnLRecord, 0, len(records))
	for _, rec := range records {
		if rec.PnL != nil {
			series = append(series, rec.PnL)
		}
	}
	if len(series) > limit {
		series = series[len(series)-limit:]
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"pnl":   series,
		"count": len(series),
	})
}
