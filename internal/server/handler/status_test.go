package handler

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basisops/fundmon/internal/domain"
	"github.com/basisops/fundmon/internal/history"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// seededStore commits one debt-free tick, the normal state of a run that
// carries no Aave borrow.
func seededStore(t *testing.T) *history.Store {
	t.Helper()

	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	store := history.NewStore(domain.Run{
		ID:           "run-test",
		Mode:         domain.ModeBTCBasis,
		PrimaryAsset: "BTC",
		ShareClass:   "USDT",
		StartedAt:    ts,
	}, nil, testLogger())

	rec := domain.TickRecord{
		RunID:      "run-test",
		Seq:        0,
		Timestamp:  ts,
		MarketData: domain.NewMarketDataSnapshot(ts),
		Position:   domain.NewPositionSnapshot(ts),
		Risk: domain.RiskAssessment{
			Timestamp:       ts,
			HealthFactor:    math.Inf(1),
			CollateralValue: 25_000,
			Status:          domain.StatusSafe,
			Message:         "no debt",
		},
	}
	require.NoError(t, store.Commit(context.Background(), rec))
	return store
}

func TestGetLatestDebtFreeTick(t *testing.T) {
	h := NewStatusHandler(seededStore(t), testLogger())

	w := httptest.NewRecorder()
	h.GetLatest(w, httptest.NewRequest(http.MethodGet, "/api/ticks/latest", nil))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var rec domain.TickRecord
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.True(t, math.IsInf(rec.Risk.HealthFactor, 1))
	assert.Equal(t, "run-test", rec.RunID)
	assert.Equal(t, domain.StatusSafe, rec.Risk.Status)
}

func TestGetStatusDebtFreeTick(t *testing.T) {
	h := NewStatusHandler(seededStore(t), testLogger())

	w := httptest.NewRecorder()
	h.GetStatus(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "run-test", body["run_id"])
	assert.Equal(t, "inf", body["health_factor"])
	assert.Equal(t, float64(1), body["ticks"])
}

func TestGetLatestEmptyStore(t *testing.T) {
	store := history.NewStore(domain.Run{ID: "run-empty"}, nil, testLogger())
	h := NewStatusHandler(store, testLogger())

	w := httptest.NewRecorder()
	h.GetLatest(w, httptest.NewRequest(http.MethodGet, "/api/ticks/latest", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestHealthCheckReportsRunProgress(t *testing.T) {
	h := NewHealthHandler(seededStore(t), testLogger())

	w := httptest.NewRecorder()
	h.HealthCheck(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "run-test", body["run_id"])
	assert.Equal(t, float64(1), body["ticks"])
	assert.Contains(t, body, "last_tick_age_seconds")
}
