package reconcile

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basisops/fundmon/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testTolerance() domain.ReconciliationTolerance {
	return domain.ReconciliationTolerance{
		EpsilonAbs: 1e-9,
		EpsilonRel: 0.01,
	}
}

func walletSnapshot(ts time.Time, amounts map[string]float64) domain.PositionSnapshot {
	snap := domain.NewPositionSnapshot(ts)
	snap.Wallet["wallet1"] = amounts
	return snap
}

func TestToleranceAllowed(t *testing.T) {
	tol := domain.ReconciliationTolerance{EpsilonAbs: 0.05, EpsilonRel: 0.01}

	// Relative term dominates for large observations.
	assert.InDelta(t, 1.0, tol.Allowed(100), 1e-12)
	assert.InDelta(t, 1.0, tol.Allowed(-100), 1e-12)
	// Absolute floor dominates near zero.
	assert.InDelta(t, 0.05, tol.Allowed(0.001), 1e-12)
	assert.InDelta(t, 0.05, tol.Allowed(0), 1e-12)
}

func TestReconcileWithinTolerance(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := NewReconciler(testTolerance(), testLogger())

	sim := walletSnapshot(ts, map[string]float64{"BTC": 0.2})
	obs := walletSnapshot(ts, map[string]float64{"BTC": 0.199})

	// allowed = 0.01 × 0.199 = 0.00199 > |0.001|
	result, err := r.Reconcile(sim, obs)
	require.NoError(t, err)
	assert.True(t, result.Reconciled)
	assert.Empty(t, result.Violations)
}

func TestReconcileBeyondTolerance(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := NewReconciler(testTolerance(), testLogger())

	sim := walletSnapshot(ts, map[string]float64{"BTC": 0.2})
	obs := walletSnapshot(ts, map[string]float64{"BTC": 0.18})

	result, err := r.Reconcile(sim, obs)
	require.NoError(t, err)
	assert.False(t, result.Reconciled)
	require.Len(t, result.Violations, 1)

	v := result.Violations[0]
	assert.Equal(t, domain.CategoryWallet, v.Category)
	assert.Equal(t, domain.Venue("wallet1"), v.Venue)
	assert.Equal(t, "BTC", v.Asset)
	assert.InDelta(t, 0.02, v.Delta, 1e-12)
	assert.InDelta(t, 0.0018, v.Allowed, 1e-12)
}

func TestReconcileMissingKeyCountsAsZero(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := NewReconciler(testTolerance(), testLogger())

	sim := walletSnapshot(ts, map[string]float64{"BTC": 0.5})
	obs := domain.NewPositionSnapshot(ts)

	result, err := r.Reconcile(sim, obs)
	require.NoError(t, err)
	require.Len(t, result.Violations, 1)
	assert.InDelta(t, 0.5, result.Violations[0].Delta, 1e-12)
	assert.Zero(t, result.Violations[0].Observed)

	// And the other direction: observed-only keys also violate.
	result, err = r.Reconcile(domain.NewPositionSnapshot(ts), sim)
	require.NoError(t, err)
	require.Len(t, result.Violations, 1)
	assert.InDelta(t, -0.5, result.Violations[0].Delta, 1e-12)
}

func TestReconcileDerivativesCompareSignedSize(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := NewReconciler(testTolerance(), testLogger())

	sim := domain.NewPositionSnapshot(ts)
	sim.CEXDerivatives["binance"] = map[string]domain.DerivativePosition{
		"BTC": {Size: -0.15, EntryPrice: 50_000},
	}
	obs := domain.NewPositionSnapshot(ts)
	obs.CEXDerivatives["binance"] = map[string]domain.DerivativePosition{
		// Same size, different entry price: entry price is not reconciled.
		"BTC": {Size: -0.15, EntryPrice: 49_000},
	}

	result, err := r.Reconcile(sim, obs)
	require.NoError(t, err)
	assert.True(t, result.Reconciled)
}

func TestReconcileViolationsDeterministicOrder(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := NewReconciler(testTolerance(), testLogger())

	sim := domain.NewPositionSnapshot(ts)
	sim.Wallet["wallet1"] = map[string]float64{"ETH": 3, "BTC": 1}
	sim.CEXSpot["binance"] = map[string]float64{"BTC": 2}

	obs := domain.NewPositionSnapshot(ts)

	for range 5 {
		result, err := r.Reconcile(sim, obs)
		require.NoError(t, err)
		require.Len(t, result.Violations, 3)
		assert.Equal(t, domain.CategoryCEXSpot, result.Violations[0].Category)
		assert.Equal(t, "BTC", result.Violations[1].Asset)
		assert.Equal(t, "ETH", result.Violations[2].Asset)
	}
}

func TestReconcileInvalidSnapshot(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	r := NewReconciler(testTolerance(), testLogger())

	broken := domain.NewPositionSnapshot(ts)
	broken.CEXSpot = nil

	_, err := r.Reconcile(broken, domain.NewPositionSnapshot(ts))
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvalidSnapshot, domain.CodeOf(err))

	_, err = r.Reconcile(domain.NewPositionSnapshot(ts), broken)
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvalidSnapshot, domain.CodeOf(err))
}
