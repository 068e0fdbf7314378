package pnl

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

// snapshot builds a single-asset exposure snapshot for attribution tests.
func snapshot(ts time.Time, asset string, breakdown map[domain.BreakdownKey]float64, price, liqIdx, borrowIdx float64) domain.ExposureSnapshot {
	total := 0.0
	vb := domain.NewVenueBreakdown()
	for k, v := range breakdown {
		vb[k] = v
		total += v
	}

	snap := domain.ExposureSnapshot{
		Timestamp:    ts,
		PrimaryAsset: asset,
		ShareClass:   "USDT",
		Exposures: map[string]domain.AssetExposure{
			asset: {
				Asset:           asset,
				Total:           total,
				Price:           price,
				ValueShareClass: total * price,
				VenueBreakdown:  vb,
			},
		},
		TotalValue: total * price,
		Refs: domain.MarketRefs{
			Prices:              map[string]float64{asset: price},
			LiquidityIndex:      map[string]float64{},
			VariableBorrowIndex: map[string]float64{},
			Funding:             map[string]float64{},
			StakingRewards:      map[string]float64{},
		},
	}
	if liqIdx > 0 {
		snap.Refs.LiquidityIndex[asset] = liqIdx
	}
	if borrowIdx > 0 {
		snap.Refs.VariableBorrowIndex[asset] = borrowIdx
	}
	return snap
}

func TestCalculateIndexGrowthReconciles(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	// All growth comes from the liquidity index: 2.0 units at index 1.0
	// become 2.1 at index 1.05, price unchanged.
	prev := snapshot(t0, "BTC", map[domain.BreakdownKey]float64{
		domain.BreakdownAaveTokens: 2.0,
	}, 50_000, 1.0, 0)
	cur := snapshot(t1, "BTC", map[domain.BreakdownKey]float64{
		domain.BreakdownAaveTokens: 2.1,
	}, 50_000, 1.05, 0)

	c := NewCalculator(1e-6, testLogger())
	rec, err := c.Calculate(prev, cur)
	require.NoError(t, err)

	assert.InDelta(t, 5000, rec.BalanceBased, 1e-6)
	assert.InDelta(t, 5000, rec.Attribution[domain.PnLSupplyYield], 1e-6)
	assert.InDelta(t, 0, rec.Attribution[domain.PnLPriceAppreciation], 1e-6)
	assert.InDelta(t, 0, rec.Attribution[domain.PnLTradingFlows], 1e-6)
	assert.InDelta(t, rec.BalanceBased, rec.AttributionTotal, 1e-6)
	assert.True(t, rec.Reconciliation.Passed)
	assert.Empty(t, rec.Warnings)
}

func TestCalculatePriceAppreciation(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	prev := snapshot(t0, "BTC", map[domain.BreakdownKey]float64{
		domain.BreakdownOnChainWallet: 0.5,
	}, 50_000, 0, 0)
	cur := snapshot(t1, "BTC", map[domain.BreakdownKey]float64{
		domain.BreakdownOnChainWallet: 0.5,
	}, 52_000, 0, 0)

	c := NewCalculator(1e-6, testLogger())
	rec, err := c.Calculate(prev, cur)
	require.NoError(t, err)

	assert.InDelta(t, 1000, rec.BalanceBased, 1e-6)
	assert.InDelta(t, 1000, rec.Attribution[domain.PnLPriceAppreciation], 1e-6)
	assert.True(t, rec.Reconciliation.Passed)
}

func TestCalculateBorrowCostIsNegative(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	// Debt grows with the borrow index: -1000 at index 1.0 becomes -1010
	// at index 1.01.
	prev := snapshot(t0, "USDT", map[domain.BreakdownKey]float64{
		domain.BreakdownAaveDebt: -1000,
	}, 1, 0, 1.0)
	cur := snapshot(t1, "USDT", map[domain.BreakdownKey]float64{
		domain.BreakdownAaveDebt: -1010,
	}, 1, 0, 1.01)

	c := NewCalculator(1e-6, testLogger())
	rec, err := c.Calculate(prev, cur)
	require.NoError(t, err)

	assert.InDelta(t, -10, rec.Attribution[domain.PnLBorrowCost], 1e-9)
	assert.InDelta(t, -10, rec.BalanceBased, 1e-9)
	assert.True(t, rec.Reconciliation.Passed)
}

func TestCalculateFundingOnShortPerp(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	prev := snapshot(t0, "BTC", map[domain.BreakdownKey]float64{
		domain.BreakdownCEXPerps: -0.15,
	}, 50_000, 0, 0)
	cur := snapshot(t1, "BTC", map[domain.BreakdownKey]float64{
		domain.BreakdownCEXPerps: -0.15,
	}, 50_000, 0, 0)
	cur.Refs.Funding["BTC"] = 0.0001

	c := NewCalculator(1, testLogger())
	rec, err := c.Calculate(prev, cur)
	require.NoError(t, err)

	// Positive funding pays the short.
	assert.InDelta(t, 0.15*0.0001*50_000, rec.Attribution[domain.PnLFundingCost], 1e-9)
}

func TestCalculateAppearedAndDisappearedAssets(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	prev := snapshot(t0, "BTC", map[domain.BreakdownKey]float64{
		domain.BreakdownOnChainWallet: 1.0,
	}, 50_000, 0, 0)
	cur := snapshot(t1, "ETH", map[domain.BreakdownKey]float64{
		domain.BreakdownOnChainWallet: 10,
	}, 3000, 0, 0)

	c := NewCalculator(1e-6, testLogger())
	rec, err := c.Calculate(prev, cur)
	require.NoError(t, err)

	// BTC disappearing is an outflow, ETH appearing an inflow.
	assert.InDelta(t, -50_000+30_000, rec.Attribution[domain.PnLTradingFlows], 1e-6)
	assert.InDelta(t, rec.BalanceBased, rec.AttributionTotal, 1e-6)
	assert.True(t, rec.Reconciliation.Passed)
}

func TestCalculateUnreconciledFlagsButSucceeds(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	prev := snapshot(t0, "BTC", map[domain.BreakdownKey]float64{
		domain.BreakdownOnChainWallet: 1.0,
	}, 50_000, 0, 0)
	cur := snapshot(t1, "BTC", map[domain.BreakdownKey]float64{
		domain.BreakdownOnChainWallet: 1.0,
	}, 50_000, 0, 0)
	// Inconsistent hand-built total forces a balance/attribution mismatch.
	cur.TotalValue += 123

	c := NewCalculator(1e-6, testLogger())
	rec, err := c.Calculate(prev, cur)
	require.NoError(t, err)

	assert.False(t, rec.Reconciliation.Passed)
	assert.InDelta(t, 123, rec.Reconciliation.Difference, 1e-6)
	require.Len(t, rec.Warnings, 1)
	assert.Equal(t, domain.WarnPnLUnreconciled, rec.Warnings[0].Kind)
}

func TestCalculateInvalidSnapshotFailsClosed(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	good := snapshot(t0, "BTC", nil, 50_000, 0, 0)

	bad := good
	bad.Refs.Prices = nil

	c := NewCalculator(1e-6, testLogger())

	_, err := c.Calculate(bad, good)
	require.Error(t, err)
	assert.Equal(t, domain.CodePnLCalculator, domain.CodeOf(err))

	_, err = c.Calculate(good, bad)
	require.Error(t, err)
	assert.Equal(t, domain.CodePnLCalculator, domain.CodeOf(err))
}

func TestCalculateIdempotent(t *testing.T) {
	t0 := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	t1 := t0.Add(time.Hour)

	prev := snapshot(t0, "BTC", map[domain.BreakdownKey]float64{
		domain.BreakdownAaveTokens: 2.0,
	}, 50_000, 1.0, 0)
	cur := snapshot(t1, "BTC", map[domain.BreakdownKey]float64{
		domain.BreakdownAaveTokens: 2.1,
	}, 51_000, 1.05, 0)

	c := NewCalculator(1e-6, testLogger())
	a, err := c.Calculate(prev, cur)
	require.NoError(t, err)
	b, err := c.Calculate(prev, cur)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
