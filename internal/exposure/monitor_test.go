package exposure

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

func btcMonitor(t *testing.T) *Monitor {
	t.Helper()
	return NewMonitor(Config{
		PrimaryAsset: "BTC",
		ShareClass:   "USDT",
		DeclaredPairs: []Pair{
			{PrimaryAsset: "BTC", ShareClass: "USDT"},
		},
		AssetLinks: []domain.AssetLink{
			{Symbol: "BTC", Underlying: "BTC", Kind: domain.AssetKindSpot},
			{Symbol: "aWBTC", Underlying: "BTC", Kind: domain.AssetKindAaveSupply, IndexAsset: "BTC"},
			{Symbol: "USDT", Underlying: "USDT", Kind: domain.AssetKindSpot},
			{Symbol: "variableDebtUSDT", Underlying: "USDT", Kind: domain.AssetKindAaveDebt, IndexAsset: "USDT"},
		},
		FundingSymbols: map[string][]string{
			"BTC": {"binance:BTCUSDT"},
		},
	}, testLogger())
}

func marketData(ts time.Time) domain.MarketDataSnapshot {
	md := domain.NewMarketDataSnapshot(ts)
	md.Prices.Spot["BTC"] = 50_000
	md.Prices.Funding["binance:BTCUSDT"] = 0.0001
	return md
}

func TestCalculateExposureNetDelta(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := btcMonitor(t)
	md := marketData(ts)

	pos := domain.NewPositionSnapshot(ts)
	pos.Wallet["wallet1"] = map[string]float64{"BTC": 0.5}
	pos.CEXSpot["binance"] = map[string]float64{"BTC": 0.2}
	pos.CEXDerivatives["binance"] = map[string]domain.DerivativePosition{
		"BTC": {Size: -0.15, EntryPrice: 49_000},
	}

	snap, err := m.CalculateExposure(ts, pos, md)
	require.NoError(t, err)

	exp := snap.Exposures["BTC"]
	assert.InDelta(t, 0.55, exp.Total, 1e-12)
	assert.InDelta(t, 0.5, exp.VenueBreakdown[domain.BreakdownOnChainWallet], 1e-12)
	assert.InDelta(t, 0.2, exp.VenueBreakdown[domain.BreakdownCEXSpot], 1e-12)
	assert.InDelta(t, -0.15, exp.VenueBreakdown[domain.BreakdownCEXPerps], 1e-12)
	assert.InDelta(t, 0.55, snap.NetDeltaPrimaryAsset, 1e-12)
	assert.InDelta(t, 27_500, snap.NetDeltaShareClass, 1e-9)
	assert.InDelta(t, 27_500, snap.TotalValue, 1e-9)
}

func TestCalculateExposureBreakdownSumsToTotal(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := btcMonitor(t)
	md := marketData(ts)
	md.Protocol.LiquidityIndex["BTC"] = 1.05
	md.Protocol.VariableBorrowIndex["USDT"] = 1.1

	pos := domain.NewPositionSnapshot(ts)
	pos.Wallet["wallet1"] = map[string]float64{"BTC": 0.5}
	pos.Protocol["aave"] = map[string]float64{
		"aWBTC":            2.0,
		"variableDebtUSDT": 1000,
	}
	pos.CEXSpot["binance"] = map[string]float64{"BTC": 0.2}
	pos.CEXDerivatives["binance"] = map[string]domain.DerivativePosition{
		"BTC": {Size: -0.15},
	}

	snap, err := m.CalculateExposure(ts, pos, md)
	require.NoError(t, err)

	for asset, exp := range snap.Exposures {
		sum := 0.0
		for _, k := range domain.BreakdownKeys() {
			sum += exp.VenueBreakdown[k]
		}
		assert.InDelta(t, exp.Total, sum, 1e-9, "breakdown of %s must sum to total", asset)
		assert.Len(t, exp.VenueBreakdown, 5, "breakdown of %s must keep the five fixed keys", asset)
	}
}

func TestCalculateExposureIndexConversion(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := btcMonitor(t)
	md := marketData(ts)
	md.Protocol.LiquidityIndex["BTC"] = 1.05
	md.Protocol.VariableBorrowIndex["USDT"] = 1.1

	pos := domain.NewPositionSnapshot(ts)
	pos.Protocol["aave"] = map[string]float64{
		"aWBTC":            2.0,
		"variableDebtUSDT": 1000,
	}

	snap, err := m.CalculateExposure(ts, pos, md)
	require.NoError(t, err)

	// Scaled balances are always multiplied by the current index.
	assert.InDelta(t, 2.1, snap.Exposures["BTC"].VenueBreakdown[domain.BreakdownAaveTokens], 1e-9)
	assert.InDelta(t, -1100, snap.Exposures["USDT"].VenueBreakdown[domain.BreakdownAaveDebt], 1e-9)

	assert.InDelta(t, 2.1*50_000, snap.CollateralValue, 1e-6)
	assert.InDelta(t, 1100, snap.DebtValue, 1e-9)
}

func TestCalculateExposureWrappedConversion(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := NewMonitor(Config{
		PrimaryAsset: "ETH",
		ShareClass:   "USDT",
		DeclaredPairs: []Pair{
			{PrimaryAsset: "ETH", ShareClass: "USDT"},
		},
		AssetLinks: []domain.AssetLink{
			{Symbol: "ETH", Underlying: "ETH", Kind: domain.AssetKindSpot},
			{Symbol: "wstETH", Underlying: "ETH", Kind: domain.AssetKindWrapped},
		},
	}, testLogger())

	md := domain.NewMarketDataSnapshot(ts)
	md.Prices.Spot["ETH"] = 3000
	md.Staking.ExchangeRates["wstETH"] = 1.15

	pos := domain.NewPositionSnapshot(ts)
	pos.Wallet["wallet1"] = map[string]float64{"wstETH": 10}

	snap, err := m.CalculateExposure(ts, pos, md)
	require.NoError(t, err)
	assert.InDelta(t, 11.5, snap.Exposures["ETH"].VenueBreakdown[domain.BreakdownOnChainWallet], 1e-9)
}

func TestCalculateExposureExcludesDust(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := btcMonitor(t)
	md := marketData(ts)

	pos := domain.NewPositionSnapshot(ts)
	pos.Wallet["wallet1"] = map[string]float64{
		"BTC":  0.5,
		"DOGE": 12345, // no declared link
	}

	snap, err := m.CalculateExposure(ts, pos, md)
	require.NoError(t, err)

	_, hasDust := snap.Exposures["DOGE"]
	assert.False(t, hasDust)
	assert.InDelta(t, 0.5, snap.NetDeltaPrimaryAsset, 1e-12)
}

func TestCalculateExposureUndeclaredPair(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := NewMonitor(Config{
		PrimaryAsset: "BTC",
		ShareClass:   "EUR", // not declared
		DeclaredPairs: []Pair{
			{PrimaryAsset: "BTC", ShareClass: "USDT"},
		},
	}, testLogger())

	_, err := m.CalculateExposure(ts, domain.NewPositionSnapshot(ts), domain.NewMarketDataSnapshot(ts))
	require.Error(t, err)
	assert.Equal(t, domain.CodeConfiguration, domain.CodeOf(err))
}

func TestCalculateExposureInvalidSnapshot(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := btcMonitor(t)

	pos := domain.NewPositionSnapshot(ts)
	pos.Protocol = nil

	_, err := m.CalculateExposure(ts, pos, marketData(ts))
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvalidSnapshot, domain.CodeOf(err))
}

func TestCalculateExposureAllZero(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := btcMonitor(t)

	snap, err := m.CalculateExposure(ts, domain.NewPositionSnapshot(ts), marketData(ts))
	require.NoError(t, err)

	// The primary asset always has an entry, even for an empty portfolio.
	exp, ok := snap.Exposures["BTC"]
	require.True(t, ok)
	assert.Zero(t, exp.Total)
	assert.Zero(t, snap.NetDeltaPrimaryAsset)
	assert.Zero(t, snap.TotalValue)
}

func TestCalculateExposureUnpricedPrimary(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := btcMonitor(t)

	// No BTC quote from any source; USDT remains priced.
	md := domain.NewMarketDataSnapshot(ts)
	md.Prices.Spot["USDT"] = 1

	pos := domain.NewPositionSnapshot(ts)
	pos.Wallet["wallet1"] = map[string]float64{"USDT": 1000}

	snap, err := m.CalculateExposure(ts, pos, md)
	require.NoError(t, err)

	// USDT quantities must not leak into the BTC delta unconverted.
	assert.Zero(t, snap.NetDeltaPrimaryAsset)
	assert.InDelta(t, 1000, snap.NetDeltaShareClass, 1e-9)

	found := false
	for _, w := range snap.Warnings {
		if w.Kind == domain.WarnMissingOptional {
			found = true
		}
	}
	assert.True(t, found, "skipped delta contribution must be flagged")
}

func TestCalculateExposureDeterministic(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := btcMonitor(t)
	md := marketData(ts)

	pos := domain.NewPositionSnapshot(ts)
	pos.Wallet["wallet1"] = map[string]float64{"BTC": 0.5}

	a, err := m.CalculateExposure(ts, pos, md)
	require.NoError(t, err)
	b, err := m.CalculateExposure(ts, pos, md)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
