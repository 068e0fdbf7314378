package position

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

func testVenues() VenueSet {
	return VenueSet{
		Wallets:        []domain.Venue{"wallet1"},
		Protocols:      []domain.Venue{"aave"},
		CEXSpot:        []domain.Venue{"binance"},
		CEXDerivatives: []domain.Venue{"binance"},
	}
}

func fullMarketData(ts time.Time) domain.MarketDataSnapshot {
	md := domain.NewMarketDataSnapshot(ts)
	md.Execution.Balances = []domain.VenueBalance{
		{Venue: "wallet1", Category: domain.CategoryWallet, Asset: "BTC", Amount: 0.5},
		{Venue: "aave", Category: domain.CategoryProtocol, Asset: "aWBTC", Amount: 2.0},
		{Venue: "binance", Category: domain.CategoryCEXSpot, Asset: "BTC", Amount: 0.2},
		{Venue: "binance", Category: domain.CategoryCEXDerivatives, Asset: "BTC", Amount: -0.15, EntryPrice: 49_000},
	}
	return md
}

func TestGetSnapshotCategorizes(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := NewMonitor(testVenues(), false, testLogger())

	snap, err := m.GetSnapshot(ts, fullMarketData(ts))
	require.NoError(t, err)

	assert.InDelta(t, 0.5, snap.Wallet["wallet1"]["BTC"], 1e-12)
	assert.InDelta(t, 2.0, snap.Protocol["aave"]["aWBTC"], 1e-12)
	assert.InDelta(t, 0.2, snap.CEXSpot["binance"]["BTC"], 1e-12)

	dpos := snap.CEXDerivatives["binance"]["BTC"]
	assert.InDelta(t, -0.15, dpos.Size, 1e-12)
	assert.InDelta(t, 49_000, dpos.EntryPrice, 1e-12)

	assert.Empty(t, snap.Warnings)
	assert.NoError(t, snap.ValidateStructure())
}

func TestGetSnapshotSumsDuplicateEntries(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := NewMonitor(testVenues(), false, testLogger())

	md := fullMarketData(ts)
	md.Execution.Balances = append(md.Execution.Balances,
		domain.VenueBalance{Venue: "wallet1", Category: domain.CategoryWallet, Asset: "BTC", Amount: 0.25},
	)

	snap, err := m.GetSnapshot(ts, md)
	require.NoError(t, err)
	assert.InDelta(t, 0.75, snap.Wallet["wallet1"]["BTC"], 1e-12)
}

func TestGetSnapshotZeroFillsMissingVenue(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := NewMonitor(testVenues(), false, testLogger())

	md := domain.NewMarketDataSnapshot(ts)
	md.Execution.Balances = []domain.VenueBalance{
		{Venue: "wallet1", Category: domain.CategoryWallet, Asset: "BTC", Amount: 0.5},
	}

	snap, err := m.GetSnapshot(ts, md)
	require.NoError(t, err)

	// Missing venues get empty entries, never dropped keys.
	require.NotNil(t, snap.Protocol["aave"])
	require.NotNil(t, snap.CEXSpot["binance"])
	require.NotNil(t, snap.CEXDerivatives["binance"])
	assert.Empty(t, snap.Protocol["aave"])

	kinds := map[domain.WarningKind]int{}
	for _, w := range snap.Warnings {
		kinds[w.Kind]++
	}
	assert.Equal(t, 2, kinds[domain.WarnMissingVenue]) // aave + binance
}

func TestGetSnapshotStrictModeFailsOnMissingVenue(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := NewMonitor(testVenues(), true, testLogger())

	md := domain.NewMarketDataSnapshot(ts)
	md.Execution.Balances = []domain.VenueBalance{
		{Venue: "wallet1", Category: domain.CategoryWallet, Asset: "BTC", Amount: 0.5},
	}

	_, err := m.GetSnapshot(ts, md)
	require.Error(t, err)
	assert.Equal(t, domain.CodeVenueTimeout, domain.CodeOf(err))
}

func TestGetSnapshotUnknownCategory(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := NewMonitor(testVenues(), false, testLogger())

	md := domain.NewMarketDataSnapshot(ts)
	md.Execution.Balances = []domain.VenueBalance{
		{Venue: "wallet1", Category: "options", Asset: "BTC", Amount: 1},
	}

	_, err := m.GetSnapshot(ts, md)
	require.Error(t, err)
	assert.Equal(t, domain.CodeInvalidSnapshot, domain.CodeOf(err))
}

func TestGetSnapshotCarriesProviderWarnings(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := NewMonitor(testVenues(), false, testLogger())

	md := fullMarketData(ts)
	md.Warnings = []domain.Warning{
		{Kind: domain.WarnStaleData, Message: "spot BTC from cache"},
	}

	snap, err := m.GetSnapshot(ts, md)
	require.NoError(t, err)
	require.Len(t, snap.Warnings, 1)
	assert.Equal(t, domain.WarnStaleData, snap.Warnings[0].Kind)
}

func TestGetSnapshotEmptyPortfolio(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	m := NewMonitor(VenueSet{}, false, testLogger())

	snap, err := m.GetSnapshot(ts, domain.NewMarketDataSnapshot(ts))
	require.NoError(t, err)
	assert.NoError(t, snap.ValidateStructure())
	assert.Empty(t, snap.Flatten())
}
