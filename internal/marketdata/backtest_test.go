package marketdata

import (
	"context"
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

// fakeSeriesSource serves a fixed series and counts loads.
type fakeSeriesSource struct {
	snaps []domain.MarketDataSnapshot
	calls int
	err   error
}

func (f *fakeSeriesSource) LoadSeries(_ context.Context, start, end time.Time) ([]domain.MarketDataSnapshot, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	var out []domain.MarketDataSnapshot
	for _, s := range f.snaps {
		if !s.Timestamp.Before(start) && !s.Timestamp.After(end) {
			out = append(out, s)
		}
	}
	return out, nil
}

func hourlySeries(start time.Time, hours int) []domain.MarketDataSnapshot {
	out := make([]domain.MarketDataSnapshot, 0, hours)
	for i := range hours {
		snap := domain.NewMarketDataSnapshot(start.Add(time.Duration(i) * time.Hour))
		snap.Prices.Spot["BTC"] = 50_000 + float64(i)
		out = append(out, snap)
	}
	return out
}

func TestBacktestGetDataBeforeLoad(t *testing.T) {
	p := NewBacktestProvider(&fakeSeriesSource{}, nil, testLogger())

	_, err := p.GetData(context.Background(), time.Now())
	require.Error(t, err)
	assert.Equal(t, domain.CodeDataNotLoaded, domain.CodeOf(err))
}

func TestBacktestLoadAndGet(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSeriesSource{snaps: hourlySeries(start, 24)}
	p := NewBacktestProvider(src, nil, testLogger())

	require.NoError(t, p.LoadData(context.Background(), start, start.Add(23*time.Hour)))

	snap, err := p.GetData(context.Background(), start.Add(5*time.Hour))
	require.NoError(t, err)
	assert.InDelta(t, 50_005, snap.Prices.Spot["BTC"], 1e-9)
	assert.Empty(t, snap.Warnings)

	// Sub-hour timestamps resolve to their hour bucket.
	snap, err = p.GetData(context.Background(), start.Add(5*time.Hour+30*time.Minute))
	require.NoError(t, err)
	assert.InDelta(t, 50_005, snap.Prices.Spot["BTC"], 1e-9)
}

func TestBacktestGetDataOutOfRange(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSeriesSource{snaps: hourlySeries(start, 24)}
	p := NewBacktestProvider(src, nil, testLogger())
	require.NoError(t, p.LoadData(context.Background(), start, start.Add(23*time.Hour)))

	_, err := p.GetData(context.Background(), start.Add(-time.Hour))
	require.Error(t, err)
	assert.Equal(t, domain.CodeDateRange, domain.CodeOf(err))

	_, err = p.GetData(context.Background(), start.Add(24*time.Hour))
	require.Error(t, err)
	assert.Equal(t, domain.CodeDateRange, domain.CodeOf(err))
}

func TestBacktestLoadIdempotent(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSeriesSource{snaps: hourlySeries(start, 24)}
	p := NewBacktestProvider(src, nil, testLogger())

	require.NoError(t, p.LoadData(context.Background(), start, start.Add(23*time.Hour)))
	require.Equal(t, 1, src.calls)

	// Covered span: no second source hit.
	require.NoError(t, p.LoadData(context.Background(), start.Add(2*time.Hour), start.Add(10*time.Hour)))
	assert.Equal(t, 1, src.calls)

	// Wider span reloads.
	require.NoError(t, p.LoadData(context.Background(), start, start.Add(30*time.Hour)))
	assert.Equal(t, 2, src.calls)
}

func TestBacktestLoadRejectsInvertedSpan(t *testing.T) {
	p := NewBacktestProvider(&fakeSeriesSource{}, nil, testLogger())
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	err := p.LoadData(context.Background(), start, start.Add(-time.Hour))
	require.Error(t, err)
	assert.Equal(t, domain.CodeDateRange, domain.CodeOf(err))
}

func TestBacktestMissingHourZeroFills(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	series := hourlySeries(start, 24)
	// Drop hour 7 from the source.
	series = append(series[:7], series[8:]...)
	src := &fakeSeriesSource{snaps: series}

	p := NewBacktestProvider(src, nil, testLogger())
	require.NoError(t, p.LoadData(context.Background(), start, start.Add(23*time.Hour)))

	snap, err := p.GetData(context.Background(), start.Add(7*time.Hour))
	require.NoError(t, err)
	assert.NotNil(t, snap.Prices.Spot)
	assert.Empty(t, snap.Prices.Spot)
	require.Len(t, snap.Warnings, 1)
	assert.Equal(t, domain.WarnMissingOptional, snap.Warnings[0].Kind)
}

func TestBacktestGrid(t *testing.T) {
	start := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeSeriesSource{snaps: hourlySeries(start, 24)}
	p := NewBacktestProvider(src, nil, testLogger())

	assert.Nil(t, p.Grid())

	require.NoError(t, p.LoadData(context.Background(), start, start.Add(23*time.Hour)))
	grid := p.Grid()
	require.Len(t, grid, 24)
	assert.Equal(t, start, grid[0])
	assert.Equal(t, start.Add(23*time.Hour), grid[23])
}

func TestValidateDataRequirements(t *testing.T) {
	p := NewBacktestProvider(&fakeSeriesSource{}, []domain.DataRequirement{
		domain.RequireSpotPrices, domain.RequireAaveIndexes,
	}, testLogger())

	require.NoError(t, p.ValidateDataRequirements([]domain.DataRequirement{domain.RequireSpotPrices}))

	err := p.ValidateDataRequirements(domain.ModeRequirements[domain.ModeBTCBasis])
	require.Error(t, err)
	assert.Equal(t, domain.CodeUnsupportedRequirement, domain.CodeOf(err))
	// Missing requirements are listed sorted.
	assert.Contains(t, err.Error(), "cex_balances, chain_balances, funding_rates, oracle_prices")
}
