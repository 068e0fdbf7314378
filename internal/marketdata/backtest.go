package marketdata

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/basisops/fundmon/internal/domain"
)

// BacktestProvider replays an eagerly loaded hourly series. LoadData must
// be called before the first GetData; requesting a timestamp outside the
// loaded span is a structural error.
type BacktestProvider struct {
	source       domain.SeriesSource
	capabilities map[domain.DataRequirement]bool
	logger       *slog.Logger

	mu     sync.RWMutex
	loaded bool
	start  time.Time
	end    time.Time
	series map[int64]domain.MarketDataSnapshot // keyed by unix hour
}

// NewBacktestProvider creates a provider replaying from source. The
// capability list declares which data sections the source materializes.
func NewBacktestProvider(source domain.SeriesSource, capabilities []domain.DataRequirement, logger *slog.Logger) *BacktestProvider {
	return &BacktestProvider{
		source:       source,
		capabilities: capabilitySet(capabilities),
		logger:       logger.With(slog.String("component", "backtest_provider")),
		series:       map[int64]domain.MarketDataSnapshot{},
	}
}

// ValidateDataRequirements implements Provider.
func (p *BacktestProvider) ValidateDataRequirements(required []domain.DataRequirement) error {
	return validateRequirements(p.capabilities, required)
}

// LoadData eagerly materializes the series covering [start, end] on the
// hourly grid. It is idempotent: a second call whose span is already
// covered is a no-op; a wider span reloads.
func (p *BacktestProvider) LoadData(ctx context.Context, start, end time.Time) error {
	start = start.UTC().Truncate(time.Hour)
	end = end.UTC().Truncate(time.Hour)
	if end.Before(start) {
		return domain.Errorf(domain.CodeDateRange, "end %s before start %s",
			end.Format(time.RFC3339), start.Format(time.RFC3339))
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.loaded && !start.Before(p.start) && !end.After(p.end) {
		p.logger.Debug("series already loaded",
			slog.Time("start", p.start), slog.Time("end", p.end))
		return nil
	}

	snaps, err := p.source.LoadSeries(ctx, start, end)
	if err != nil {
		return fmt.Errorf("backtest provider: load series: %w", err)
	}

	series := make(map[int64]domain.MarketDataSnapshot, len(snaps))
	for _, s := range snaps {
		series[s.Timestamp.UTC().Truncate(time.Hour).Unix()] = s
	}

	p.series = series
	p.start = start
	p.end = end
	p.loaded = true

	p.logger.Info("series loaded",
		slog.Time("start", start), slog.Time("end", end),
		slog.Int("snapshots", len(series)),
	)
	return nil
}

// GetData implements Provider. Hours missing from the source inside the
// loaded span yield a zero-filled snapshot with a data-quality warning
// rather than failing the tick.
func (p *BacktestProvider) GetData(_ context.Context, ts time.Time) (domain.MarketDataSnapshot, error) {
	hour := ts.UTC().Truncate(time.Hour)

	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.loaded {
		return domain.MarketDataSnapshot{}, domain.Errorf(domain.CodeDataNotLoaded,
			"backtest series not loaded; call LoadData first")
	}
	if hour.Before(p.start) || hour.After(p.end) {
		return domain.MarketDataSnapshot{}, domain.Errorf(domain.CodeDateRange,
			"%s outside loaded span [%s, %s]",
			hour.Format(time.RFC3339), p.start.Format(time.RFC3339), p.end.Format(time.RFC3339))
	}

	snap, ok := p.series[hour.Unix()]
	if !ok {
		snap = domain.NewMarketDataSnapshot(hour)
		snap.Warnings = append(snap.Warnings, domain.Warning{
			Kind:    domain.WarnMissingOptional,
			Message: fmt.Sprintf("no source data for %s, zero-filled", hour.Format(time.RFC3339)),
		})
	}
	return snap, nil
}

// Grid enumerates the hourly timestamps of the loaded span in order.
func (p *BacktestProvider) Grid() []time.Time {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if !p.loaded {
		return nil
	}
	var grid []time.Time
	for t := p.start; !t.After(p.end); t = t.Add(time.Hour) {
		grid = append(grid, t)
	}
	return grid
}
