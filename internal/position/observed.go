package position

import (
	"context"
	"log/slog"
	"time"

	"github.com/basisops/fundmon/internal/domain"
)

// ObservedSource produces an independently observed position snapshot by
// querying the venue fetchers directly, outside the regular tick fetch. It
// implements domain.ObservedSnapshotSource for drift reconciliation.
type ObservedSource struct {
	fetchers []domain.BalanceFetcher
	monitor  *Monitor
	timeout  time.Duration
	logger   *slog.Logger
}

// NewObservedSource creates an ObservedSource aggregating through the given
// monitor.
func NewObservedSource(fetchers []domain.BalanceFetcher, monitor *Monitor, timeout time.Duration, logger *slog.Logger) *ObservedSource {
	return &ObservedSource{
		fetchers: fetchers,
		monitor:  monitor,
		timeout:  timeout,
		logger:   logger.With(slog.String("component", "observed_source")),
	}
}

// ObservedSnapshot fetches fresh balances from every venue and aggregates
// them into a snapshot. A failing venue fails the observation: a drift check
// against partial data would report spurious violations.
func (s *ObservedSource) ObservedSnapshot(ctx context.Context, ts time.Time) (domain.PositionSnapshot, error) {
	md := domain.NewMarketDataSnapshot(ts.UTC())

	for _, f := range s.fetchers {
		fctx, cancel := context.WithTimeout(ctx, s.timeout)
		balances, err := f.FetchBalances(fctx, ts)
		cancel()
		if err != nil {
			return domain.PositionSnapshot{}, domain.Errorf(domain.CodeVenueTimeout,
				"observed fetch %s: %v", f.Venue(), err)
		}
		md.Execution.Balances = append(md.Execution.Balances, balances...)
	}

	return s.monitor.GetSnapshot(ts, md)
}

var _ domain.ObservedSnapshotSource = (*ObservedSource)(nil)
