package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/basisops/fundmon/internal/domain"
)

// SeriesSource implements domain.SeriesSource over the market_data_hours
// table, serving the backtest provider's eager load.
type SeriesSource struct {
	pool *pgxpool.Pool
}

// NewSeriesSource creates a SeriesSource backed by the given pool.
func NewSeriesSource(pool *pgxpool.Pool) *SeriesSource {
	return &SeriesSource{pool: pool}
}

// LoadSeries returns the stored hourly snapshots covering [start, end] in
// timestamp order. Hours absent from the table are simply not returned; the
// provider zero-fills them at read time.
func (s *SeriesSource) LoadSeries(ctx context.Context, start, end time.Time) ([]domain.MarketDataSnapshot, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT ts, snapshot
		FROM market_data_hours
		WHERE ts >= $1 AND ts <= $2
		ORDER BY ts`,
		start, end,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: load series: %w", err)
	}
	defer rows.Close()

	var snaps []domain.MarketDataSnapshot
	for rows.Next() {
		var ts time.Time
		var payload []byte
		if err := rows.Scan(&ts, &payload); err != nil {
			return nil, fmt.Errorf("postgres: scan series row: %w", err)
		}
		snap := domain.NewMarketDataSnapshot(ts)
		if err := json.Unmarshal(payload, &snap); err != nil {
			return nil, fmt.Errorf("postgres: unmarshal snapshot at %s: %w", ts.Format(time.RFC3339), err)
		}
		snap.Timestamp = ts.UTC()
		snaps = append(snaps, snap)
	}
	return snaps, rows.Err()
}
