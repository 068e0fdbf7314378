package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// TickStore persists the append-only series of committed tick records.
// Implementations receive each record exactly once, after the in-memory
// history commit; they must never mutate it.
type TickStore interface {
	InsertTick(ctx context.Context, rec TickRecord) error
	ListTicks(ctx context.Context, runID string, opts ListOpts) ([]TickRecord, error)
	LastTick(ctx context.Context, runID string) (TickRecord, error)
}

// RunStore persists run metadata.
type RunStore interface {
	CreateRun(ctx context.Context, run Run) error
	FinishRun(ctx context.Context, runID string, finishedAt time.Time) error
	GetRun(ctx context.Context, runID string) (Run, error)
}

// Run is one pipeline session (a backtest span or a live polling session).
type Run struct {
	ID           string
	Mode         StrategyMode
	PrimaryAsset string
	ShareClass   string
	StartedAt    time.Time
	FinishedAt   *time.Time
}

// SeriesSource supplies historical market data for backtest replay.
type SeriesSource interface {
	// LoadSeries returns hourly snapshots covering [start, end], ordered by
	// timestamp ascending.
	LoadSeries(ctx context.Context, start, end time.Time) ([]MarketDataSnapshot, error)
}

// MarketDataCache caches last-good market observations for the live
// provider's stale-data degradation path.
type MarketDataCache interface {
	SetSpot(ctx context.Context, asset string, price float64, ts time.Time) error
	GetSpot(ctx context.Context, asset string) (float64, time.Time, error)
	SetIndex(ctx context.Context, kind, asset string, index float64, ts time.Time) error
	GetIndex(ctx context.Context, kind, asset string) (float64, time.Time, error)
}

// RateLimiter provides distributed rate limiting, shared across monitor
// instances hitting the same venue APIs.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string, limit int, window time.Duration) error
}

// ObservedSnapshotSource supplies an externally observed position snapshot
// for drift reconciliation against the monitor's simulated aggregate.
type ObservedSnapshotSource interface {
	ObservedSnapshot(ctx context.Context, ts time.Time) (PositionSnapshot, error)
}
