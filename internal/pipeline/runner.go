package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/basisops/fundmon/internal/domain"
)

// Runner drives the pipeline over a timestamp sequence. Both modes call the
// same Tick; only the clock differs: backtest enumerates the loaded hourly
// grid, live samples wall-clock time on a ticker.
type Runner struct {
	pipeline *Pipeline
	logger   *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(p *Pipeline, logger *slog.Logger) *Runner {
	return &Runner{
		pipeline: p,
		logger:   logger.With(slog.String("component", "runner")),
	}
}

// RunBacktest replays the grid in order. A structural tick failure stops
// the replay: once the canonical-schema contract is broken, every later
// figure would inherit the corruption.
func (r *Runner) RunBacktest(ctx context.Context, grid []time.Time) error {
	if len(grid) == 0 {
		return fmt.Errorf("runner: empty backtest grid")
	}
	r.logger.Info("backtest starting",
		slog.Time("start", grid[0]),
		slog.Time("end", grid[len(grid)-1]),
		slog.Int("ticks", len(grid)),
	)

	for _, ts := range grid {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := r.pipeline.Tick(ctx, ts); err != nil {
			return fmt.Errorf("runner: backtest stopped at %s: %w", ts.Format(time.RFC3339), err)
		}
	}

	r.logger.Info("backtest finished", slog.Int("ticks", len(grid)))
	return nil
}

// RunLive polls on the given interval until ctx is cancelled. A failed live
// tick is logged and skipped: the next sample gets a fresh chance, and the
// aborted tick left no partial record. Ticks never overlap; a tick running
// past the interval delays the next one.
func (r *Runner) RunLive(ctx context.Context, interval time.Duration) error {
	r.logger.Info("live polling starting", slog.Duration("interval", interval))

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// First tick immediately rather than waiting a full interval.
	if err := r.liveTick(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			r.logger.Info("live polling stopped", slog.Int("ticks", r.pipeline.store.Len()))
			return ctx.Err()
		case <-ticker.C:
			if err := r.liveTick(ctx); err != nil {
				return err
			}
		}
	}
}

func (r *Runner) liveTick(ctx context.Context) error {
	_, err := r.pipeline.Tick(ctx, time.Now().UTC())
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	// Structural errors surface their stable code; the tick is dropped
	// whole and polling continues.
	r.logger.Error("live tick aborted",
		slog.String("code", string(domain.CodeOf(err))),
		slog.String("error", err.Error()),
	)
	return nil
}
