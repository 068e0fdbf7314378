package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/basisops/fundmon/internal/domain"
)

// RunStore implements domain.RunStore using PostgreSQL.
type RunStore struct {
	pool *pgxpool.Pool
}

// NewRunStore creates a RunStore backed by the given connection pool.
func NewRunStore(pool *pgxpool.Pool) *RunStore {
	return &RunStore{pool: pool}
}

// CreateRun inserts run metadata at session start.
func (s *RunStore) CreateRun(ctx context.Context, run domain.Run) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO runs (id, mode, primary_asset, share_class, started_at)
		VALUES ($1, $2, $3, $4, $5)`,
		run.ID, string(run.Mode), run.PrimaryAsset, run.ShareClass, run.StartedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create run %s: %w", run.ID, err)
	}
	return nil
}

// FinishRun stamps the run's end time.
func (s *RunStore) FinishRun(ctx context.Context, runID string, finishedAt time.Time) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET finished_at = $2 WHERE id = $1`,
		runID, finishedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: finish run %s: %w", runID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetRun fetches run metadata.
func (s *RunStore) GetRun(ctx context.Context, runID string) (domain.Run, error) {
	var run domain.Run
	var mode string
	err := s.pool.QueryRow(ctx, `
		SELECT id, mode, primary_asset, share_class, started_at, finished_at
		FROM runs WHERE id = $1`,
		runID,
	).Scan(&run.ID, &mode, &run.PrimaryAsset, &run.ShareClass, &run.StartedAt, &run.FinishedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Run{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Run{}, fmt.Errorf("postgres: get run %s: %w", runID, err)
	}
	run.Mode = domain.StrategyMode(mode)
	return run, nil
}
