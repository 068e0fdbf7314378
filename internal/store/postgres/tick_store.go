package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/basisops/fundmon/internal/domain"
)

// TickStore implements domain.TickStore using PostgreSQL. Snapshot payloads
// are serialized as JSONB; the Go types remain the schema of record.
type TickStore struct {
	pool *pgxpool.Pool
}

// NewTickStore creates a TickStore backed by the given connection pool.
func NewTickStore(pool *pgxpool.Pool) *TickStore {
	return &TickStore{pool: pool}
}

// InsertTick appends one committed record. Records are immutable; a
// duplicate (run_id, seq) is a caller bug and surfaces as a constraint
// error.
func (s *TickStore) InsertTick(ctx context.Context, rec domain.TickRecord) error {
	md, err := json.Marshal(rec.MarketData)
	if err != nil {
		return fmt.Errorf("postgres: marshal market data: %w", err)
	}
	pos, err := json.Marshal(rec.Position)
	if err != nil {
		return fmt.Errorf("postgres: marshal position: %w", err)
	}
	exp, err := json.Marshal(rec.Exposure)
	if err != nil {
		return fmt.Errorf("postgres: marshal exposure: %w", err)
	}
	riskJSON, err := json.Marshal(rec.Risk)
	if err != nil {
		return fmt.Errorf("postgres: marshal risk: %w", err)
	}
	var pnlJSON, reconJSON []byte
	if rec.PnL != nil {
		if pnlJSON, err = json.Marshal(rec.PnL); err != nil {
			return fmt.Errorf("postgres: marshal pnl: %w", err)
		}
	}
	if rec.Reconciliation != nil {
		if reconJSON, err = json.Marshal(rec.Reconciliation); err != nil {
			return fmt.Errorf("postgres: marshal reconciliation: %w", err)
		}
	}
	warnings, err := json.Marshal(rec.Warnings)
	if err != nil {
		return fmt.Errorf("postgres: marshal warnings: %w", err)
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO tick_records
			(run_id, seq, ts, market_data, position, exposure, risk, pnl, reconciliation, warnings)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		rec.RunID, rec.Seq, rec.Timestamp, md, pos, exp, riskJSON, pnlJSON, reconJSON, warnings,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert tick %d: %w", rec.Seq, err)
	}
	return nil
}

const tickSelectCols = `run_id, seq, ts, market_data, position, exposure, risk, pnl, reconciliation, warnings`

func scanTickRow(row pgx.Row) (domain.TickRecord, error) {
	var rec domain.TickRecord
	var md, pos, exp, riskJSON, warnings []byte
	var pnlJSON, reconJSON []byte

	err := row.Scan(&rec.RunID, &rec.Seq, &rec.Timestamp,
		&md, &pos, &exp, &riskJSON, &pnlJSON, &reconJSON, &warnings)
	if err != nil {
		return domain.TickRecord{}, err
	}

	if err := json.Unmarshal(md, &rec.MarketData); err != nil {
		return domain.TickRecord{}, fmt.Errorf("postgres: unmarshal market data: %w", err)
	}
	if err := json.Unmarshal(pos, &rec.Position); err != nil {
		return domain.TickRecord{}, fmt.Errorf("postgres: unmarshal position: %w", err)
	}
	if err := json.Unmarshal(exp, &rec.Exposure); err != nil {
		return domain.TickRecord{}, fmt.Errorf("postgres: unmarshal exposure: %w", err)
	}
	if err := json.Unmarshal(riskJSON, &rec.Risk); err != nil {
		return domain.TickRecord{}, fmt.Errorf("postgres: unmarshal risk: %w", err)
	}
	if len(pnlJSON) > 0 {
		rec.PnL = &domain.PnLRecord{}
		if err := json.Unmarshal(pnlJSON, rec.PnL); err != nil {
			return domain.TickRecord{}, fmt.Errorf("postgres: unmarshal pnl: %w", err)
		}
	}
	if len(reconJSON) > 0 {
		rec.Reconciliation = &domain.ReconciliationResult{}
		if err := json.Unmarshal(reconJSON, rec.Reconciliation); err != nil {
			return domain.TickRecord{}, fmt.Errorf("postgres: unmarshal reconciliation: %w", err)
		}
	}
	if len(warnings) > 0 {
		if err := json.Unmarshal(warnings, &rec.Warnings); err != nil {
			return domain.TickRecord{}, fmt.Errorf("postgres: unmarshal warnings: %w", err)
		}
	}
	return rec, nil
}

// ListTicks returns a run's records ordered by sequence.
func (s *TickStore) ListTicks(ctx context.Context, runID string, opts domain.ListOpts) ([]domain.TickRecord, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 1000
	}

	rows, err := s.pool.Query(ctx, `
		SELECT `+tickSelectCols+`
		FROM tick_records
		WHERE run_id = $1
		ORDER BY seq
		LIMIT $2 OFFSET $3`,
		runID, limit, opts.Offset,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: list ticks: %w", err)
	}
	defer rows.Close()

	var recs []domain.TickRecord
	for rows.Next() {
		rec, err := scanTickRow(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// LastTick returns the most recent record of a run.
func (s *TickStore) LastTick(ctx context.Context, runID string) (domain.TickRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+tickSelectCols+`
		FROM tick_records
		WHERE run_id = $1
		ORDER BY seq DESC
		LIMIT 1`,
		runID,
	)
	rec, err := scanTickRow(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.TickRecord{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.TickRecord{}, fmt.Errorf("postgres: last tick: %w", err)
	}
	return rec, nil
}
