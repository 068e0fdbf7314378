// Package pipeline drives the per-tick monitoring sequence: market data →
// position → exposure → {risk, P&L} → commit, plus the independent drift
// reconciliation. Ticks are strictly sequential; tick N+1 never begins
// until tick N's record is committed.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/basisops/fundmon/internal/domain"
	"github.com/basisops/fundmon/internal/exposure"
	"github.com/basisops/fundmon/internal/history"
	"github.com/basisops/fundmon/internal/marketdata"
	"github.com/basisops/fundmon/internal/pnl"
	"github.com/basisops/fundmon/internal/position"
	"github.com/basisops/fundmon/internal/reconcile"
	"github.com/basisops/fundmon/internal/risk"
)

// Pipeline wires the five components over one history store. All components
// are pure over explicit inputs; the history append is the only shared
// mutable state and the single commit point per tick.
type Pipeline struct {
	provider   marketdata.Provider
	positions  *position.Monitor
	exposures  *exposure.Monitor
	risks      *risk.Monitor
	pnl        *pnl.Calculator
	reconciler *reconcile.Reconciler
	// observed supplies external snapshots for drift reconciliation; nil
	// disables per-tick reconciliation.
	observed domain.ObservedSnapshotSource

	store    *history.Store
	consumer domain.StrategyConsumer
	logger   *slog.Logger
}

// Config bundles the pipeline's collaborators.
type Config struct {
	Provider   marketdata.Provider
	Positions  *position.Monitor
	Exposures  *exposure.Monitor
	Risks      *risk.Monitor
	PnL        *pnl.Calculator
	Reconciler *reconcile.Reconciler
	Observed   domain.ObservedSnapshotSource
	Store      *history.Store
	// Consumer receives each committed record; nil is allowed.
	Consumer domain.StrategyConsumer
}

// New creates a Pipeline.
func New(cfg Config, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		provider:   cfg.Provider,
		positions:  cfg.Positions,
		exposures:  cfg.Exposures,
		risks:      cfg.Risks,
		pnl:        cfg.PnL,
		reconciler: cfg.Reconciler,
		observed:   cfg.Observed,
		store:      cfg.Store,
		consumer:   cfg.Consumer,
		logger:     logger.With(slog.String("component", "pipeline")),
	}
}

// Tick runs the full sequence for one timestamp and commits the resulting
// record. Structural errors abort the tick and leave no partial record;
// data-quality issues ride on the record as warnings.
func (p *Pipeline) Tick(ctx context.Context, ts time.Time) (domain.TickRecord, error) {
	seq := p.store.Len()
	run := p.store.Run()

	md, err := p.provider.GetData(ctx, ts)
	if err != nil {
		return domain.TickRecord{}, fmt.Errorf("tick %d: market data: %w", seq, err)
	}

	pos, err := p.positions.GetSnapshot(ts, md)
	if err != nil {
		return domain.TickRecord{}, fmt.Errorf("tick %d: positions: %w", seq, err)
	}

	exp, err := p.exposures.CalculateExposure(ts, pos, md)
	if err != nil {
		return domain.TickRecord{}, fmt.Errorf("tick %d: exposure: %w", seq, err)
	}

	riskAssessment := p.risks.Assess(exp, md.Protocol.RiskParams)

	rec := domain.TickRecord{
		RunID:      run.ID,
		Seq:        seq,
		Timestamp:  ts.UTC(),
		MarketData: md,
		Position:   pos,
		Exposure:   exp,
		Risk:       riskAssessment,
	}

	// P&L needs a previous exposure; the first tick carries none.
	if prev, ok := p.store.Last(); ok {
		pnlRec, err := p.pnl.Calculate(prev.Exposure, exp)
		if err != nil {
			return domain.TickRecord{}, fmt.Errorf("tick %d: pnl: %w", seq, err)
		}
		rec.PnL = &pnlRec
	} else {
		rec.Warnings = append(rec.Warnings, domain.Warning{
			Kind:    domain.WarnNoPreviousTick,
			Message: "first tick of run, no P&L baseline",
		})
	}

	// Drift reconciliation runs independently of the main sequence.
	if p.observed != nil && p.reconciler != nil {
		observed, err := p.observed.ObservedSnapshot(ctx, ts)
		if err != nil {
			rec.Warnings = append(rec.Warnings, domain.Warning{
				Kind:    domain.WarnStaleData,
				Message: fmt.Sprintf("observed snapshot unavailable: %v", err),
			})
		} else {
			result, err := p.reconciler.Reconcile(pos, observed)
			if err != nil {
				return domain.TickRecord{}, fmt.Errorf("tick %d: reconcile: %w", seq, err)
			}
			rec.Reconciliation = &result
			if !result.Reconciled {
				rec.Warnings = append(rec.Warnings, domain.Warning{
					Kind:    domain.WarnPositionDrift,
					Message: fmt.Sprintf("%d cells drifted beyond tolerance", len(result.Violations)),
				})
			}
		}
	}

	rec.Warnings = append(rec.Warnings, collectWarnings(rec)...)

	if err := p.store.Commit(ctx, rec); err != nil {
		return domain.TickRecord{}, fmt.Errorf("tick %d: commit: %w", seq, err)
	}

	p.logger.Info("tick committed",
		slog.Int("seq", seq),
		slog.Time("ts", ts),
		slog.Float64("net_delta", exp.NetDeltaPrimaryAsset),
		slog.String("risk", string(riskAssessment.Status)),
		slog.Int("warnings", len(rec.Warnings)),
	)

	if p.consumer != nil {
		if _, err := p.consumer.OnTick(ctx, rec); err != nil {
			// The decision layer is outside the pipeline contract; its
			// failures do not invalidate the committed record.
			p.logger.Warn("strategy consumer failed",
				slog.Int("seq", seq),
				slog.String("error", err.Error()),
			)
		}
	}

	return rec, nil
}

// collectWarnings aggregates the stage-level warnings onto the record.
func collectWarnings(rec domain.TickRecord) []domain.Warning {
	var out []domain.Warning
	out = append(out, rec.Position.Warnings...)
	out = append(out, rec.Exposure.Warnings...)
	out = append(out, rec.Risk.Warnings...)
	if rec.PnL != nil {
		out = append(out, rec.PnL.Warnings...)
	}
	return out
}
