package domain

import "time"

// TickRecord bundles every per-tick entity produced by one pipeline pass.
// Appending a TickRecord to the run's history store is the single commit
// point of a tick; an aborted tick leaves no partial record behind.
type TickRecord struct {
	RunID     string
	Seq       int
	Timestamp time.Time

	MarketData MarketDataSnapshot
	Position   PositionSnapshot
	Exposure   ExposureSnapshot
	Risk       RiskAssessment

	// PnL is nil on the first tick of a run (no previous exposure).
	PnL *PnLRecord
	// Reconciliation is nil when no observed snapshot source is configured.
	Reconciliation *ReconciliationResult

	// Warnings aggregates the data-quality warnings of every stage.
	Warnings []Warning
}
