// Package reconcile implements drift detection between a simulated position
// snapshot and an externally observed one at the same timestamp.
package reconcile

import (
	"log/slog"
	"sort"

	"github.com/basisops/fundmon/internal/domain"
)

// Reconciler compares position snapshots cell by cell. Reconcile is
// deterministic and never mutates its inputs.
type Reconciler struct {
	tolerance domain.ReconciliationTolerance
	logger    *slog.Logger
}

// NewReconciler creates a Reconciler with the configured tolerances.
func NewReconciler(tolerance domain.ReconciliationTolerance, logger *slog.Logger) *Reconciler {
	return &Reconciler{
		tolerance: tolerance,
		logger:    logger.With(slog.String("component", "reconciler")),
	}
}

// Reconcile flags every (venue, asset) cell, across the union of both
// snapshots' keys, whose simulated and observed amounts diverge beyond
// max(epsilon_abs, epsilon_rel × |observed|). A key missing on either side
// counts as zero. Snapshots missing one of the four fixed categories fail
// with an INVALID_SNAPSHOT error.
func (r *Reconciler) Reconcile(simulated, observed domain.PositionSnapshot) (domain.ReconciliationResult, error) {
	if err := simulated.ValidateStructure(); err != nil {
		return domain.ReconciliationResult{}, err
	}
	if err := observed.ValidateStructure(); err != nil {
		return domain.ReconciliationResult{}, err
	}

	sim := simulated.Flatten()
	obs := observed.Flatten()

	keys := make([]domain.FlattenKey, 0, len(sim)+len(obs))
	seen := make(map[domain.FlattenKey]bool, len(sim)+len(obs))
	for k := range sim {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	for k := range obs {
		if !seen[k] {
			seen[k] = true
			keys = append(keys, k)
		}
	}
	// Deterministic violation order.
	sort.Slice(keys, func(i, j int) bool {
		a, b := keys[i], keys[j]
		if a.Category != b.Category {
			return a.Category < b.Category
		}
		if a.Venue != b.Venue {
			return a.Venue < b.Venue
		}
		return a.Asset < b.Asset
	})

	result := domain.ReconciliationResult{
		Timestamp: simulated.Timestamp,
		Tolerance: r.tolerance,
	}

	for _, k := range keys {
		s, o := sim[k], obs[k]
		delta := s - o
		allowed := r.tolerance.Allowed(o)
		if delta > allowed || delta < -allowed {
			result.Violations = append(result.Violations, domain.ReconciliationViolation{
				Category:  k.Category,
				Venue:     k.Venue,
				Asset:     k.Asset,
				Simulated: s,
				Observed:  o,
				Delta:     delta,
				Allowed:   allowed,
			})
		}
	}

	result.Reconciled = len(result.Violations) == 0
	if !result.Reconciled {
		r.logger.Warn("position drift detected",
			slog.Int("violations", len(result.Violations)),
			slog.Time("ts", simulated.Timestamp),
		)
	}
	return result, nil
}
