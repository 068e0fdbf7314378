package domain

import "time"

// ReconciliationTolerance bounds the allowed drift per (venue, asset) cell.
// The effective tolerance is max(EpsilonAbs, EpsilonRel × |observed|). Both
// values are required configuration; there is no authoritative default.
type ReconciliationTolerance struct {
	EpsilonAbs float64
	EpsilonRel float64
}

// Allowed returns the tolerance applicable to an observed amount.
func (t ReconciliationTolerance) Allowed(observed float64) float64 {
	rel := t.EpsilonRel * abs(observed)
	if rel > t.EpsilonAbs {
		return rel
	}
	return t.EpsilonAbs
}

// ReconciliationViolation is one (venue, asset) cell whose simulated and
// observed amounts diverge beyond tolerance.
type ReconciliationViolation struct {
	Category  VenueCategory
	Venue     Venue
	Asset     string
	Simulated float64
	Observed  float64
	// Delta is Simulated − Observed.
	Delta float64
	// Allowed is the tolerance the delta exceeded.
	Allowed float64
}

// ReconciliationResult is the outcome of comparing a simulated position
// snapshot to an externally observed one at the same timestamp.
type ReconciliationResult struct {
	Timestamp  time.Time
	Reconciled bool
	Violations []ReconciliationViolation
	Tolerance  ReconciliationTolerance
}

func abs(v float64) float64 {
	if v < 0 {
		return -v
	}
	return v
}
