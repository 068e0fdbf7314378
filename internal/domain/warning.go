package domain

// WarningKind classifies a non-fatal data-quality issue. Warnings ride on
// the tick's own output record; they are never dropped and never abort the
// tick.
type WarningKind string

const (
	WarnMissingVenue    WarningKind = "missing_venue"
	WarnStaleData       WarningKind = "stale_data"
	WarnVenueTimeout    WarningKind = "venue_timeout"
	WarnMissingOptional WarningKind = "missing_optional_data"
	WarnPnLUnreconciled WarningKind = "pnl_unreconciled"
	WarnRiskUnavailable WarningKind = "risk_params_unavailable"
	WarnNoPreviousTick  WarningKind = "no_previous_tick"
	WarnPositionDrift   WarningKind = "position_drift"
)

// Warning is one attached data-quality note.
type Warning struct {
	Kind    WarningKind
	Message string
}
