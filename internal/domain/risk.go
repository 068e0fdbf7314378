package domain

import (
	"encoding/json"
	"math"
	"time"
)

// LiquidationStatus is the closed set of risk status bands.
type LiquidationStatus string

const (
	StatusSafe     LiquidationStatus = "safe"
	StatusWarning  LiquidationStatus = "warning"
	StatusCritical LiquidationStatus = "critical"
)

// RiskParams are the protocol risk parameters a risk assessment is computed
// against. Available is false when no risk-parameter source could be read;
// the assessment then degrades to safe with an explicit message.
type RiskParams struct {
	Available bool

	// LiquidationThreshold weights collateral in the health factor.
	LiquidationThreshold float64
	// LiquidationBonus is the liquidator premium applied to seized debt.
	LiquidationBonus float64
	// CloseFactor is the fraction of debt one liquidation pass may repay.
	CloseFactor float64

	// WarningHealthFactor and CriticalHealthFactor bound the status bands.
	WarningHealthFactor  float64
	CriticalHealthFactor float64
}

// RiskAssessment is the liquidation/margin risk derived from one exposure
// snapshot. The same computation feeds display and programmatic checks.
type RiskAssessment struct {
	Timestamp time.Time

	// HealthFactor is (liquidation_threshold × collateral) / debt;
	// +Inf when debt is zero.
	HealthFactor    float64
	CollateralValue float64
	DebtValue       float64

	Liquidated bool
	// DebtLiquidated is close_factor × debt when liquidated, else 0.
	DebtLiquidated float64
	// LiquidationPenalty is debt_liquidated × (1 + liquidation_bonus).
	LiquidationPenalty float64

	Status  LiquidationStatus
	Message string

	Warnings []Warning
}

// healthFactorInf is the wire form of an infinite health factor. JSON has
// no +Inf literal, so the sentinel stands in for it on every boundary
// (postgres JSONB, run archives, the status API).
const healthFactorInf = "inf"

// HealthFactorJSON returns the JSON-safe representation of a health factor:
// the sentinel string for +Inf, the number itself otherwise.
func HealthFactorJSON(f float64) any {
	if math.IsInf(f, 1) {
		return healthFactorInf
	}
	return f
}

// MarshalJSON encodes the assessment with the health factor in its
// JSON-safe form. Zero-debt portfolios carry +Inf, which encoding/json
// rejects as a bare float.
func (r RiskAssessment) MarshalJSON() ([]byte, error) {
	type alias RiskAssessment
	return json.Marshal(struct {
		alias
		HealthFactor any
	}{alias: alias(r), HealthFactor: HealthFactorJSON(r.HealthFactor)})
}

// UnmarshalJSON restores the +Inf health factor from its wire sentinel.
func (r *RiskAssessment) UnmarshalJSON(data []byte) error {
	type alias RiskAssessment
	aux := struct {
		*alias
		HealthFactor json.RawMessage
	}{alias: (*alias)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	switch {
	case len(aux.HealthFactor) == 0 || string(aux.HealthFactor) == "null":
		r.HealthFactor = 0
	case aux.HealthFactor[0] == '"':
		r.HealthFactor = math.Inf(1)
	default:
		return json.Unmarshal(aux.HealthFactor, &r.HealthFactor)
	}
	return nil
}
