// Package risk implements the RiskMonitor: liquidation and margin risk
// metrics derived from exposure and protocol risk parameters.
package risk

import (
	"log/slog"
	"math"

	"github.com/basisops/fundmon/internal/domain"
)

// Monitor derives risk assessments. Assess is a pure function of
// (exposure, params); the same computation feeds display and programmatic
// threshold checks.
type Monitor struct {
	// fallback supplies static risk parameters when the protocol source is
	// unavailable at a tick.
	fallback domain.RiskParams
	// preferProtocol uses the per-tick on-chain parameters when available.
	preferProtocol bool
	logger         *slog.Logger
}

// NewMonitor creates a Monitor with the configured static fallback.
func NewMonitor(fallback domain.RiskParams, preferProtocol bool, logger *slog.Logger) *Monitor {
	return &Monitor{
		fallback:       fallback,
		preferProtocol: preferProtocol,
		logger:         logger.With(slog.String("component", "risk_monitor")),
	}
}

// Assess computes the risk assessment for one exposure snapshot. When no
// risk-parameter source is available it returns a safe assessment with an
// explicit unavailability message rather than failing: a best-effort figure
// beats a stalled pipeline.
func (m *Monitor) Assess(exp domain.ExposureSnapshot, protocolParams domain.RiskParams) domain.RiskAssessment {
	params := m.pick(protocolParams)

	assessment := domain.RiskAssessment{
		Timestamp:       exp.Timestamp,
		CollateralValue: exp.CollateralValue,
		DebtValue:       exp.DebtValue,
	}

	if !params.Available {
		assessment.HealthFactor = math.Inf(1)
		assessment.Status = domain.StatusSafe
		assessment.Message = "risk parameters unavailable; assessment skipped"
		assessment.Warnings = append(assessment.Warnings, domain.Warning{
			Kind:    domain.WarnRiskUnavailable,
			Message: assessment.Message,
		})
		return assessment
	}

	if exp.DebtValue <= 0 {
		assessment.HealthFactor = math.Inf(1)
	} else {
		assessment.HealthFactor = params.LiquidationThreshold * exp.CollateralValue / exp.DebtValue
	}

	if assessment.HealthFactor < 1.0 {
		assessment.Liquidated = true
		assessment.DebtLiquidated = params.CloseFactor * exp.DebtValue
		assessment.LiquidationPenalty = assessment.DebtLiquidated * (1 + params.LiquidationBonus)
	}

	assessment.Status = m.status(assessment, params)
	return assessment
}

// pick selects per-tick protocol parameters when configured and present,
// otherwise falls back to the static configuration.
func (m *Monitor) pick(protocolParams domain.RiskParams) domain.RiskParams {
	if m.preferProtocol && protocolParams.Available {
		p := protocolParams
		// Close factor, bonus, and bands are operator policy, not oracle
		// data; only the liquidation threshold comes from the protocol.
		p.CloseFactor = m.fallback.CloseFactor
		p.LiquidationBonus = m.fallback.LiquidationBonus
		p.WarningHealthFactor = m.fallback.WarningHealthFactor
		p.CriticalHealthFactor = m.fallback.CriticalHealthFactor
		return p
	}
	return m.fallback
}

// status maps an assessment onto the closed safe/warning/critical bands.
func (m *Monitor) status(a domain.RiskAssessment, params domain.RiskParams) domain.LiquidationStatus {
	// A penalty consuming half the collateral is critical regardless of the
	// health factor band.
	if a.CollateralValue > 0 && a.LiquidationPenalty >= 0.5*a.CollateralValue {
		return domain.StatusCritical
	}
	switch {
	case a.HealthFactor >= params.WarningHealthFactor:
		return domain.StatusSafe
	case a.HealthFactor >= params.CriticalHealthFactor:
		return domain.StatusWarning
	default:
		return domain.StatusCritical
	}
}
