package risk

import (
	"io"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/basisops/fundmon/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func staticParams() domain.RiskParams {
	return domain.RiskParams{
		Available:            true,
		LiquidationThreshold: 0.95,
		LiquidationBonus:     0.05,
		CloseFactor:          0.5,
		WarningHealthFactor:  1.5,
		CriticalHealthFactor: 1.1,
	}
}

func exposureWith(collateral, debt float64) domain.ExposureSnapshot {
	return domain.ExposureSnapshot{
		Timestamp:       time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC),
		CollateralValue: collateral,
		DebtValue:       debt,
	}
}

func TestAssessLiquidation(t *testing.T) {
	m := NewMonitor(staticParams(), false, testLogger())

	a := m.Assess(exposureWith(100_000, 96_000), domain.RiskParams{})

	require.InDelta(t, 0.95*100_000/96_000, a.HealthFactor, 1e-9)
	assert.Less(t, a.HealthFactor, 1.0)
	assert.True(t, a.Liquidated)
	assert.InDelta(t, 48_000, a.DebtLiquidated, 1e-9)
	assert.InDelta(t, 50_400, a.LiquidationPenalty, 1e-9)
	// Penalty consumes over half the collateral.
	assert.Equal(t, domain.StatusCritical, a.Status)
}

func TestAssessZeroDebt(t *testing.T) {
	m := NewMonitor(staticParams(), false, testLogger())

	a := m.Assess(exposureWith(100_000, 0), domain.RiskParams{})

	assert.True(t, math.IsInf(a.HealthFactor, 1))
	assert.False(t, a.Liquidated)
	assert.Equal(t, domain.StatusSafe, a.Status)
}

func TestAssessStatusBands(t *testing.T) {
	m := NewMonitor(staticParams(), false, testLogger())

	cases := []struct {
		name       string
		collateral float64
		debt       float64
		want       domain.LiquidationStatus
	}{
		// hf = 0.95 * collateral / debt
		{"safe", 200_000, 100_000, domain.StatusSafe},         // hf 1.9
		{"warning", 140_000, 100_000, domain.StatusWarning},   // hf 1.33
		{"critical", 110_000, 100_000, domain.StatusCritical}, // hf 1.045
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := m.Assess(exposureWith(tc.collateral, tc.debt), domain.RiskParams{})
			assert.Equal(t, tc.want, a.Status)
		})
	}
}

func TestAssessHealthFactorMonotonicInDebt(t *testing.T) {
	m := NewMonitor(staticParams(), false, testLogger())

	prev := math.Inf(1)
	for _, debt := range []float64{10_000, 50_000, 90_000, 120_000} {
		a := m.Assess(exposureWith(100_000, debt), domain.RiskParams{})
		assert.Less(t, a.HealthFactor, prev)
		prev = a.HealthFactor
	}
}

func TestAssessUnavailableParams(t *testing.T) {
	m := NewMonitor(domain.RiskParams{}, false, testLogger())

	a := m.Assess(exposureWith(100_000, 96_000), domain.RiskParams{})

	assert.True(t, math.IsInf(a.HealthFactor, 1))
	assert.Equal(t, domain.StatusSafe, a.Status)
	assert.NotEmpty(t, a.Message)
	require.Len(t, a.Warnings, 1)
	assert.Equal(t, domain.WarnRiskUnavailable, a.Warnings[0].Kind)
}

func TestAssessPrefersProtocolThreshold(t *testing.T) {
	m := NewMonitor(staticParams(), true, testLogger())

	protocol := domain.RiskParams{
		Available:            true,
		LiquidationThreshold: 0.80,
		// On-chain values for these must be ignored; they are operator
		// policy, not oracle data.
		CloseFactor:      0.9,
		LiquidationBonus: 0.2,
	}

	a := m.Assess(exposureWith(100_000, 90_000), protocol)

	require.InDelta(t, 0.80*100_000/90_000, a.HealthFactor, 1e-9)
	assert.True(t, a.Liquidated)
	// Close factor and bonus come from the static configuration.
	assert.InDelta(t, 0.5*90_000, a.DebtLiquidated, 1e-9)
	assert.InDelta(t, 0.5*90_000*1.05, a.LiquidationPenalty, 1e-9)
}

func TestAssessFallsBackWhenProtocolUnavailable(t *testing.T) {
	m := NewMonitor(staticParams(), true, testLogger())

	a := m.Assess(exposureWith(200_000, 100_000), domain.RiskParams{})
	assert.InDelta(t, 0.95*200_000/100_000, a.HealthFactor, 1e-9)
}
