package domain

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRiskAssessmentJSONInfiniteHealthFactor(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	in := RiskAssessment{
		Timestamp:       ts,
		HealthFactor:    math.Inf(1),
		CollateralValue: 100_000,
		Status:          StatusSafe,
		Message:         "no debt",
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"HealthFactor":"inf"`)

	var out RiskAssessment
	require.NoError(t, json.Unmarshal(data, &out))
	assert.True(t, math.IsInf(out.HealthFactor, 1))
	assert.Equal(t, in.CollateralValue, out.CollateralValue)
	assert.Equal(t, in.Status, out.Status)
}

func TestRiskAssessmentJSONFiniteHealthFactor(t *testing.T) {
	in := RiskAssessment{
		HealthFactor:    1.25,
		CollateralValue: 50_000,
		DebtValue:       38_000,
		Status:          StatusWarning,
	}

	data, err := json.Marshal(in)
	require.NoError(t, err)

	var out RiskAssessment
	require.NoError(t, json.Unmarshal(data, &out))
	assert.InDelta(t, 1.25, out.HealthFactor, 1e-12)
	assert.Equal(t, in.DebtValue, out.DebtValue)
}

// A committed record for a debt-free portfolio must survive every JSON
// boundary: the postgres sink, the run archive, and the status API all
// marshal the whole TickRecord.
func TestTickRecordJSONZeroDebt(t *testing.T) {
	ts := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	rec := TickRecord{
		RunID:      "run-1",
		Seq:        0,
		Timestamp:  ts,
		MarketData: NewMarketDataSnapshot(ts),
		Position:   NewPositionSnapshot(ts),
		Risk: RiskAssessment{
			Timestamp:    ts,
			HealthFactor: math.Inf(1),
			Status:       StatusSafe,
		},
	}

	data, err := json.Marshal(rec)
	require.NoError(t, err)

	var out TickRecord
	require.NoError(t, json.Unmarshal(data, &out))
	assert.True(t, math.IsInf(out.Risk.HealthFactor, 1))
	assert.Equal(t, rec.RunID, out.RunID)
}

func TestHealthFactorJSON(t *testing.T) {
	assert.Equal(t, "inf", HealthFactorJSON(math.Inf(1)))
	assert.Equal(t, 1.5, HealthFactorJSON(1.5))
}
