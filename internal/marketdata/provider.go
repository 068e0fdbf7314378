// Package marketdata implements the DataProvider: the component that turns
// either a historical replay span or a set of live venue sources into the
// one canonical MarketDataSnapshot shape every downstream component
// consumes. Backtest and live providers are interchangeable behind the
// Provider interface; the schema they emit is identical.
package marketdata

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/basisops/fundmon/internal/domain"
)

// Provider produces the normalized point-in-time snapshot for a timestamp.
type Provider interface {
	// GetData returns the four-section snapshot for ts. Structural failures
	// (series not loaded, timestamp out of range) are coded errors.
	GetData(ctx context.Context, ts time.Time) (domain.MarketDataSnapshot, error)

	// ValidateDataRequirements checks that every required data section is
	// within this provider's declared capability set. It fails with an
	// UNSUPPORTED_REQUIREMENT error listing the missing requirements.
	ValidateDataRequirements(required []domain.DataRequirement) error
}

// validateRequirements is the shared capability check. The error message
// lists the set difference in sorted order so it is stable for operators
// and tests.
func validateRequirements(capabilities map[domain.DataRequirement]bool, required []domain.DataRequirement) error {
	var missing []string
	for _, r := range required {
		if !capabilities[r] {
			missing = append(missing, string(r))
		}
	}
	if len(missing) == 0 {
		return nil
	}
	sort.Strings(missing)
	return domain.Errorf(domain.CodeUnsupportedRequirement,
		"provider cannot supply: %s", strings.Join(missing, ", "))
}

// capabilitySet builds a lookup from a requirement list.
func capabilitySet(caps []domain.DataRequirement) map[domain.DataRequirement]bool {
	m := make(map[domain.DataRequirement]bool, len(caps))
	for _, c := range caps {
		m[c] = true
	}
	return m
}
