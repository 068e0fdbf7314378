// Package position implements the PositionMonitor: aggregation of raw
// per-venue balances into the canonical four-category position snapshot.
package position

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/basisops/fundmon/internal/domain"
)

// VenueSet names the configured venues per category. Every listed venue is
// guaranteed an entry in the snapshot, zero-filled when it reported nothing.
type VenueSet struct {
	Wallets        []domain.Venue
	Protocols      []domain.Venue
	CEXSpot        []domain.Venue
	CEXDerivatives []domain.Venue
}

// Monitor aggregates execution balances into position snapshots. It is a
// pure function of its inputs plus the immutable venue configuration.
type Monitor struct {
	venues VenueSet
	// strict makes a missing venue fatal instead of a warning. Used by the
	// strict-reconciliation live configuration.
	strict bool
	logger *slog.Logger
}

// NewMonitor creates a Monitor for the configured venue set.
func NewMonitor(venues VenueSet, strict bool, logger *slog.Logger) *Monitor {
	return &Monitor{
		venues: venues,
		strict: strict,
		logger: logger.With(slog.String("component", "position_monitor")),
	}
}

// GetSnapshot aggregates the raw balances of the market data snapshot into
// the canonical position snapshot for the same timestamp. Venues configured
// but absent from the input are zero-filled and logged; under strict mode
// they fail the tick with a coded error.
func (m *Monitor) GetSnapshot(ts time.Time, md domain.MarketDataSnapshot) (domain.PositionSnapshot, error) {
	snap := domain.NewPositionSnapshot(ts.UTC())

	seen := map[domain.Venue]bool{}
	for _, vb := range md.Execution.Balances {
		seen[vb.Venue] = true
		switch vb.Category {
		case domain.CategoryWallet:
			addAmount(snap.Wallet, vb.Venue, vb.Asset, vb.Amount)
		case domain.CategoryProtocol:
			addAmount(snap.Protocol, vb.Venue, vb.Asset, vb.Amount)
		case domain.CategoryCEXSpot:
			addAmount(snap.CEXSpot, vb.Venue, vb.Asset, vb.Amount)
		case domain.CategoryCEXDerivatives:
			if snap.CEXDerivatives[vb.Venue] == nil {
				snap.CEXDerivatives[vb.Venue] = map[string]domain.DerivativePosition{}
			}
			snap.CEXDerivatives[vb.Venue][vb.Asset] = domain.DerivativePosition{
				Size:       vb.Amount,
				EntryPrice: vb.EntryPrice,
			}
		default:
			// Unknown categories indicate a broken venue adapter; surface
			// loudly rather than guessing a bucket.
			return domain.PositionSnapshot{}, domain.Errorf(domain.CodeInvalidSnapshot,
				"balance for %s/%s has unknown category %q", vb.Venue, vb.Asset, vb.Category)
		}
	}

	// Zero-fill every configured venue so nothing is silently dropped.
	missing := m.zeroFill(&snap, seen)
	for _, v := range missing {
		msg := fmt.Sprintf("venue %s reported no balances, zero-filled", v)
		if m.strict {
			return domain.PositionSnapshot{}, domain.Errorf(domain.CodeVenueTimeout,
				"venue %s missing under strict reconciliation", v)
		}
		m.logger.Warn("missing venue", slog.String("venue", string(v)), slog.Time("ts", ts))
		snap.Warnings = append(snap.Warnings, domain.Warning{Kind: domain.WarnMissingVenue, Message: msg})
	}

	// Carry forward the provider's data-quality warnings.
	snap.Warnings = append(snap.Warnings, md.Warnings...)

	return snap, nil
}

// zeroFill ensures every configured venue has an entry in its category and
// returns the venues that reported nothing.
func (m *Monitor) zeroFill(snap *domain.PositionSnapshot, seen map[domain.Venue]bool) []domain.Venue {
	var missing []domain.Venue

	for _, v := range m.venues.Wallets {
		if snap.Wallet[v] == nil {
			snap.Wallet[v] = map[string]float64{}
		}
		if !seen[v] {
			missing = append(missing, v)
		}
	}
	for _, v := range m.venues.Protocols {
		if snap.Protocol[v] == nil {
			snap.Protocol[v] = map[string]float64{}
		}
		if !seen[v] {
			missing = append(missing, v)
		}
	}
	for _, v := range m.venues.CEXSpot {
		if snap.CEXSpot[v] == nil {
			snap.CEXSpot[v] = map[string]float64{}
		}
		if !seen[v] {
			missing = append(missing, v)
		}
	}
	for _, v := range m.venues.CEXDerivatives {
		if snap.CEXDerivatives[v] == nil {
			snap.CEXDerivatives[v] = map[string]domain.DerivativePosition{}
		}
		if !seen[v] {
			missing = append(missing, v)
		}
	}
	return dedupeVenues(missing)
}

func addAmount(m map[domain.Venue]map[string]float64, v domain.Venue, asset string, amt float64) {
	if m[v] == nil {
		m[v] = map[string]float64{}
	}
	m[v][asset] += amt
}

func dedupeVenues(vs []domain.Venue) []domain.Venue {
	seen := map[domain.Venue]bool{}
	out := vs[:0]
	for _, v := range vs {
		if !seen[v] {
			seen[v] = true
			out = append(out, v)
		}
	}
	return out
}
