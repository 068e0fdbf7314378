package domain

import "time"

// DerivativePosition is a signed derivative holding on a CEX.
type DerivativePosition struct {
	Size       float64 // signed: positive long, negative short
	EntryPrice float64
}

// PositionSnapshot is the canonical aggregated position at one timestamp,
// split into the four fixed categories. Every configured venue has an entry
// in each category it participates in, zero-filled when the venue reported
// nothing; venues are never silently dropped.
type PositionSnapshot struct {
	Timestamp time.Time

	// Wallet holds on-chain wallet balances: venue -> asset -> amount.
	Wallet map[Venue]map[string]float64
	// Protocol holds smart-contract balances (aToken / debt-token scaled
	// balances): venue -> token symbol -> scaled amount.
	Protocol map[Venue]map[string]float64
	// CEXSpot holds exchange spot balances: venue -> asset -> amount.
	CEXSpot map[Venue]map[string]float64
	// CEXDerivatives holds exchange derivative positions:
	// venue -> symbol -> position.
	CEXDerivatives map[Venue]map[string]DerivativePosition

	Warnings []Warning
}

// NewPositionSnapshot returns a snapshot with all four category maps
// initialized, satisfying the fixed-category invariant for empty portfolios.
func NewPositionSnapshot(ts time.Time) PositionSnapshot {
	return PositionSnapshot{
		Timestamp:      ts,
		Wallet:         map[Venue]map[string]float64{},
		Protocol:       map[Venue]map[string]float64{},
		CEXSpot:        map[Venue]map[string]float64{},
		CEXDerivatives: map[Venue]map[string]DerivativePosition{},
	}
}

// ValidateStructure checks the four fixed categories are present (non-nil).
// A nil category map means the canonical-schema contract is broken.
func (p PositionSnapshot) ValidateStructure() error {
	missing := ""
	switch {
	case p.Wallet == nil:
		missing = string(CategoryWallet)
	case p.Protocol == nil:
		missing = string(CategoryProtocol)
	case p.CEXSpot == nil:
		missing = string(CategoryCEXSpot)
	case p.CEXDerivatives == nil:
		missing = string(CategoryCEXDerivatives)
	}
	if missing != "" {
		return Errorf(CodeInvalidSnapshot, "position snapshot missing category %q", missing)
	}
	return nil
}

// FlattenKey identifies one flattened (category, venue, asset) cell.
type FlattenKey struct {
	Category VenueCategory
	Venue    Venue
	Asset    string
}

// Flatten collapses the snapshot into (category, venue, asset) -> amount.
// Derivative positions flatten to their signed size. The receiver is not
// mutated.
func (p PositionSnapshot) Flatten() map[FlattenKey]float64 {
	out := map[FlattenKey]float64{}
	for venue, assets := range p.Wallet {
		for asset, amt := range assets {
			out[FlattenKey{CategoryWallet, venue, asset}] = amt
		}
	}
	for venue, assets := range p.Protocol {
		for asset, amt := range assets {
			out[FlattenKey{CategoryProtocol, venue, asset}] = amt
		}
	}
	for venue, assets := range p.CEXSpot {
		for asset, amt := range assets {
			out[FlattenKey{CategoryCEXSpot, venue, asset}] = amt
		}
	}
	for venue, positions := range p.CEXDerivatives {
		for sym, pos := range positions {
			out[FlattenKey{CategoryCEXDerivatives, venue, sym}] = pos.Size
		}
	}
	return out
}
