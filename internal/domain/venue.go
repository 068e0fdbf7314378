// Package domain defines the canonical point-in-time schema shared by every
// pipeline component: market data, positions, exposure, risk, P&L, and
// reconciliation records, the closed enums that key them, and the interfaces
// the adapters (stores, caches, blob storage, venue clients) implement.
//
// Everything in this package is a plain value type. Per-tick records are
// created fresh each timestamp, never mutated afterwards, and owned by the
// run's history store.
package domain

import (
	"context"
	"time"
)

// Venue identifies a single balance-holding location, e.g. "wallet:main",
// "aave", "binance", "okx".
type Venue string

// VenueCategory is the fixed top-level category a venue's balances fall into.
// A PositionSnapshot always carries all four categories, even when empty.
type VenueCategory string

const (
	CategoryWallet         VenueCategory = "wallet"
	CategoryProtocol       VenueCategory = "protocol"
	CategoryCEXSpot        VenueCategory = "cex_spot"
	CategoryCEXDerivatives VenueCategory = "cex_derivatives"
)

// Categories lists the four fixed snapshot categories in canonical order.
func Categories() []VenueCategory {
	return []VenueCategory{CategoryWallet, CategoryProtocol, CategoryCEXSpot, CategoryCEXDerivatives}
}

// VenueBalance is a raw holding keyed by (venue, asset). For derivatives,
// Amount is the signed contract size and EntryPrice the average entry.
type VenueBalance struct {
	Venue      Venue
	Category   VenueCategory
	Asset      string
	Amount     float64
	EntryPrice float64
}

// BalanceFetcher is the venue connectivity boundary. Implementations (CEX
// REST clients, RPC readers) return every raw balance the venue currently
// holds. Fetches for different venues may run concurrently within one tick.
type BalanceFetcher interface {
	// Venue returns the identifier the fetched balances are keyed under.
	Venue() Venue
	// Categories returns the snapshot categories this venue contributes to.
	Categories() []VenueCategory
	// FetchBalances returns the venue's raw balances at roughly time ts.
	FetchBalances(ctx context.Context, ts time.Time) ([]VenueBalance, error)
}

// Instruction is a strategy-layer order: move size of asset at a venue.
// Generation and execution of instructions live outside this system; the
// type exists so the boundary has a shape.
type Instruction struct {
	Venue  Venue
	Asset  string
	Size   float64
	Reason string
}

// StrategyConsumer is the decision-layer boundary. It receives each
// committed tick record and may return instructions for the execution layer.
type StrategyConsumer interface {
	OnTick(ctx context.Context, rec TickRecord) ([]Instruction, error)
}
