package domain

import "time"

// MarketDataSnapshot is the normalized point-in-time view a DataProvider
// emits. Backtest and live providers produce the identical four-section
// shape; that contract is what keeps every downstream component
// mode-agnostic. Missing optional values are zero-filled, never omitted:
// every section map is non-nil.
type MarketDataSnapshot struct {
	Timestamp time.Time

	Prices    PriceSection
	Protocol  ProtocolSection
	Staking   StakingSection
	Execution ExecutionSection

	// Warnings carries data-quality issues (stale cache hits, venue
	// timeouts) attached by the live provider. Never fatal.
	Warnings []Warning
}

// PriceSection holds spot prices and derivative funding rates.
type PriceSection struct {
	// Spot maps asset symbol to its spot price in the share-class currency.
	Spot map[string]float64
	// Funding maps "venue:symbol" to the funding rate accrued over the
	// current interval (fraction of notional, signed; positive means longs
	// pay shorts).
	Funding map[string]float64
}

// ProtocolSection holds lending-protocol indexes and oracle prices.
// Indexes are monotonically increasing multipliers: a fixed scaled token
// balance times the current index yields its underlying value.
type ProtocolSection struct {
	// LiquidityIndex maps reserve asset to the current supply-side index.
	LiquidityIndex map[string]float64
	// VariableBorrowIndex maps reserve asset to the current borrow index.
	VariableBorrowIndex map[string]float64
	// OraclePrices maps asset to the protocol oracle price in share class.
	OraclePrices map[string]float64
	// RiskParams carries the protocol risk parameters observed at this
	// timestamp. Unavailable sources leave Available false.
	RiskParams RiskParams
}

// StakingSection holds liquid-staking reward data.
type StakingSection struct {
	// RewardRates maps staked asset to the reward rate accrued over the
	// current interval (fraction of balance).
	RewardRates map[string]float64
	// ExchangeRates maps wrapped staked asset to underlying units per
	// wrapped unit.
	ExchangeRates map[string]float64
}

// ExecutionSection holds the raw per-venue balances observed (live) or
// simulated (backtest) at this timestamp, in the same four-category shape
// PositionMonitor aggregates into.
type ExecutionSection struct {
	Balances []VenueBalance
}

// NewMarketDataSnapshot returns a snapshot with every section map
// initialized empty, honoring the zero-fill contract.
func NewMarketDataSnapshot(ts time.Time) MarketDataSnapshot {
	return MarketDataSnapshot{
		Timestamp: ts,
		Prices: PriceSection{
			Spot:    map[string]float64{},
			Funding: map[string]float64{},
		},
		Protocol: ProtocolSection{
			LiquidityIndex:      map[string]float64{},
			VariableBorrowIndex: map[string]float64{},
			OraclePrices:        map[string]float64{},
		},
		Staking: StakingSection{
			RewardRates:   map[string]float64{},
			ExchangeRates: map[string]float64{},
		},
		Execution: ExecutionSection{},
	}
}

// SpotPrice returns the spot price for asset, falling back to the protocol
// oracle when no CEX quote exists. Unpriced assets return 0.
func (s MarketDataSnapshot) SpotPrice(asset string) float64 {
	if p, ok := s.Prices.Spot[asset]; ok && p > 0 {
		return p
	}
	return s.Protocol.OraclePrices[asset]
}
