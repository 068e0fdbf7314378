package domain

import "time"

// BreakdownKey is one of the five fixed venue-breakdown buckets every asset
// exposure is split into. The bucket values sum exactly to the asset total.
type BreakdownKey string

const (
	BreakdownOnChainWallet BreakdownKey = "on_chain_wallet"
	BreakdownCEXSpot       BreakdownKey = "cex_spot"
	BreakdownCEXPerps      BreakdownKey = "cex_perps"
	BreakdownAaveTokens    BreakdownKey = "aave_tokens"
	BreakdownAaveDebt      BreakdownKey = "aave_debt"
)

// BreakdownKeys lists the fixed breakdown buckets in canonical order.
func BreakdownKeys() []BreakdownKey {
	return []BreakdownKey{
		BreakdownOnChainWallet, BreakdownCEXSpot, BreakdownCEXPerps,
		BreakdownAaveTokens, BreakdownAaveDebt,
	}
}

// NewVenueBreakdown returns a breakdown map with every fixed key zero-filled.
func NewVenueBreakdown() map[BreakdownKey]float64 {
	m := make(map[BreakdownKey]float64, 5)
	for _, k := range BreakdownKeys() {
		m[k] = 0
	}
	return m
}

// AssetKind classifies how a linked token relates to its underlying asset.
type AssetKind string

const (
	AssetKindSpot       AssetKind = "spot"        // the asset itself
	AssetKindWrapped    AssetKind = "wrapped"     // liquid-wrapped derivative
	AssetKindAaveSupply AssetKind = "aave_supply" // interest-bearing supply token
	AssetKindAaveDebt   AssetKind = "aave_debt"   // variable debt token
)

// AssetLink declares one token as economically linked to an underlying
// asset. The set of links per primary asset comes from configuration; assets
// without a link are excluded from net delta and handled as dust.
type AssetLink struct {
	// Symbol is the token as it appears in balances (e.g. "aWBTC").
	Symbol string
	// Underlying is the canonical asset it resolves to (e.g. "BTC").
	Underlying string
	// Kind decides the breakdown bucket and index treatment.
	Kind AssetKind
	// IndexAsset keys the protocol index used for conversion; empty for
	// spot/wrapped kinds.
	IndexAsset string
}

// AssetExposure is the net economic exposure to one asset, in underlying
// units, with its fixed venue breakdown.
type AssetExposure struct {
	Asset string
	// Total is the signed net exposure in underlying asset units.
	Total float64
	// Price is the share-class price applied at this timestamp.
	Price float64
	// ValueShareClass is Total × Price.
	ValueShareClass float64
	// VenueBreakdown always contains the five fixed keys, summing to Total.
	VenueBreakdown map[BreakdownKey]float64
}

// ExposureSnapshot is the per-asset net exposure derived from one position
// snapshot, parameterized by primary asset and share-class currency.
type ExposureSnapshot struct {
	Timestamp    time.Time
	PrimaryAsset string
	ShareClass   string

	// Exposures maps underlying asset to its net exposure.
	Exposures map[string]AssetExposure

	// NetDeltaPrimaryAsset is the signed sum of included exposures in
	// primary-asset units. Longs positive, shorts and debt negative.
	NetDeltaPrimaryAsset float64
	// NetDeltaShareClass is the same delta valued in share-class currency.
	NetDeltaShareClass float64

	// TotalValue is the portfolio value in share class across the five
	// breakdown buckets (debt negative). Balance-based P&L diffs this.
	TotalValue float64
	// CollateralValue is the share-class value of protocol supply balances.
	CollateralValue float64
	// DebtValue is the share-class value of protocol debt (positive number).
	DebtValue float64

	// Refs carries the market references the exposure was computed with, so
	// the P&L attribution can diff indexes and prices between two snapshots
	// without re-reading market data.
	Refs MarketRefs

	Warnings []Warning
}

// MarketRefs is the subset of market data an exposure snapshot was priced
// with. Maps are keyed by underlying asset.
type MarketRefs struct {
	Prices              map[string]float64
	LiquidityIndex      map[string]float64
	VariableBorrowIndex map[string]float64
	Funding             map[string]float64 // underlying asset -> funding rate this interval
	StakingRewards      map[string]float64 // underlying asset -> reward rate this interval
}

// ValidateStructure checks the sections P&L attribution depends on exist.
func (e ExposureSnapshot) ValidateStructure() error {
	switch {
	case e.Exposures == nil:
		return Errorf(CodePnLCalculator, "exposure snapshot missing exposures section")
	case e.Refs.Prices == nil:
		return Errorf(CodePnLCalculator, "exposure snapshot missing price refs")
	case e.Refs.LiquidityIndex == nil || e.Refs.VariableBorrowIndex == nil:
		return Errorf(CodePnLCalculator, "exposure snapshot missing index refs")
	case e.ShareClass == "":
		return Errorf(CodePnLCalculator, "exposure snapshot missing share class")
	}
	for asset, exp := range e.Exposures {
		if exp.VenueBreakdown == nil {
			return Errorf(CodePnLCalculator, "exposure for %s missing venue breakdown", asset)
		}
	}
	return nil
}
