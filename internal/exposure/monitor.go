// Package exposure implements the ExposureMonitor: conversion of a position
// snapshot into net economic exposure per asset, in primary-asset and
// share-class terms.
//
// The correctness-critical step is the index conversion: protocol
// interest-bearing tokens are units of account, not fixed entitlements, so
// their scaled balances are always multiplied by the current protocol index
// before anything is summed or priced.
package exposure

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/basisops/fundmon/internal/domain"
)

// Pair is one declared (primary asset, share class) combination.
type Pair struct {
	PrimaryAsset string
	ShareClass   string
}

// Monitor computes exposure snapshots for one declared pair. Calculation is
// a pure function of (position, market data); identical inputs produce
// identical outputs.
type Monitor struct {
	primary    string
	shareClass string
	declared   map[Pair]bool
	links      map[string]domain.AssetLink // by token symbol
	// fundingSymbols maps underlying asset to its "venue:symbol" funding
	// keys in the market data snapshot.
	fundingSymbols map[string][]string
	logger         *slog.Logger
}

// Config parameterizes a Monitor.
type Config struct {
	PrimaryAsset   string
	ShareClass     string
	DeclaredPairs  []Pair
	AssetLinks     []domain.AssetLink
	FundingSymbols map[string][]string
}

// NewMonitor creates a Monitor for cfg's primary/share-class pair.
func NewMonitor(cfg Config, logger *slog.Logger) *Monitor {
	declared := make(map[Pair]bool, len(cfg.DeclaredPairs))
	for _, p := range cfg.DeclaredPairs {
		declared[p] = true
	}
	links := make(map[string]domain.AssetLink, len(cfg.AssetLinks))
	for _, l := range cfg.AssetLinks {
		links[l.Symbol] = l
	}
	return &Monitor{
		primary:        cfg.PrimaryAsset,
		shareClass:     cfg.ShareClass,
		declared:       declared,
		links:          links,
		fundingSymbols: cfg.FundingSymbols,
		logger:         logger.With(slog.String("component", "exposure_monitor")),
	}
}

// CalculateExposure converts a position snapshot into per-asset net
// exposure. Assets without a declared link to the primary asset are dust
// and excluded from net delta. All-zero positions succeed and yield a
// zero-filled exposure for the primary asset.
func (m *Monitor) CalculateExposure(ts time.Time, pos domain.PositionSnapshot, md domain.MarketDataSnapshot) (domain.ExposureSnapshot, error) {
	if !m.declared[Pair{m.primary, m.shareClass}] {
		return domain.ExposureSnapshot{}, domain.Errorf(domain.CodeConfiguration,
			"pair (%s, %s) is not declared", m.primary, m.shareClass)
	}
	if err := pos.ValidateStructure(); err != nil {
		return domain.ExposureSnapshot{}, err
	}

	snap := domain.ExposureSnapshot{
		Timestamp:    ts.UTC(),
		PrimaryAsset: m.primary,
		ShareClass:   m.shareClass,
		Exposures:    map[string]domain.AssetExposure{},
		Refs: domain.MarketRefs{
			Prices:              map[string]float64{},
			LiquidityIndex:      map[string]float64{},
			VariableBorrowIndex: map[string]float64{},
			Funding:             map[string]float64{},
			StakingRewards:      map[string]float64{},
		},
	}

	bucket := func(underlying string) map[domain.BreakdownKey]float64 {
		exp, ok := snap.Exposures[underlying]
		if !ok {
			exp = domain.AssetExposure{Asset: underlying, VenueBreakdown: domain.NewVenueBreakdown()}
			snap.Exposures[underlying] = exp
		}
		return exp.VenueBreakdown
	}

	// Wallet balances: on_chain_wallet bucket, wrapped tokens converted to
	// underlying via the staking exchange rate when one exists.
	for _, assets := range pos.Wallet {
		for sym, amt := range assets {
			link, ok := m.links[sym]
			if !ok {
				continue // dust
			}
			bucket(link.Underlying)[domain.BreakdownOnChainWallet] += m.toUnderlying(link, amt, md)
		}
	}

	// Protocol balances: the index conversion. Supply tokens add to
	// aave_tokens; debt tokens subtract via aave_debt.
	for _, assets := range pos.Protocol {
		for sym, amt := range assets {
			link, ok := m.links[sym]
			if !ok {
				continue
			}
			switch link.Kind {
			case domain.AssetKindAaveSupply:
				idx := indexOr1(md.Protocol.LiquidityIndex, link.IndexAsset)
				bucket(link.Underlying)[domain.BreakdownAaveTokens] += amt * idx
			case domain.AssetKindAaveDebt:
				idx := indexOr1(md.Protocol.VariableBorrowIndex, link.IndexAsset)
				bucket(link.Underlying)[domain.BreakdownAaveDebt] -= amt * idx
			default:
				// Plain tokens parked in a protocol venue count as wallet
				// exposure.
				bucket(link.Underlying)[domain.BreakdownOnChainWallet] += m.toUnderlying(link, amt, md)
			}
		}
	}

	// CEX spot balances.
	for _, assets := range pos.CEXSpot {
		for sym, amt := range assets {
			link, ok := m.links[sym]
			if !ok {
				continue
			}
			bucket(link.Underlying)[domain.BreakdownCEXSpot] += m.toUnderlying(link, amt, md)
		}
	}

	// CEX derivatives: signed size in underlying units.
	for _, positions := range pos.CEXDerivatives {
		for sym, dpos := range positions {
			link, ok := m.links[sym]
			if !ok {
				continue
			}
			bucket(link.Underlying)[domain.BreakdownCEXPerps] += dpos.Size
		}
	}

	// Primary asset always has an entry, even for an empty portfolio.
	bucket(m.primary)

	// Totals, pricing, and deltas. The breakdown sums to the total by
	// construction; the invariant is asserted by tests, not re-derived here.
	primaryPrice := m.price(m.primary, md)
	deltaSkipped := false
	for underlying, exp := range snap.Exposures {
		total := 0.0
		for _, v := range exp.VenueBreakdown {
			total += v
		}
		price := m.price(underlying, md)

		exp.Total = total
		exp.Price = price
		exp.ValueShareClass = total * price
		snap.Exposures[underlying] = exp

		// Cross-asset contributions need the primary price to convert;
		// without it they would be counted in their own units.
		switch {
		case underlying == m.primary:
			snap.NetDeltaPrimaryAsset += total
		case primaryPrice > 0:
			snap.NetDeltaPrimaryAsset += total * price / primaryPrice
		case total != 0:
			deltaSkipped = true
		}
		snap.NetDeltaShareClass += exp.ValueShareClass
		snap.TotalValue += exp.ValueShareClass
		snap.CollateralValue += exp.VenueBreakdown[domain.BreakdownAaveTokens] * price
		snap.DebtValue += -exp.VenueBreakdown[domain.BreakdownAaveDebt] * price

		m.fillRefs(&snap, underlying, price, md)
	}
	if deltaSkipped {
		snap.Warnings = append(snap.Warnings, domain.Warning{
			Kind:    domain.WarnMissingOptional,
			Message: fmt.Sprintf("primary asset %s unpriced, cross-asset delta contributions skipped", m.primary),
		})
	}

	snap.Warnings = append(snap.Warnings, pos.Warnings...)
	return snap, nil
}

// toUnderlying converts a spot or wrapped balance to underlying units.
func (m *Monitor) toUnderlying(link domain.AssetLink, amt float64, md domain.MarketDataSnapshot) float64 {
	if link.Kind == domain.AssetKindWrapped {
		if xr, ok := md.Staking.ExchangeRates[link.Symbol]; ok && xr > 0 {
			return amt * xr
		}
	}
	return amt
}

// price resolves an asset's share-class price; the share class itself is 1.
func (m *Monitor) price(asset string, md domain.MarketDataSnapshot) float64 {
	if asset == m.shareClass {
		return 1
	}
	return md.SpotPrice(asset)
}

// fillRefs records the market references this exposure was computed with so
// the P&L attribution can replay the deltas.
func (m *Monitor) fillRefs(snap *domain.ExposureSnapshot, underlying string, price float64, md domain.MarketDataSnapshot) {
	snap.Refs.Prices[underlying] = price
	if idx, ok := md.Protocol.LiquidityIndex[underlying]; ok {
		snap.Refs.LiquidityIndex[underlying] = idx
	}
	if idx, ok := md.Protocol.VariableBorrowIndex[underlying]; ok {
		snap.Refs.VariableBorrowIndex[underlying] = idx
	}
	if symbols := m.fundingSymbols[underlying]; len(symbols) > 0 {
		sum, n := 0.0, 0
		for _, s := range symbols {
			if rate, ok := md.Prices.Funding[s]; ok {
				sum += rate
				n++
			}
		}
		if n > 0 {
			snap.Refs.Funding[underlying] = sum / float64(n)
		}
	}
	for sym, link := range m.links {
		if link.Underlying != underlying || link.Kind != domain.AssetKindWrapped {
			continue
		}
		if rate, ok := md.Staking.RewardRates[sym]; ok {
			snap.Refs.StakingRewards[underlying] = rate
		}
	}
}

func indexOr1(m map[string]float64, asset string) float64 {
	if v, ok := m[asset]; ok && v > 0 {
		return v
	}
	return 1
}
