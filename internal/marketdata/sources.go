package marketdata

import (
	"context"

	"github.com/basisops/fundmon/internal/domain"
)

// PriceSource supplies CEX spot prices and derivative funding rates.
type PriceSource interface {
	SpotPrices(ctx context.Context, assets []string) (map[string]float64, error)
	// FundingRates returns the funding accrued this interval per
	// "venue:symbol" key.
	FundingRates(ctx context.Context, symbols []string) (map[string]float64, error)
}

// ProtocolSource supplies lending-protocol indexes, oracle prices, and risk
// parameters.
type ProtocolSource interface {
	// ReserveIndexes returns the liquidity and variable borrow indexes per
	// reserve asset.
	ReserveIndexes(ctx context.Context, assets []string) (liquidity, borrow map[string]float64, err error)
	OraclePrices(ctx context.Context, assets []string) (map[string]float64, error)
	RiskParams(ctx context.Context, asset string) (domain.RiskParams, error)
}

// StakingSource supplies liquid-staking reward data.
type StakingSource interface {
	RewardRates(ctx context.Context, assets []string) (map[string]float64, error)
	ExchangeRates(ctx context.Context, assets []string) (map[string]float64, error)
}

// Universe declares the asset identifiers a live provider polls for.
type Universe struct {
	// SpotAssets are priced against the share class.
	SpotAssets []string
	// FundingSymbols are "venue:symbol" derivative identifiers.
	FundingSymbols []string
	// ReserveAssets have protocol indexes.
	ReserveAssets []string
	// StakedAssets have staking reward data.
	StakedAssets []string
	// RiskAsset keys the protocol risk-parameter read.
	RiskAsset string
}
