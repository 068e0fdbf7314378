package domain

// StrategyMode names a configured strategy variant. Each mode declares the
// data requirements its pipeline needs; one parameterized provider serves
// every mode rather than one provider subclass per mode.
type StrategyMode string

const (
	ModeBTCBasis    StrategyMode = "btc_basis"
	ModeETHBasis    StrategyMode = "eth_basis"
	ModeETHStaking  StrategyMode = "eth_staking"
	ModeStableYield StrategyMode = "stable_yield"
)

// DataRequirement names one section of market/protocol/execution data a
// strategy mode depends on.
type DataRequirement string

const (
	RequireSpotPrices    DataRequirement = "spot_prices"
	RequireFundingRates  DataRequirement = "funding_rates"
	RequireAaveIndexes   DataRequirement = "aave_indexes"
	RequireOraclePrices  DataRequirement = "oracle_prices"
	RequireStakingRates  DataRequirement = "staking_rates"
	RequireCEXBalances   DataRequirement = "cex_balances"
	RequireChainBalances DataRequirement = "chain_balances"
)

// ModeRequirements is the declarative per-mode data-requirement descriptor.
// Adding a mode means adding a row here, not a provider subclass.
var ModeRequirements = map[StrategyMode][]DataRequirement{
	ModeBTCBasis: {
		RequireSpotPrices, RequireFundingRates, RequireAaveIndexes,
		RequireOraclePrices, RequireCEXBalances, RequireChainBalances,
	},
	ModeETHBasis: {
		RequireSpotPrices, RequireFundingRates, RequireAaveIndexes,
		RequireOraclePrices, RequireCEXBalances, RequireChainBalances,
	},
	ModeETHStaking: {
		RequireSpotPrices, RequireAaveIndexes, RequireOraclePrices,
		RequireStakingRates, RequireChainBalances,
	},
	ModeStableYield: {
		RequireSpotPrices, RequireAaveIndexes, RequireOraclePrices,
		RequireChainBalances,
	},
}

// Valid reports whether m is a declared strategy mode.
func (m StrategyMode) Valid() bool {
	_, ok := ModeRequirements[m]
	return ok
}
