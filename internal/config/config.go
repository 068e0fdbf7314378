// Package config defines the top-level configuration for the fund monitor
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/basisops/fundmon/internal/domain"
)

// Config is the root configuration structure. Fields are populated from a
// TOML file and then optionally overridden by FUNDMON_* environment
// variables. The configuration is loaded once and immutable for the run.
type Config struct {
	Strategy       StrategyConfig       `toml:"strategy"`
	Venues         VenuesConfig         `toml:"venues"`
	Risk           RiskConfig           `toml:"risk"`
	Reconciliation ReconciliationConfig `toml:"reconciliation"`
	Backtest       BacktestConfig       `toml:"backtest"`
	Live           LiveConfig           `toml:"live"`
	Postgres       PostgresConfig       `toml:"postgres"`
	Redis          RedisConfig          `toml:"redis"`
	S3             S3Config             `toml:"s3"`
	Chain          ChainConfig          `toml:"chain"`
	Binance        BinanceConfig        `toml:"binance"`
	Server         ServerConfig         `toml:"server"`
	Notify         NotifyConfig         `toml:"notify"`
	Mode           string               `toml:"mode"` // "backtest" or "live"
	LogLevel       string               `toml:"log_level"`
}

// StrategyConfig declares the strategy mode and the asset universe the
// exposure calculation is parameterized by.
type StrategyConfig struct {
	// Mode selects the per-mode data-requirement descriptor.
	Mode string `toml:"mode"`
	// PrimaryAsset is the asset the mode is directionally exposed to.
	PrimaryAsset string `toml:"primary_asset"`
	// ShareClass is the currency investor-facing figures are reported in.
	ShareClass string `toml:"share_class"`
	// AssetLinks declares every token economically linked to the primary
	// asset. Tokens not listed here are treated as dust.
	AssetLinks []AssetLinkConfig `toml:"asset_links"`
	// FundingSymbols maps an underlying asset to its "venue:symbol"
	// derivative identifiers (e.g. BTC -> ["binance:BTCUSDT"]).
	FundingSymbols map[string][]string `toml:"funding_symbols"`
	// StakedAssets lists the assets with staking reward data.
	StakedAssets []string `toml:"staked_assets"`
}

// AssetLinkConfig declares one linked token (see domain.AssetLink).
type AssetLinkConfig struct {
	Symbol     string `toml:"symbol"`
	Underlying string `toml:"underlying"`
	Kind       string `toml:"kind"` // spot | wrapped | aave_supply | aave_debt
	IndexAsset string `toml:"index_asset"`
}

// VenuesConfig lists the venues the position monitor aggregates and how
// their live fetches behave.
type VenuesConfig struct {
	// Wallets, Protocols, CEXSpot, CEXDerivatives name the configured venue
	// identifiers per category. Every listed venue yields a snapshot entry,
	// zero-filled if absent.
	Wallets        []string `toml:"wallets"`
	Protocols      []string `toml:"protocols"`
	CEXSpot        []string `toml:"cex_spot"`
	CEXDerivatives []string `toml:"cex_derivatives"`

	// FetchTimeout bounds each live venue fetch; on expiry the tick
	// degrades to stale data unless StrictReconciliation is set.
	FetchTimeout time.Duration `toml:"fetch_timeout"`
	// StrictReconciliation makes a missing or timed-out venue fatal for the
	// tick instead of a warning. Live configurations only.
	StrictReconciliation bool `toml:"strict_reconciliation"`
}

// RiskConfig holds liquidation-model parameters. CloseFactor and
// LiquidationBonus have no authoritative defaults and must be set
// explicitly; Validate rejects a zero value.
type RiskConfig struct {
	LiquidationThreshold float64 `toml:"liquidation_threshold"`
	LiquidationBonus     float64 `toml:"liquidation_bonus"`
	CloseFactor          float64 `toml:"close_factor"`
	WarningHealthFactor  float64 `toml:"warning_health_factor"`
	CriticalHealthFactor float64 `toml:"critical_health_factor"`
	// UseProtocolParams prefers on-chain risk parameters when available,
	// falling back to the static values above.
	UseProtocolParams bool `toml:"use_protocol_params"`
}

// ReconciliationConfig holds drift tolerances. Both epsilons are required
// explicit configuration; there is no authoritative default.
type ReconciliationConfig struct {
	EpsilonAbs float64 `toml:"epsilon_abs"`
	EpsilonRel float64 `toml:"epsilon_rel"`
	// PnLTolerance bounds the balance-vs-attribution agreement check.
	PnLTolerance float64 `toml:"pnl_tolerance"`
}

// BacktestConfig bounds the replay span.
type BacktestConfig struct {
	Start  string `toml:"start"` // RFC3339
	End    string `toml:"end"`   // RFC3339
	Source string `toml:"source"` // "postgres" or "s3"
	// S3Prefix locates archived series objects when Source is "s3".
	S3Prefix string `toml:"s3_prefix"`
}

// LiveConfig controls the live polling loop.
type LiveConfig struct {
	PollInterval time.Duration `toml:"poll_interval"`
	// ReconcileEachTick fetches an observed snapshot and runs drift
	// reconciliation on every tick.
	ReconcileEachTick bool `toml:"reconcile_each_tick"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
	Enabled       bool   `toml:"enabled"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	Enabled    bool   `toml:"enabled"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
	Enabled        bool   `toml:"enabled"`
}

// ChainConfig holds RPC parameters for on-chain reads. No private keys: the
// monitor never signs transactions.
type ChainConfig struct {
	RPCURL string `toml:"rpc_url"`
	// WalletAddresses maps wallet venue name to its address.
	WalletAddresses map[string]string `toml:"wallet_addresses"`
	// TokenAddresses maps token symbol to its ERC-20 contract address,
	// covering plain tokens, aTokens, and variable debt tokens.
	TokenAddresses map[string]string `toml:"token_addresses"`
	// WalletTokens and ProtocolTokens split TokenAddresses into the wallet
	// balance reads and the Aave scaled-balance reads.
	WalletTokens   []string `toml:"wallet_tokens"`
	ProtocolTokens []string `toml:"protocol_tokens"`
	// TokenDecimals overrides the default of 18 per symbol.
	TokenDecimals map[string]int `toml:"token_decimals"`
	// ReserveAddresses maps reserve asset symbol to the underlying contract
	// the Aave pool and oracle are queried with.
	ReserveAddresses map[string]string `toml:"reserve_addresses"`
	// AavePool and AaveOracle are the Aave v3 contract addresses.
	AavePool   string `toml:"aave_pool"`
	AaveOracle string `toml:"aave_oracle"`
	// OracleBaseDecimals scales oracle answers (Aave v3 base currency
	// uses 8).
	OracleBaseDecimals int `toml:"oracle_base_decimals"`
}

// BinanceConfig holds Binance API parameters.
type BinanceConfig struct {
	RESTHost    string `toml:"rest_host"`
	WSHost      string `toml:"ws_host"`
	FuturesHost string `toml:"futures_host"`
	APIKey      string `toml:"api_key"`
	APISecret   string `toml:"api_secret"`
}

// ServerConfig holds the status HTTP server parameters.
type ServerConfig struct {
	Enabled     bool     `toml:"enabled"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
	// APIKey protects the status API; empty disables authentication.
	APIKey string `toml:"api_key"`
}

// NotifyConfig holds alert webhook parameters.
type NotifyConfig struct {
	WebhookURLs []string `toml:"webhook_urls"`
	Events      []string `toml:"events"`
}

// Defaults returns a Config populated with the values that have safe
// defaults. Parameters with no authoritative default
// (risk close factor / bonus, reconciliation epsilons) stay zero and are
// enforced by Validate.
func Defaults() Config {
	return Config{
		Mode:     "backtest",
		LogLevel: "info",
		Strategy: StrategyConfig{
			Mode:       string(domain.ModeBTCBasis),
			ShareClass: "USDT",
		},
		Venues: VenuesConfig{
			FetchTimeout: 10 * time.Second,
		},
		Risk: RiskConfig{
			WarningHealthFactor:  1.5,
			CriticalHealthFactor: 1.1,
			UseProtocolParams:    true,
		},
		Backtest: BacktestConfig{
			Source: "postgres",
		},
		Live: LiveConfig{
			PollInterval:      time.Minute,
			ReconcileEachTick: true,
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "fundmon",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Region:         "us-east-1",
			Bucket:         "fundmon-data",
			ForcePathStyle: true,
		},
		Chain: ChainConfig{
			OracleBaseDecimals: 8,
		},
		Binance: BinanceConfig{
			RESTHost:    "https://api.binance.com",
			FuturesHost: "https://fapi.binance.com",
			WSHost:      "wss://fstream.binance.com",
		},
		Server: ServerConfig{
			Port: 8080,
		},
	}
}

// Validate checks the configuration for completeness and consistency.
func (c *Config) Validate() error {
	var problems []string

	switch c.Mode {
	case "backtest", "live":
	default:
		problems = append(problems, fmt.Sprintf("mode must be backtest or live, got %q", c.Mode))
	}

	if !domain.StrategyMode(c.Strategy.Mode).Valid() {
		problems = append(problems, fmt.Sprintf("strategy.mode %q is not declared", c.Strategy.Mode))
	}
	if c.Strategy.PrimaryAsset == "" {
		problems = append(problems, "strategy.primary_asset is required")
	}
	if c.Strategy.ShareClass == "" {
		problems = append(problems, "strategy.share_class is required")
	}
	for i, l := range c.Strategy.AssetLinks {
		switch domain.AssetKind(l.Kind) {
		case domain.AssetKindSpot, domain.AssetKindWrapped, domain.AssetKindAaveSupply, domain.AssetKindAaveDebt:
		default:
			problems = append(problems, fmt.Sprintf("strategy.asset_links[%d].kind %q is invalid", i, l.Kind))
		}
		if l.Symbol == "" || l.Underlying == "" {
			problems = append(problems, fmt.Sprintf("strategy.asset_links[%d] needs symbol and underlying", i))
		}
	}

	// No authoritative defaults exist for these; require explicit values.
	if c.Risk.CloseFactor <= 0 || c.Risk.CloseFactor > 1 {
		problems = append(problems, "risk.close_factor must be set in (0, 1]")
	}
	if c.Risk.LiquidationBonus <= 0 {
		problems = append(problems, "risk.liquidation_bonus must be set explicitly")
	}
	if c.Risk.LiquidationThreshold <= 0 || c.Risk.LiquidationThreshold > 1 {
		problems = append(problems, "risk.liquidation_threshold must be set in (0, 1]")
	}
	if c.Reconciliation.EpsilonAbs <= 0 {
		problems = append(problems, "reconciliation.epsilon_abs must be set explicitly")
	}
	if c.Reconciliation.EpsilonRel <= 0 {
		problems = append(problems, "reconciliation.epsilon_rel must be set explicitly")
	}
	if c.Reconciliation.PnLTolerance <= 0 {
		problems = append(problems, "reconciliation.pnl_tolerance must be set explicitly")
	}

	if c.Mode == "backtest" {
		if _, err := time.Parse(time.RFC3339, c.Backtest.Start); err != nil {
			problems = append(problems, fmt.Sprintf("backtest.start: %v", err))
		}
		if _, err := time.Parse(time.RFC3339, c.Backtest.End); err != nil {
			problems = append(problems, fmt.Sprintf("backtest.end: %v", err))
		}
		if c.Backtest.Source != "postgres" && c.Backtest.Source != "s3" {
			problems = append(problems, fmt.Sprintf("backtest.source must be postgres or s3, got %q", c.Backtest.Source))
		}
	}

	if c.Mode == "live" {
		if c.Live.PollInterval <= 0 {
			problems = append(problems, "live.poll_interval must be positive")
		}
		if c.Venues.FetchTimeout <= 0 {
			problems = append(problems, "venues.fetch_timeout must be positive")
		}
	}
	if c.Venues.StrictReconciliation && c.Mode != "live" {
		problems = append(problems, "venues.strict_reconciliation only applies to live mode")
	}

	if len(problems) > 0 {
		return fmt.Errorf("config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// BacktestSpan parses the configured replay window. Call after Validate.
func (c *Config) BacktestSpan() (start, end time.Time) {
	start, _ = time.Parse(time.RFC3339, c.Backtest.Start)
	end, _ = time.Parse(time.RFC3339, c.Backtest.End)
	return start.UTC(), end.UTC()
}

// DomainAssetLinks converts the configured links to domain values.
func (c *Config) DomainAssetLinks() []domain.AssetLink {
	links := make([]domain.AssetLink, 0, len(c.Strategy.AssetLinks))
	for _, l := range c.Strategy.AssetLinks {
		links = append(links, domain.AssetLink{
			Symbol:     l.Symbol,
			Underlying: l.Underlying,
			Kind:       domain.AssetKind(l.Kind),
			IndexAsset: l.IndexAsset,
		})
	}
	return links
}

// RiskParams converts the static risk configuration to domain parameters.
func (c *Config) RiskParams() domain.RiskParams {
	return domain.RiskParams{
		Available:            true,
		LiquidationThreshold: c.Risk.LiquidationThreshold,
		LiquidationBonus:     c.Risk.LiquidationBonus,
		CloseFactor:          c.Risk.CloseFactor,
		WarningHealthFactor:  c.Risk.WarningHealthFactor,
		CriticalHealthFactor: c.Risk.CriticalHealthFactor,
	}
}
