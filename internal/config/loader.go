package config

import (
	"os"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies FUNDMON_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known FUNDMON_* environment variables and
// overwrites the corresponding Config fields when a variable is set. This
// lets operators inject secrets at deploy time without touching the TOML
// file.
func applyEnvOverrides(cfg *Config) {
	setStr(&cfg.Mode, "FUNDMON_MODE")
	setStr(&cfg.LogLevel, "FUNDMON_LOG_LEVEL")

	setStr(&cfg.Strategy.Mode, "FUNDMON_STRATEGY_MODE")
	setStr(&cfg.Strategy.PrimaryAsset, "FUNDMON_STRATEGY_PRIMARY_ASSET")
	setStr(&cfg.Strategy.ShareClass, "FUNDMON_STRATEGY_SHARE_CLASS")

	setStr(&cfg.Postgres.DSN, "FUNDMON_POSTGRES_DSN")
	setStr(&cfg.Postgres.Host, "FUNDMON_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "FUNDMON_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "FUNDMON_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "FUNDMON_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "FUNDMON_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "FUNDMON_POSTGRES_SSLMODE")
	setBool(&cfg.Postgres.Enabled, "FUNDMON_POSTGRES_ENABLED")

	setStr(&cfg.Redis.Addr, "FUNDMON_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "FUNDMON_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "FUNDMON_REDIS_DB")
	setBool(&cfg.Redis.Enabled, "FUNDMON_REDIS_ENABLED")

	setStr(&cfg.S3.Endpoint, "FUNDMON_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "FUNDMON_S3_REGION")
	setStr(&cfg.S3.Bucket, "FUNDMON_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "FUNDMON_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "FUNDMON_S3_SECRET_KEY")
	setBool(&cfg.S3.Enabled, "FUNDMON_S3_ENABLED")

	setStr(&cfg.Chain.RPCURL, "FUNDMON_CHAIN_RPC_URL")
	setStr(&cfg.Chain.AavePool, "FUNDMON_CHAIN_AAVE_POOL")

	setStr(&cfg.Binance.RESTHost, "FUNDMON_BINANCE_REST_HOST")
	setStr(&cfg.Binance.FuturesHost, "FUNDMON_BINANCE_FUTURES_HOST")
	setStr(&cfg.Binance.WSHost, "FUNDMON_BINANCE_WS_HOST")
	setStr(&cfg.Binance.APIKey, "FUNDMON_BINANCE_API_KEY")
	setStr(&cfg.Binance.APISecret, "FUNDMON_BINANCE_API_SECRET")

	setInt(&cfg.Server.Port, "FUNDMON_SERVER_PORT")
	setBool(&cfg.Server.Enabled, "FUNDMON_SERVER_ENABLED")

	setDuration(&cfg.Live.PollInterval, "FUNDMON_LIVE_POLL_INTERVAL")
	setBool(&cfg.Venues.StrictReconciliation, "FUNDMON_VENUES_STRICT_RECONCILIATION")
}

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *time.Duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			*dst = d
		}
	}
}
