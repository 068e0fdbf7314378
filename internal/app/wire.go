package app

import (
	"context"
	"fmt"
	"log/slog"

	s3blob "github.com/basisops/fundmon/internal/blob/s3"
	"github.com/basisops/fundmon/internal/cache/redis"
	"github.com/basisops/fundmon/internal/config"
	"github.com/basisops/fundmon/internal/domain"
	"github.com/basisops/fundmon/internal/notify"
	"github.com/basisops/fundmon/internal/store/postgres"
	"github.com/basisops/fundmon/internal/venue/binance"
	"github.com/basisops/fundmon/internal/venue/chain"
)

// Dependencies bundles the infrastructure the application modes need. It is
// constructed by Wire and torn down by the returned cleanup function.
type Dependencies struct {
	// Persistence
	TickStore    *postgres.TickStore
	RunStore     *postgres.RunStore
	SeriesSource domain.SeriesSource

	// Caching
	MarketCache domain.MarketDataCache
	RateLimiter domain.RateLimiter

	// Blob storage
	BlobWriter domain.BlobWriter
	BlobReader domain.BlobReader

	// Venue adapters
	Binance *binance.Client
	Chain   *chain.Client

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that must
// be called on shutdown.
func Wire(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	deps := &Dependencies{}

	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:      cfg.Postgres.DSN,
			Host:     cfg.Postgres.Host,
			Port:     cfg.Postgres.Port,
			Database: cfg.Postgres.Database,
			User:     cfg.Postgres.User,
			Password: cfg.Postgres.Password,
			SSLMode:  cfg.Postgres.SSLMode,
			MaxConns: cfg.Postgres.PoolMaxConns,
			MinConns: cfg.Postgres.PoolMinConns,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: postgres: %w", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: postgres migrations: %w", err)
			}
		}

		pool := pgClient.Pool()
		deps.TickStore = postgres.NewTickStore(pool)
		deps.RunStore = postgres.NewRunStore(pool)
		deps.SeriesSource = postgres.NewSeriesSource(pool)
	}

	if cfg.Redis.Enabled {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: redis: %w", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.MarketCache = redis.NewMarketCache(redisClient)
		deps.RateLimiter = redis.NewRateLimiter(redisClient)
	}

	if cfg.S3.Enabled {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("wire: s3: %w", err)
		}
		closers = append(closers, func() { _ = s3Client.Close() })

		deps.BlobWriter = s3blob.NewWriter(s3Client)
		deps.BlobReader = s3blob.NewReader(s3Client)

		// An S3 series source replaces the Postgres one when configured as
		// the backtest source.
		if cfg.Backtest.Source == "s3" {
			deps.SeriesSource = s3blob.NewSeriesSource(deps.BlobReader, cfg.Backtest.S3Prefix)
		}
	}

	// Venue adapters are only dialed for live operation.
	if cfg.Mode == "live" {
		if cfg.Binance.APIKey != "" || len(cfg.Venues.CEXSpot) > 0 || len(cfg.Venues.CEXDerivatives) > 0 {
			deps.Binance = binance.NewClient(binance.ClientConfig{
				RESTHost:    cfg.Binance.RESTHost,
				FuturesHost: cfg.Binance.FuturesHost,
				APIKey:      cfg.Binance.APIKey,
				APISecret:   cfg.Binance.APISecret,
				ShareClass:  cfg.Strategy.ShareClass,
				Venue:       domain.Venue("binance"),
			}, deps.RateLimiter)
		}

		if cfg.Chain.RPCURL != "" {
			chainClient, err := chain.Dial(ctx, chainClientConfig(cfg))
			if err != nil {
				cleanup()
				return nil, nil, fmt.Errorf("wire: chain: %w", err)
			}
			closers = append(closers, chainClient.Close)
			deps.Chain = chainClient
		}
	}

	var senders []notify.Sender
	for _, url := range cfg.Notify.WebhookURLs {
		senders = append(senders, notify.NewWebhookSender(url))
	}
	deps.Notifier = notify.NewNotifier(senders, cfg.Notify.Events, logger)

	return deps, cleanup, nil
}

// chainClientConfig maps the chain configuration onto the adapter config.
// The first configured wallet and protocol venues key the balance reads.
func chainClientConfig(cfg *config.Config) chain.ClientConfig {
	cc := chain.ClientConfig{
		RPCURL:             cfg.Chain.RPCURL,
		Tokens:             cfg.Chain.TokenAddresses,
		WalletSymbols:      cfg.Chain.WalletTokens,
		ProtocolSymbols:    cfg.Chain.ProtocolTokens,
		Decimals:           cfg.Chain.TokenDecimals,
		ReserveAddresses:   cfg.Chain.ReserveAddresses,
		AavePool:           cfg.Chain.AavePool,
		AaveOracle:         cfg.Chain.AaveOracle,
		OracleBaseDecimals: cfg.Chain.OracleBaseDecimals,
	}
	if len(cfg.Venues.Wallets) > 0 {
		cc.WalletVenue = domain.Venue(cfg.Venues.Wallets[0])
		cc.WalletAddress = cfg.Chain.WalletAddresses[cfg.Venues.Wallets[0]]
	}
	if len(cfg.Venues.Protocols) > 0 {
		cc.ProtocolVenue = domain.Venue(cfg.Venues.Protocols[0])
	}
	return cc
}
