package marketdata

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/basisops/fundmon/internal/domain"
)

// LiveProvider assembles a snapshot from live venue sources on demand.
// Every fetch fans out concurrently under one per-tick deadline; a source
// that fails or times out degrades to the last cached observation (with a
// stale-data warning) or to explicit zero fills, never to an omitted field.
// The emitted schema shape is identical to the backtest provider's.
type LiveProvider struct {
	prices   PriceSource
	protocol ProtocolSource
	staking  StakingSource
	fetchers []domain.BalanceFetcher
	cache    domain.MarketDataCache

	universe     Universe
	capabilities map[domain.DataRequirement]bool
	fetchTimeout time.Duration
	strict       bool
	logger       *slog.Logger
}

// LiveProviderConfig bundles the live provider's collaborators.
type LiveProviderConfig struct {
	Prices   PriceSource
	Protocol ProtocolSource
	Staking  StakingSource
	Fetchers []domain.BalanceFetcher
	Cache    domain.MarketDataCache

	Universe     Universe
	Capabilities []domain.DataRequirement
	FetchTimeout time.Duration
	// Strict makes venue balance timeouts fatal (strict reconciliation).
	Strict bool
}

// NewLiveProvider creates a provider polling the configured sources.
func NewLiveProvider(cfg LiveProviderConfig, logger *slog.Logger) *LiveProvider {
	return &LiveProvider{
		prices:       cfg.Prices,
		protocol:     cfg.Protocol,
		staking:      cfg.Staking,
		fetchers:     cfg.Fetchers,
		cache:        cfg.Cache,
		universe:     cfg.Universe,
		capabilities: capabilitySet(cfg.Capabilities),
		fetchTimeout: cfg.FetchTimeout,
		strict:       cfg.Strict,
		logger:       logger.With(slog.String("component", "live_provider")),
	}
}

// ValidateDataRequirements implements Provider.
func (p *LiveProvider) ValidateDataRequirements(required []domain.DataRequirement) error {
	return validateRequirements(p.capabilities, required)
}

// GetData implements Provider. The five fetch groups (prices, protocol,
// staking, funding, execution balances) run concurrently; GetData returns
// once all complete or time out. Only venue-balance timeouts can be fatal,
// and only under strict reconciliation.
func (p *LiveProvider) GetData(ctx context.Context, ts time.Time) (domain.MarketDataSnapshot, error) {
	snap := domain.NewMarketDataSnapshot(ts.UTC())

	fetchCtx, cancel := context.WithTimeout(ctx, p.fetchTimeout)
	defer cancel()

	var mu sync.Mutex // guards snap sections and warnings
	warn := func(kind domain.WarningKind, format string, args ...any) {
		mu.Lock()
		snap.Warnings = append(snap.Warnings, domain.Warning{Kind: kind, Message: fmt.Sprintf(format, args...)})
		mu.Unlock()
	}

	g, gctx := errgroup.WithContext(fetchCtx)

	if p.capabilities[domain.RequireSpotPrices] {
		g.Go(func() error {
			spot, err := p.prices.SpotPrices(gctx, p.universe.SpotAssets)
			if err != nil {
				spot = p.cachedSpot(ctx, p.universe.SpotAssets)
				warn(domain.WarnStaleData, "spot prices: %v; using cached", err)
			}
			mu.Lock()
			for a, v := range spot {
				snap.Prices.Spot[a] = v
			}
			mu.Unlock()
			p.cacheSpot(ctx, spot, ts)
			return nil
		})
	}

	if p.capabilities[domain.RequireFundingRates] {
		g.Go(func() error {
			funding, err := p.prices.FundingRates(gctx, p.universe.FundingSymbols)
			if err != nil {
				warn(domain.WarnMissingOptional, "funding rates: %v; zero-filled", err)
				return nil
			}
			mu.Lock()
			for s, v := range funding {
				snap.Prices.Funding[s] = v
			}
			mu.Unlock()
			return nil
		})
	}

	if p.capabilities[domain.RequireAaveIndexes] {
		g.Go(func() error {
			liq, bor, err := p.protocol.ReserveIndexes(gctx, p.universe.ReserveAssets)
			if err != nil {
				liq, bor = p.cachedIndexes(ctx, p.universe.ReserveAssets)
				warn(domain.WarnStaleData, "protocol indexes: %v; using cached", err)
			}
			mu.Lock()
			for a, v := range liq {
				snap.Protocol.LiquidityIndex[a] = v
			}
			for a, v := range bor {
				snap.Protocol.VariableBorrowIndex[a] = v
			}
			mu.Unlock()
			p.cacheIndexes(ctx, liq, bor, ts)
			return nil
		})
		g.Go(func() error {
			params, err := p.protocol.RiskParams(gctx, p.universe.RiskAsset)
			if err != nil {
				warn(domain.WarnRiskUnavailable, "risk params: %v", err)
				return nil
			}
			mu.Lock()
			snap.Protocol.RiskParams = params
			mu.Unlock()
			return nil
		})
	}

	if p.capabilities[domain.RequireOraclePrices] {
		g.Go(func() error {
			oracle, err := p.protocol.OraclePrices(gctx, p.universe.SpotAssets)
			if err != nil {
				warn(domain.WarnMissingOptional, "oracle prices: %v; zero-filled", err)
				return nil
			}
			mu.Lock()
			for a, v := range oracle {
				snap.Protocol.OraclePrices[a] = v
			}
			mu.Unlock()
			return nil
		})
	}

	if p.capabilities[domain.RequireStakingRates] {
		g.Go(func() error {
			rates, err := p.staking.RewardRates(gctx, p.universe.StakedAssets)
			if err != nil {
				warn(domain.WarnMissingOptional, "staking rates: %v; zero-filled", err)
				return nil
			}
			xr, err := p.staking.ExchangeRates(gctx, p.universe.StakedAssets)
			if err != nil {
				warn(domain.WarnMissingOptional, "staking exchange rates: %v; zero-filled", err)
				xr = map[string]float64{}
			}
			mu.Lock()
			for a, v := range rates {
				snap.Staking.RewardRates[a] = v
			}
			for a, v := range xr {
				snap.Staking.ExchangeRates[a] = v
			}
			mu.Unlock()
			return nil
		})
	}

	// Execution balances: one goroutine per venue. A timed-out venue is a
	// stale-data warning unless strict reconciliation makes it fatal.
	balances := make([][]domain.VenueBalance, len(p.fetchers))
	for i, f := range p.fetchers {
		g.Go(func() error {
			bals, err := f.FetchBalances(gctx, ts)
			if err != nil {
				if p.strict {
					return domain.WrapError(domain.CodeVenueTimeout, err,
						"venue %s fetch failed under strict reconciliation", f.Venue())
				}
				warn(domain.WarnVenueTimeout, "venue %s fetch failed: %v; balances stale", f.Venue(), err)
				return nil
			}
			balances[i] = bals
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return domain.MarketDataSnapshot{}, ctx.Err()
		}
		return domain.MarketDataSnapshot{}, err
	}

	for _, bals := range balances {
		snap.Execution.Balances = append(snap.Execution.Balances, bals...)
	}

	p.logger.Debug("live snapshot assembled",
		slog.Time("ts", ts),
		slog.Int("balances", len(snap.Execution.Balances)),
		slog.Int("warnings", len(snap.Warnings)),
	)
	return snap, nil
}

func (p *LiveProvider) cachedSpot(ctx context.Context, assets []string) map[string]float64 {
	out := map[string]float64{}
	if p.cache == nil {
		return out
	}
	for _, a := range assets {
		if v, _, err := p.cache.GetSpot(ctx, a); err == nil {
			out[a] = v
		}
	}
	return out
}

func (p *LiveProvider) cacheSpot(ctx context.Context, spot map[string]float64, ts time.Time) {
	if p.cache == nil {
		return
	}
	for a, v := range spot {
		if err := p.cache.SetSpot(ctx, a, v, ts); err != nil {
			p.logger.Warn("cache spot", slog.String("asset", a), slog.String("error", err.Error()))
		}
	}
}

func (p *LiveProvider) cachedIndexes(ctx context.Context, assets []string) (liq, bor map[string]float64) {
	liq, bor = map[string]float64{}, map[string]float64{}
	if p.cache == nil {
		return liq, bor
	}
	for _, a := range assets {
		if v, _, err := p.cache.GetIndex(ctx, "liquidity", a); err == nil {
			liq[a] = v
		}
		if v, _, err := p.cache.GetIndex(ctx, "borrow", a); err == nil {
			bor[a] = v
		}
	}
	return liq, bor
}

func (p *LiveProvider) cacheIndexes(ctx context.Context, liq, bor map[string]float64, ts time.Time) {
	if p.cache == nil {
		return
	}
	for a, v := range liq {
		if err := p.cache.SetIndex(ctx, "liquidity", a, v, ts); err != nil {
			p.logger.Warn("cache index", slog.String("asset", a), slog.String("error", err.Error()))
		}
	}
	for a, v := range bor {
		if err := p.cache.SetIndex(ctx, "borrow", a, v, ts); err != nil {
			p.logger.Warn("cache index", slog.String("asset", a), slog.String("error", err.Error()))
		}
	}
}
