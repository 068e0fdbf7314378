package app

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	s3blob "github.com/basisops/fundmon/internal/blob/s3"
	"github.com/basisops/fundmon/internal/domain"
	"github.com/basisops/fundmon/internal/exposure"
	"github.com/basisops/fundmon/internal/history"
	"github.com/basisops/fundmon/internal/marketdata"
	"github.com/basisops/fundmon/internal/notify"
	"github.com/basisops/fundmon/internal/pipeline"
	"github.com/basisops/fundmon/internal/pnl"
	"github.com/basisops/fundmon/internal/position"
	"github.com/basisops/fundmon/internal/reconcile"
	"github.com/basisops/fundmon/internal/risk"
	"github.com/basisops/fundmon/internal/server"
	"github.com/basisops/fundmon/internal/server/handler"
	"github.com/basisops/fundmon/internal/venue/binance"
)

// monitors bundles the per-stage calculators shared by both modes.
type monitors struct {
	positions  *position.Monitor
	exposures  *exposure.Monitor
	risks      *risk.Monitor
	pnl        *pnl.Calculator
	reconciler *reconcile.Reconciler
}

func (a *App) buildMonitors() monitors {
	venues := position.VenueSet{}
	for _, v := range a.cfg.Venues.Wallets {
		venues.Wallets = append(venues.Wallets, domain.Venue(v))
	}
	for _, v := range a.cfg.Venues.Protocols {
		venues.Protocols = append(venues.Protocols, domain.Venue(v))
	}
	for _, v := range a.cfg.Venues.CEXSpot {
		venues.CEXSpot = append(venues.CEXSpot, domain.Venue(v))
	}
	for _, v := range a.cfg.Venues.CEXDerivatives {
		venues.CEXDerivatives = append(venues.CEXDerivatives, domain.Venue(v))
	}

	return monitors{
		positions: position.NewMonitor(venues, a.cfg.Venues.StrictReconciliation, a.logger),
		exposures: exposure.NewMonitor(exposure.Config{
			PrimaryAsset: a.cfg.Strategy.PrimaryAsset,
			ShareClass:   a.cfg.Strategy.ShareClass,
			DeclaredPairs: []exposure.Pair{
				{PrimaryAsset: a.cfg.Strategy.PrimaryAsset, ShareClass: a.cfg.Strategy.ShareClass},
			},
			AssetLinks:     a.cfg.DomainAssetLinks(),
			FundingSymbols: a.cfg.Strategy.FundingSymbols,
		}, a.logger),
		risks: risk.NewMonitor(a.cfg.RiskParams(), a.cfg.Risk.UseProtocolParams, a.logger),
		pnl:   pnl.NewCalculator(a.cfg.Reconciliation.PnLTolerance, a.logger),
		reconciler: reconcile.NewReconciler(domain.ReconciliationTolerance{
			EpsilonAbs: a.cfg.Reconciliation.EpsilonAbs,
			EpsilonRel: a.cfg.Reconciliation.EpsilonRel,
		}, a.logger),
	}
}

func (a *App) newRun() domain.Run {
	return domain.Run{
		ID:           uuid.NewString(),
		Mode:         domain.StrategyMode(a.cfg.Strategy.Mode),
		PrimaryAsset: a.cfg.Strategy.PrimaryAsset,
		ShareClass:   a.cfg.Strategy.ShareClass,
		StartedAt:    time.Now().UTC(),
	}
}

// BacktestMode replays the configured span against stored market data and
// archives the committed run.
func (a *App) BacktestMode(ctx context.Context, deps *Dependencies) error {
	if deps.SeriesSource == nil {
		return domain.Errorf(domain.CodeConfiguration,
			"backtest needs a series source; enable postgres or s3")
	}

	mode := domain.StrategyMode(a.cfg.Strategy.Mode)
	required := domain.ModeRequirements[mode]

	provider := marketdata.NewBacktestProvider(deps.SeriesSource, required, a.logger)
	if err := provider.ValidateDataRequirements(required); err != nil {
		return err
	}

	start, end := a.cfg.BacktestSpan()
	if err := provider.LoadData(ctx, start, end); err != nil {
		return err
	}

	run := a.newRun()
	if deps.RunStore != nil {
		if err := deps.RunStore.CreateRun(ctx, run); err != nil {
			return err
		}
	}

	var sinks []domain.TickStore
	if deps.TickStore != nil {
		sinks = append(sinks, deps.TickStore)
	}
	store := history.NewStore(run, sinks, a.logger)

	m := a.buildMonitors()
	pipe := pipeline.New(pipeline.Config{
		Provider:   provider,
		Positions:  m.positions,
		Exposures:  m.exposures,
		Risks:      m.risks,
		PnL:        m.pnl,
		Reconciler: m.reconciler,
		Store:      store,
		Consumer:   notify.NewAlerter(deps.Notifier, a.logger),
	}, a.logger)

	runner := pipeline.NewRunner(pipe, a.logger)
	runErr := runner.RunBacktest(ctx, provider.Grid())

	finished := time.Now().UTC()
	if deps.RunStore != nil {
		if err := deps.RunStore.FinishRun(ctx, run.ID, finished); err != nil {
			a.logger.WarnContext(ctx, "failed to mark run finished",
				slog.String("run_id", run.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	if deps.BlobWriter != nil && store.Len() > 0 {
		archiver := s3blob.NewRunArchiver(deps.BlobWriter, store)
		if n, err := archiver.ArchiveRun(ctx, run.ID); err != nil {
			a.logger.WarnContext(ctx, "run archive failed",
				slog.String("run_id", run.ID),
				slog.String("error", err.Error()),
			)
		} else {
			a.logger.InfoContext(ctx, "run archived",
				slog.String("run_id", run.ID),
				slog.Int64("bytes", n),
			)
		}
	}

	return runErr
}

// LiveMode polls the venues on the configured interval, serves the status
// API, and keeps the market cache warm from the mark-price stream.
func (a *App) LiveMode(ctx context.Context, deps *Dependencies) error {
	mode := domain.StrategyMode(a.cfg.Strategy.Mode)
	required := domain.ModeRequirements[mode]

	lpc := marketdata.LiveProviderConfig{
		Cache:        deps.MarketCache,
		Universe:     a.buildUniverse(),
		FetchTimeout: a.cfg.Venues.FetchTimeout,
		Strict:       a.cfg.Venues.StrictReconciliation,
	}
	var fetchers []domain.BalanceFetcher
	if deps.Binance != nil {
		lpc.Prices = deps.Binance
		lpc.Capabilities = append(lpc.Capabilities,
			domain.RequireSpotPrices, domain.RequireFundingRates, domain.RequireCEXBalances)
		fetchers = append(fetchers, deps.Binance)
	}
	if deps.Chain != nil {
		lpc.Protocol = deps.Chain
		lpc.Capabilities = append(lpc.Capabilities,
			domain.RequireAaveIndexes, domain.RequireOraclePrices, domain.RequireChainBalances)
		fetchers = append(fetchers, deps.Chain)
	}
	lpc.Fetchers = fetchers

	provider := marketdata.NewLiveProvider(lpc, a.logger)
	if err := provider.ValidateDataRequirements(required); err != nil {
		return err
	}

	run := a.newRun()
	if deps.RunStore != nil {
		if err := deps.RunStore.CreateRun(ctx, run); err != nil {
			return err
		}
	}

	var sinks []domain.TickStore
	if deps.TickStore != nil {
		sinks = append(sinks, deps.TickStore)
	}
	store := history.NewStore(run, sinks, a.logger)

	m := a.buildMonitors()

	var observed domain.ObservedSnapshotSource
	if a.cfg.Live.ReconcileEachTick && len(fetchers) > 0 {
		observed = position.NewObservedSource(fetchers, m.positions, a.cfg.Venues.FetchTimeout, a.logger)
	}

	pipe := pipeline.New(pipeline.Config{
		Provider:   provider,
		Positions:  m.positions,
		Exposures:  m.exposures,
		Risks:      m.risks,
		PnL:        m.pnl,
		Reconciler: m.reconciler,
		Observed:   observed,
		Store:      store,
		Consumer:   notify.NewAlerter(deps.Notifier, a.logger),
	}, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	runner := pipeline.NewRunner(pipe, a.logger)
	g.Go(func() error {
		return runner.RunLive(ctx, a.cfg.Live.PollInterval)
	})

	// Mark-price stream keeps the cache fresh between polls so a REST
	// outage degrades to recent data instead of missing data.
	if deps.Binance != nil && deps.MarketCache != nil && a.cfg.Binance.WSHost != "" {
		feed := a.buildMarkPriceFeed(deps)
		if feed != nil {
			g.Go(func() error {
				return feed.Run(ctx)
			})
		}
	}

	if a.cfg.Server.Enabled {
		srv := server.NewServer(server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
			RunID:       run.ID,
		}, server.Handlers{
			Health: handler.NewHealthHandler(store, a.logger),
			Status: handler.NewStatusHandler(store, a.logger),
		}, deps.RateLimiter, a.logger)

		g.Go(func() error {
			return srv.Start()
		})
		g.Go(func() error {
			<-ctx.Done()
			sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(sctx)
		})
	}

	err := g.Wait()

	if deps.RunStore != nil {
		fctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if ferr := deps.RunStore.FinishRun(fctx, run.ID, time.Now().UTC()); ferr != nil {
			a.logger.Warn("failed to mark run finished",
				slog.String("run_id", run.ID),
				slog.String("error", ferr.Error()),
			)
		}
	}
	return err
}

// buildUniverse derives the assets each live read covers from the strategy
// configuration.
func (a *App) buildUniverse() marketdata.Universe {
	u := marketdata.Universe{
		RiskAsset:    a.cfg.Strategy.PrimaryAsset,
		StakedAssets: a.cfg.Strategy.StakedAssets,
	}

	spot := map[string]bool{a.cfg.Strategy.PrimaryAsset: true}
	reserves := map[string]bool{}
	for _, l := range a.cfg.DomainAssetLinks() {
		spot[l.Underlying] = true
		if l.Kind == domain.AssetKindAaveSupply || l.Kind == domain.AssetKindAaveDebt {
			asset := l.IndexAsset
			if asset == "" {
				asset = l.Underlying
			}
			reserves[asset] = true
		}
	}
	for asset := range spot {
		u.SpotAssets = append(u.SpotAssets, asset)
	}
	for asset := range reserves {
		u.ReserveAssets = append(u.ReserveAssets, asset)
	}
	for _, syms := range a.cfg.Strategy.FundingSymbols {
		u.FundingSymbols = append(u.FundingSymbols, syms...)
	}
	return u
}

// buildMarkPriceFeed maps funding symbols on the binance venue to stream
// subscriptions and caches each update as a spot observation.
func (a *App) buildMarkPriceFeed(deps *Dependencies) *binance.MarkPriceFeed {
	cache := deps.MarketCache

	symbolAsset := map[string]string{}
	var symbols []string
	for asset, syms := range a.cfg.Strategy.FundingSymbols {
		for _, vs := range syms {
			venue, sym, ok := strings.Cut(vs, ":")
			if !ok || venue != "binance" {
				continue
			}
			symbols = append(symbols, sym)
			symbolAsset[sym] = asset
		}
	}
	if len(symbols) == 0 {
		return nil
	}

	return binance.NewMarkPriceFeed(a.cfg.Binance.WSHost, symbols, func(ctx context.Context, symbol string, price float64, ts time.Time) {
		asset, ok := symbolAsset[symbol]
		if !ok {
			return
		}
		if err := cache.SetSpot(ctx, asset, price, ts); err != nil {
			a.logger.DebugContext(ctx, "mark price cache write failed",
				slog.String("asset", asset),
				slog.String("error", err.Error()),
			)
		}
	}, a.logger)
}
