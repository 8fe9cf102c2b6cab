package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/swingbot/internal/config"
	"github.com/alanyoungcy/swingbot/internal/crypto"
	"github.com/alanyoungcy/swingbot/internal/domain"
	"github.com/alanyoungcy/swingbot/internal/engine"
	"github.com/alanyoungcy/swingbot/internal/executor"
	"github.com/alanyoungcy/swingbot/internal/feed"
	"github.com/alanyoungcy/swingbot/internal/market"
	"github.com/alanyoungcy/swingbot/internal/platform/binance"
	"github.com/alanyoungcy/swingbot/internal/platform/paper"
	"github.com/alanyoungcy/swingbot/internal/server"
	"github.com/alanyoungcy/swingbot/internal/server/handler"
	"github.com/alanyoungcy/swingbot/internal/server/ws"
	"github.com/alanyoungcy/swingbot/internal/service"
)

// orderChannelSize buffers order requests between the orchestrator and
// the executor; a tick rarely produces more than a handful.
const orderChannelSize = 64

// TradeMode runs the live trading stack: per-symbol evaluation loops,
// order execution against Binance futures, and the HTTP API if enabled.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	exch, err := a.liveExchange()
	if err != nil {
		return fmt.Errorf("trade mode: %w", err)
	}
	return a.runTrading(ctx, deps, exch, deps.RateLimiter, true)
}

// PaperMode runs the same stack as TradeMode but fills orders against
// a simulated ledger fed by real Binance market data.
func (a *App) PaperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting paper mode",
		slog.Float64("balance", a.cfg.Trading.PaperBalance),
	)

	data := binance.NewClient("", "", a.cfg.Exchange.Testnet, a.logger)
	exch := paper.New(data, a.cfg.Trading.PaperBalance, a.logger)
	return a.runTrading(ctx, deps, exch, nil, false)
}

// FullMode is TradeMode plus everything optional switched on; paper
// trading still applies when trading.paper_trading is set.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")

	if a.cfg.Trading.PaperTrading {
		return a.PaperMode(ctx, deps)
	}
	return a.TradeMode(ctx, deps)
}

// MonitorMode tracks the account and market without ever placing an
// order: mark-price feed, equity refresh, daily summaries, and the
// HTTP API.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting monitor mode")

	exch, err := a.liveExchange()
	if err != nil {
		a.logger.WarnContext(ctx, "monitor mode: no exchange credentials, equity will be unavailable",
			slog.String("error", err.Error()),
		)
		exch = binance.NewClient("", "", a.cfg.Exchange.Testnet, a.logger)
	}

	g, ctx := errgroup.WithContext(ctx)

	accounts := service.NewAccountService(
		exch, deps.EquityCache, deps.PositionStore,
		a.cfg.Trading.CountManual, 30*time.Second, a.logger,
	)
	g.Go(func() error { return accounts.Run(ctx) })

	var hub *ws.Hub
	if a.cfg.Server.Enabled {
		hub = a.newHub()
	}

	markFeed := feed.NewMarkPriceFeed(
		a.cfg.Exchange.WsHost,
		a.cfg.Trading.Symbols,
		deps.PriceCache,
		a.priceBroadcaster(hub),
		a.logger,
	)
	g.Go(func() error {
		defer markFeed.Close()
		return markFeed.Run(ctx)
	})

	a.startSummaryService(ctx, g, deps)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, hub, accounts)
	}

	return g.Wait()
}

// ServerMode serves the read-only HTTP API and WebSocket stream over
// the stored state. Nothing trades and no feeds run.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")

	g, ctx := errgroup.WithContext(ctx)

	exch, err := a.liveExchange()
	if err != nil {
		exch = binance.NewClient("", "", a.cfg.Exchange.Testnet, a.logger)
	}
	accounts := service.NewAccountService(
		exch, deps.EquityCache, deps.PositionStore,
		a.cfg.Trading.CountManual, 30*time.Second, a.logger,
	)

	hub := a.newHub()
	a.startHTTPServer(ctx, g, deps, hub, accounts)

	return g.Wait()
}

// runTrading composes the trading stack shared by trade and paper
// modes. reconcile controls startup reconciliation against the venue,
// which only makes sense for a real one.
func (a *App) runTrading(
	ctx context.Context,
	deps *Dependencies,
	exch domain.Exchange,
	limiter domain.RateLimiter,
	reconcile bool,
) error {
	g, ctx := errgroup.WithContext(ctx)

	var hub *ws.Hub
	if a.cfg.Server.Enabled {
		hub = a.newHub()
	}

	positionSvc := service.NewPositionService(
		deps.PositionStore, deps.TradeStore, deps.AuditStore, a.logger,
	)
	positionSvc.SetNotifier(deps.Notifier)
	if hub != nil {
		positionSvc.SetEventSink(hub)
	}

	accounts := service.NewAccountService(
		exch, deps.EquityCache, deps.PositionStore,
		a.cfg.Trading.CountManual, 30*time.Second, a.logger,
	)

	// Startup housekeeping: leverage per symbol, then reconcile the
	// store against what the venue actually holds.
	for _, symbol := range a.cfg.Trading.Symbols {
		if err := exch.SetLeverage(ctx, symbol, a.cfg.Trading.Leverage); err != nil {
			a.logger.WarnContext(ctx, "set leverage failed",
				slog.String("symbol", symbol),
				slog.String("error", err.Error()),
			)
		}
	}
	eng := engine.New(a.engineConfig(), a.logger)
	builder := market.NewSnapshotBuilder(a.snapshotConfig(), a.logger)

	if reconcile && a.cfg.Trading.SyncOnStartup {
		// Imported entries are already filled, so the planner derives
		// their geometry without a reward/risk floor.
		stopCfg := a.engineConfig().StopTarget
		stopCfg.MinRewardRisk = 0
		planner := service.NewStopPlanner(
			exch, builder, engine.NewStopTarget(stopCfg),
			a.cfg.Trading.Timeframe, a.logger,
		)
		syncSvc := service.NewSyncService(
			exch, deps.PositionStore, positionSvc, deps.AuditStore,
			planner, a.cfg.Trading.ImportManual, a.logger,
		)
		closed, imported, err := syncSvc.Reconcile(ctx)
		if err != nil {
			return fmt.Errorf("startup reconcile: %w", err)
		}
		a.logger.InfoContext(ctx, "startup reconcile done",
			slog.Int("ghosts_closed", closed),
			slog.Int("imported", imported),
		)
	}

	orderCh := make(chan domain.OrderRequest, orderChannelSize)
	orch := service.NewOrchestrator(service.OrchestratorConfig{
		Engine:        eng,
		Builder:       builder,
		Exchange:      exch,
		Accounts:      accounts,
		PositionSvc:   positionSvc,
		Positions:     deps.PositionStore,
		Prices:        deps.PriceCache,
		Locks:         deps.LockManager,
		OrderCh:       orderCh,
		Symbols:       a.cfg.Trading.Symbols,
		Timeframe:     a.cfg.Trading.Timeframe,
		Interval:      a.cfg.Trading.TickInterval.Duration,
		MaxCorrelated: a.cfg.Trading.MaxCorrelated,
	}, a.logger)

	orderSvc := service.NewOrderService(exch, deps.AuditStore, a.logger)
	exec := executor.NewExecutor(orderCh, orderSvc, limiter, orch.HandleResult, a.logger)

	markFeed := feed.NewMarkPriceFeed(
		a.cfg.Exchange.WsHost,
		a.cfg.Trading.Symbols,
		deps.PriceCache,
		a.priceBroadcaster(hub),
		a.logger,
	)

	g.Go(func() error { return accounts.Run(ctx) })
	g.Go(func() error { return orch.Run(ctx) })
	g.Go(func() error { return exec.Run(ctx) })
	g.Go(func() error {
		defer markFeed.Close()
		return markFeed.Run(ctx)
	})

	a.startSummaryService(ctx, g, deps)
	a.startArchiveLoop(ctx, g, deps)

	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, hub, accounts)
	}

	return g.Wait()
}

// liveExchange builds the authenticated Binance futures client. The
// API secret comes from config directly or from an encrypted file.
func (a *App) liveExchange() (*binance.Client, error) {
	secret, err := crypto.LoadSecret(crypto.SecretConfig{
		RawSecret:     a.cfg.Exchange.ApiSecret,
		EncryptedPath: a.cfg.Exchange.EncryptedSecretPath,
		Password:      a.cfg.Exchange.SecretPassword,
	})
	if err != nil {
		return nil, fmt.Errorf("load exchange secret: %w", err)
	}
	c := binance.NewClient(a.cfg.Exchange.ApiKey, secret, a.cfg.Exchange.Testnet, a.logger)
	c.SetMarginType(a.cfg.Trading.MarginType)
	return c, nil
}

// newHub creates the WebSocket hub all live event producers publish to.
func (a *App) newHub() *ws.Hub {
	return ws.NewHub(ws.Config{
		Mode:      a.cfg.Mode,
		Symbols:   a.cfg.Trading.Symbols,
		StartedAt: time.Now().UTC(),
	}, a.logger)
}

// priceBroadcaster returns the mark-price tick handler; with no hub
// the cache write inside the feed is all that happens.
func (a *App) priceBroadcaster(hub *ws.Hub) feed.TickHandler {
	if hub == nil {
		return func(context.Context, domain.MarkPrice) {}
	}
	return func(_ context.Context, tick domain.MarkPrice) {
		hub.Broadcast(ws.ChannelPrices, tick)
	}
}

// startSummaryService schedules the daily summary report unless it is
// disabled by a negative hour.
func (a *App) startSummaryService(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if a.cfg.Notify.DailySummaryHour < 0 {
		return
	}
	summary := service.NewSummaryService(
		deps.TradeStore, deps.Notifier, a.cfg.Notify.DailySummaryHour, a.logger,
	)
	g.Go(func() error { return summary.Run(ctx) })
}

// startArchiveLoop periodically moves rows older than the retention
// window to object storage.
func (a *App) startArchiveLoop(ctx context.Context, g *errgroup.Group, deps *Dependencies) {
	if deps.Archiver == nil {
		return
	}
	interval := a.cfg.Archive.Interval.Duration
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	retention := a.cfg.Archive.RetentionDays

	g.Go(func() error {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-ticker.C:
				cutoff := time.Now().UTC().AddDate(0, 0, -retention)
				if _, err := deps.Archiver.ArchiveTrades(ctx, cutoff); err != nil {
					a.logger.WarnContext(ctx, "trade archival failed",
						slog.String("error", err.Error()),
					)
				}
				if _, err := deps.Archiver.ArchiveAudit(ctx, cutoff); err != nil {
					a.logger.WarnContext(ctx, "audit archival failed",
						slog.String("error", err.Error()),
					)
				}
			}
		}
	})
}

// startHTTPServer adds the HTTP server and WebSocket hub goroutines to
// the given errgroup and shuts the server down when the context ends.
func (a *App) startHTTPServer(
	ctx context.Context,
	g *errgroup.Group,
	deps *Dependencies,
	hub *ws.Hub,
	accounts *service.AccountService,
) {
	summary := service.NewSummaryService(
		deps.TradeStore, deps.Notifier, a.cfg.Notify.DailySummaryHour, a.logger,
	)

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(a.logger),
		Status:    handler.NewStatusHandler(a.cfg.Mode, a.cfg.Trading.Symbols, time.Now().UTC(), accounts, a.logger),
		Positions: handler.NewPositionHandler(deps.PositionStore, a.logger),
		Trades:    handler.NewTradeHandler(deps.TradeStore, summary, a.logger),
		Audit:     handler.NewAuditHandler(deps.AuditStore, a.logger),
	}
	if deps.BlobReader != nil {
		handlers.Archives = handler.NewArchiveHandler(deps.BlobReader, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g.Go(func() error { return hub.Run(ctx) })
	g.Go(srv.Start)
	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// engineConfig maps the file configuration onto the engine parameters,
// keeping engine defaults for anything the file does not expose.
func (a *App) engineConfig() engine.Config {
	e := a.cfg.Engine
	t := a.cfg.Trading

	ec := engine.DefaultConfig()
	ec.Classifier.TrendADXMin = e.TrendADXMin
	ec.Classifier.RSIOversold = e.RSIOversold
	ec.Classifier.RSIOverbought = e.RSIOverbought

	ec.Filter.MinQuoteVolume = t.MinQuoteVolume
	ec.Filter.MaxSpreadFraction = t.MaxSpreadFraction
	ec.Filter.MaxCorrelated = t.MaxCorrelated
	ec.Filter.Sessions = parseWindows(t.Sessions)
	ec.Filter.Blackouts = parseWindows(t.Blackouts)
	ec.Filter.AllowCounterTrendInTrend = t.AllowCounterTrendInTrend
	ec.Filter.AllowTrendInRange = t.AllowTrendInRange

	ec.Sizer.RiskFraction = t.RiskFraction

	ec.StopTarget.SwingBuffer = e.SwingBuffer
	ec.StopTarget.CounterATRMult = e.CounterATRMult
	ec.StopTarget.RangeTighten = e.RangeTighten
	ec.StopTarget.TrendTPWiden = e.TrendTPWiden
	ec.StopTarget.MinRewardRisk = t.MinRewardRisk

	ec.Trailing.BreakevenProgress = e.BreakevenProgress
	ec.Trailing.LockInBuffer = e.LockInBuffer
	ec.Trailing.FinalATRMult = e.FinalATRMult

	ec.Pyramid.MaxAdds = e.PyramidMaxAdds
	ec.Pyramid.AddFraction = e.PyramidAddFraction
	ec.Pyramid.SwingBuffer = e.SwingBuffer

	ec.Partial.Enabled = e.PartialExits
	ec.Partial.P50Fraction = e.P50Fraction
	ec.Partial.P75Fraction = e.P75Fraction

	ec.Leverage = t.Leverage
	return ec
}

// snapshotConfig keeps the indicator defaults but aligns the regime
// threshold with the classifier's ADX floor.
func (a *App) snapshotConfig() market.SnapshotConfig {
	sc := market.DefaultSnapshotConfig()
	if a.cfg.Engine.TrendADXMin > 0 {
		sc.TrendADX = a.cfg.Engine.TrendADXMin
	}
	return sc
}

// parseWindows converts validated "HH:MM-HH:MM" strings. Bad entries
// were already rejected by config validation and are skipped here.
func parseWindows(windows []string) []engine.SessionWindow {
	out := make([]engine.SessionWindow, 0, len(windows))
	for _, w := range windows {
		start, end, err := config.ParseWindow(w)
		if err != nil {
			continue
		}
		out = append(out, engine.SessionWindow{Start: start, End: end})
	}
	return out
}
