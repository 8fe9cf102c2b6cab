package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/swingbot/internal/domain"
	"github.com/alanyoungcy/swingbot/internal/platform/binance"
)

const (
	reconnectDelay    = 2 * time.Second
	maxReconnectDelay = 60 * time.Second
)

// TickHandler is called for each mark-price update after the price
// cache has been written.
type TickHandler func(ctx context.Context, tick domain.MarkPrice)

// MarkPriceFeed connects to the Binance futures market stream,
// subscribes to the 1s mark-price channel for the configured symbols,
// writes each update to the price cache, and invokes the handler. It
// reconnects with capped exponential backoff on disconnect.
type MarkPriceFeed struct {
	wsHost    string
	symbols   []string
	prices    domain.PriceCache
	onTick    TickHandler
	logger    *slog.Logger
	closeOnce sync.Once
	done      chan struct{}
}

// NewMarkPriceFeed creates a feed for the given symbols. onTick may be
// nil when only the price cache matters.
func NewMarkPriceFeed(wsHost string, symbols []string, prices domain.PriceCache, onTick TickHandler, logger *slog.Logger) *MarkPriceFeed {
	return &MarkPriceFeed{
		wsHost:  wsHost,
		symbols: symbols,
		prices:  prices,
		onTick:  onTick,
		logger:  logger.With(slog.String("component", "mark_price_feed")),
		done:    make(chan struct{}),
	}
}

// Run connects and streams until ctx is cancelled or Close is called.
func (f *MarkPriceFeed) Run(ctx context.Context) error {
	if len(f.symbols) == 0 {
		f.logger.Info("no symbols to subscribe, exiting")
		return nil
	}

	delay := reconnectDelay
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		start := time.Now()
		err := f.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// A connection that held for a while resets the backoff.
		if time.Since(start) > time.Minute {
			delay = reconnectDelay
		}
		f.logger.Warn("mark price stream disconnected, reconnecting",
			slog.String("error", err.Error()),
			slog.Duration("delay", delay),
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(delay):
		}
		if delay *= 2; delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
	}
}

func (f *MarkPriceFeed) runConnection(ctx context.Context) error {
	client := binance.NewWSClient(f.wsHost)
	defer client.Close()

	client.OnMarkPrice(func(tick domain.MarkPrice) {
		f.handleTick(tick)
	})

	connCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	err := client.Connect(connCtx)
	cancel()
	if err != nil {
		return err
	}
	if err := client.SubscribeMarkPrice(ctx, f.symbols); err != nil {
		return err
	}
	f.logger.Info("mark price stream subscribed", slog.Int("symbols", len(f.symbols)))

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-f.done:
		return nil
	case err := <-client.Wait():
		return err
	}
}

func (f *MarkPriceFeed) handleTick(tick domain.MarkPrice) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := f.prices.SetPrice(ctx, tick.Symbol, tick.Price, tick.Time); err != nil {
		f.logger.Debug("price cache write failed",
			slog.String("symbol", tick.Symbol),
			slog.String("error", err.Error()),
		)
	}
	if f.onTick != nil {
		f.onTick(ctx, tick)
	}
}

// Close stops the feed.
func (f *MarkPriceFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
