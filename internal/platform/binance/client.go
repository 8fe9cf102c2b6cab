package binance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/futures"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// Client is the Binance USDT-M futures adapter. It implements
// domain.Exchange over the official REST client, handling symbol
// precision, margin mode, and error-code mapping.
type Client struct {
	api        *futures.Client
	logger     *slog.Logger
	marginType futures.MarginType

	mu     sync.RWMutex
	limits map[string]domain.SymbolLimits
}

var _ domain.Exchange = (*Client)(nil)

// NewClient creates a futures REST client. Testnet routing is a
// process-wide switch in the underlying library, so it must be set
// before the first client is built.
func NewClient(apiKey, apiSecret string, testnet bool, logger *slog.Logger) *Client {
	futures.UseTestnet = testnet
	return &Client{
		api:        binance.NewFuturesClient(apiKey, apiSecret),
		logger:     logger.With(slog.String("component", "binance")),
		marginType: futures.MarginTypeIsolated,
		limits:     make(map[string]domain.SymbolLimits),
	}
}

// SetMarginType selects the margin mode applied by SetLeverage.
// Anything other than "crossed" keeps the isolated default.
func (c *Client) SetMarginType(mode string) {
	if strings.EqualFold(mode, "crossed") {
		c.marginType = futures.MarginTypeCrossed
	} else {
		c.marginType = futures.MarginTypeIsolated
	}
}

// Equity returns the account margin balance (wallet + unrealized PnL)
// in the quote currency.
func (c *Client) Equity(ctx context.Context) (float64, error) {
	acct, err := c.api.NewGetAccountService().Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("binance: get account: %w", mapAPIError(err))
	}
	equity, err := strconv.ParseFloat(acct.TotalMarginBalance, 64)
	if err != nil {
		return 0, fmt.Errorf("binance: parse margin balance %q: %w", acct.TotalMarginBalance, err)
	}
	return equity, nil
}

// Klines fetches up to limit closed candles for symbol at the given
// interval, oldest first.
func (c *Client) Klines(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	raw, err := c.api.NewKlinesService().
		Symbol(symbol).
		Interval(interval).
		Limit(limit).
		Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance: klines %s %s: %w", symbol, interval, mapAPIError(err))
	}

	candles := make([]domain.Candle, 0, len(raw))
	for _, k := range raw {
		candle, err := toCandle(k)
		if err != nil {
			return nil, fmt.Errorf("binance: klines %s: %w", symbol, err)
		}
		candles = append(candles, candle)
	}
	return candles, nil
}

// Ticker returns 24h quote volume and the current top of book.
func (c *Client) Ticker(ctx context.Context, symbol string) (domain.TickerStats, error) {
	stats24h, err := c.api.NewListPriceChangeStatsService().Symbol(symbol).Do(ctx)
	if err != nil {
		return domain.TickerStats{}, fmt.Errorf("binance: 24h stats %s: %w", symbol, mapAPIError(err))
	}
	if len(stats24h) == 0 {
		return domain.TickerStats{}, fmt.Errorf("binance: 24h stats %s: %w", symbol, domain.ErrDataUnavailable)
	}

	books, err := c.api.NewListBookTickersService().Symbol(symbol).Do(ctx)
	if err != nil {
		return domain.TickerStats{}, fmt.Errorf("binance: book ticker %s: %w", symbol, mapAPIError(err))
	}
	if len(books) == 0 {
		return domain.TickerStats{}, fmt.Errorf("binance: book ticker %s: %w", symbol, domain.ErrDataUnavailable)
	}

	quoteVolume, _ := strconv.ParseFloat(stats24h[0].QuoteVolume, 64)
	bid, _ := strconv.ParseFloat(books[0].BidPrice, 64)
	ask, _ := strconv.ParseFloat(books[0].AskPrice, 64)

	return domain.TickerStats{
		Symbol:      symbol,
		QuoteVolume: quoteVolume,
		BidPrice:    bid,
		AskPrice:    ask,
	}, nil
}

// Limits returns the tick size, lot step, and minimums for symbol.
// Exchange info covers every listed contract, so the full response is
// cached on first use.
func (c *Client) Limits(ctx context.Context, symbol string) (domain.SymbolLimits, error) {
	c.mu.RLock()
	limits, ok := c.limits[symbol]
	c.mu.RUnlock()
	if ok {
		return limits, nil
	}

	if err := c.refreshLimits(ctx); err != nil {
		return domain.SymbolLimits{}, err
	}

	c.mu.RLock()
	limits, ok = c.limits[symbol]
	c.mu.RUnlock()
	if !ok {
		return domain.SymbolLimits{}, fmt.Errorf("binance: symbol %s: %w", symbol, domain.ErrNotFound)
	}
	return limits, nil
}

func (c *Client) refreshLimits(ctx context.Context) error {
	info, err := c.api.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return fmt.Errorf("binance: exchange info: %w", mapAPIError(err))
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, s := range info.Symbols {
		limits := domain.SymbolLimits{}
		for _, f := range s.Filters {
			switch f["filterType"] {
			case "PRICE_FILTER":
				limits.TickSize = filterFloat(f, "tickSize")
			case "LOT_SIZE":
				limits.StepSize = filterFloat(f, "stepSize")
				limits.MinQuantity = filterFloat(f, "minQty")
			case "MIN_NOTIONAL":
				limits.MinNotional = filterFloat(f, "notional")
			}
		}
		c.limits[s.Symbol] = limits
	}
	c.logger.Info("exchange info loaded", slog.Int("symbols", len(info.Symbols)))
	return nil
}

// SubmitOrder places one order on the exchange. Entry orders are plain
// market orders; partial and full exits are reduce-only market orders;
// stop updates replace the resting stop with a close-position
// STOP_MARKET on mark price.
func (c *Client) SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	limits, err := c.Limits(ctx, req.Symbol)
	if err != nil {
		return domain.OrderResult{}, err
	}

	svc := c.api.NewCreateOrderService().
		Symbol(req.Symbol).
		Side(toSide(req.Side)).
		NewClientOrderID(clientOrderID(req.ID))

	switch req.Kind {
	case domain.OrderKindEntry:
		svc = svc.
			Type(futures.OrderTypeMarket).
			Quantity(formatStep(req.Quantity, limits.StepSize)).
			NewOrderResponseType(futures.NewOrderRespTypeRESULT)

	case domain.OrderKindPartial, domain.OrderKindFullExit:
		svc = svc.
			Type(futures.OrderTypeMarket).
			Quantity(formatStep(req.Quantity, limits.StepSize)).
			ReduceOnly(true).
			NewOrderResponseType(futures.NewOrderRespTypeRESULT)

	case domain.OrderKindStopUpdate:
		// Replace-then-place keeps at most one resting stop per symbol.
		if err := c.CancelStops(ctx, req.Symbol); err != nil {
			return domain.OrderResult{}, err
		}
		svc = svc.
			Type(futures.OrderTypeStopMarket).
			StopPrice(formatStep(req.StopPrice, limits.TickSize)).
			ClosePosition(true).
			WorkingType(futures.WorkingTypeMarkPrice)

	default:
		return domain.OrderResult{}, fmt.Errorf("binance: unknown order kind %q: %w", req.Kind, domain.ErrInvariant)
	}

	resp, err := svc.Do(ctx)
	if err != nil {
		mapped := mapAPIError(err)
		return domain.OrderResult{
			Message:     err.Error(),
			ShouldRetry: retryable(mapped),
		}, fmt.Errorf("binance: submit %s %s: %w", req.Kind, req.Symbol, mapped)
	}

	filled, _ := strconv.ParseFloat(resp.ExecutedQuantity, 64)
	avgPrice, _ := strconv.ParseFloat(resp.AvgPrice, 64)

	result := domain.OrderResult{
		Success:        orderAccepted(resp.Status),
		ExchangeID:     strconv.FormatInt(resp.OrderID, 10),
		FilledQuantity: filled,
		AvgPrice:       avgPrice,
		Message:        string(resp.Status),
	}
	if !result.Success {
		return result, fmt.Errorf("binance: order %s %s status %s: %w",
			req.Kind, req.Symbol, resp.Status, domain.ErrOrderRejected)
	}

	c.logger.Info("order placed",
		slog.String("symbol", req.Symbol),
		slog.String("kind", string(req.Kind)),
		slog.String("side", string(req.Side)),
		slog.String("exchange_id", result.ExchangeID),
	)
	return result, nil
}

// CancelStops removes every resting order for symbol. Only stop orders
// rest between ticks, so a blanket cancel is safe.
func (c *Client) CancelStops(ctx context.Context, symbol string) error {
	if err := c.api.NewCancelAllOpenOrdersService().Symbol(symbol).Do(ctx); err != nil {
		return fmt.Errorf("binance: cancel stops %s: %w", symbol, mapAPIError(err))
	}
	return nil
}

// OpenPositions returns every non-flat futures position on the account.
func (c *Client) OpenPositions(ctx context.Context) ([]domain.ExchangePosition, error) {
	risks, err := c.api.NewGetPositionRiskService().Do(ctx)
	if err != nil {
		return nil, fmt.Errorf("binance: position risk: %w", mapAPIError(err))
	}

	var positions []domain.ExchangePosition
	for _, r := range risks {
		amt, _ := strconv.ParseFloat(r.PositionAmt, 64)
		if amt == 0 {
			continue
		}
		entry, _ := strconv.ParseFloat(r.EntryPrice, 64)
		mark, _ := strconv.ParseFloat(r.MarkPrice, 64)
		lev, _ := strconv.Atoi(r.Leverage)
		pnl, _ := strconv.ParseFloat(r.UnRealizedProfit, 64)

		direction := domain.DirectionLong
		if amt < 0 {
			direction = domain.DirectionShort
		}
		positions = append(positions, domain.ExchangePosition{
			Symbol:        r.Symbol,
			Direction:     direction,
			Quantity:      math.Abs(amt),
			EntryPrice:    entry,
			MarkPrice:     mark,
			Leverage:      lev,
			UnrealizedPnL: pnl,
		})
	}
	return positions, nil
}

// SetLeverage applies the configured leverage and margin mode to
// symbol. An already-set margin type comes back as error -4046, which
// is not a failure.
func (c *Client) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	if _, err := c.api.NewChangeLeverageService().Symbol(symbol).Leverage(leverage).Do(ctx); err != nil {
		return fmt.Errorf("binance: set leverage %s: %w", symbol, mapAPIError(err))
	}

	err := c.api.NewChangeMarginTypeService().Symbol(symbol).MarginType(c.marginType).Do(ctx)
	if err != nil && !strings.Contains(err.Error(), "-4046") {
		return fmt.Errorf("binance: set margin type %s: %w", symbol, mapAPIError(err))
	}
	return nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

func toCandle(k *futures.Kline) (domain.Candle, error) {
	open, err := strconv.ParseFloat(k.Open, 64)
	if err != nil {
		return domain.Candle{}, fmt.Errorf("parse open %q: %w", k.Open, err)
	}
	high, _ := strconv.ParseFloat(k.High, 64)
	low, _ := strconv.ParseFloat(k.Low, 64)
	cls, _ := strconv.ParseFloat(k.Close, 64)
	vol, _ := strconv.ParseFloat(k.Volume, 64)

	return domain.Candle{
		OpenTime:  time.UnixMilli(k.OpenTime),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     cls,
		Volume:    vol,
		CloseTime: time.UnixMilli(k.CloseTime),
	}, nil
}

func toSide(side domain.OrderSide) futures.SideType {
	if side == domain.OrderSideSell {
		return futures.SideTypeSell
	}
	return futures.SideTypeBuy
}

func orderAccepted(status futures.OrderStatusType) bool {
	switch status {
	case futures.OrderStatusTypeNew, futures.OrderStatusTypePartiallyFilled, futures.OrderStatusTypeFilled:
		return true
	}
	return false
}

func filterFloat(f map[string]interface{}, key string) float64 {
	s, ok := f[key].(string)
	if !ok {
		return 0
	}
	v, _ := strconv.ParseFloat(s, 64)
	return v
}

// formatStep renders v with exactly the precision implied by step,
// which the exchange requires to avoid -1111 precision errors.
func formatStep(v, step float64) string {
	precision := 0
	if step > 0 && step < 1 {
		precision = int(math.Ceil(-math.Log10(step)))
	}
	return strconv.FormatFloat(v, 'f', precision, 64)
}

// clientOrderID derives a Binance-legal client order ID from an
// internal order ID (max 36 chars, alphanumeric plus a few symbols).
func clientOrderID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 32 {
		id = id[:32]
	}
	return "swb" + id[:min(len(id), 29)]
}

// mapAPIError translates Binance API error codes into domain errors so
// callers can branch with errors.Is.
func mapAPIError(err error) error {
	msg := err.Error()
	switch {
	case strings.Contains(msg, "-1003"), strings.Contains(msg, "429"):
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, msg)
	case strings.Contains(msg, "-2019"), // margin insufficient
		strings.Contains(msg, "-2022"), // reduce-only rejected
		strings.Contains(msg, "-4164"), // below min notional
		strings.Contains(msg, "-1013"): // filter failure
		return fmt.Errorf("%w: %s", domain.ErrOrderRejected, msg)
	}
	return err
}

func retryable(err error) bool {
	return errors.Is(err, domain.ErrRateLimited)
}
