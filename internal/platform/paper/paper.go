package paper

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"sync/atomic"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// MarketData is the read-only slice of an exchange that paper trading
// still needs live.
type MarketData interface {
	Klines(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error)
	Ticker(ctx context.Context, symbol string) (domain.TickerStats, error)
	Limits(ctx context.Context, symbol string) (domain.SymbolLimits, error)
}

// book is the simulated ledger for one symbol: signed quantity
// (negative is short) and volume-weighted entry.
type book struct {
	quantity float64
	avgEntry float64
	leverage int
}

// Exchange simulates order execution against live market data. Market
// orders fill immediately at the current mid price; stop updates are
// accepted and discarded, since the engine re-derives stops every tick
// anyway.
type Exchange struct {
	data   MarketData
	logger *slog.Logger

	mu      sync.Mutex
	balance float64
	books   map[string]*book
	seq     atomic.Int64
}

var _ domain.Exchange = (*Exchange)(nil)

// New creates a paper exchange with the given starting balance.
func New(data MarketData, startingBalance float64, logger *slog.Logger) *Exchange {
	return &Exchange{
		data:    data,
		logger:  logger.With(slog.String("component", "paper")),
		balance: startingBalance,
		books:   make(map[string]*book),
	}
}

// Equity returns the simulated balance plus unrealized PnL marked at
// the current mid price of each open book.
func (e *Exchange) Equity(ctx context.Context) (float64, error) {
	e.mu.Lock()
	balance := e.balance
	open := make(map[string]book, len(e.books))
	for sym, b := range e.books {
		open[sym] = *b
	}
	e.mu.Unlock()

	equity := balance
	for sym, b := range open {
		mid, err := e.mid(ctx, sym)
		if err != nil {
			return 0, err
		}
		equity += b.quantity * (mid - b.avgEntry)
	}
	return equity, nil
}

func (e *Exchange) Klines(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	return e.data.Klines(ctx, symbol, interval, limit)
}

func (e *Exchange) Ticker(ctx context.Context, symbol string) (domain.TickerStats, error) {
	return e.data.Ticker(ctx, symbol)
}

func (e *Exchange) Limits(ctx context.Context, symbol string) (domain.SymbolLimits, error) {
	return e.data.Limits(ctx, symbol)
}

// SubmitOrder fills market orders instantly at mid. Reduce-only fills
// realize PnL into the balance; entries grow the book at a new
// weighted average.
func (e *Exchange) SubmitOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	if req.Kind == domain.OrderKindStopUpdate {
		// Nothing rests in paper mode; the engine enforces the stop.
		return domain.OrderResult{Success: true, ExchangeID: e.nextID(), Message: "stop accepted"}, nil
	}

	mid, err := e.mid(ctx, req.Symbol)
	if err != nil {
		return domain.OrderResult{ShouldRetry: true, Message: err.Error()}, err
	}

	signed := req.Quantity
	if req.Side == domain.OrderSideSell {
		signed = -signed
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	b := e.books[req.Symbol]
	if b == nil {
		b = &book{}
		e.books[req.Symbol] = b
	}

	switch req.Kind {
	case domain.OrderKindEntry:
		total := b.quantity + signed
		if total != 0 {
			b.avgEntry = (b.avgEntry*b.quantity + mid*signed) / total
		}
		b.quantity = total

	case domain.OrderKindPartial, domain.OrderKindFullExit:
		if b.quantity == 0 || sameSign(b.quantity, signed) {
			return domain.OrderResult{Message: "no position to reduce"},
				fmt.Errorf("paper: reduce %s with flat book: %w", req.Symbol, domain.ErrOrderRejected)
		}
		closed := math.Min(math.Abs(signed), math.Abs(b.quantity))
		direction := 1.0
		if b.quantity < 0 {
			direction = -1.0
		}
		e.balance += direction * closed * (mid - b.avgEntry)
		b.quantity -= direction * closed
		if b.quantity == 0 {
			delete(e.books, req.Symbol)
		}

	default:
		return domain.OrderResult{}, fmt.Errorf("paper: unknown order kind %q: %w", req.Kind, domain.ErrInvariant)
	}

	e.logger.Info("paper fill",
		slog.String("symbol", req.Symbol),
		slog.String("kind", string(req.Kind)),
		slog.String("side", string(req.Side)),
		slog.Float64("quantity", req.Quantity),
		slog.Float64("price", mid),
		slog.Float64("balance", e.balance),
	)

	return domain.OrderResult{
		Success:        true,
		ExchangeID:     e.nextID(),
		FilledQuantity: req.Quantity,
		AvgPrice:       mid,
		Message:        "filled",
	}, nil
}

func (e *Exchange) CancelStops(ctx context.Context, symbol string) error {
	return nil
}

// OpenPositions reports the simulated books in exchange-position form.
func (e *Exchange) OpenPositions(ctx context.Context) ([]domain.ExchangePosition, error) {
	e.mu.Lock()
	open := make(map[string]book, len(e.books))
	for sym, b := range e.books {
		open[sym] = *b
	}
	e.mu.Unlock()

	var positions []domain.ExchangePosition
	for sym, b := range open {
		mid, err := e.mid(ctx, sym)
		if err != nil {
			return nil, err
		}
		direction := domain.DirectionLong
		if b.quantity < 0 {
			direction = domain.DirectionShort
		}
		positions = append(positions, domain.ExchangePosition{
			Symbol:        sym,
			Direction:     direction,
			Quantity:      math.Abs(b.quantity),
			EntryPrice:    b.avgEntry,
			MarkPrice:     mid,
			Leverage:      b.leverage,
			UnrealizedPnL: b.quantity * (mid - b.avgEntry),
		})
	}
	return positions, nil
}

func (e *Exchange) SetLeverage(ctx context.Context, symbol string, leverage int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if b := e.books[symbol]; b != nil {
		b.leverage = leverage
	}
	return nil
}

func (e *Exchange) mid(ctx context.Context, symbol string) (float64, error) {
	stats, err := e.data.Ticker(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("paper: ticker %s: %w", symbol, err)
	}
	if stats.BidPrice <= 0 || stats.AskPrice <= 0 {
		return 0, fmt.Errorf("paper: ticker %s empty book: %w", symbol, domain.ErrDataUnavailable)
	}
	return (stats.BidPrice + stats.AskPrice) / 2, nil
}

func (e *Exchange) nextID() string {
	return fmt.Sprintf("paper-%d", e.seq.Add(1))
}

func sameSign(a, b float64) bool {
	return (a > 0) == (b > 0)
}
