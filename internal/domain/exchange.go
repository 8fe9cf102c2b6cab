package domain

import "context"

// ExchangePosition is a raw open-position record from the exchange, used
// to reconcile stored positions and to import manual ones.
type ExchangePosition struct {
	Symbol        string
	Direction     Direction
	Quantity      float64
	EntryPrice    float64
	MarkPrice     float64
	Leverage      int
	UnrealizedPnL float64
}

// Exchange is the trading-venue contract. The engine itself never calls
// it; the orchestrator and executor do, so one tick's evaluation stays a
// pure function.
type Exchange interface {
	Equity(ctx context.Context) (float64, error)
	Klines(ctx context.Context, symbol, interval string, limit int) ([]Candle, error)
	Ticker(ctx context.Context, symbol string) (TickerStats, error)
	Limits(ctx context.Context, symbol string) (SymbolLimits, error)
	SubmitOrder(ctx context.Context, req OrderRequest) (OrderResult, error)
	CancelStops(ctx context.Context, symbol string) error
	OpenPositions(ctx context.Context) ([]ExchangePosition, error)
	SetLeverage(ctx context.Context, symbol string, leverage int) error
}
