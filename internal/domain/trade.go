package domain

import "time"

// ClosedTrade is the immutable record written when a position (or a slice
// of one, via partial exit) is closed out.
type ClosedTrade struct {
	ID         int64
	PositionID string
	Symbol     string
	Direction  Direction
	TradeType  TradeType
	Origin     PositionOrigin
	EntryPrice float64
	ExitPrice  float64
	Quantity   float64
	PnL        float64
	Stage      string // "p50", "p75", "take_profit", "stop_loss", "manual"
	ClosedAt   time.Time
}

// DailySummary aggregates a day of closed trades for the notifier.
type DailySummary struct {
	Date       time.Time
	Trades     int
	Wins       int
	Losses     int
	GrossPnL   float64
	BestSymbol string
	BestPnL    float64
}

// WinRate returns wins as a fraction of settled trades.
func (s DailySummary) WinRate() float64 {
	if s.Trades == 0 {
		return 0
	}
	return float64(s.Wins) / float64(s.Trades)
}
