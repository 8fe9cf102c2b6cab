package domain

import "time"

// Candle is a single OHLCV bar.
type Candle struct {
	OpenTime  time.Time
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Volume    float64
	CloseTime time.Time
}

// Swing is a confirmed pivot extreme.
type Swing struct {
	Price float64
	Index int // bar index within the evaluated window
}

// IndicatorSnapshot carries the per-bar values the engine consumes.
// Immutable: produced once per evaluated bar by the market package and
// read-only everywhere else.
type IndicatorSnapshot struct {
	Symbol string
	Time   time.Time
	Price  float64

	BB20Upper float64
	BB20Mid   float64
	BB20Lower float64
	BB80Upper float64
	BB80Lower float64

	ADX float64
	RSI float64
	ATR float64

	LastSwingHigh Swing
	LastSwingLow  Swing
	PrevSwingHigh Swing
	PrevSwingLow  Swing

	// BullishDivergence: price made a lower low while RSI made a higher
	// low over the lookback window. BearishDivergence is the mirror.
	BullishDivergence bool
	BearishDivergence bool

	// NewSwingHigh/NewSwingLow flag that the latest confirmed swing was
	// confirmed on this bar. Pyramid triggers require freshness.
	NewSwingHigh bool
	NewSwingLow  bool

	Regime Regime
}

// TickerStats are the 24h market-quality numbers the filter chain gates on.
// MarkPrice is one tick from the mark-price stream.
type MarkPrice struct {
	Symbol string
	Price  float64
	Time   time.Time
}

type TickerStats struct {
	Symbol      string
	QuoteVolume float64 // 24h volume in quote currency
	BidPrice    float64
	AskPrice    float64
}

// SpreadFraction returns (ask-bid)/mid, or 1 when the book is empty so an
// unavailable book always fails a max-spread check.
func (t TickerStats) SpreadFraction() float64 {
	mid := (t.BidPrice + t.AskPrice) / 2
	if mid <= 0 {
		return 1
	}
	return (t.AskPrice - t.BidPrice) / mid
}
