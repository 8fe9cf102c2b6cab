package domain

import "time"

// OrderSide is the exchange-facing side of an order.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "buy"
	OrderSideSell OrderSide = "sell"
)

// OrderKind describes what an engine-emitted order is for. The executor
// maps kinds onto exchange order types; the engine never deals in
// exchange-specific semantics.
type OrderKind string

const (
	OrderKindEntry      OrderKind = "entry"       // open or pyramid, market
	OrderKindPartial    OrderKind = "partial"     // reduce-only market
	OrderKindFullExit   OrderKind = "full_exit"   // reduce-only market, closes remainder
	OrderKindStopUpdate OrderKind = "stop_update" // replace the protective stop
)

// OrderRequest is an exchange-bound instruction emitted by EvaluateTick.
// PositionID ties the request back to the position whose proposed state it
// realizes; Stage and Seq dedup exits and entries across retried ticks.
type OrderRequest struct {
	ID         string
	PositionID string
	Symbol     string
	Side       OrderSide
	Kind       OrderKind
	Quantity   float64
	StopPrice  float64      // stop_update only
	Stage      PartialStage // partial only
	Seq        int          // entry only: 0 opens, n is the nth pyramid add
	Reason     string
	CreatedAt  time.Time
}

// OrderResult is the exchange's answer to a submitted request.
type OrderResult struct {
	Success        bool
	ExchangeID     string
	FilledQuantity float64
	AvgPrice       float64
	Message        string
	ShouldRetry    bool
}
