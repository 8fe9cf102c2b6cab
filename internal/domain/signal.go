package domain

import "time"

// Signal is the ephemeral output of the classifier: created on a bar,
// passed through the filter chain, then either becomes a position or is
// discarded.
type Signal struct {
	Symbol    string
	Direction Direction
	TradeType TradeType
	Price     float64
	Time      time.Time
	Reason    string
}
