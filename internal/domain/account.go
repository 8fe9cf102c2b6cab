package domain

import "time"

// AccountSnapshot is the account-level view the engine reads during one
// tick. It is built once per tick behind the orchestrator's open-position
// serialization point, so concurrent symbol evaluations never observe a
// half-updated correlation count.
type AccountSnapshot struct {
	Equity float64
	Time   time.Time

	// OpenByDirection counts currently open positions per direction
	// across correlated symbols. Whether manual positions count is the
	// orchestrator's configuration, not the engine's concern.
	OpenByDirection map[Direction]int
}

// OpenSameDirection returns the correlated open-position count for d.
func (a AccountSnapshot) OpenSameDirection(d Direction) int {
	if a.OpenByDirection == nil {
		return 0
	}
	return a.OpenByDirection[d]
}

// SymbolLimits are the exchange's order constraints for one symbol,
// sourced from exchange info and enforced by the sizer.
type SymbolLimits struct {
	Symbol      string
	TickSize    float64
	StepSize    float64
	MinQuantity float64
	MinNotional float64
}
