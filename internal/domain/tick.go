package domain

// MutationKind names a lifecycle change proposed by EvaluateTick.
type MutationKind string

const (
	MutationBreakeven   MutationKind = "breakeven"
	MutationTierAdvance MutationKind = "tier_advance"
	MutationStopTrail   MutationKind = "stop_trail"
	MutationPyramid     MutationKind = "pyramid"
	MutationPartialExit MutationKind = "partial_exit"
	MutationFullExit    MutationKind = "full_exit"
)

// PositionMutation is one proposed change to an open position. Proposed
// holds the position's state after the change; the orchestrator commits it
// only once the paired order (if any) is confirmed filled.
type PositionMutation struct {
	PositionID string
	Kind       MutationKind
	Tier       TrailingTier // tier_advance and breakeven
	Stage      PartialStage // partial_exit
	Quantity   float64      // pyramid adds and exits
	StopLoss   float64      // new stop where the mutation moves it
	Proposed   *Position
	Reason     string
}

// TickResult is everything one EvaluateTick call wants to happen.
// EvaluateTick is pure: it never touches the exchange, stores, or the
// caller's positions, so an identical call yields an identical TickResult.
type TickResult struct {
	Symbol      string
	NewPosition *Position
	Mutations   []PositionMutation
	Orders      []OrderRequest
}
