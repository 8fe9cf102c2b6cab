package domain

import "time"

// PositionStatus tracks whether a position is open or closed.
type PositionStatus string

const (
	PositionStatusOpen   PositionStatus = "open"
	PositionStatusClosed PositionStatus = "closed"
)

// Direction is the trade direction of a position or signal.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// TradeType classifies how a signal was generated.
type TradeType string

const (
	TradeTypeTrend        TradeType = "trend"
	TradeTypeCounterTrend TradeType = "counter_trend"
)

// Regime is the detected market regime for a symbol.
type Regime string

const (
	RegimeTrend        Regime = "trend"
	RegimeCounterTrend Regime = "counter_trend"
	RegimeRange        Regime = "range"
)

// PositionOrigin distinguishes bot-opened positions from ones imported
// from the exchange.
type PositionOrigin string

const (
	OriginAutomatic PositionOrigin = "automatic"
	OriginManual    PositionOrigin = "manual"
)

// TrailingTier is the highest rung of the trailing-stop ladder a position
// has reached. Tiers only ever advance; a price pullback never demotes one.
type TrailingTier int

const (
	TierNone TrailingTier = iota
	TierBreakeven
	Tier25
	Tier50
	Tier75
	Tier90
	TierFinal
)

// String returns the tier name used in logs and storage.
func (t TrailingTier) String() string {
	switch t {
	case TierBreakeven:
		return "breakeven"
	case Tier25:
		return "tier_25"
	case Tier50:
		return "tier_50"
	case Tier75:
		return "tier_75"
	case Tier90:
		return "tier_90"
	case TierFinal:
		return "final"
	default:
		return "none"
	}
}

// ParseTrailingTier converts a stored tier name back to the enum.
func ParseTrailingTier(s string) TrailingTier {
	switch s {
	case "breakeven":
		return TierBreakeven
	case "tier_25":
		return Tier25
	case "tier_50":
		return Tier50
	case "tier_75":
		return Tier75
	case "tier_90":
		return Tier90
	case "final":
		return TierFinal
	default:
		return TierNone
	}
}

// PartialStage identifies an intermediate profit-taking milestone.
type PartialStage string

const (
	PartialP50 PartialStage = "p50"
	PartialP75 PartialStage = "p75"
)

// Entry is a single fill that contributed to a position: the initial entry
// or a pyramid add.
type Entry struct {
	Price    float64
	Quantity float64
	Time     time.Time
}

// Position is the central mutable entity of the lifecycle engine. All
// mutation goes through the methods below so the invariants (stop
// monotonicity, tier monotonicity, pyramid cap, partial-exit ordering)
// hold no matter which component drives the change.
type Position struct {
	ID        string
	Symbol    string
	Direction Direction
	TradeType TradeType
	Regime    Regime
	Origin    PositionOrigin
	Status    PositionStatus

	Entries           []Entry
	InitialQuantity   float64 // sum of entries before any partial exit
	RemainingQuantity float64

	StopLoss   float64
	TakeProfit float64
	Leverage   int

	BreakevenActive bool
	TrailingTier    TrailingTier
	PyramidCount    int
	PartialsDone    []PartialStage

	RealizedPnL float64

	OpenedAt time.Time
	ClosedAt *time.Time
}

// FirstEntry returns the original entry fill. Pyramid sizing is always
// expressed as a fraction of this quantity, independent of prior adds.
func (p *Position) FirstEntry() Entry {
	if len(p.Entries) == 0 {
		return Entry{}
	}
	return p.Entries[0]
}

// AvgEntryPrice is the quantity-weighted average price across all entries.
// Progress and breakeven are always measured from this price.
func (p *Position) AvgEntryPrice() float64 {
	var notional, qty float64
	for _, e := range p.Entries {
		notional += e.Price * e.Quantity
		qty += e.Quantity
	}
	if qty == 0 {
		return 0
	}
	return notional / qty
}

// Progress is the direction-adjusted fraction of the entry→take-profit
// distance covered by price. 0 at entry, 1.0 at take-profit, negative when
// price is on the losing side of entry.
func (p *Position) Progress(price float64) float64 {
	if p.TakeProfit == 0 {
		return 0
	}
	entry := p.AvgEntryPrice()
	dist := p.TakeProfit - entry
	if dist == 0 {
		return 0
	}
	return (price - entry) / dist
}

// StopImproves reports whether candidate is strictly more favorable than
// the current stop-loss for this direction: higher for longs, lower for
// shorts. A zero current stop (manual import before the ladder has run)
// accepts any candidate.
func (p *Position) StopImproves(candidate float64) bool {
	if p.StopLoss == 0 {
		return candidate != 0
	}
	if p.Direction == DirectionLong {
		return candidate > p.StopLoss
	}
	return candidate < p.StopLoss
}

// ApplyStop moves the stop-loss to candidate if and only if it improves on
// the current one. It returns false when the candidate was discarded.
func (p *Position) ApplyStop(candidate float64) bool {
	if !p.StopImproves(candidate) {
		return false
	}
	p.StopLoss = candidate
	return true
}

// AdvanceTier raises the trailing tier. Regressions are ignored so the
// ladder never moves backwards.
func (p *Position) AdvanceTier(t TrailingTier) bool {
	if t <= p.TrailingTier {
		return false
	}
	p.TrailingTier = t
	if t >= TierBreakeven {
		p.BreakevenActive = true
	}
	return true
}

// AddEntry appends a pyramid fill and raises the pyramid count. Initial
// quantity grows with the add so partial-exit fractions include pyramided
// size contributed before the first partial fired.
func (p *Position) AddEntry(price, quantity float64, at time.Time) {
	p.Entries = append(p.Entries, Entry{Price: price, Quantity: quantity, Time: at})
	p.RemainingQuantity += quantity
	if len(p.PartialsDone) == 0 {
		p.InitialQuantity += quantity
	}
	p.PyramidCount++
}

// PartialDone reports whether the given stage has already fired.
func (p *Position) PartialDone(stage PartialStage) bool {
	for _, s := range p.PartialsDone {
		if s == stage {
			return true
		}
	}
	return false
}

// MarkPartial records a completed partial exit and reduces the remaining
// size. Marking the same stage twice is a no-op.
func (p *Position) MarkPartial(stage PartialStage, closedQty float64) {
	if p.PartialDone(stage) {
		return
	}
	p.PartialsDone = append(p.PartialsDone, stage)
	p.Reduce(closedQty)
}

// Reduce lowers the remaining quantity after an exit fill, closing the
// position when nothing is left.
func (p *Position) Reduce(qty float64) {
	p.RemainingQuantity -= qty
	if p.RemainingQuantity <= 0 {
		p.RemainingQuantity = 0
		p.Close(time.Now().UTC())
	}
}

// Close marks the position closed.
func (p *Position) Close(at time.Time) {
	if p.Status == PositionStatusClosed {
		return
	}
	p.Status = PositionStatusClosed
	p.ClosedAt = &at
}

// UnrealizedPnL values the remaining quantity at the given price.
func (p *Position) UnrealizedPnL(price float64) float64 {
	entry := p.AvgEntryPrice()
	if p.Direction == DirectionLong {
		return (price - entry) * p.RemainingQuantity
	}
	return (entry - price) * p.RemainingQuantity
}

// Clone returns a deep copy. The engine mutates clones and emits them as
// proposed state so the caller's positions stay untouched until fills
// confirm.
func (p *Position) Clone() *Position {
	cp := *p
	cp.Entries = append([]Entry(nil), p.Entries...)
	cp.PartialsDone = append([]PartialStage(nil), p.PartialsDone...)
	if p.ClosedAt != nil {
		t := *p.ClosedAt
		cp.ClosedAt = &t
	}
	return &cp
}
