package engine

import (
	"fmt"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// TrailingConfig parameterizes the trailing-stop ladder.
type TrailingConfig struct {
	BreakevenProgress float64 // progress at which the stop moves to entry
	LockInBuffer      float64 // a tier at fraction f secures (f - buffer) of the TP distance
	FinalATRMult      float64 // trail distance in ATRs once in the final tier
}

// DefaultTrailingConfig returns the standard ladder: breakeven at 2%
// progress, tiers securing tier%−10%, final trail at 0.5×ATR.
func DefaultTrailingConfig() TrailingConfig {
	return TrailingConfig{
		BreakevenProgress: 0.02,
		LockInBuffer:      0.10,
		FinalATRMult:      0.5,
	}
}

// tierThreshold maps a ladder rung to the progress that unlocks it.
var tierThresholds = []struct {
	tier     domain.TrailingTier
	progress float64
}{
	{domain.Tier25, 0.25},
	{domain.Tier50, 0.50},
	{domain.Tier75, 0.75},
	{domain.Tier90, 0.90},
	{domain.TierFinal, 0.90},
}

// Trailing advances a position's stop-loss through the ladder
// NONE → BREAKEVEN → TIER_25 → TIER_50 → TIER_75 → TIER_90 → FINAL.
// Tiers are one-directional and every candidate stop passes through the
// position's monotonicity check, so a pullback never loosens anything.
type Trailing struct {
	cfg TrailingConfig
}

// NewTrailing creates the ladder with the given parameters.
func NewTrailing(cfg TrailingConfig) *Trailing {
	return &Trailing{cfg: cfg}
}

// TrailingResult reports what one ladder evaluation changed.
type TrailingResult struct {
	TierAdvanced bool
	StopMoved    bool
	NewTier      domain.TrailingTier
	NewStop      float64
	Reason       string
}

// Evaluate runs one ladder step against the position at the given price,
// mutating the position in place. The engine calls it on a clone.
func (t *Trailing) Evaluate(p *domain.Position, price, atr float64) TrailingResult {
	progress := p.Progress(price)
	targetTier := t.tierFor(progress)

	var res TrailingResult
	if p.AdvanceTier(targetTier) {
		res.TierAdvanced = true
	}
	res.NewTier = p.TrailingTier

	candidate, reason := t.candidateStop(p, price, atr)
	if candidate != 0 && p.ApplyStop(candidate) {
		res.StopMoved = true
		res.NewStop = p.StopLoss
		res.Reason = reason
	}
	return res
}

// tierFor maps progress to the highest unlocked tier.
func (t *Trailing) tierFor(progress float64) domain.TrailingTier {
	tier := domain.TierNone
	if progress >= t.cfg.BreakevenProgress {
		tier = domain.TierBreakeven
	}
	for _, th := range tierThresholds {
		if progress >= th.progress {
			tier = th.tier
		}
	}
	return tier
}

// candidateStop computes the tightest stop the current tier entitles the
// position to. In the final tier the candidate tracks price at an ATR
// multiple and is recomputed every tick, not only at tier crossings.
func (t *Trailing) candidateStop(p *domain.Position, price, atr float64) (float64, string) {
	switch p.TrailingTier {
	case domain.TierNone:
		return 0, ""

	case domain.TierFinal:
		if atr > 0 {
			dist := t.cfg.FinalATRMult * atr
			if p.Direction == domain.DirectionLong {
				return price - dist, fmt.Sprintf("final trail %.2f atr below price", t.cfg.FinalATRMult)
			}
			return price + dist, fmt.Sprintf("final trail %.2f atr above price", t.cfg.FinalATRMult)
		}
		// No ATR this tick: fall back to the TIER_90 lock-in level.
		return t.lockIn(p, 0.90), "tier_90 lock-in (atr unavailable)"

	case domain.TierBreakeven:
		return p.AvgEntryPrice(), "breakeven"

	default:
		return t.lockIn(p, tierFraction(p.TrailingTier)), fmt.Sprintf("%s lock-in", p.TrailingTier)
	}
}

// lockIn returns the stop that secures (f − buffer) of the entry→TP
// distance. The signed distance makes the same formula work for shorts.
func (t *Trailing) lockIn(p *domain.Position, f float64) float64 {
	entry := p.AvgEntryPrice()
	secured := f - t.cfg.LockInBuffer
	if secured < 0 {
		secured = 0
	}
	return entry + secured*(p.TakeProfit-entry)
}

func tierFraction(tier domain.TrailingTier) float64 {
	switch tier {
	case domain.Tier25:
		return 0.25
	case domain.Tier50:
		return 0.50
	case domain.Tier75:
		return 0.75
	case domain.Tier90:
		return 0.90
	default:
		return 0
	}
}
