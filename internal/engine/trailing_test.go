package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

func ladderLong(entry, qty, stop, tp float64) *domain.Position {
	return &domain.Position{
		ID:                "pos-long",
		Symbol:            "BTCUSDT",
		Direction:         domain.DirectionLong,
		TradeType:         domain.TradeTypeTrend,
		Origin:            domain.OriginAutomatic,
		Status:            domain.PositionStatusOpen,
		Entries:           []domain.Entry{{Price: entry, Quantity: qty, Time: time.Now().UTC()}},
		InitialQuantity:   qty,
		RemainingQuantity: qty,
		StopLoss:          stop,
		TakeProfit:        tp,
	}
}

func TestTierForThresholds(t *testing.T) {
	tr := NewTrailing(DefaultTrailingConfig())

	cases := []struct {
		progress float64
		want     domain.TrailingTier
	}{
		{0.0, domain.TierNone},
		{0.019, domain.TierNone},
		{0.02, domain.TierBreakeven},
		{0.24, domain.TierBreakeven},
		{0.25, domain.Tier25},
		{0.49, domain.Tier25},
		{0.50, domain.Tier50},
		{0.75, domain.Tier75},
		{0.89, domain.Tier75},
		{0.90, domain.TierFinal},
		{1.20, domain.TierFinal},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tr.tierFor(tc.progress), "progress %.2f", tc.progress)
	}
}

func TestBreakevenMovesStopToEntry(t *testing.T) {
	tr := NewTrailing(DefaultTrailingConfig())
	p := ladderLong(1.00, 10, 0.98, 1.10)

	res := tr.Evaluate(p, 1.02, 0.01)
	assert.True(t, res.TierAdvanced)
	assert.Equal(t, domain.TierBreakeven, p.TrailingTier)
	assert.True(t, p.BreakevenActive)
	assert.InDelta(t, 1.00, p.StopLoss, 1e-9)
}

func TestTierLockInLevels(t *testing.T) {
	tr := NewTrailing(DefaultTrailingConfig())

	// Each tier secures (tier% − 10%) of the entry→TP distance.
	p := ladderLong(1.00, 10, 0.98, 1.10)
	tr.Evaluate(p, 1.025, 0.01) // progress 0.25
	assert.Equal(t, domain.Tier25, p.TrailingTier)
	assert.InDelta(t, 1.00+0.15*0.10, p.StopLoss, 1e-9)

	tr.Evaluate(p, 1.05, 0.01) // progress 0.50
	assert.Equal(t, domain.Tier50, p.TrailingTier)
	assert.InDelta(t, 1.00+0.40*0.10, p.StopLoss, 1e-9)

	tr.Evaluate(p, 1.075, 0.01) // progress 0.75
	assert.Equal(t, domain.Tier75, p.TrailingTier)
	assert.InDelta(t, 1.00+0.65*0.10, p.StopLoss, 1e-9)
}

func TestFinalTierTrailsEveryTick(t *testing.T) {
	tr := NewTrailing(DefaultTrailingConfig())
	p := ladderLong(1.00, 10, 0.98, 1.10)

	res := tr.Evaluate(p, 1.095, 0.01) // progress 0.95
	require.Equal(t, domain.TierFinal, p.TrailingTier)
	assert.True(t, res.StopMoved)
	assert.InDelta(t, 1.095-0.005, p.StopLoss, 1e-9, "0.5 atr below price")

	// Price keeps rising: the trail follows without a tier crossing.
	res = tr.Evaluate(p, 1.12, 0.01)
	assert.False(t, res.TierAdvanced)
	assert.True(t, res.StopMoved)
	assert.InDelta(t, 1.12-0.005, p.StopLoss, 1e-9)
}

func TestFinalTierPullbackDiscardsCandidate(t *testing.T) {
	tr := NewTrailing(DefaultTrailingConfig())
	p := ladderLong(1.00, 10, 0.98, 1.10)

	tr.Evaluate(p, 1.095, 0.01)
	held := p.StopLoss

	// Pullback: the candidate 1.05 − 0.005 is worse than the held stop.
	res := tr.Evaluate(p, 1.05, 0.01)
	assert.False(t, res.StopMoved)
	assert.False(t, res.TierAdvanced)
	assert.InDelta(t, held, p.StopLoss, 1e-9)
	assert.Equal(t, domain.TierFinal, p.TrailingTier, "tier never regresses")
}

func TestTierJumpAppliesTightestLockIn(t *testing.T) {
	tr := NewTrailing(DefaultTrailingConfig())
	p := ladderLong(1.00, 10, 0.98, 1.10)

	// First evaluation at progress 0.78 jumps straight to TIER_75.
	tr.Evaluate(p, 1.078, 0.01)
	assert.Equal(t, domain.Tier75, p.TrailingTier)
	assert.InDelta(t, 1.065, p.StopLoss, 1e-9)
}

func TestLadderShortDirection(t *testing.T) {
	tr := NewTrailing(DefaultTrailingConfig())
	p := ladderLong(2.00, 10, 2.03, 1.95)
	p.Direction = domain.DirectionShort

	// Scenario: at 1.98 progress is 0.40, tier stays below 50.
	tr.Evaluate(p, 1.98, 0.005)
	assert.Equal(t, domain.Tier25, p.TrailingTier)
	assert.InDelta(t, 2.00+0.15*(1.95-2.00), p.StopLoss, 1e-9)

	tr.Evaluate(p, 1.975, 0.005) // progress 0.50
	assert.Equal(t, domain.Tier50, p.TrailingTier)
	assert.InDelta(t, 2.00+0.40*(1.95-2.00), p.StopLoss, 1e-9)
}

func TestLadderUsesWeightedEntryAfterPyramid(t *testing.T) {
	tr := NewTrailing(DefaultTrailingConfig())
	p := ladderLong(100, 10, 98, 120)
	p.AddEntry(110, 5, time.Now().UTC())

	// Weighted entry 103.33; progress at price 110 = 6.67/16.67 = 0.40.
	res := tr.Evaluate(p, 110, 1)
	assert.Equal(t, domain.Tier25, res.NewTier)
	entry := p.AvgEntryPrice()
	assert.InDelta(t, entry+0.15*(120-entry), p.StopLoss, 1e-9)
}
