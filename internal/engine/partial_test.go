package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

func TestPartialScheduleStages(t *testing.T) {
	pt := NewPartial(DefaultPartialConfig())
	p := ladderLong(1.00, 10, 0.98, 1.10)

	assert.Empty(t, pt.Evaluate(p, 1.04, 0.001), "below the first threshold")

	exits := pt.Evaluate(p, 1.05, 0.001)
	require.Len(t, exits, 1)
	assert.Equal(t, domain.PartialP50, exits[0].Stage)
	assert.InDelta(t, 4, exits[0].Quantity, 1e-9, "40% of initial quantity")
	assert.False(t, exits[0].Full)

	p.MarkPartial(domain.PartialP50, 4)
	exits = pt.Evaluate(p, 1.075, 0.001)
	require.Len(t, exits, 1)
	assert.Equal(t, domain.PartialP75, exits[0].Stage)
	assert.InDelta(t, 3, exits[0].Quantity, 1e-9, "30% of initial quantity")
}

func TestPartialStagesFireInOrderOnJump(t *testing.T) {
	pt := NewPartial(DefaultPartialConfig())
	p := ladderLong(1.00, 10, 0.98, 1.10)

	// Progress jumps straight to 0.80: both stages due, P50 first.
	exits := pt.Evaluate(p, 1.08, 0.001)
	require.Len(t, exits, 2)
	assert.Equal(t, domain.PartialP50, exits[0].Stage)
	assert.Equal(t, domain.PartialP75, exits[1].Stage)
	assert.InDelta(t, 4, exits[0].Quantity, 1e-9)
	assert.InDelta(t, 3, exits[1].Quantity, 1e-9)
}

func TestPartialFullCloseAtTakeProfit(t *testing.T) {
	pt := NewPartial(DefaultPartialConfig())
	p := ladderLong(1.00, 10, 0.98, 1.10)
	p.MarkPartial(domain.PartialP50, 4)
	p.MarkPartial(domain.PartialP75, 3)

	exits := pt.Evaluate(p, 1.10, 0.001)
	require.Len(t, exits, 1)
	assert.True(t, exits[0].Full)
	assert.InDelta(t, 3, exits[0].Quantity, 1e-9, "closes the remainder")
}

func TestPartialMinOrderSizeFallback(t *testing.T) {
	pt := NewPartial(DefaultPartialConfig())
	p := ladderLong(1.00, 10, 0.98, 1.10)

	// Remaining after P50 would be 6, below a minimum of 7: close all.
	exits := pt.Evaluate(p, 1.05, 7)
	require.Len(t, exits, 1)
	assert.True(t, exits[0].Full)
	assert.InDelta(t, 10, exits[0].Quantity, 1e-9)
}

func TestPartialFractionsOfInitialNotRemaining(t *testing.T) {
	pt := NewPartial(DefaultPartialConfig())
	p := ladderLong(1.00, 10, 0.98, 1.10)

	// A pyramid add before the first partial grows the initial quantity.
	p.AddEntry(1.03, 5, p.Entries[0].Time)
	require.InDelta(t, 15, p.InitialQuantity, 1e-9)

	// Weighted entry 1.01; pick a price past both thresholds from it.
	exits := pt.Evaluate(p, 1.058, 0.001) // progress ≈ 0.533
	require.Len(t, exits, 1)
	assert.InDelta(t, 6, exits[0].Quantity, 1e-9, "40% of the grown initial quantity")
}

func TestPartialDisabled(t *testing.T) {
	cfg := DefaultPartialConfig()
	cfg.Enabled = false
	pt := NewPartial(cfg)
	p := ladderLong(1.00, 10, 0.98, 1.10)

	assert.Empty(t, pt.Evaluate(p, 1.10, 0.001))
}

func TestPartialStopFloors(t *testing.T) {
	pt := NewPartial(DefaultPartialConfig())
	tr := NewTrailing(DefaultTrailingConfig())
	p := ladderLong(1.00, 10, 0.98, 1.10)

	assert.InDelta(t, 1.00, pt.StopAfter(p, domain.PartialP50, tr), 1e-9, "at least breakeven after P50")
	assert.InDelta(t, 1.04, pt.StopAfter(p, domain.PartialP75, tr), 1e-9, "tier_50 lock-in after P75")
}
