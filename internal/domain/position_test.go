package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLong(entry, qty float64) *Position {
	return &Position{
		ID:                "pos-1",
		Symbol:            "BTCUSDT",
		Direction:         DirectionLong,
		TradeType:         TradeTypeTrend,
		Origin:            OriginAutomatic,
		Status:            PositionStatusOpen,
		Entries:           []Entry{{Price: entry, Quantity: qty, Time: time.Now().UTC()}},
		InitialQuantity:   qty,
		RemainingQuantity: qty,
	}
}

func TestAvgEntryPriceWeighted(t *testing.T) {
	p := newLong(100, 2)
	p.AddEntry(110, 1, time.Now().UTC())

	assert.InDelta(t, (100*2+110*1)/3.0, p.AvgEntryPrice(), 1e-9)
	assert.Equal(t, 1, p.PyramidCount)
	assert.InDelta(t, 3, p.RemainingQuantity, 1e-9)
}

func TestProgressDirectionAdjusted(t *testing.T) {
	long := newLong(1.00, 10)
	long.TakeProfit = 1.10
	assert.InDelta(t, 0.5, long.Progress(1.05), 1e-9)
	assert.InDelta(t, -0.2, long.Progress(0.98), 1e-9)

	short := newLong(2.00, 10)
	short.Direction = DirectionShort
	short.TakeProfit = 1.95
	assert.InDelta(t, 0.4, short.Progress(1.98), 1e-9)
	assert.InDelta(t, 0.5, short.Progress(1.975), 1e-9)
}

func TestApplyStopMonotonic(t *testing.T) {
	long := newLong(100, 1)
	long.StopLoss = 95

	assert.True(t, long.ApplyStop(97))
	assert.False(t, long.ApplyStop(96), "worse candidate must be discarded")
	assert.InDelta(t, 97, long.StopLoss, 1e-9)

	short := newLong(100, 1)
	short.Direction = DirectionShort
	short.StopLoss = 105
	assert.True(t, short.ApplyStop(103))
	assert.False(t, short.ApplyStop(104))
	assert.InDelta(t, 103, short.StopLoss, 1e-9)
}

func TestAdvanceTierNeverRegresses(t *testing.T) {
	p := newLong(100, 1)

	require.True(t, p.AdvanceTier(Tier50))
	assert.True(t, p.BreakevenActive)
	assert.False(t, p.AdvanceTier(Tier25))
	assert.False(t, p.AdvanceTier(Tier50))
	assert.Equal(t, Tier50, p.TrailingTier)
	assert.True(t, p.AdvanceTier(TierFinal))
}

func TestMarkPartialOnceAndClose(t *testing.T) {
	p := newLong(100, 10)

	p.MarkPartial(PartialP50, 4)
	p.MarkPartial(PartialP50, 4) // duplicate is a no-op
	assert.InDelta(t, 6, p.RemainingQuantity, 1e-9)
	assert.True(t, p.PartialDone(PartialP50))

	p.MarkPartial(PartialP75, 3)
	assert.InDelta(t, 3, p.RemainingQuantity, 1e-9)

	p.Reduce(3)
	assert.Equal(t, PositionStatusClosed, p.Status)
	assert.Zero(t, p.RemainingQuantity)
	require.NotNil(t, p.ClosedAt)
}

func TestAddEntryAfterPartialKeepsInitialQuantity(t *testing.T) {
	p := newLong(100, 10)
	p.MarkPartial(PartialP50, 4)
	p.AddEntry(105, 5, time.Now().UTC())

	assert.InDelta(t, 10, p.InitialQuantity, 1e-9, "initial quantity is fixed once partials start")
	assert.InDelta(t, 11, p.RemainingQuantity, 1e-9)
}

func TestCloneIsIndependent(t *testing.T) {
	p := newLong(100, 10)
	p.TakeProfit = 110

	c := p.Clone()
	c.ApplyStop(101)
	c.AddEntry(105, 5, time.Now().UTC())
	c.MarkPartial(PartialP50, 4)

	assert.Zero(t, p.StopLoss)
	assert.Len(t, p.Entries, 1)
	assert.Empty(t, p.PartialsDone)
	assert.Equal(t, 0, p.PyramidCount)
}
