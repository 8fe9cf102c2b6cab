package engine

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

func testEngine(cfg Config) *Engine {
	e := New(cfg, testLogger())
	n := 0
	e.SetIDSource(func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	})
	return e
}

func baseInput(symbol string, price float64, positions ...*domain.Position) TickInput {
	return TickInput{
		Symbol:    symbol,
		Snapshot:  domain.IndicatorSnapshot{Symbol: symbol, Price: price, ATR: 0.01},
		Stats:     domain.TickerStats{Symbol: symbol, QuoteVolume: 20_000_000, BidPrice: price * 0.9999, AskPrice: price * 1.0001},
		Account:   domain.AccountSnapshot{Equity: 10_000, Time: time.Now().UTC()},
		Limits:    domain.SymbolLimits{StepSize: 0.001, MinQuantity: 0.001, MinNotional: 1},
		Positions: positions,
		Now:       time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC),
	}
}

// commit replaces the position with the proposal of the last mutation,
// standing in for the orchestrator's fill-confirmed commit.
func commit(res domain.TickResult) *domain.Position {
	if len(res.Mutations) == 0 {
		return nil
	}
	return res.Mutations[len(res.Mutations)-1].Proposed
}

func TestScenarioLongTrendLifecycle(t *testing.T) {
	e := testEngine(DefaultConfig())
	p := ladderLong(1.00, 10, 0.98, 1.10)

	// Price 1.02: breakeven activates, stop moves to entry.
	res := e.EvaluateTick(baseInput("BTCUSDT", 1.02, p))
	require.Len(t, res.Mutations, 1)
	assert.Equal(t, domain.MutationBreakeven, res.Mutations[0].Kind)
	assert.InDelta(t, 1.00, res.Mutations[0].StopLoss, 1e-9)
	require.Len(t, res.Orders, 1)
	assert.Equal(t, domain.OrderKindStopUpdate, res.Orders[0].Kind)
	p = commit(res)

	// Price 1.05: TIER_50 and the P50 partial, 40% of initial size.
	res = e.EvaluateTick(baseInput("BTCUSDT", 1.05, p))
	require.Len(t, res.Mutations, 2)
	assert.Equal(t, domain.MutationTierAdvance, res.Mutations[0].Kind)
	assert.Equal(t, domain.Tier50, res.Mutations[0].Tier)
	assert.Equal(t, domain.MutationPartialExit, res.Mutations[1].Kind)
	assert.Equal(t, domain.PartialP50, res.Mutations[1].Stage)
	assert.InDelta(t, 4, res.Mutations[1].Quantity, 1e-9)
	p = commit(res)
	assert.InDelta(t, 6, p.RemainingQuantity, 1e-9)

	// Price 1.075: TIER_75 and the P75 partial, 30% of initial size.
	res = e.EvaluateTick(baseInput("BTCUSDT", 1.075, p))
	require.Len(t, res.Mutations, 2)
	assert.Equal(t, domain.Tier75, res.Mutations[0].Tier)
	assert.Equal(t, domain.PartialP75, res.Mutations[1].Stage)
	assert.InDelta(t, 3, res.Mutations[1].Quantity, 1e-9)
	p = commit(res)
	assert.InDelta(t, 3, p.RemainingQuantity, 1e-9)

	// Price 1.10: take-profit, the remainder closes.
	res = e.EvaluateTick(baseInput("BTCUSDT", 1.10, p))
	var full *domain.PositionMutation
	for i := range res.Mutations {
		if res.Mutations[i].Kind == domain.MutationFullExit {
			full = &res.Mutations[i]
		}
	}
	require.NotNil(t, full)
	assert.InDelta(t, 3, full.Quantity, 1e-9)
	assert.Equal(t, domain.PositionStatusClosed, full.Proposed.Status)
	assert.Zero(t, full.Proposed.RemainingQuantity)
}

func TestScenarioShortCounterTrend(t *testing.T) {
	e := testEngine(DefaultConfig())
	p := ladderLong(2.00, 10, 2.03, 1.95)
	p.Direction = domain.DirectionShort
	p.TradeType = domain.TradeTypeCounterTrend

	// Price 1.98 → progress 0.40: tier stays below 50, no partial.
	res := e.EvaluateTick(baseInput("ETHUSDT", 1.98, p))
	require.NotEmpty(t, res.Mutations)
	assert.Equal(t, domain.Tier25, res.Mutations[0].Tier)
	for _, m := range res.Mutations {
		assert.NotEqual(t, domain.MutationPartialExit, m.Kind)
	}
	p = commit(res)

	// Price 1.975 → progress 0.50: P50 fires.
	res = e.EvaluateTick(baseInput("ETHUSDT", 1.975, p))
	var p50 *domain.PositionMutation
	for i := range res.Mutations {
		if m := res.Mutations[i]; m.Kind == domain.MutationPartialExit && m.Stage == domain.PartialP50 {
			p50 = &res.Mutations[i]
		}
	}
	require.NotNil(t, p50)
	assert.InDelta(t, 4, p50.Quantity, 1e-9)
}

// pyramidOrder returns the add's entry order from a tick result.
func pyramidOrder(t *testing.T, res domain.TickResult) domain.OrderRequest {
	t.Helper()
	for _, ord := range res.Orders {
		if ord.Kind == domain.OrderKindEntry {
			return ord
		}
	}
	t.Fatal("no entry order in tick result")
	return domain.OrderRequest{}
}

func TestScenarioPyramidCap(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Partial.Enabled = false
	e := testEngine(cfg)
	p := ladderLong(100, 10, 95, 120)

	pyramidTick := func(price, bb80Upper float64) TickInput {
		in := baseInput("BTCUSDT", price, p)
		in.Snapshot.BB80Upper = bb80Upper
		in.Snapshot.BB80Lower = bb80Upper - 10
		in.Snapshot.ATR = 1
		return in
	}

	// Progress 0.30 with a fresh breakout: first add of half the entry.
	res := e.EvaluateTick(pyramidTick(106, 104))
	var add *domain.PositionMutation
	for i := range res.Mutations {
		if res.Mutations[i].Kind == domain.MutationPyramid {
			add = &res.Mutations[i]
		}
	}
	require.NotNil(t, add)
	assert.InDelta(t, 5, add.Quantity, 1e-9)
	assert.Equal(t, 1, add.Proposed.PyramidCount)
	assert.Equal(t, 1, pyramidOrder(t, res).Seq)
	p = add.Proposed

	// Second qualifying breakout: second add, same size.
	res = e.EvaluateTick(pyramidTick(112, 110))
	add = nil
	for i := range res.Mutations {
		if res.Mutations[i].Kind == domain.MutationPyramid {
			add = &res.Mutations[i]
		}
	}
	require.NotNil(t, add)
	assert.InDelta(t, 5, add.Quantity, 1e-9)
	assert.Equal(t, 2, add.Proposed.PyramidCount)
	assert.Equal(t, 2, pyramidOrder(t, res).Seq)
	p = add.Proposed

	// Third qualifying breakout is rejected: no pyramid mutation.
	res = e.EvaluateTick(pyramidTick(114, 112))
	for _, m := range res.Mutations {
		assert.NotEqual(t, domain.MutationPyramid, m.Kind)
	}
	assert.Equal(t, 2, p.PyramidCount)
}

func TestScenarioFinalTierPullback(t *testing.T) {
	e := testEngine(DefaultConfig())
	p := ladderLong(1.00, 10, 1.09, 1.10)
	p.TrailingTier = domain.TierFinal
	p.BreakevenActive = true
	p.PartialsDone = []domain.PartialStage{domain.PartialP50, domain.PartialP75}

	// Pullback to 1.05: the 0.5×ATR trail candidate (1.045) is worse
	// than the held stop and must be discarded.
	res := e.EvaluateTick(baseInput("BTCUSDT", 1.05, p))
	assert.Empty(t, res.Mutations)
	assert.Empty(t, res.Orders)
	assert.InDelta(t, 1.09, p.StopLoss, 1e-9)
}

func TestEvaluateTickOpensPosition(t *testing.T) {
	e := testEngine(DefaultConfig())

	in := baseInput("BTCUSDT", 102)
	in.Snapshot = trendLongSnap()
	in.Snapshot.ATR = 0.5
	in.Snapshot.LastSwingLow = domain.Swing{Price: 100.5, Index: 40}
	in.Snapshot.Regime = domain.RegimeTrend

	res := e.EvaluateTick(in)
	require.NotNil(t, res.NewPosition)
	pos := res.NewPosition
	assert.Equal(t, domain.DirectionLong, pos.Direction)
	assert.Equal(t, domain.TradeTypeTrend, pos.TradeType)
	assert.Equal(t, domain.OriginAutomatic, pos.Origin)
	assert.Greater(t, pos.RemainingQuantity, 0.0)
	assert.InDelta(t, pos.InitialQuantity, pos.RemainingQuantity, 1e-9)
	assert.Less(t, pos.StopLoss, pos.Entries[0].Price)
	assert.Greater(t, pos.TakeProfit, pos.Entries[0].Price)

	require.Len(t, res.Orders, 2)
	assert.Equal(t, domain.OrderKindEntry, res.Orders[0].Kind)
	assert.Equal(t, domain.OrderSideBuy, res.Orders[0].Side)
	assert.Equal(t, domain.OrderKindStopUpdate, res.Orders[1].Kind)
}

func TestEvaluateTickNoEntryWhileOpen(t *testing.T) {
	e := testEngine(DefaultConfig())
	p := ladderLong(1.00, 10, 0.98, 1.10)

	in := baseInput("BTCUSDT", 1.00, p)
	in.Snapshot = trendLongSnap()
	in.Snapshot.Symbol = "BTCUSDT"

	res := e.EvaluateTick(in)
	assert.Nil(t, res.NewPosition, "no new entry while the symbol has an open position")
}

func TestEvaluateTickDropsSignalOnFilter(t *testing.T) {
	e := testEngine(DefaultConfig())

	in := baseInput("BTCUSDT", 102)
	in.Snapshot = trendLongSnap()
	in.Snapshot.LastSwingLow = domain.Swing{Price: 100.5, Index: 40}
	in.Stats.QuoteVolume = 100 // fails liquidity

	res := e.EvaluateTick(in)
	assert.Nil(t, res.NewPosition)
	assert.Empty(t, res.Orders)
}

func TestEvaluateTickIdempotent(t *testing.T) {
	e := testEngine(DefaultConfig())
	p := ladderLong(1.00, 10, 0.98, 1.10)

	in := baseInput("BTCUSDT", 1.05, p)
	r1 := e.EvaluateTick(in)
	r2 := e.EvaluateTick(in)

	require.Equal(t, len(r1.Mutations), len(r2.Mutations))
	for i := range r1.Mutations {
		assert.Equal(t, r1.Mutations[i].Kind, r2.Mutations[i].Kind)
		assert.Equal(t, r1.Mutations[i].Stage, r2.Mutations[i].Stage)
		assert.InDelta(t, r1.Mutations[i].Quantity, r2.Mutations[i].Quantity, 1e-9)
		assert.InDelta(t, r1.Mutations[i].StopLoss, r2.Mutations[i].StopLoss, 1e-9)
		assert.Equal(t, r1.Mutations[i].Proposed.RemainingQuantity, r2.Mutations[i].Proposed.RemainingQuantity)
	}

	require.Equal(t, len(r1.Orders), len(r2.Orders))
	for i := range r1.Orders {
		a, b := r1.Orders[i], r2.Orders[i]
		a.ID, b.ID = "", ""
		assert.Equal(t, a, b)
	}

	// The input positions were never mutated.
	assert.InDelta(t, 10, p.RemainingQuantity, 1e-9)
	assert.InDelta(t, 0.98, p.StopLoss, 1e-9)
	assert.Empty(t, p.PartialsDone)
}

func TestClosedPositionsIgnored(t *testing.T) {
	e := testEngine(DefaultConfig())
	p := ladderLong(1.00, 10, 0.98, 1.10)
	now := time.Now().UTC()
	p.Status = domain.PositionStatusClosed
	p.ClosedAt = &now

	in := baseInput("BTCUSDT", 1.05, p)
	in.Snapshot.ADX = 10 // no entry signal either
	res := e.EvaluateTick(in)
	assert.Empty(t, res.Mutations)
}
