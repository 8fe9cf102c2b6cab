package engine

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

func goodStats() domain.TickerStats {
	return domain.TickerStats{Symbol: "BTCUSDT", QuoteVolume: 20_000_000, BidPrice: 99.99, AskPrice: 100.01}
}

func trendSig() domain.Signal {
	return domain.Signal{Symbol: "BTCUSDT", Direction: domain.DirectionLong, TradeType: domain.TradeTypeTrend, Price: 100}
}

func TestFilterChainPasses(t *testing.T) {
	f := NewFilterChain(DefaultFilterConfig(), testLogger())
	err := f.Check(trendSig(), goodStats(), domain.AccountSnapshot{}, domain.RegimeTrend, time.Now().UTC())
	assert.NoError(t, err)
}

func TestFilterLiquidity(t *testing.T) {
	f := NewFilterChain(DefaultFilterConfig(), testLogger())

	thin := goodStats()
	thin.QuoteVolume = 1000
	err := f.Check(trendSig(), thin, domain.AccountSnapshot{}, domain.RegimeTrend, time.Now().UTC())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "volume")

	wide := goodStats()
	wide.BidPrice, wide.AskPrice = 99, 101
	err = f.Check(trendSig(), wide, domain.AccountSnapshot{}, domain.RegimeTrend, time.Now().UTC())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "spread")

	empty := goodStats()
	empty.BidPrice, empty.AskPrice = 0, 0
	err = f.Check(trendSig(), empty, domain.AccountSnapshot{}, domain.RegimeTrend, time.Now().UTC())
	assert.Error(t, err, "an empty book must fail the spread gate")
}

func TestFilterCorrelation(t *testing.T) {
	f := NewFilterChain(DefaultFilterConfig(), testLogger())

	acct := domain.AccountSnapshot{OpenByDirection: map[domain.Direction]int{domain.DirectionLong: 3}}
	err := f.Check(trendSig(), goodStats(), acct, domain.RegimeTrend, time.Now().UTC())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "correlation")

	// The limit applies per direction.
	acct = domain.AccountSnapshot{OpenByDirection: map[domain.Direction]int{domain.DirectionShort: 3}}
	assert.NoError(t, f.Check(trendSig(), goodStats(), acct, domain.RegimeTrend, time.Now().UTC()))
}

func TestFilterSessionWindows(t *testing.T) {
	cfg := DefaultFilterConfig()
	cfg.Sessions = []SessionWindow{{Start: 8 * 60, End: 16 * 60}}
	cfg.Blackouts = []SessionWindow{{Start: 12 * 60, End: 13 * 60}}
	f := NewFilterChain(cfg, testLogger())

	at := func(h, m int) time.Time {
		return time.Date(2026, 3, 2, h, m, 0, 0, time.UTC)
	}

	assert.NoError(t, f.Check(trendSig(), goodStats(), domain.AccountSnapshot{}, domain.RegimeTrend, at(9, 30)))

	err := f.Check(trendSig(), goodStats(), domain.AccountSnapshot{}, domain.RegimeTrend, at(19, 0))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session")

	err = f.Check(trendSig(), goodStats(), domain.AccountSnapshot{}, domain.RegimeTrend, at(12, 30))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "blackout")
}

func TestSessionWindowWrapsMidnight(t *testing.T) {
	w := SessionWindow{Start: 22 * 60, End: 2 * 60}
	assert.True(t, w.Contains(time.Date(2026, 3, 2, 23, 0, 0, 0, time.UTC)))
	assert.True(t, w.Contains(time.Date(2026, 3, 2, 1, 0, 0, 0, time.UTC)))
	assert.False(t, w.Contains(time.Date(2026, 3, 2, 12, 0, 0, 0, time.UTC)))
}

func TestFilterRegimeCompatibility(t *testing.T) {
	f := NewFilterChain(DefaultFilterConfig(), testLogger())

	ct := trendSig()
	ct.TradeType = domain.TradeTypeCounterTrend
	err := f.Check(ct, goodStats(), domain.AccountSnapshot{}, domain.RegimeTrend, time.Now().UTC())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "regime")

	err = f.Check(trendSig(), goodStats(), domain.AccountSnapshot{}, domain.RegimeRange, time.Now().UTC())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "regime")

	cfg := DefaultFilterConfig()
	cfg.AllowCounterTrendInTrend = true
	f = NewFilterChain(cfg, testLogger())
	assert.NoError(t, f.Check(ct, goodStats(), domain.AccountSnapshot{}, domain.RegimeTrend, time.Now().UTC()))
}

func TestFilterShortCircuits(t *testing.T) {
	f := NewFilterChain(DefaultFilterConfig(), testLogger())

	// Both liquidity and correlation would fail; liquidity reports first.
	thin := goodStats()
	thin.QuoteVolume = 0
	acct := domain.AccountSnapshot{OpenByDirection: map[domain.Direction]int{domain.DirectionLong: 5}}
	err := f.Check(trendSig(), thin, acct, domain.RegimeTrend, time.Now().UTC())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "liquidity")
}
