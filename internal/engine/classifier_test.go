package engine

import (
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func trendLongSnap() domain.IndicatorSnapshot {
	return domain.IndicatorSnapshot{
		Symbol:        "BTCUSDT",
		Price:         102,
		BB80Upper:     100,
		BB80Lower:     90,
		ADX:           30,
		RSI:           60,
		NewSwingHigh:  true,
		LastSwingHigh: domain.Swing{Price: 103, Index: 50},
		PrevSwingHigh: domain.Swing{Price: 101, Index: 30},
	}
}

func TestClassifyTrendLong(t *testing.T) {
	c := NewClassifier(DefaultClassifierConfig(), testLogger())

	sig, ok := c.Classify(trendLongSnap())
	require.True(t, ok)
	assert.Equal(t, domain.DirectionLong, sig.Direction)
	assert.Equal(t, domain.TradeTypeTrend, sig.TradeType)
}

func TestClassifyTrendRequiresADX(t *testing.T) {
	c := NewClassifier(DefaultClassifierConfig(), testLogger())

	snap := trendLongSnap()
	snap.ADX = 25 // strictly greater than 25 required
	_, ok := c.Classify(snap)
	assert.False(t, ok)
}

func TestClassifyTrendRequiresFreshHigherHigh(t *testing.T) {
	c := NewClassifier(DefaultClassifierConfig(), testLogger())

	snap := trendLongSnap()
	snap.NewSwingHigh = false
	_, ok := c.Classify(snap)
	assert.False(t, ok)

	snap = trendLongSnap()
	snap.LastSwingHigh.Price = 100.5 // not above the prior swing
	_, ok = c.Classify(snap)
	assert.False(t, ok)
}

func TestClassifyTrendShort(t *testing.T) {
	c := NewClassifier(DefaultClassifierConfig(), testLogger())

	sig, ok := c.Classify(domain.IndicatorSnapshot{
		Symbol:       "ETHUSDT",
		Price:        88,
		BB80Upper:    100,
		BB80Lower:    90,
		ADX:          28,
		RSI:          40,
		NewSwingLow:  true,
		LastSwingLow: domain.Swing{Price: 87.5, Index: 50},
		PrevSwingLow: domain.Swing{Price: 89, Index: 30},
	})
	require.True(t, ok)
	assert.Equal(t, domain.DirectionShort, sig.Direction)
	assert.Equal(t, domain.TradeTypeTrend, sig.TradeType)
}

func TestClassifyCounterTrendLong(t *testing.T) {
	c := NewClassifier(DefaultClassifierConfig(), testLogger())

	snap := domain.IndicatorSnapshot{
		Symbol:            "BTCUSDT",
		Price:             95,
		BB20Upper:         105,
		BB20Mid:           100,
		BB20Lower:         95.5,
		ADX:               15,
		RSI:               25,
		BullishDivergence: true,
	}
	sig, ok := c.Classify(snap)
	require.True(t, ok)
	assert.Equal(t, domain.DirectionLong, sig.Direction)
	assert.Equal(t, domain.TradeTypeCounterTrend, sig.TradeType)

	snap.BullishDivergence = false
	_, ok = c.Classify(snap)
	assert.False(t, ok, "divergence is required")

	snap.BullishDivergence = true
	snap.RSI = 35
	_, ok = c.Classify(snap)
	assert.False(t, ok, "oversold RSI is required")
}

func TestClassifyCounterTrendShort(t *testing.T) {
	c := NewClassifier(DefaultClassifierConfig(), testLogger())

	sig, ok := c.Classify(domain.IndicatorSnapshot{
		Symbol:            "BTCUSDT",
		Price:             106,
		BB20Upper:         105.5,
		BB20Mid:           100,
		BB20Lower:         95,
		ADX:               15,
		RSI:               75,
		BearishDivergence: true,
	})
	require.True(t, ok)
	assert.Equal(t, domain.DirectionShort, sig.Direction)
	assert.Equal(t, domain.TradeTypeCounterTrend, sig.TradeType)
}

func TestClassifyNoPattern(t *testing.T) {
	c := NewClassifier(DefaultClassifierConfig(), testLogger())

	_, ok := c.Classify(domain.IndicatorSnapshot{
		Symbol: "BTCUSDT", Price: 100, BB20Upper: 105, BB20Lower: 95,
		BB80Upper: 110, BB80Lower: 90, ADX: 20, RSI: 50,
	})
	assert.False(t, ok)
}
