package market

import (
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// SnapshotConfig holds the indicator parameters. Defaults mirror the
// classic settings: BB(20,2) and BB(80,2), 14-period RSI/ATR/ADX.
type SnapshotConfig struct {
	BBShortPeriod int
	BBLongPeriod  int
	BBMult        float64
	RSIPeriod     int
	ATRPeriod     int
	ADXPeriod     int
	SwingConfirm  int

	// Regime thresholds: ADX at or above TrendADX means a trending
	// market; below that, a BB20 bandwidth at or under RangeBandwidth
	// means a range, anything else counts as counter-trend conditions.
	TrendADX       float64
	RangeBandwidth float64
}

// DefaultSnapshotConfig returns the standard parameter set.
func DefaultSnapshotConfig() SnapshotConfig {
	return SnapshotConfig{
		BBShortPeriod:  20,
		BBLongPeriod:   80,
		BBMult:         2.0,
		RSIPeriod:      14,
		ATRPeriod:      14,
		ADXPeriod:      14,
		SwingConfirm:   3,
		TrendADX:       25,
		RangeBandwidth: 0.02,
	}
}

// SnapshotBuilder turns a candle window into the IndicatorSnapshot the
// engine consumes.
type SnapshotBuilder struct {
	cfg    SnapshotConfig
	logger *slog.Logger
}

// NewSnapshotBuilder creates a builder with the given parameters.
func NewSnapshotBuilder(cfg SnapshotConfig, logger *slog.Logger) *SnapshotBuilder {
	return &SnapshotBuilder{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "snapshot_builder")),
	}
}

// MinCandles is the history depth Build needs to produce a snapshot.
func (b *SnapshotBuilder) MinCandles() int {
	n := b.cfg.BBLongPeriod
	if m := 2*b.cfg.ADXPeriod + 1; m > n {
		n = m
	}
	return n
}

// Build computes one snapshot from the candle window, newest bar last.
// Too little history is reported as ErrDataUnavailable so callers skip
// the symbol for this tick instead of trading on zeroed indicators.
func (b *SnapshotBuilder) Build(symbol string, candles []domain.Candle) (domain.IndicatorSnapshot, error) {
	if len(candles) < b.MinCandles() {
		return domain.IndicatorSnapshot{}, fmt.Errorf("snapshot: %s: %d candles, need %d: %w",
			symbol, len(candles), b.MinCandles(), domain.ErrDataUnavailable)
	}

	closes := make([]float64, len(candles))
	for i, c := range candles {
		closes[i] = c.Close
	}
	last := candles[len(candles)-1]

	snap := domain.IndicatorSnapshot{
		Symbol: symbol,
		Time:   last.CloseTime,
		Price:  last.Close,
		ADX:    ADX(candles, b.cfg.ADXPeriod),
		ATR:    ATR(candles, b.cfg.ATRPeriod),
	}

	snap.BB20Upper, snap.BB20Mid, snap.BB20Lower, _ = Bollinger(closes, b.cfg.BBShortPeriod, b.cfg.BBMult)
	snap.BB80Upper, _, snap.BB80Lower, _ = Bollinger(closes, b.cfg.BBLongPeriod, b.cfg.BBMult)

	rsi := RSISeries(closes, b.cfg.RSIPeriod)
	snap.RSI = rsi[len(rsi)-1]

	highs, lows := FindSwings(candles, b.cfg.SwingConfirm)
	// A pivot at index i is confirmed once bar i+confirm closes; it is
	// fresh when that confirmation bar is the newest one.
	freshIdx := len(candles) - 1 - b.cfg.SwingConfirm
	if n := len(highs); n > 0 {
		snap.LastSwingHigh = highs[n-1]
		snap.NewSwingHigh = highs[n-1].Index == freshIdx
		if n > 1 {
			snap.PrevSwingHigh = highs[n-2]
		}
	}
	if n := len(lows); n > 0 {
		snap.LastSwingLow = lows[n-1]
		snap.NewSwingLow = lows[n-1].Index == freshIdx
		if n > 1 {
			snap.PrevSwingLow = lows[n-2]
		}
	}

	snap.BullishDivergence = bullishDivergence(lows, rsi)
	snap.BearishDivergence = bearishDivergence(highs, rsi)
	snap.Regime = b.regime(snap)

	return snap, nil
}

func (b *SnapshotBuilder) regime(s domain.IndicatorSnapshot) domain.Regime {
	if s.ADX >= b.cfg.TrendADX {
		return domain.RegimeTrend
	}
	if s.BB20Mid > 0 && (s.BB20Upper-s.BB20Lower)/s.BB20Mid <= b.cfg.RangeBandwidth {
		return domain.RegimeRange
	}
	return domain.RegimeCounterTrend
}
