package engine

import (
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// ClassifierConfig holds the signal thresholds.
type ClassifierConfig struct {
	TrendADXMin   float64 // minimum ADX for a trend signal
	RSIOversold   float64
	RSIOverbought float64
}

// DefaultClassifierConfig returns the standard thresholds: ADX 25,
// RSI 30/70.
func DefaultClassifierConfig() ClassifierConfig {
	return ClassifierConfig{TrendADXMin: 25, RSIOversold: 30, RSIOverbought: 70}
}

// Classifier turns an indicator snapshot into at most one trade signal.
// Trend patterns are checked first; the four patterns are mutually
// exclusive in practice but the ordering makes the tie-break explicit.
type Classifier struct {
	cfg    ClassifierConfig
	logger *slog.Logger
}

// NewClassifier creates a classifier with the given thresholds.
func NewClassifier(cfg ClassifierConfig, logger *slog.Logger) *Classifier {
	return &Classifier{cfg: cfg, logger: logger.With(slog.String("component", "classifier"))}
}

// Classify returns the signal for this bar, or ok=false when no pattern
// matches.
func (c *Classifier) Classify(snap domain.IndicatorSnapshot) (domain.Signal, bool) {
	if sig, ok := c.trendSignal(snap); ok {
		return sig, true
	}
	return c.counterTrendSignal(snap)
}

// trendSignal: BB80 breakout plus a freshly confirmed swing beyond the
// prior one, with ADX confirming trend strength.
func (c *Classifier) trendSignal(snap domain.IndicatorSnapshot) (domain.Signal, bool) {
	if snap.ADX <= c.cfg.TrendADXMin {
		return domain.Signal{}, false
	}

	longBreakout := snap.BB80Upper > 0 && snap.Price > snap.BB80Upper
	newHigherHigh := snap.NewSwingHigh && snap.PrevSwingHigh.Price > 0 &&
		snap.LastSwingHigh.Price > snap.PrevSwingHigh.Price
	if longBreakout && newHigherHigh {
		return c.signal(snap, domain.DirectionLong, domain.TradeTypeTrend,
			fmt.Sprintf("bb80 breakout %.6g > %.6g, new swing high, adx %.1f", snap.Price, snap.BB80Upper, snap.ADX)), true
	}

	shortBreakout := snap.BB80Lower > 0 && snap.Price < snap.BB80Lower
	newLowerLow := snap.NewSwingLow && snap.PrevSwingLow.Price > 0 &&
		snap.LastSwingLow.Price < snap.PrevSwingLow.Price
	if shortBreakout && newLowerLow {
		return c.signal(snap, domain.DirectionShort, domain.TradeTypeTrend,
			fmt.Sprintf("bb80 breakdown %.6g < %.6g, new swing low, adx %.1f", snap.Price, snap.BB80Lower, snap.ADX)), true
	}

	return domain.Signal{}, false
}

// counterTrendSignal: RSI extreme at a BB20 band touch, confirmed by an
// RSI divergence in the reversal direction.
func (c *Classifier) counterTrendSignal(snap domain.IndicatorSnapshot) (domain.Signal, bool) {
	if snap.RSI < c.cfg.RSIOversold && snap.BB20Lower > 0 && snap.Price <= snap.BB20Lower && snap.BullishDivergence {
		return c.signal(snap, domain.DirectionLong, domain.TradeTypeCounterTrend,
			fmt.Sprintf("rsi %.1f oversold at bb20 lower with bullish divergence", snap.RSI)), true
	}
	if snap.RSI > c.cfg.RSIOverbought && snap.BB20Upper > 0 && snap.Price >= snap.BB20Upper && snap.BearishDivergence {
		return c.signal(snap, domain.DirectionShort, domain.TradeTypeCounterTrend,
			fmt.Sprintf("rsi %.1f overbought at bb20 upper with bearish divergence", snap.RSI)), true
	}
	return domain.Signal{}, false
}

func (c *Classifier) signal(snap domain.IndicatorSnapshot, dir domain.Direction, tt domain.TradeType, reason string) domain.Signal {
	c.logger.Debug("signal classified",
		slog.String("symbol", snap.Symbol),
		slog.String("direction", string(dir)),
		slog.String("trade_type", string(tt)),
		slog.String("reason", reason),
	)
	return domain.Signal{
		Symbol:    snap.Symbol,
		Direction: dir,
		TradeType: tt,
		Price:     snap.Price,
		Time:      snap.Time,
		Reason:    reason,
	}
}
