package engine

import (
	"fmt"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// StopTargetConfig parameterizes initial stop/target derivation.
type StopTargetConfig struct {
	SwingBuffer    float64 // fraction of swing price added beyond the swing for trend stops
	CounterATRMult float64 // stop distance in ATRs for counter-trend entries
	RangeTighten   float64 // multiplier (<1) on both distances in a range regime
	TrendTPWiden   float64 // multiplier (>1) on the TP distance in a trend regime
	MinRewardRisk  float64 // entry is rejected below this ratio
}

// DefaultStopTargetConfig returns the standard derivation parameters.
func DefaultStopTargetConfig() StopTargetConfig {
	return StopTargetConfig{
		SwingBuffer:    0.002,
		CounterATRMult: 1.5,
		RangeTighten:   0.7,
		TrendTPWiden:   1.25,
		MinRewardRisk:  1.5,
	}
}

// StopTarget derives the initial stop-loss and take-profit for a signal.
// Trend entries anchor the stop to the last confirmed swing and project
// the take-profit past the BB80 band; counter-trend entries use a tight
// ATR stop targeting the BB20 mid. The detected regime then scales the
// distances.
type StopTarget struct {
	cfg StopTargetConfig
}

// NewStopTarget creates the engine with the given parameters.
func NewStopTarget(cfg StopTargetConfig) *StopTarget {
	return &StopTarget{cfg: cfg}
}

// Derive returns (stopLoss, takeProfit) for the signal at snap. It fails
// with ErrRewardRisk when the resulting geometry pays less than the
// configured minimum per unit of risk, and with ErrDataUnavailable when a
// required input (swing, band, ATR) is missing from the snapshot.
func (st *StopTarget) Derive(sig domain.Signal, snap domain.IndicatorSnapshot) (float64, float64, error) {
	var stop, target float64
	var err error

	switch sig.TradeType {
	case domain.TradeTypeTrend:
		stop, target, err = st.trend(sig, snap)
	case domain.TradeTypeCounterTrend:
		stop, target, err = st.counterTrend(sig, snap)
	default:
		return 0, 0, fmt.Errorf("stop_target: unknown trade type %q: %w", sig.TradeType, domain.ErrDataUnavailable)
	}
	if err != nil {
		return 0, 0, err
	}

	stop, target = st.adaptToRegime(sig.Price, stop, target, snap.Regime)

	risk := sig.Price - stop
	reward := target - sig.Price
	if sig.Direction == domain.DirectionShort {
		risk, reward = -risk, -reward
	}
	if risk <= 0 {
		return 0, 0, fmt.Errorf("stop_target: stop %.6g on wrong side of entry %.6g: %w",
			stop, sig.Price, domain.ErrSizing)
	}
	if rr := reward / risk; rr < st.cfg.MinRewardRisk {
		return 0, 0, fmt.Errorf("stop_target: reward/risk %.2f below minimum %.2f: %w",
			rr, st.cfg.MinRewardRisk, domain.ErrRewardRisk)
	}
	return stop, target, nil
}

// trend: stop beyond the last confirmed swing, target one half band-width
// past the BB80 band in the trade direction.
func (st *StopTarget) trend(sig domain.Signal, snap domain.IndicatorSnapshot) (float64, float64, error) {
	width := snap.BB80Upper - snap.BB80Lower
	if width <= 0 {
		return 0, 0, fmt.Errorf("stop_target: bb80 bands unavailable: %w", domain.ErrDataUnavailable)
	}
	if sig.Direction == domain.DirectionLong {
		if snap.LastSwingLow.Price <= 0 {
			return 0, 0, fmt.Errorf("stop_target: no confirmed swing low: %w", domain.ErrDataUnavailable)
		}
		stop := snap.LastSwingLow.Price * (1 - st.cfg.SwingBuffer)
		target := snap.BB80Upper + width/2
		return stop, target, nil
	}
	if snap.LastSwingHigh.Price <= 0 {
		return 0, 0, fmt.Errorf("stop_target: no confirmed swing high: %w", domain.ErrDataUnavailable)
	}
	stop := snap.LastSwingHigh.Price * (1 + st.cfg.SwingBuffer)
	target := snap.BB80Lower - width/2
	return stop, target, nil
}

// counterTrend: tight ATR stop, mean-reversion target at the BB20 mid.
func (st *StopTarget) counterTrend(sig domain.Signal, snap domain.IndicatorSnapshot) (float64, float64, error) {
	if snap.ATR <= 0 || snap.BB20Mid <= 0 {
		return 0, 0, fmt.Errorf("stop_target: atr or bb20 mid unavailable: %w", domain.ErrDataUnavailable)
	}
	dist := st.cfg.CounterATRMult * snap.ATR
	if sig.Direction == domain.DirectionLong {
		return sig.Price - dist, snap.BB20Mid, nil
	}
	return sig.Price + dist, snap.BB20Mid, nil
}

// adaptToRegime rescales the stop and target distances around the entry:
// a range regime tightens both, a trend regime widens the target.
func (st *StopTarget) adaptToRegime(entry, stop, target float64, regime domain.Regime) (float64, float64) {
	switch regime {
	case domain.RegimeRange:
		stop = entry + (stop-entry)*st.cfg.RangeTighten
		target = entry + (target-entry)*st.cfg.RangeTighten
	case domain.RegimeTrend:
		target = entry + (target-entry)*st.cfg.TrendTPWiden
	}
	return stop, target
}
