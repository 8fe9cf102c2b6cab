package engine

import (
	"fmt"
	"math"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// SizerConfig holds the risk-per-trade setting.
type SizerConfig struct {
	RiskFraction float64 // fraction of equity risked per trade, 0.01-0.02
}

// DefaultSizerConfig risks 1% of equity per trade.
func DefaultSizerConfig() SizerConfig {
	return SizerConfig{RiskFraction: 0.01}
}

// Sizer converts equity, risk fraction, and stop distance into an entry
// quantity, enforcing the exchange's lot and notional floors. Violations
// surface as ErrSizing rather than being rounded up silently.
type Sizer struct {
	cfg SizerConfig
}

// NewSizer creates a sizer with the given risk fraction.
func NewSizer(cfg SizerConfig) *Sizer {
	return &Sizer{cfg: cfg}
}

// Size returns the order quantity for a new entry.
func (s *Sizer) Size(equity, entryPrice, stopLoss float64, limits domain.SymbolLimits) (float64, error) {
	stopDistance := math.Abs(entryPrice - stopLoss)
	if stopDistance <= 0 {
		return 0, fmt.Errorf("sizer: stop distance is zero (entry %.6g, stop %.6g): %w",
			entryPrice, stopLoss, domain.ErrSizing)
	}
	if equity <= 0 {
		return 0, fmt.Errorf("sizer: non-positive equity %.2f: %w", equity, domain.ErrSizing)
	}

	qty := equity * s.cfg.RiskFraction / stopDistance
	qty = RoundToStep(qty, limits.StepSize)

	if limits.MinQuantity > 0 && qty < limits.MinQuantity {
		return 0, fmt.Errorf("sizer: quantity %.8g below lot minimum %.8g: %w",
			qty, limits.MinQuantity, domain.ErrSizing)
	}
	if limits.MinNotional > 0 && qty*entryPrice < limits.MinNotional {
		return 0, fmt.Errorf("sizer: notional %.2f below exchange minimum %.2f: %w",
			qty*entryPrice, limits.MinNotional, domain.ErrSizing)
	}
	return qty, nil
}

// RoundToStep floors q to a multiple of step. A zero step passes q through.
func RoundToStep(q, step float64) float64 {
	if step <= 0 {
		return q
	}
	return math.Floor(q/step) * step
}
