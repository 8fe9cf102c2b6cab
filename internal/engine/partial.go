package engine

import (
	"fmt"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// PartialConfig parameterizes the staged profit-taking schedule.
type PartialConfig struct {
	Enabled     bool
	P50Progress float64 // first stage threshold
	P75Progress float64 // second stage threshold
	P50Fraction float64 // fraction of initial quantity closed at P50
	P75Fraction float64 // fraction of initial quantity closed at P75
}

// DefaultPartialConfig closes 40% at half progress and 30% at
// three-quarters, leaving the rest to run to the take-profit.
func DefaultPartialConfig() PartialConfig {
	return PartialConfig{
		Enabled:     true,
		P50Progress: 0.50,
		P75Progress: 0.75,
		P50Fraction: 0.40,
		P75Fraction: 0.30,
	}
}

// PartialExit is one scheduled exit decision.
type PartialExit struct {
	Stage    domain.PartialStage // empty for the terminal full close
	Quantity float64
	Full     bool
	Reason   string
}

// Partial schedules staged exits against progress. Fractions are taken
// of the initial quantity, never of what happens to remain, so the
// schedule is deterministic regardless of pyramid timing.
type Partial struct {
	cfg PartialConfig
}

// NewPartial creates the scheduler with the given schedule.
func NewPartial(cfg PartialConfig) *Partial {
	return &Partial{cfg: cfg}
}

// Evaluate returns the exits due at the given price, in stage order. The
// position is not mutated; the engine applies each exit to its clone
// before computing the next so a P50 fallback-to-full suppresses P75.
// minQty is the exchange's minimum order size: a partial that would
// strand less than that becomes a full exit.
func (pt *Partial) Evaluate(p *domain.Position, price, minQty float64) []PartialExit {
	if !pt.cfg.Enabled || p.Status != domain.PositionStatusOpen {
		return nil
	}
	progress := p.Progress(price)

	// Take-profit reached: terminal full close, partial bookkeeping moot.
	if progress >= 1.0 {
		return []PartialExit{{
			Quantity: p.RemainingQuantity,
			Full:     true,
			Reason:   fmt.Sprintf("take-profit reached at progress %.2f", progress),
		}}
	}

	var exits []PartialExit
	remaining := p.RemainingQuantity

	stage := func(st domain.PartialStage, threshold, fraction float64) bool {
		if progress < threshold || p.PartialDone(st) {
			return true
		}
		qty := fraction * p.InitialQuantity
		if qty >= remaining || remaining-qty < minQty {
			// Closing the scheduled slice would strand dust below the
			// exchange minimum: close everything instead.
			exits = append(exits, PartialExit{
				Stage:    st,
				Quantity: remaining,
				Full:     true,
				Reason:   fmt.Sprintf("%s would leave %.8g below minimum %.8g, closing full", st, remaining-qty, minQty),
			})
			return false
		}
		exits = append(exits, PartialExit{
			Stage:    st,
			Quantity: qty,
			Reason:   fmt.Sprintf("%s at progress %.2f", st, progress),
		})
		remaining -= qty
		return true
	}

	// P50 strictly before P75; a full-exit fallback stops the schedule.
	if !stage(domain.PartialP50, pt.cfg.P50Progress, pt.cfg.P50Fraction) {
		return exits
	}
	stage(domain.PartialP75, pt.cfg.P75Progress, pt.cfg.P75Fraction)
	return exits
}

// StopAfter returns the floor the stop must reach once a stage fills:
// breakeven after P50, the TIER_50 lock-in level after P75. The ladder's
// monotonicity check still applies on top.
func (pt *Partial) StopAfter(p *domain.Position, stage domain.PartialStage, trailing *Trailing) float64 {
	switch stage {
	case domain.PartialP50:
		return p.AvgEntryPrice()
	case domain.PartialP75:
		return trailing.lockIn(p, 0.50)
	default:
		return 0
	}
}
