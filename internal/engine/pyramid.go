package engine

import (
	"fmt"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// PyramidConfig parameterizes scaling into winners.
type PyramidConfig struct {
	MaxAdds     int     // lifetime pyramid adds per position
	MinProgress float64 // position must be in profit beyond this
	AddFraction float64 // add size as a fraction of the original first entry
	SwingBuffer float64 // stop buffer when a new swing re-anchors the stop
}

// DefaultPyramidConfig allows two adds of half the original size once the
// position is past the breakeven threshold.
func DefaultPyramidConfig() PyramidConfig {
	return PyramidConfig{
		MaxAdds:     2,
		MinProgress: 0.02,
		AddFraction: 0.5,
		SwingBuffer: 0.002,
	}
}

// Pyramid decides whether a position earns another entry. Triggers mirror
// the classifier's trend conditions but are only ever evaluated in the
// position's original direction.
type Pyramid struct {
	cfg PyramidConfig
}

// NewPyramid creates the controller with the given parameters.
func NewPyramid(cfg PyramidConfig) *Pyramid {
	return &Pyramid{cfg: cfg}
}

// PyramidResult describes an approved add.
type PyramidResult struct {
	Quantity float64
	Reason   string
}

// Evaluate checks the preconditions and returns the add, or ok=false.
// The position is not mutated here; the engine applies the add to its
// clone so the decision stays side-effect free.
func (py *Pyramid) Evaluate(p *domain.Position, snap domain.IndicatorSnapshot) (PyramidResult, bool) {
	if p.PyramidCount >= py.cfg.MaxAdds {
		return PyramidResult{}, false
	}
	if p.Progress(snap.Price) <= py.cfg.MinProgress {
		return PyramidResult{}, false
	}

	reason, ok := py.trigger(p, snap)
	if !ok {
		return PyramidResult{}, false
	}

	qty := py.cfg.AddFraction * p.FirstEntry().Quantity
	if qty <= 0 {
		return PyramidResult{}, false
	}
	return PyramidResult{Quantity: qty, Reason: reason}, true
}

// trigger: a fresh BB80 breakout or a freshly confirmed swing in the
// position's favor.
func (py *Pyramid) trigger(p *domain.Position, snap domain.IndicatorSnapshot) (string, bool) {
	if p.Direction == domain.DirectionLong {
		if snap.BB80Upper > 0 && snap.Price > snap.BB80Upper {
			return fmt.Sprintf("fresh bb80 breakout %.6g > %.6g", snap.Price, snap.BB80Upper), true
		}
		if snap.NewSwingHigh && snap.PrevSwingHigh.Price > 0 && snap.LastSwingHigh.Price > snap.PrevSwingHigh.Price {
			return fmt.Sprintf("new swing high %.6g", snap.LastSwingHigh.Price), true
		}
		return "", false
	}
	if snap.BB80Lower > 0 && snap.Price < snap.BB80Lower {
		return fmt.Sprintf("fresh bb80 breakdown %.6g < %.6g", snap.Price, snap.BB80Lower), true
	}
	if snap.NewSwingLow && snap.PrevSwingLow.Price > 0 && snap.LastSwingLow.Price < snap.PrevSwingLow.Price {
		return fmt.Sprintf("new swing low %.6g", snap.LastSwingLow.Price), true
	}
	return "", false
}

// ReanchorStop returns a stop candidate from a freshly confirmed swing in
// the position's favor, or 0 when the snapshot carries none. A new swing
// materially changes the stop engine's input; everything else keeps the
// existing SL/TP and leaves tightening to the trailing ladder.
func (py *Pyramid) ReanchorStop(p *domain.Position, snap domain.IndicatorSnapshot) float64 {
	if p.Direction == domain.DirectionLong {
		if snap.NewSwingLow && snap.LastSwingLow.Price > 0 {
			return snap.LastSwingLow.Price * (1 - py.cfg.SwingBuffer)
		}
		return 0
	}
	if snap.NewSwingHigh && snap.LastSwingHigh.Price > 0 {
		return snap.LastSwingHigh.Price * (1 + py.cfg.SwingBuffer)
	}
	return 0
}
