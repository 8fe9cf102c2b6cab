package engine

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// SessionWindow is a daily UTC time window, minutes since midnight.
// Windows may wrap midnight (Start > End).
type SessionWindow struct {
	Start int
	End   int
}

// Contains reports whether t (UTC) falls inside the window.
func (w SessionWindow) Contains(t time.Time) bool {
	m := t.UTC().Hour()*60 + t.UTC().Minute()
	if w.Start <= w.End {
		return m >= w.Start && m < w.End
	}
	return m >= w.Start || m < w.End
}

// FilterConfig parameterizes the safety filter chain.
type FilterConfig struct {
	MinQuoteVolume    float64 // 24h quote volume floor
	MaxSpreadFraction float64 // (ask-bid)/mid ceiling
	MaxCorrelated     int     // open same-direction positions allowed

	// Sessions lists the windows trading is allowed in; empty means
	// always. Blackouts are carved out of the sessions.
	Sessions  []SessionWindow
	Blackouts []SessionWindow

	AllowCounterTrendInTrend bool
	AllowTrendInRange        bool
}

// DefaultFilterConfig returns permissive-but-safe gate settings.
func DefaultFilterConfig() FilterConfig {
	return FilterConfig{
		MinQuoteVolume:    5_000_000,
		MaxSpreadFraction: 0.001,
		MaxCorrelated:     3,
	}
}

// FilterChain gates a classified signal through the sequential safety
// checks. The first failing gate drops the signal; later gates are not
// evaluated.
type FilterChain struct {
	cfg    FilterConfig
	logger *slog.Logger
}

// NewFilterChain creates the chain with the given gate settings.
func NewFilterChain(cfg FilterConfig, logger *slog.Logger) *FilterChain {
	return &FilterChain{cfg: cfg, logger: logger.With(slog.String("component", "filter_chain"))}
}

// Check returns nil when the signal passes every gate, or an error naming
// the gate that dropped it.
func (f *FilterChain) Check(
	sig domain.Signal,
	stats domain.TickerStats,
	acct domain.AccountSnapshot,
	regime domain.Regime,
	now time.Time,
) error {
	if err := f.liquidity(stats); err != nil {
		return err
	}
	if err := f.correlation(sig, acct); err != nil {
		return err
	}
	if err := f.session(now); err != nil {
		return err
	}
	return f.regimeCompat(sig, regime)
}

func (f *FilterChain) liquidity(stats domain.TickerStats) error {
	if stats.QuoteVolume < f.cfg.MinQuoteVolume {
		return fmt.Errorf("filter: liquidity: 24h volume %.0f below minimum %.0f", stats.QuoteVolume, f.cfg.MinQuoteVolume)
	}
	if spread := stats.SpreadFraction(); spread > f.cfg.MaxSpreadFraction {
		return fmt.Errorf("filter: liquidity: spread %.5f above maximum %.5f", spread, f.cfg.MaxSpreadFraction)
	}
	return nil
}

func (f *FilterChain) correlation(sig domain.Signal, acct domain.AccountSnapshot) error {
	if n := acct.OpenSameDirection(sig.Direction); n >= f.cfg.MaxCorrelated {
		return fmt.Errorf("filter: correlation: %d open %s positions, limit %d", n, sig.Direction, f.cfg.MaxCorrelated)
	}
	return nil
}

func (f *FilterChain) session(now time.Time) error {
	for _, w := range f.cfg.Blackouts {
		if w.Contains(now) {
			return fmt.Errorf("filter: session: inside blackout window %02d:%02d-%02d:%02d",
				w.Start/60, w.Start%60, w.End/60, w.End%60)
		}
	}
	if len(f.cfg.Sessions) == 0 {
		return nil
	}
	for _, w := range f.cfg.Sessions {
		if w.Contains(now) {
			return nil
		}
	}
	return fmt.Errorf("filter: session: %s outside configured trading windows", now.UTC().Format("15:04"))
}

func (f *FilterChain) regimeCompat(sig domain.Signal, regime domain.Regime) error {
	switch {
	case sig.TradeType == domain.TradeTypeCounterTrend && regime == domain.RegimeTrend && !f.cfg.AllowCounterTrendInTrend:
		return fmt.Errorf("filter: regime: counter-trend signal during trend regime")
	case sig.TradeType == domain.TradeTypeTrend && regime == domain.RegimeRange && !f.cfg.AllowTrendInRange:
		return fmt.Errorf("filter: regime: trend signal during range regime")
	}
	return nil
}
