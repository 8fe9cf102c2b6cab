package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/swingbot/internal/domain"
	"github.com/alanyoungcy/swingbot/internal/engine"
	"github.com/alanyoungcy/swingbot/internal/market"
)

// StopPlan is the managed geometry reconstructed for a position the bot
// did not open itself.
type StopPlan struct {
	StopLoss   float64
	TakeProfit float64
	TradeType  domain.TradeType
	Regime     domain.Regime
}

// StopPlanner reconstructs stop/target geometry for an already-filled
// entry, so imported positions get the same trailing lifecycle as
// bot-opened ones.
type StopPlanner interface {
	Plan(ctx context.Context, symbol string, direction domain.Direction, entry float64) (StopPlan, error)
}

// snapshotStopPlanner derives the plan from a fresh indicator snapshot.
// The trade type follows the detected regime; when the trend geometry
// cannot anchor (no confirmed swing yet), it falls back to the tighter
// ATR-based geometry rather than leaving the position unmanaged.
type snapshotStopPlanner struct {
	exchange  domain.Exchange
	builder   *market.SnapshotBuilder
	stops     *engine.StopTarget
	timeframe string
	logger    *slog.Logger
}

// NewStopPlanner creates a planner that prices stops off live klines.
// The StopTarget should be built without a reward/risk floor: the entry
// is already filled, so rejecting its geometry helps nobody.
func NewStopPlanner(
	exchange domain.Exchange,
	builder *market.SnapshotBuilder,
	stops *engine.StopTarget,
	timeframe string,
	logger *slog.Logger,
) StopPlanner {
	return &snapshotStopPlanner{
		exchange:  exchange,
		builder:   builder,
		stops:     stops,
		timeframe: timeframe,
		logger:    logger.With(slog.String("component", "stop_planner")),
	}
}

func (p *snapshotStopPlanner) Plan(ctx context.Context, symbol string, direction domain.Direction, entry float64) (StopPlan, error) {
	candles, err := p.exchange.Klines(ctx, symbol, p.timeframe, p.builder.MinCandles()+20)
	if err != nil {
		return StopPlan{}, fmt.Errorf("stop_planner: fetch klines: %w", err)
	}
	snap, err := p.builder.Build(symbol, candles)
	if err != nil {
		return StopPlan{}, fmt.Errorf("stop_planner: build snapshot: %w", err)
	}

	sig := domain.Signal{
		Symbol:    symbol,
		Direction: direction,
		TradeType: domain.TradeTypeCounterTrend,
		Price:     entry,
		Time:      time.Now().UTC(),
		Reason:    "reconstructed for imported position",
	}
	if snap.Regime == domain.RegimeTrend {
		sig.TradeType = domain.TradeTypeTrend
	}

	stop, target, err := p.stops.Derive(sig, snap)
	if err != nil && sig.TradeType == domain.TradeTypeTrend {
		p.logger.Debug("trend geometry unavailable, trying counter-trend",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		sig.TradeType = domain.TradeTypeCounterTrend
		stop, target, err = p.stops.Derive(sig, snap)
	}
	if err != nil {
		return StopPlan{}, fmt.Errorf("stop_planner: derive %s %s: %w", symbol, direction, err)
	}

	return StopPlan{
		StopLoss:   stop,
		TakeProfit: target,
		TradeType:  sig.TradeType,
		Regime:     snap.Regime,
	}, nil
}
