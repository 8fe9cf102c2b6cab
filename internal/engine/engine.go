package engine

import (
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// Config bundles the per-component settings of the lifecycle engine.
type Config struct {
	Classifier ClassifierConfig
	Filter     FilterConfig
	Sizer      SizerConfig
	StopTarget StopTargetConfig
	Trailing   TrailingConfig
	Pyramid    PyramidConfig
	Partial    PartialConfig
	Leverage   int
}

// DefaultConfig returns the standard engine parameters.
func DefaultConfig() Config {
	return Config{
		Classifier: DefaultClassifierConfig(),
		Filter:     DefaultFilterConfig(),
		Sizer:      DefaultSizerConfig(),
		StopTarget: DefaultStopTargetConfig(),
		Trailing:   DefaultTrailingConfig(),
		Pyramid:    DefaultPyramidConfig(),
		Partial:    DefaultPartialConfig(),
		Leverage:   3,
	}
}

// TickInput is everything one evaluation reads: the bar's indicator
// snapshot, market-quality stats, a consistent account-level snapshot,
// the symbol's exchange limits, and the currently open positions.
type TickInput struct {
	Symbol    string
	Snapshot  domain.IndicatorSnapshot
	Stats     domain.TickerStats
	Account   domain.AccountSnapshot
	Limits    domain.SymbolLimits
	Positions []*domain.Position
	Now       time.Time
}

// Engine is the position lifecycle core. EvaluateTick is a pure function
// of its input: it never touches stores or the exchange, mutates only
// clones of the passed-in positions, and reports everything it wants to
// happen as mutations and order requests for the orchestrator to commit.
type Engine struct {
	classifier *Classifier
	filters    *FilterChain
	sizer      *Sizer
	stops      *StopTarget
	trailing   *Trailing
	pyramid    *Pyramid
	partial    *Partial
	leverage   int
	logger     *slog.Logger
	newID      func() string
}

// New wires the engine from config.
func New(cfg Config, logger *slog.Logger) *Engine {
	return &Engine{
		classifier: NewClassifier(cfg.Classifier, logger),
		filters:    NewFilterChain(cfg.Filter, logger),
		sizer:      NewSizer(cfg.Sizer),
		stops:      NewStopTarget(cfg.StopTarget),
		trailing:   NewTrailing(cfg.Trailing),
		pyramid:    NewPyramid(cfg.Pyramid),
		partial:    NewPartial(cfg.Partial),
		leverage:   cfg.Leverage,
		logger:     logger.With(slog.String("component", "engine")),
		newID:      uuid.NewString,
	}
}

// SetIDSource replaces the request ID generator. Tests use a counter to
// make results fully comparable.
func (e *Engine) SetIDSource(f func() string) { e.newID = f }

// EvaluateTick runs one evaluation pass for the symbol. Open positions go
// through ladder → pyramid → partial in that order so an add is reflected
// before the same tick's exit math; a new-entry signal is only considered
// when the symbol has no open position.
func (e *Engine) EvaluateTick(in TickInput) domain.TickResult {
	res := domain.TickResult{Symbol: in.Symbol}

	hasOpen := false
	for _, p := range in.Positions {
		if p.Symbol != in.Symbol || p.Status != domain.PositionStatusOpen {
			continue
		}
		hasOpen = true
		e.evaluatePosition(p, in, &res)
	}

	if !hasOpen {
		e.evaluateEntry(in, &res)
	}
	return res
}

// evaluateEntry runs classifier → filter chain → stop/target → sizer and
// proposes a new position when everything passes.
func (e *Engine) evaluateEntry(in TickInput, res *domain.TickResult) {
	sig, ok := e.classifier.Classify(in.Snapshot)
	if !ok {
		return
	}

	log := e.logger.With(
		slog.String("symbol", in.Symbol),
		slog.String("direction", string(sig.Direction)),
		slog.String("trade_type", string(sig.TradeType)),
	)

	if err := e.filters.Check(sig, in.Stats, in.Account, in.Snapshot.Regime, in.Now); err != nil {
		log.Debug("signal dropped", slog.String("error", err.Error()))
		return
	}

	stop, target, err := e.stops.Derive(sig, in.Snapshot)
	if err != nil {
		log.Debug("stop/target derivation failed", slog.String("error", err.Error()))
		return
	}

	qty, err := e.sizer.Size(in.Account.Equity, sig.Price, stop, in.Limits)
	if err != nil {
		if !errors.Is(err, domain.ErrSizing) {
			log.Warn("sizing failed", slog.String("error", err.Error()))
		} else {
			log.Debug("signal dropped", slog.String("error", err.Error()))
		}
		return
	}

	pos := &domain.Position{
		ID:                e.newID(),
		Symbol:            in.Symbol,
		Direction:         sig.Direction,
		TradeType:         sig.TradeType,
		Regime:            in.Snapshot.Regime,
		Origin:            domain.OriginAutomatic,
		Status:            domain.PositionStatusOpen,
		Entries:           []domain.Entry{{Price: sig.Price, Quantity: qty, Time: in.Now}},
		InitialQuantity:   qty,
		RemainingQuantity: qty,
		StopLoss:          stop,
		TakeProfit:        target,
		Leverage:          e.leverage,
		OpenedAt:          in.Now,
	}
	res.NewPosition = pos

	res.Orders = append(res.Orders,
		e.order(pos, entrySide(pos.Direction), domain.OrderKindEntry, qty, 0, "", sig.Reason, in.Now),
		e.order(pos, exitSide(pos.Direction), domain.OrderKindStopUpdate, 0, stop, "", "initial protective stop", in.Now),
	)

	log.Info("new position proposed",
		slog.String("position_id", pos.ID),
		slog.Float64("quantity", qty),
		slog.Float64("stop_loss", stop),
		slog.Float64("take_profit", target),
	)
}

// evaluatePosition runs the fixed stage order on a clone of p and emits
// the resulting mutations and orders.
func (e *Engine) evaluatePosition(p *domain.Position, in TickInput, res *domain.TickResult) {
	clone := p.Clone()
	price := in.Snapshot.Price

	e.stageTrailing(clone, price, in.Snapshot.ATR, in, res)
	e.stagePyramid(clone, in, res)
	e.stagePartial(clone, price, in, res)
}

func (e *Engine) stageTrailing(clone *domain.Position, price, atr float64, in TickInput, res *domain.TickResult) {
	tr := e.trailing.Evaluate(clone, price, atr)
	if !tr.TierAdvanced && !tr.StopMoved {
		return
	}

	kind := domain.MutationStopTrail
	if tr.TierAdvanced {
		kind = domain.MutationTierAdvance
		if tr.NewTier == domain.TierBreakeven {
			kind = domain.MutationBreakeven
		}
	}
	res.Mutations = append(res.Mutations, domain.PositionMutation{
		PositionID: clone.ID,
		Kind:       kind,
		Tier:       tr.NewTier,
		StopLoss:   clone.StopLoss,
		Proposed:   clone.Clone(),
		Reason:     tr.Reason,
	})
	if tr.StopMoved {
		res.Orders = append(res.Orders,
			e.order(clone, exitSide(clone.Direction), domain.OrderKindStopUpdate, 0, clone.StopLoss, "", tr.Reason, in.Now))
	}
}

func (e *Engine) stagePyramid(clone *domain.Position, in TickInput, res *domain.TickResult) {
	add, ok := e.pyramid.Evaluate(clone, in.Snapshot)
	if !ok {
		return
	}

	clone.AddEntry(in.Snapshot.Price, add.Quantity, in.Now)
	if c := e.pyramid.ReanchorStop(clone, in.Snapshot); c != 0 {
		clone.ApplyStop(c)
	}

	res.Mutations = append(res.Mutations, domain.PositionMutation{
		PositionID: clone.ID,
		Kind:       domain.MutationPyramid,
		Quantity:   add.Quantity,
		StopLoss:   clone.StopLoss,
		Proposed:   clone.Clone(),
		Reason:     add.Reason,
	})
	ord := e.order(clone, entrySide(clone.Direction), domain.OrderKindEntry, add.Quantity, 0, "", add.Reason, in.Now)
	ord.Seq = clone.PyramidCount
	res.Orders = append(res.Orders, ord)
}

func (e *Engine) stagePartial(clone *domain.Position, price float64, in TickInput, res *domain.TickResult) {
	for _, exit := range e.partial.Evaluate(clone, price, in.Limits.MinQuantity) {
		if exit.Full {
			closed := clone.Clone()
			closed.Reduce(exit.Quantity)
			res.Mutations = append(res.Mutations, domain.PositionMutation{
				PositionID: clone.ID,
				Kind:       domain.MutationFullExit,
				Stage:      exit.Stage,
				Quantity:   exit.Quantity,
				Proposed:   closed,
				Reason:     exit.Reason,
			})
			res.Orders = append(res.Orders,
				e.order(clone, exitSide(clone.Direction), domain.OrderKindFullExit, exit.Quantity, 0, exit.Stage, exit.Reason, in.Now))
			return
		}

		clone.MarkPartial(exit.Stage, exit.Quantity)
		if floor := e.partial.StopAfter(clone, exit.Stage, e.trailing); floor != 0 {
			clone.ApplyStop(floor)
		}

		res.Mutations = append(res.Mutations, domain.PositionMutation{
			PositionID: clone.ID,
			Kind:       domain.MutationPartialExit,
			Stage:      exit.Stage,
			Quantity:   exit.Quantity,
			StopLoss:   clone.StopLoss,
			Proposed:   clone.Clone(),
			Reason:     exit.Reason,
		})
		res.Orders = append(res.Orders,
			e.order(clone, exitSide(clone.Direction), domain.OrderKindPartial, exit.Quantity, 0, exit.Stage, exit.Reason, in.Now))
	}
}

func (e *Engine) order(
	p *domain.Position,
	side domain.OrderSide,
	kind domain.OrderKind,
	qty, stopPrice float64,
	stage domain.PartialStage,
	reason string,
	now time.Time,
) domain.OrderRequest {
	return domain.OrderRequest{
		ID:         e.newID(),
		PositionID: p.ID,
		Symbol:     p.Symbol,
		Side:       side,
		Kind:       kind,
		Quantity:   qty,
		StopPrice:  stopPrice,
		Stage:      stage,
		Reason:     reason,
		CreatedAt:  now,
	}
}

func entrySide(d domain.Direction) domain.OrderSide {
	if d == domain.DirectionLong {
		return domain.OrderSideBuy
	}
	return domain.OrderSideSell
}

func exitSide(d domain.Direction) domain.OrderSide {
	if d == domain.DirectionLong {
		return domain.OrderSideSell
	}
	return domain.OrderSideBuy
}
