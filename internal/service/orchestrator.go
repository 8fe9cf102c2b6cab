package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/swingbot/internal/domain"
	"github.com/alanyoungcy/swingbot/internal/engine"
	"github.com/alanyoungcy/swingbot/internal/market"
)

// pendingMutation pairs an in-flight order with the position state to
// commit once it fills.
type pendingMutation struct {
	mutation domain.PositionMutation
	entry    bool // new-position entry order, aborted on failure
	queuedAt time.Time
}

// Orchestrator drives the evaluation loop: every tick interval it
// assembles a TickInput per symbol, runs the engine, commits stop-only
// mutations, and hands orders to the executor. Quantity-changing
// mutations are parked until their order's result comes back.
type Orchestrator struct {
	engine      *engine.Engine
	builder     *market.SnapshotBuilder
	exchange    domain.Exchange
	accounts    *AccountService
	positionSvc *PositionService
	positions   domain.PositionStore
	prices      domain.PriceCache
	locks       domain.LockManager
	orderCh     chan<- domain.OrderRequest
	logger      *slog.Logger

	symbols       []string
	timeframe     string
	interval      time.Duration
	maxCorrelated int

	// openMu serializes the correlation re-check against the open, so
	// sibling symbol ticks cannot both consume the last slot.
	openMu sync.Mutex

	mu      sync.Mutex
	pending map[string]pendingMutation
}

// OrchestratorConfig bundles the orchestrator's collaborators.
type OrchestratorConfig struct {
	Engine        *engine.Engine
	Builder       *market.SnapshotBuilder
	Exchange      domain.Exchange
	Accounts      *AccountService
	PositionSvc   *PositionService
	Positions     domain.PositionStore
	Prices        domain.PriceCache
	Locks         domain.LockManager // optional, serializes ticks across instances
	OrderCh       chan<- domain.OrderRequest
	Symbols       []string
	Timeframe     string
	Interval      time.Duration
	MaxCorrelated int // same-direction open cap re-checked at open time; 0 disables
}

// NewOrchestrator creates an Orchestrator.
func NewOrchestrator(cfg OrchestratorConfig, logger *slog.Logger) *Orchestrator {
	interval := cfg.Interval
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Orchestrator{
		engine:        cfg.Engine,
		builder:       cfg.Builder,
		exchange:      cfg.Exchange,
		accounts:      cfg.Accounts,
		positionSvc:   cfg.PositionSvc,
		positions:     cfg.Positions,
		prices:        cfg.Prices,
		locks:         cfg.Locks,
		orderCh:       cfg.OrderCh,
		symbols:       cfg.Symbols,
		timeframe:     cfg.Timeframe,
		interval:      interval,
		maxCorrelated: cfg.MaxCorrelated,
		logger:        logger.With(slog.String("component", "orchestrator")),
		pending:       make(map[string]pendingMutation),
	}
}

// Run starts one evaluation loop per symbol and blocks until the
// context is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("orchestrator started",
		slog.Int("symbols", len(o.symbols)),
		slog.Duration("interval", o.interval),
	)
	defer o.logger.Info("orchestrator stopped")

	g, ctx := errgroup.WithContext(ctx)
	for _, symbol := range o.symbols {
		g.Go(func() error {
			return o.runSymbol(ctx, symbol)
		})
	}
	return g.Wait()
}

func (o *Orchestrator) runSymbol(ctx context.Context, symbol string) error {
	ticker := time.NewTicker(o.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := o.EvaluateSymbol(ctx, symbol); err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				o.logger.Warn("tick evaluation failed",
					slog.String("symbol", symbol),
					slog.String("error", err.Error()),
				)
			}
			o.purgePending()
		}
	}
}

// EvaluateSymbol runs one evaluation pass for symbol.
func (o *Orchestrator) EvaluateSymbol(ctx context.Context, symbol string) error {
	if o.locks != nil {
		unlock, err := o.locks.Acquire(ctx, "tick:"+symbol, o.interval)
		if errors.Is(err, domain.ErrLockHeld) {
			// Another instance owns this tick.
			return nil
		}
		if err != nil {
			return fmt.Errorf("orchestrator: acquire tick lock: %w", err)
		}
		defer unlock()
	}

	input, err := o.buildInput(ctx, symbol)
	if err != nil {
		return err
	}

	result := o.engine.EvaluateTick(input)
	return o.dispatch(ctx, result)
}

// buildInput gathers everything one evaluation reads.
func (o *Orchestrator) buildInput(ctx context.Context, symbol string) (engine.TickInput, error) {
	limits, err := o.exchange.Limits(ctx, symbol)
	if err != nil {
		return engine.TickInput{}, fmt.Errorf("orchestrator: limits %s: %w", symbol, err)
	}

	// A couple of extra candles beyond the indicator minimum keeps the
	// swing scan from running right at the edge.
	candles, err := o.exchange.Klines(ctx, symbol, o.timeframe, o.builder.MinCandles()+20)
	if err != nil {
		return engine.TickInput{}, fmt.Errorf("orchestrator: klines %s: %w", symbol, err)
	}

	snapshot, err := o.builder.Build(symbol, candles)
	if err != nil {
		return engine.TickInput{}, err
	}

	// The mark-price stream is fresher than the last candle close, so
	// prefer it for intra-candle stop and ladder checks.
	if o.prices != nil {
		if mark, ts, err := o.prices.GetPrice(ctx, symbol); err == nil && mark > 0 {
			if len(candles) == 0 || ts.After(candles[len(candles)-1].CloseTime) {
				snapshot.Price = mark
			}
		}
	}

	stats, err := o.exchange.Ticker(ctx, symbol)
	if err != nil {
		return engine.TickInput{}, fmt.Errorf("orchestrator: ticker %s: %w", symbol, err)
	}

	account, err := o.accounts.Snapshot(ctx)
	if err != nil {
		return engine.TickInput{}, err
	}

	stored, err := o.positions.ListOpenBySymbol(ctx, symbol)
	if err != nil {
		return engine.TickInput{}, fmt.Errorf("orchestrator: open positions %s: %w", symbol, err)
	}
	open := make([]*domain.Position, len(stored))
	for i := range stored {
		open[i] = &stored[i]
	}

	return engine.TickInput{
		Symbol:    symbol,
		Snapshot:  snapshot,
		Stats:     stats,
		Account:   account,
		Limits:    limits,
		Positions: open,
		Now:       time.Now().UTC(),
	}, nil
}

// openNew persists a freshly staged position after re-checking the
// same-direction cap under openMu. Symbol goroutines evaluate against
// snapshots taken before their siblings committed, so the count seen at
// staging time can be stale by the time the open lands.
func (o *Orchestrator) openNew(ctx context.Context, pos *domain.Position) (bool, error) {
	o.openMu.Lock()
	defer o.openMu.Unlock()

	if o.maxCorrelated > 0 {
		account, err := o.accounts.Snapshot(ctx)
		if err != nil {
			return false, fmt.Errorf("service: open recheck: %w", err)
		}
		if account.OpenByDirection[pos.Direction] >= o.maxCorrelated {
			o.logger.Warn("open skipped, correlation cap reached",
				slog.String("symbol", pos.Symbol),
				slog.String("direction", string(pos.Direction)),
				slog.Int("max_correlated", o.maxCorrelated),
			)
			return false, nil
		}
	}

	if err := o.positionSvc.Open(ctx, *pos); err != nil {
		return false, err
	}
	return true, nil
}

// dispatch commits what needs no fill, parks what does, and queues the
// tick's orders.
func (o *Orchestrator) dispatch(ctx context.Context, result domain.TickResult) error {
	if result.NewPosition != nil {
		opened, err := o.openNew(ctx, result.NewPosition)
		if err != nil {
			return err
		}
		if !opened {
			// Drop the entry and its protective stop along with the
			// position; the remaining mutations touch other positions.
			kept := result.Orders[:0]
			for _, req := range result.Orders {
				if req.PositionID != result.NewPosition.ID {
					kept = append(kept, req)
				}
			}
			result.Orders = kept
			result.NewPosition = nil
		}
	}

	for _, m := range result.Mutations {
		switch m.Kind {
		case domain.MutationBreakeven, domain.MutationTierAdvance, domain.MutationStopTrail:
			if err := o.positionSvc.CommitStop(ctx, m); err != nil {
				o.logger.Error("stop commit failed",
					slog.String("position_id", m.PositionID),
					slog.String("error", err.Error()),
				)
			}
		}
	}

	now := time.Now()
	for _, req := range result.Orders {
		if m, ok := mutationForOrder(result, req); ok {
			o.mu.Lock()
			o.pending[req.ID] = pendingMutation{mutation: m, queuedAt: now}
			o.mu.Unlock()
		} else if result.NewPosition != nil && req.Kind == domain.OrderKindEntry &&
			req.PositionID == result.NewPosition.ID {
			o.mu.Lock()
			o.pending[req.ID] = pendingMutation{entry: true, queuedAt: now}
			o.mu.Unlock()
		}

		select {
		case o.orderCh <- req:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// HandleResult is the executor's result callback: it commits parked
// mutations on fill and rolls back rejected entries.
func (o *Orchestrator) HandleResult(ctx context.Context, req domain.OrderRequest, res domain.OrderResult, err error) {
	o.mu.Lock()
	parked, ok := o.pending[req.ID]
	delete(o.pending, req.ID)
	o.mu.Unlock()
	if !ok {
		return
	}

	if parked.entry {
		if err != nil || !res.Success {
			reason := res.Message
			if err != nil {
				reason = err.Error()
			}
			if abortErr := o.positionSvc.AbortEntry(ctx, req.PositionID, reason); abortErr != nil {
				o.logger.Error("entry abort failed",
					slog.String("position_id", req.PositionID),
					slog.String("error", abortErr.Error()),
				)
			}
		}
		return
	}

	if err != nil || !res.Success {
		// The position state is unchanged, so the next tick re-proposes
		// the same mutation.
		o.logger.Warn("mutation order failed, state not committed",
			slog.String("position_id", req.PositionID),
			slog.String("kind", string(req.Kind)),
		)
		return
	}

	var commitErr error
	switch parked.mutation.Kind {
	case domain.MutationPyramid:
		commitErr = o.positionSvc.CommitPyramid(ctx, parked.mutation, res)
	case domain.MutationPartialExit, domain.MutationFullExit:
		commitErr = o.positionSvc.CommitExit(ctx, parked.mutation, res)
	}
	if commitErr != nil {
		o.logger.Error("mutation commit failed",
			slog.String("position_id", req.PositionID),
			slog.String("kind", string(parked.mutation.Kind)),
			slog.String("error", commitErr.Error()),
		)
	}
}

// purgePending drops parked mutations whose orders never produced a
// result (deduplicated or dropped as stale by the executor).
func (o *Orchestrator) purgePending() {
	cutoff := time.Now().Add(-10 * time.Minute)
	o.mu.Lock()
	defer o.mu.Unlock()
	for id, p := range o.pending {
		if p.queuedAt.Before(cutoff) {
			delete(o.pending, id)
		}
	}
}

// mutationForOrder pairs an order request with the mutation it
// executes. Stop updates commit without a fill and entry orders for new
// positions are handled separately, so neither matches here.
func mutationForOrder(result domain.TickResult, req domain.OrderRequest) (domain.PositionMutation, bool) {
	for _, m := range result.Mutations {
		if m.PositionID != req.PositionID {
			continue
		}
		switch {
		case m.Kind == domain.MutationPyramid && req.Kind == domain.OrderKindEntry:
			return m, true
		case m.Kind == domain.MutationPartialExit && req.Kind == domain.OrderKindPartial && m.Stage == req.Stage:
			return m, true
		case m.Kind == domain.MutationFullExit && req.Kind == domain.OrderKindFullExit:
			return m, true
		}
	}
	return domain.PositionMutation{}, false
}
