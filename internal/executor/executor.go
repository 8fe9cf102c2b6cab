package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// OrderSubmitter is the interface through which the executor sends
// orders to the venue. It is typically implemented by the service layer,
// which also commits the resulting position state.
type OrderSubmitter interface {
	Submit(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error)
}

// ResultHandler is called after every submission attempt, successful or
// not, so the caller can persist fills and emit notifications.
type ResultHandler func(ctx context.Context, req domain.OrderRequest, res domain.OrderResult, err error)

// Executor reads order requests from a channel, applies deduplication,
// staleness, and rate-limit checks, then submits them through the
// OrderSubmitter. Rejected orders flagged retryable get a single retry.
type Executor struct {
	orderCh   <-chan domain.OrderRequest
	submitter OrderSubmitter
	limiter   domain.RateLimiter
	onResult  ResultHandler
	dedup     *Dedup
	logger    *slog.Logger

	maxAge          time.Duration
	cleanupInterval time.Duration

	rateLimit       int
	rateLimitWindow time.Duration
}

// NewExecutor creates an Executor that reads requests from orderCh and
// submits them via submitter. limiter may be nil when no distributed
// rate limiting is wanted (paper mode).
func NewExecutor(
	orderCh <-chan domain.OrderRequest,
	submitter OrderSubmitter,
	limiter domain.RateLimiter,
	onResult ResultHandler,
	logger *slog.Logger,
) *Executor {
	return &Executor{
		orderCh:         orderCh,
		submitter:       submitter,
		limiter:         limiter,
		onResult:        onResult,
		dedup:           NewDedup(2 * time.Minute),
		logger:          logger.With(slog.String("component", "executor")),
		maxAge:          30 * time.Second,
		cleanupInterval: 30 * time.Second,
		rateLimit:       10,
		rateLimitWindow: time.Second,
	}
}

// Run starts the executor's main loop. It processes requests until the
// context is cancelled, then drains anything still buffered in the
// channel so in-flight orders are not silently dropped.
func (e *Executor) Run(ctx context.Context) error {
	e.logger.Info("executor started")
	defer e.logger.Info("executor stopped")

	cleanupTicker := time.NewTicker(e.cleanupInterval)
	defer cleanupTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			e.drain()
			return ctx.Err()

		case req, ok := <-e.orderCh:
			if !ok {
				return nil
			}
			e.process(ctx, req)

		case <-cleanupTicker.C:
			e.dedup.Cleanup()
		}
	}
}

// process handles one order request through the full pipeline.
func (e *Executor) process(ctx context.Context, req domain.OrderRequest) {
	log := e.logger.With(
		slog.String("order_id", req.ID),
		slog.String("symbol", req.Symbol),
		slog.String("kind", string(req.Kind)),
		slog.String("side", string(req.Side)),
	)

	// 1. Deduplication. The same tick can be evaluated twice during a
	// restart; an already-seen order must not hit the venue again.
	if e.dedup.IsDuplicate(dedupKey(req)) {
		log.Debug("order deduplicated, skipping")
		return
	}

	// 2. Staleness. A market order priced off a half-minute-old tick is
	// a different trade than the engine intended.
	if !req.CreatedAt.IsZero() && time.Since(req.CreatedAt) > e.maxAge {
		log.Warn("order stale, skipping", slog.Time("created_at", req.CreatedAt))
		return
	}

	// 3. Venue rate limit.
	if e.limiter != nil {
		allowed, err := e.limiter.Allow(ctx, "orders", e.rateLimit, e.rateLimitWindow)
		if err != nil {
			log.Warn("rate limiter unavailable, proceeding", slog.String("error", err.Error()))
		} else if !allowed {
			if err := e.limiter.Wait(ctx, "orders"); err != nil {
				log.Warn("rate limit wait cancelled", slog.String("error", err.Error()))
				return
			}
		}
	}

	// 4. Submit.
	result, err := e.submitter.Submit(ctx, req)
	if err != nil && result.ShouldRetry {
		result, err = e.retry(ctx, req, log)
	}

	if e.onResult != nil {
		e.onResult(ctx, req, result, err)
	}

	switch {
	case err != nil && errors.Is(err, domain.ErrOrderRejected):
		log.Warn("order rejected",
			slog.String("message", result.Message),
			slog.Bool("should_retry", result.ShouldRetry),
		)
	case err != nil:
		log.Error("order submission failed", slog.String("error", err.Error()))
	default:
		log.Info("order submitted",
			slog.String("exchange_id", result.ExchangeID),
			slog.Float64("filled", result.FilledQuantity),
			slog.Float64("avg_price", result.AvgPrice),
		)
	}
}

// retry makes a single retry attempt after a short pause. Anything
// still failing after that is surfaced through the result handler.
func (e *Executor) retry(ctx context.Context, req domain.OrderRequest, log *slog.Logger) (domain.OrderResult, error) {
	select {
	case <-ctx.Done():
		return domain.OrderResult{}, ctx.Err()
	case <-time.After(500 * time.Millisecond):
	}

	log.Info("retrying order")
	result, err := e.submitter.Submit(ctx, req)
	if err != nil {
		log.Warn("retry also failed", slog.String("error", err.Error()))
	}
	return result, err
}

// drain processes requests already buffered in the channel after
// context cancellation. A short-lived context bounds each external call
// so shutdown cannot hang.
func (e *Executor) drain() {
	for {
		select {
		case req, ok := <-e.orderCh:
			if !ok {
				return
			}
			e.logger.Warn("draining order after shutdown", slog.String("order_id", req.ID))
			drainCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			e.process(drainCtx, req)
			cancel()
		default:
			return
		}
	}
}

// SetDedupTTL replaces the dedup instance with a new one using the
// given TTL. Must be called before Run.
func (e *Executor) SetDedupTTL(ttl time.Duration) {
	e.dedup = NewDedup(ttl)
}

// SetMaxAge changes the staleness cutoff. Must be called before Run.
func (e *Executor) SetMaxAge(d time.Duration) {
	e.maxAge = d
}

// SetRateLimit overrides the venue order rate limit. Must be called
// before Run.
func (e *Executor) SetRateLimit(limit int, window time.Duration) {
	e.rateLimit = limit
	e.rateLimitWindow = window
}

// dedupKey identifies an order by intent, not just ID: a partial-exit
// stage or a pyramid add for a position must execute at most once even
// if consecutive ticks emit it under two different IDs while the first
// order is still in flight.
func dedupKey(req domain.OrderRequest) string {
	switch req.Kind {
	case domain.OrderKindEntry:
		return fmt.Sprintf("%s:%s:%d", req.PositionID, req.Kind, req.Seq)
	case domain.OrderKindPartial:
		return fmt.Sprintf("%s:%s:%s", req.PositionID, req.Kind, req.Stage)
	case domain.OrderKindFullExit:
		return fmt.Sprintf("%s:%s", req.PositionID, req.Kind)
	default:
		return req.ID
	}
}
