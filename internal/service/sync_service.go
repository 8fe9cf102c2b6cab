package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// SyncService reconciles stored positions against the exchange at
// startup. Stops fire on the venue while the bot is down, so a stored
// open position the exchange no longer holds must be closed out, and a
// position the exchange holds that we never opened can be imported for
// tracking.
type SyncService struct {
	exchange     domain.Exchange
	positions    domain.PositionStore
	positionSvc  *PositionService
	audit        domain.AuditStore
	planner      StopPlanner
	importManual bool
	logger       *slog.Logger
}

// NewSyncService creates a SyncService. importManual controls whether
// unknown exchange positions are imported as manual ones; the planner
// reconstructs their stop/target geometry so the engine manages them.
func NewSyncService(
	exchange domain.Exchange,
	positions domain.PositionStore,
	positionSvc *PositionService,
	audit domain.AuditStore,
	planner StopPlanner,
	importManual bool,
	logger *slog.Logger,
) *SyncService {
	return &SyncService{
		exchange:     exchange,
		positions:    positions,
		positionSvc:  positionSvc,
		audit:        audit,
		planner:      planner,
		importManual: importManual,
		logger:       logger.With(slog.String("component", "sync_service")),
	}
}

// Reconcile aligns the position store with the exchange and returns
// how many ghosts were closed and how many positions were imported.
func (s *SyncService) Reconcile(ctx context.Context) (closed, imported int, err error) {
	exchPositions, err := s.exchange.OpenPositions(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("sync_service: fetch exchange positions: %w", err)
	}
	stored, err := s.positions.ListOpen(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("sync_service: list stored positions: %w", err)
	}

	type key struct {
		symbol    string
		direction domain.Direction
	}
	onExchange := make(map[key]domain.ExchangePosition, len(exchPositions))
	for _, ep := range exchPositions {
		onExchange[key{ep.Symbol, ep.Direction}] = ep
	}
	inStore := make(map[key]bool, len(stored))

	// Stored-open but exchange-flat: the venue stop fired while we were
	// away. Close at the recorded stop level.
	for _, pos := range stored {
		k := key{pos.Symbol, pos.Direction}
		inStore[k] = true
		if _, ok := onExchange[k]; ok {
			continue
		}

		s.logger.Warn("stored position not on exchange, closing at stop",
			slog.String("position_id", pos.ID),
			slog.String("symbol", pos.Symbol),
		)
		if err := s.positionSvc.CloseAtStop(ctx, pos); err != nil {
			s.logger.Error("ghost close failed",
				slog.String("position_id", pos.ID),
				slog.String("error", err.Error()),
			)
			continue
		}
		closed++
	}

	// Exchange-open but unknown to the store: import for tracking when
	// configured, so correlation limits and status reporting see it.
	for k, ep := range onExchange {
		if inStore[k] {
			continue
		}
		if !s.importManual {
			s.logger.Warn("unknown exchange position, not importing",
				slog.String("symbol", ep.Symbol),
				slog.String("direction", string(ep.Direction)),
				slog.Float64("quantity", ep.Quantity),
			)
			continue
		}
		if err := s.importPosition(ctx, ep); err != nil {
			s.logger.Error("manual import failed",
				slog.String("symbol", ep.Symbol),
				slog.String("error", err.Error()),
			)
			continue
		}
		imported++
	}

	s.logger.Info("reconcile complete",
		slog.Int("ghosts_closed", closed),
		slog.Int("imported", imported),
	)
	return closed, imported, nil
}

// importPosition records an exchange position the bot did not open,
// reconstructing its stop/target so the trailing lifecycle applies. If
// the plan cannot be derived the position is imported with zero
// geometry and the engine only tracks it.
func (s *SyncService) importPosition(ctx context.Context, ep domain.ExchangePosition) error {
	plan, planErr := s.planner.Plan(ctx, ep.Symbol, ep.Direction, ep.EntryPrice)
	if planErr != nil {
		s.logger.Warn("stop plan failed, importing unmanaged",
			slog.String("symbol", ep.Symbol),
			slog.String("direction", string(ep.Direction)),
			slog.String("error", planErr.Error()),
		)
		plan = StopPlan{TradeType: domain.TradeTypeTrend}
	}

	now := time.Now().UTC()
	pos := domain.Position{
		ID:        uuid.New().String(),
		Symbol:    ep.Symbol,
		Direction: ep.Direction,
		TradeType: plan.TradeType,
		Origin:    domain.OriginManual,
		Status:    domain.PositionStatusOpen,
		Regime:    plan.Regime,
		Entries: []domain.Entry{
			{Price: ep.EntryPrice, Quantity: ep.Quantity, Time: now},
		},
		InitialQuantity:   ep.Quantity,
		RemainingQuantity: ep.Quantity,
		StopLoss:          plan.StopLoss,
		TakeProfit:        plan.TakeProfit,
		Leverage:          ep.Leverage,
		OpenedAt:          now,
	}

	if err := s.positions.Create(ctx, pos); err != nil {
		return fmt.Errorf("create imported position: %w", err)
	}

	if err := s.audit.Log(ctx, "position_imported", map[string]any{
		"position_id": pos.ID,
		"symbol":      pos.Symbol,
		"direction":   string(pos.Direction),
		"entry_price": ep.EntryPrice,
		"quantity":    ep.Quantity,
	}); err != nil {
		s.logger.WarnContext(ctx, "audit log failed", slog.String("error", err.Error()))
	}

	s.logger.Info("manual position imported",
		slog.String("position_id", pos.ID),
		slog.String("symbol", pos.Symbol),
		slog.String("direction", string(pos.Direction)),
		slog.Float64("quantity", ep.Quantity),
	)
	return nil
}
