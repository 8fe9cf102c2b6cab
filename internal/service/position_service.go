package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/swingbot/internal/domain"
	"github.com/alanyoungcy/swingbot/internal/notify"
)

// PositionService commits engine-proposed lifecycle changes to storage.
// Stop moves are committed as soon as the tick proposes them; quantity
// changes (entries, pyramid adds, exits) are committed only once the
// matching order fills.
// EventSink receives lifecycle events for live streaming, e.g. the
// dashboard WebSocket hub.
type EventSink interface {
	Broadcast(channel string, payload any)
}

type PositionService struct {
	positions domain.PositionStore
	trades    domain.TradeStore
	audit     domain.AuditStore
	notifier  *notify.Notifier
	events    EventSink
	logger    *slog.Logger
}

// NewPositionService creates a PositionService.
func NewPositionService(
	positions domain.PositionStore,
	trades domain.TradeStore,
	audit domain.AuditStore,
	logger *slog.Logger,
) *PositionService {
	return &PositionService{
		positions: positions,
		trades:    trades,
		audit:     audit,
		logger:    logger.With(slog.String("component", "position_service")),
	}
}

// SetNotifier enables lifecycle notifications. Delivery failures are
// logged, never propagated.
func (s *PositionService) SetNotifier(n *notify.Notifier) {
	s.notifier = n
}

// SetEventSink enables live event streaming.
func (s *PositionService) SetEventSink(sink EventSink) {
	s.events = sink
}

func (s *PositionService) emit(channel string, payload any) {
	if s.events != nil {
		s.events.Broadcast(channel, payload)
	}
}

func (s *PositionService) notify(ctx context.Context, event, title, message string) {
	if s.notifier == nil {
		return
	}
	if err := s.notifier.Notify(ctx, event, title, message); err != nil {
		s.logger.WarnContext(ctx, "notification failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// Open persists a freshly proposed position.
func (s *PositionService) Open(ctx context.Context, pos domain.Position) error {
	if err := s.positions.Create(ctx, pos); err != nil {
		return fmt.Errorf("position_service: create position %s: %w", pos.ID, err)
	}

	s.auditLog(ctx, "position_opened", map[string]any{
		"position_id": pos.ID,
		"symbol":      pos.Symbol,
		"direction":   string(pos.Direction),
		"trade_type":  string(pos.TradeType),
		"entry_price": pos.AvgEntryPrice(),
		"quantity":    pos.RemainingQuantity,
		"stop_loss":   pos.StopLoss,
		"take_profit": pos.TakeProfit,
	})

	s.logger.InfoContext(ctx, "position opened",
		slog.String("position_id", pos.ID),
		slog.String("symbol", pos.Symbol),
		slog.String("direction", string(pos.Direction)),
		slog.Float64("entry_price", pos.AvgEntryPrice()),
		slog.Float64("quantity", pos.RemainingQuantity),
	)
	s.emit("positions", pos)
	s.notify(ctx, "position_opened",
		fmt.Sprintf("Opened %s %s", pos.Direction, pos.Symbol),
		fmt.Sprintf("Entry: %.6g  Qty: %.6g\nStop: %.6g  Target: %.6g",
			pos.AvgEntryPrice(), pos.RemainingQuantity, pos.StopLoss, pos.TakeProfit),
	)
	return nil
}

// CommitStop persists a stop-only mutation (breakeven, tier advance, or
// trail). These need no fill: the proposed position is already the full
// next state.
func (s *PositionService) CommitStop(ctx context.Context, m domain.PositionMutation) error {
	if m.Proposed == nil {
		return fmt.Errorf("position_service: %s mutation for %s has no proposed state: %w",
			m.Kind, m.PositionID, domain.ErrInvariant)
	}
	if err := s.positions.Update(ctx, *m.Proposed); err != nil {
		return fmt.Errorf("position_service: commit %s for %s: %w", m.Kind, m.PositionID, err)
	}

	s.auditLog(ctx, "stop_moved", map[string]any{
		"position_id": m.PositionID,
		"kind":        string(m.Kind),
		"tier":        m.Tier.String(),
		"stop_loss":   m.StopLoss,
		"reason":      m.Reason,
	})
	s.emit("positions", *m.Proposed)
	return nil
}

// CommitPyramid persists a pyramid add once its entry order filled.
func (s *PositionService) CommitPyramid(ctx context.Context, m domain.PositionMutation, res domain.OrderResult) error {
	if m.Proposed == nil {
		return fmt.Errorf("position_service: pyramid mutation for %s has no proposed state: %w",
			m.PositionID, domain.ErrInvariant)
	}
	if err := s.positions.Update(ctx, *m.Proposed); err != nil {
		return fmt.Errorf("position_service: commit pyramid for %s: %w", m.PositionID, err)
	}

	s.auditLog(ctx, "pyramid_added", map[string]any{
		"position_id": m.PositionID,
		"quantity":    m.Quantity,
		"avg_price":   res.AvgPrice,
		"stop_loss":   m.Proposed.StopLoss,
		"reason":      m.Reason,
	})

	s.emit("positions", *m.Proposed)
	s.logger.InfoContext(ctx, "pyramid add filled",
		slog.String("position_id", m.PositionID),
		slog.Float64("quantity", m.Quantity),
		slog.Float64("avg_price", res.AvgPrice),
	)
	return nil
}

// CommitExit persists a partial or full exit once its reduce order
// filled, and records the closed-trade row at the actual fill price.
func (s *PositionService) CommitExit(ctx context.Context, m domain.PositionMutation, res domain.OrderResult) error {
	if m.Proposed == nil {
		return fmt.Errorf("position_service: %s mutation for %s has no proposed state: %w",
			m.Kind, m.PositionID, domain.ErrInvariant)
	}

	pos := *m.Proposed
	exitPrice := res.AvgPrice
	entryPrice := pos.AvgEntryPrice()
	pnl := realizedPnL(pos.Direction, entryPrice, exitPrice, m.Quantity)
	pos.RealizedPnL += pnl

	if err := s.positions.Update(ctx, pos); err != nil {
		return fmt.Errorf("position_service: commit %s for %s: %w", m.Kind, m.PositionID, err)
	}

	trade := domain.ClosedTrade{
		PositionID: pos.ID,
		Symbol:     pos.Symbol,
		Direction:  pos.Direction,
		TradeType:  pos.TradeType,
		Origin:     pos.Origin,
		EntryPrice: entryPrice,
		ExitPrice:  exitPrice,
		Quantity:   m.Quantity,
		PnL:        pnl,
		Stage:      exitStage(m),
		ClosedAt:   time.Now().UTC(),
	}
	if err := s.trades.Insert(ctx, trade); err != nil {
		s.logger.WarnContext(ctx, "trade record failed",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}

	s.auditLog(ctx, "position_reduced", map[string]any{
		"position_id": pos.ID,
		"kind":        string(m.Kind),
		"stage":       trade.Stage,
		"quantity":    m.Quantity,
		"exit_price":  exitPrice,
		"pnl":         pnl,
		"remaining":   pos.RemainingQuantity,
	})

	s.logger.InfoContext(ctx, "exit filled",
		slog.String("position_id", pos.ID),
		slog.String("stage", trade.Stage),
		slog.Float64("quantity", m.Quantity),
		slog.Float64("exit_price", exitPrice),
		slog.Float64("pnl", pnl),
	)
	s.emit("positions", pos)
	s.emit("trades", trade)
	s.notify(ctx, "position_reduced",
		fmt.Sprintf("Exit %s %s (%s)", pos.Direction, pos.Symbol, trade.Stage),
		fmt.Sprintf("Qty: %.6g @ %.6g\nPnL: %+.2f  Remaining: %.6g",
			m.Quantity, exitPrice, pnl, pos.RemainingQuantity),
	)
	return nil
}

// AbortEntry marks a never-filled position closed so a rejected entry
// order does not leave a phantom open row behind.
func (s *PositionService) AbortEntry(ctx context.Context, positionID, reason string) error {
	pos, err := s.positions.GetByID(ctx, positionID)
	if err != nil {
		return fmt.Errorf("position_service: abort entry %s: %w", positionID, err)
	}

	pos.Status = domain.PositionStatusClosed
	pos.RemainingQuantity = 0
	now := time.Now().UTC()
	pos.ClosedAt = &now

	if err := s.positions.Update(ctx, pos); err != nil {
		return fmt.Errorf("position_service: abort entry %s: %w", positionID, err)
	}

	s.auditLog(ctx, "entry_aborted", map[string]any{
		"position_id": positionID,
		"reason":      reason,
	})
	s.logger.WarnContext(ctx, "entry aborted",
		slog.String("position_id", positionID),
		slog.String("reason", reason),
	)
	return nil
}

// CloseAtStop marks a position closed after its venue stop fired, using
// the stop level as the exit price, and records the trade.
func (s *PositionService) CloseAtStop(ctx context.Context, pos domain.Position) error {
	exitPrice := pos.StopLoss
	quantity := pos.RemainingQuantity
	entryPrice := pos.AvgEntryPrice()
	pnl := realizedPnL(pos.Direction, entryPrice, exitPrice, quantity)

	pos.RealizedPnL += pnl
	pos.Status = domain.PositionStatusClosed
	pos.RemainingQuantity = 0
	now := time.Now().UTC()
	pos.ClosedAt = &now

	if err := s.positions.Update(ctx, pos); err != nil {
		return fmt.Errorf("position_service: close at stop %s: %w", pos.ID, err)
	}

	trade := domain.ClosedTrade{
		PositionID: pos.ID,
		Symbol:     pos.Symbol,
		Direction:  pos.Direction,
		TradeType:  pos.TradeType,
		Origin:     pos.Origin,
		EntryPrice: entryPrice,
		ExitPrice:  exitPrice,
		Quantity:   quantity,
		PnL:        pnl,
		Stage:      "stop_loss",
		ClosedAt:   now,
	}
	if err := s.trades.Insert(ctx, trade); err != nil {
		s.logger.WarnContext(ctx, "trade record failed",
			slog.String("position_id", pos.ID),
			slog.String("error", err.Error()),
		)
	}

	s.auditLog(ctx, "position_stopped", map[string]any{
		"position_id": pos.ID,
		"symbol":      pos.Symbol,
		"exit_price":  exitPrice,
		"pnl":         pnl,
	})

	s.logger.InfoContext(ctx, "position closed at stop",
		slog.String("position_id", pos.ID),
		slog.String("symbol", pos.Symbol),
		slog.Float64("exit_price", exitPrice),
		slog.Float64("pnl", pnl),
	)
	s.emit("positions", pos)
	s.emit("trades", trade)
	s.notify(ctx, "position_stopped",
		fmt.Sprintf("Stopped out %s %s", pos.Direction, pos.Symbol),
		fmt.Sprintf("Exit: %.6g  PnL: %+.2f", exitPrice, pnl),
	)
	return nil
}

// ListOpen returns every open position.
func (s *PositionService) ListOpen(ctx context.Context) ([]domain.Position, error) {
	positions, err := s.positions.ListOpen(ctx)
	if err != nil {
		return nil, fmt.Errorf("position_service: list open: %w", err)
	}
	return positions, nil
}

func (s *PositionService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

// realizedPnL is the direction-adjusted profit for closing quantity at
// exitPrice against entryPrice.
func realizedPnL(d domain.Direction, entryPrice, exitPrice, quantity float64) float64 {
	if d == domain.DirectionShort {
		return (entryPrice - exitPrice) * quantity
	}
	return (exitPrice - entryPrice) * quantity
}

// exitStage maps a mutation to the closed-trade stage label.
func exitStage(m domain.PositionMutation) string {
	if m.Kind == domain.MutationPartialExit {
		return string(m.Stage)
	}
	if strings.Contains(m.Reason, "stop") {
		return "stop_loss"
	}
	if strings.Contains(m.Reason, "minimum") || strings.Contains(m.Reason, "remainder") {
		return "manual"
	}
	return "take_profit"
}
