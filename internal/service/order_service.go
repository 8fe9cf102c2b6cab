package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// OrderService submits order requests to the exchange and audit-logs
// every attempt. It implements executor.OrderSubmitter.
type OrderService struct {
	exchange domain.Exchange
	audit    domain.AuditStore
	logger   *slog.Logger
}

// NewOrderService creates an OrderService.
func NewOrderService(exchange domain.Exchange, audit domain.AuditStore, logger *slog.Logger) *OrderService {
	return &OrderService{
		exchange: exchange,
		audit:    audit,
		logger:   logger.With(slog.String("component", "order_service")),
	}
}

// Submit sends one order to the venue. The audit row is written for
// both outcomes so the log reconstructs every venue interaction.
func (s *OrderService) Submit(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	result, err := s.exchange.SubmitOrder(ctx, req)

	detail := map[string]any{
		"order_id":    req.ID,
		"position_id": req.PositionID,
		"symbol":      req.Symbol,
		"kind":        string(req.Kind),
		"side":        string(req.Side),
		"quantity":    req.Quantity,
		"stop_price":  req.StopPrice,
		"reason":      req.Reason,
		"success":     result.Success,
		"exchange_id": result.ExchangeID,
	}
	if err != nil {
		detail["error"] = err.Error()
	}
	if auditErr := s.audit.Log(ctx, "order_submitted", detail); auditErr != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("order_id", req.ID),
			slog.String("error", auditErr.Error()),
		)
	}

	if err != nil {
		return result, fmt.Errorf("order_service: submit %s %s: %w", req.Kind, req.Symbol, err)
	}
	return result, nil
}
