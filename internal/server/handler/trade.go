package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// TradeReader defines the queries the trade handler needs.
type TradeReader interface {
	ListBySymbol(ctx context.Context, symbol string, opts domain.ListOpts) ([]domain.ClosedTrade, error)
}

// SummaryBuilder builds the daily summary for one UTC day.
type SummaryBuilder interface {
	Build(ctx context.Context, day time.Time) (domain.DailySummary, error)
}

// TradeHandler serves trade-history and summary endpoints.
type TradeHandler struct {
	trades  TradeReader
	summary SummaryBuilder
	logger  *slog.Logger
}

// NewTradeHandler creates a TradeHandler.
func NewTradeHandler(trades TradeReader, summary SummaryBuilder, logger *slog.Logger) *TradeHandler {
	return &TradeHandler{
		trades:  trades,
		summary: summary,
		logger:  logger,
	}
}

type listTradesResponse struct {
	Trades []domain.ClosedTrade `json:"trades"`
}

// ListTrades returns closed trades, optionally filtered by symbol.
// GET /api/trades?symbol=BTCUSDT&limit=50&offset=0
func (h *TradeHandler) ListTrades(w http.ResponseWriter, r *http.Request) {
	symbol := r.URL.Query().Get("symbol")
	opts := parseListOpts(r)

	trades, err := h.trades.ListBySymbol(r.Context(), symbol, opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list trades failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list trades")
		return
	}

	if trades == nil {
		trades = []domain.ClosedTrade{}
	}
	writeJSON(w, http.StatusOK, listTradesResponse{Trades: trades})
}

// GetDailySummary returns the aggregated summary for one UTC day.
// GET /api/summary/daily?date=2026-08-27 (defaults to today)
func (h *TradeHandler) GetDailySummary(w http.ResponseWriter, r *http.Request) {
	day := time.Now().UTC().Truncate(24 * time.Hour)
	if v := r.URL.Query().Get("date"); v != "" {
		parsed, err := time.Parse("2006-01-02", v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		day = parsed
	}

	summary, err := h.summary.Build(r.Context(), day)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: daily summary failed",
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to build summary")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}
