package handler

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// AccountReader provides the account view for the status endpoint.
type AccountReader interface {
	Snapshot(ctx context.Context) (domain.AccountSnapshot, error)
}

// StatusHandler serves the bot's runtime status for dashboards.
type StatusHandler struct {
	mode      string
	symbols   []string
	startedAt time.Time
	accounts  AccountReader
	logger    *slog.Logger
}

// NewStatusHandler creates a StatusHandler.
func NewStatusHandler(mode string, symbols []string, startedAt time.Time, accounts AccountReader, logger *slog.Logger) *StatusHandler {
	return &StatusHandler{
		mode:      mode,
		symbols:   symbols,
		startedAt: startedAt,
		accounts:  accounts,
		logger:    logger,
	}
}

// GetStatus reports the running mode, tracked symbols, uptime, and the
// current account snapshot.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"mode":           h.mode,
		"symbols":        h.symbols,
		"uptime_seconds": int64(time.Since(h.startedAt).Seconds()),
	}

	if h.accounts != nil {
		snap, err := h.accounts.Snapshot(r.Context())
		if err != nil {
			h.logger.WarnContext(r.Context(), "handler: account snapshot failed",
				slog.String("error", err.Error()),
			)
		} else {
			resp["equity"] = snap.Equity
			resp["open_long"] = snap.OpenByDirection[domain.DirectionLong]
			resp["open_short"] = snap.OpenByDirection[domain.DirectionShort]
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
