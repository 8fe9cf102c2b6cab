package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/swingbot/internal/domain"
	"github.com/alanyoungcy/swingbot/internal/notify"
)

// SummaryService aggregates each UTC day's closed trades into a daily
// summary and delivers it through the notifier.
type SummaryService struct {
	trades   domain.TradeStore
	notifier *notify.Notifier
	hour     int
	logger   *slog.Logger
}

// NewSummaryService creates a SummaryService that reports at the given
// UTC hour.
func NewSummaryService(trades domain.TradeStore, notifier *notify.Notifier, hour int, logger *slog.Logger) *SummaryService {
	if hour < 0 || hour > 23 {
		hour = 0
	}
	return &SummaryService{
		trades:   trades,
		notifier: notifier,
		hour:     hour,
		logger:   logger.With(slog.String("component", "summary_service")),
	}
}

// Run sleeps until the next report time, summarizes the previous UTC
// day, and repeats until the context is cancelled.
func (s *SummaryService) Run(ctx context.Context) error {
	s.logger.Info("summary service started", slog.Int("hour_utc", s.hour))
	defer s.logger.Info("summary service stopped")

	for {
		next := s.nextReportTime(time.Now().UTC())
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Until(next)):
		}

		day := next.AddDate(0, 0, -1).Truncate(24 * time.Hour)
		if err := s.Report(ctx, day); err != nil {
			s.logger.Warn("daily summary failed", slog.String("error", err.Error()))
		}
	}
}

// Report builds and sends the summary for the UTC day starting at day.
func (s *SummaryService) Report(ctx context.Context, day time.Time) error {
	summary, err := s.Build(ctx, day)
	if err != nil {
		return err
	}

	if summary.Trades == 0 {
		s.logger.Info("no trades to summarize", slog.String("day", day.Format("2006-01-02")))
		return nil
	}

	title := fmt.Sprintf("Daily summary %s", summary.Date.Format("2006-01-02"))
	message := fmt.Sprintf(
		"Trades: %d\nWins: %d  Losses: %d  Win rate: %.0f%%\nGross PnL: %.2f\nBest symbol: %s (%.2f)",
		summary.Trades, summary.Wins, summary.Losses, summary.WinRate()*100,
		summary.GrossPnL, summary.BestSymbol, summary.BestPnL,
	)
	if err := s.notifier.Notify(ctx, "daily_summary", title, message); err != nil {
		return fmt.Errorf("summary_service: notify: %w", err)
	}
	return nil
}

// Build aggregates the closed trades of one UTC day.
func (s *SummaryService) Build(ctx context.Context, day time.Time) (domain.DailySummary, error) {
	from := day.UTC().Truncate(24 * time.Hour)
	until := from.AddDate(0, 0, 1)

	trades, err := s.trades.ListBetween(ctx, from, until)
	if err != nil {
		return domain.DailySummary{}, fmt.Errorf("summary_service: list trades: %w", err)
	}

	summary := domain.DailySummary{Date: from}
	bySymbol := make(map[string]float64)
	for _, t := range trades {
		summary.Trades++
		summary.GrossPnL += t.PnL
		bySymbol[t.Symbol] += t.PnL
		switch {
		case t.PnL > 0:
			summary.Wins++
		case t.PnL < 0:
			summary.Losses++
		}
	}

	first := true
	for sym, pnl := range bySymbol {
		if first || pnl > summary.BestPnL {
			summary.BestSymbol = sym
			summary.BestPnL = pnl
			first = false
		}
	}

	return summary, nil
}

// nextReportTime returns the next occurrence of the reporting hour
// strictly after now.
func (s *SummaryService) nextReportTime(now time.Time) time.Time {
	next := time.Date(now.Year(), now.Month(), now.Day(), s.hour, 0, 0, 0, time.UTC)
	if !next.After(now) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}
