package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// AccountService keeps the cached equity snapshot fresh and assembles
// the account view a tick evaluation reads. Serving ticks from the
// cache keeps an exchange round-trip off the evaluation path.
type AccountService struct {
	exchange    domain.Exchange
	equity      domain.EquityCache
	positions   domain.PositionStore
	countManual bool
	interval    time.Duration
	logger      *slog.Logger
}

// NewAccountService creates an AccountService. countManual controls
// whether manually opened positions count against the correlation cap.
func NewAccountService(
	exchange domain.Exchange,
	equity domain.EquityCache,
	positions domain.PositionStore,
	countManual bool,
	interval time.Duration,
	logger *slog.Logger,
) *AccountService {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &AccountService{
		exchange:    exchange,
		equity:      equity,
		positions:   positions,
		countManual: countManual,
		interval:    interval,
		logger:      logger.With(slog.String("component", "account_service")),
	}
}

// Run refreshes the equity cache on the configured interval until the
// context is cancelled. One refresh happens immediately on start.
func (s *AccountService) Run(ctx context.Context) error {
	s.logger.Info("account service started", slog.Duration("interval", s.interval))
	defer s.logger.Info("account service stopped")

	if err := s.RefreshEquity(ctx); err != nil {
		s.logger.Warn("initial equity refresh failed", slog.String("error", err.Error()))
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.RefreshEquity(ctx); err != nil {
				s.logger.Warn("equity refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}

// RefreshEquity pulls equity from the exchange into the cache.
func (s *AccountService) RefreshEquity(ctx context.Context) error {
	equity, err := s.exchange.Equity(ctx)
	if err != nil {
		return fmt.Errorf("account_service: fetch equity: %w", err)
	}
	if err := s.equity.SetEquity(ctx, equity, time.Now().UTC()); err != nil {
		return fmt.Errorf("account_service: cache equity: %w", err)
	}
	return nil
}

// Snapshot builds the account view for one tick: cached equity (with a
// direct exchange fetch as fallback) plus open-position counts per
// direction for the correlation filter.
func (s *AccountService) Snapshot(ctx context.Context) (domain.AccountSnapshot, error) {
	equity, ts, err := s.equity.GetEquity(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.Warn("equity cache read failed", slog.String("error", err.Error()))
		}
		equity, err = s.exchange.Equity(ctx)
		if err != nil {
			return domain.AccountSnapshot{}, fmt.Errorf("account_service: equity unavailable: %w", err)
		}
		ts = time.Now().UTC()
	}

	open, err := s.positions.ListOpen(ctx)
	if err != nil {
		return domain.AccountSnapshot{}, fmt.Errorf("account_service: list open positions: %w", err)
	}

	byDirection := make(map[domain.Direction]int, 2)
	for _, pos := range open {
		if pos.Origin == domain.OriginManual && !s.countManual {
			continue
		}
		byDirection[pos.Direction]++
	}

	return domain.AccountSnapshot{
		Equity:          equity,
		Time:            ts,
		OpenByDirection: byDirection,
	}, nil
}
