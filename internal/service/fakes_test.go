package service

import (
	"context"
	"sync"
	"time"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

type fakePositionStore struct {
	mu        sync.Mutex
	positions map[string]domain.Position
	createErr error
	updateErr error
}

func newFakePositionStore() *fakePositionStore {
	return &fakePositionStore{positions: make(map[string]domain.Position)}
}

func (s *fakePositionStore) Create(_ context.Context, pos domain.Position) error {
	if s.createErr != nil {
		return s.createErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[pos.ID] = pos
	return nil
}

func (s *fakePositionStore) Update(_ context.Context, pos domain.Position) error {
	if s.updateErr != nil {
		return s.updateErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.positions[pos.ID]; !ok {
		return domain.ErrNotFound
	}
	s.positions[pos.ID] = pos
	return nil
}

func (s *fakePositionStore) GetByID(_ context.Context, id string) (domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	pos, ok := s.positions[id]
	if !ok {
		return domain.Position{}, domain.ErrNotFound
	}
	return pos, nil
}

func (s *fakePositionStore) ListOpen(_ context.Context) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.Position
	for _, pos := range s.positions {
		if pos.Status == domain.PositionStatusOpen {
			out = append(out, pos)
		}
	}
	return out, nil
}

func (s *fakePositionStore) ListOpenBySymbol(ctx context.Context, symbol string) ([]domain.Position, error) {
	open, err := s.ListOpen(ctx)
	if err != nil {
		return nil, err
	}
	var out []domain.Position
	for _, pos := range open {
		if pos.Symbol == symbol {
			out = append(out, pos)
		}
	}
	return out, nil
}

func (s *fakePositionStore) ListHistory(context.Context, string, domain.ListOpts) ([]domain.Position, error) {
	return nil, nil
}

type fakeTradeStore struct {
	mu     sync.Mutex
	trades []domain.ClosedTrade
}

func (s *fakeTradeStore) Insert(_ context.Context, trade domain.ClosedTrade) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.trades = append(s.trades, trade)
	return nil
}

func (s *fakeTradeStore) ListBetween(_ context.Context, from, until time.Time) ([]domain.ClosedTrade, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []domain.ClosedTrade
	for _, t := range s.trades {
		if !t.ClosedAt.Before(from) && t.ClosedAt.Before(until) {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeTradeStore) ListBySymbol(context.Context, string, domain.ListOpts) ([]domain.ClosedTrade, error) {
	return nil, nil
}

func (s *fakeTradeStore) ListBefore(context.Context, time.Time, int) ([]domain.ClosedTrade, error) {
	return nil, nil
}

func (s *fakeTradeStore) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

type fakeAuditStore struct {
	mu     sync.Mutex
	events []string
}

func (s *fakeAuditStore) Log(_ context.Context, event string, _ map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *fakeAuditStore) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func (s *fakeAuditStore) ListBefore(context.Context, time.Time, int) ([]domain.AuditEntry, error) {
	return nil, nil
}

func (s *fakeAuditStore) DeleteBefore(context.Context, time.Time) (int64, error) {
	return 0, nil
}

func (s *fakeAuditStore) has(event string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, e := range s.events {
		if e == event {
			return true
		}
	}
	return false
}

type fakeExchange struct {
	equity    float64
	equityErr error
	open      []domain.ExchangePosition
}

func (e *fakeExchange) Equity(context.Context) (float64, error) {
	return e.equity, e.equityErr
}

func (e *fakeExchange) Klines(context.Context, string, string, int) ([]domain.Candle, error) {
	return nil, nil
}

func (e *fakeExchange) Ticker(context.Context, string) (domain.TickerStats, error) {
	return domain.TickerStats{}, nil
}

func (e *fakeExchange) Limits(context.Context, string) (domain.SymbolLimits, error) {
	return domain.SymbolLimits{}, nil
}

func (e *fakeExchange) SubmitOrder(context.Context, domain.OrderRequest) (domain.OrderResult, error) {
	return domain.OrderResult{Success: true}, nil
}

func (e *fakeExchange) CancelStops(context.Context, string) error { return nil }

func (e *fakeExchange) OpenPositions(context.Context) ([]domain.ExchangePosition, error) {
	return e.open, nil
}

func (e *fakeExchange) SetLeverage(context.Context, string, int) error { return nil }

type fakeEquityCache struct {
	mu     sync.Mutex
	equity float64
	ts     time.Time
	set    bool
}

func (c *fakeEquityCache) SetEquity(_ context.Context, equity float64, ts time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.equity, c.ts, c.set = equity, ts, true
	return nil
}

func (c *fakeEquityCache) GetEquity(context.Context) (float64, time.Time, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.set {
		return 0, time.Time{}, domain.ErrNotFound
	}
	return c.equity, c.ts, nil
}
