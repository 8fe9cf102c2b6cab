package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// PositionStore persists positions.
type PositionStore interface {
	Create(ctx context.Context, pos Position) error
	Update(ctx context.Context, pos Position) error
	GetByID(ctx context.Context, id string) (Position, error)
	ListOpen(ctx context.Context) ([]Position, error)
	ListOpenBySymbol(ctx context.Context, symbol string) ([]Position, error)
	ListHistory(ctx context.Context, symbol string, opts ListOpts) ([]Position, error)
}

// TradeStore persists closed-trade records.
type TradeStore interface {
	Insert(ctx context.Context, trade ClosedTrade) error
	ListBetween(ctx context.Context, from, until time.Time) ([]ClosedTrade, error)
	ListBySymbol(ctx context.Context, symbol string, opts ListOpts) ([]ClosedTrade, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]ClosedTrade, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64
	Event     string
	Detail    map[string]any
	CreatedAt time.Time
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]AuditEntry, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
