package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest mark prices.
type PriceCache interface {
	SetPrice(ctx context.Context, symbol string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, symbol string) (float64, time.Time, error)
	GetPrices(ctx context.Context, symbols []string) (map[string]float64, error)
}

// EquityCache holds the most recent account equity snapshot so the engine
// never blocks a tick on an exchange round-trip.
type EquityCache interface {
	SetEquity(ctx context.Context, equity float64, ts time.Time) error
	GetEquity(ctx context.Context) (float64, time.Time, error)
}

// LockManager provides distributed mutual exclusion, used to serialize
// tick evaluation per symbol across instances.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(), error)
}

// RateLimiter provides distributed rate limiting for exchange API calls.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
	Wait(ctx context.Context, key string) error
}
