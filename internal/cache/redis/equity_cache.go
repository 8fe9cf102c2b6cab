package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// equityTTL bounds how stale a cached equity snapshot may be. The
// account service refreshes it far more often; the TTL only covers a
// crashed refresher.
const equityTTL = 5 * time.Minute

// EquityCache implements domain.EquityCache using a Redis hash at a
// single key, so every instance sizes against the same equity snapshot.
type EquityCache struct {
	rdb *redis.Client
}

// NewEquityCache creates an EquityCache backed by the given Client.
func NewEquityCache(c *Client) *EquityCache {
	return &EquityCache{rdb: c.Underlying()}
}

const equityKey = "account:equity"

// SetEquity stores the latest account equity snapshot.
func (ec *EquityCache) SetEquity(ctx context.Context, equity float64, ts time.Time) error {
	fields := map[string]interface{}{
		"equity": strconv.FormatFloat(equity, 'f', -1, 64),
		"ts":     strconv.FormatInt(ts.UnixNano(), 10),
	}
	pipe := ec.rdb.TxPipeline()
	pipe.HSet(ctx, equityKey, fields)
	pipe.Expire(ctx, equityKey, equityTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set equity: %w", err)
	}
	return nil
}

// GetEquity retrieves the latest equity snapshot. It returns
// domain.ErrNotFound when no snapshot exists or the TTL has lapsed.
func (ec *EquityCache) GetEquity(ctx context.Context) (float64, time.Time, error) {
	vals, err := ec.rdb.HGetAll(ctx, equityKey).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get equity: %w", err)
	}
	if len(vals) == 0 {
		return 0, time.Time{}, domain.ErrNotFound
	}

	equityStr, ok := vals["equity"]
	if !ok {
		return 0, time.Time{}, domain.ErrNotFound
	}
	equity, err := strconv.ParseFloat(equityStr, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: parse equity: %w", err)
	}

	var ts time.Time
	if tsStr, ok := vals["ts"]; ok {
		if tsNano, err := strconv.ParseInt(tsStr, 10, 64); err == nil {
			ts = time.Unix(0, tsNano)
		}
	}

	return equity, ts, nil
}

// Compile-time interface check.
var _ domain.EquityCache = (*EquityCache)(nil)
