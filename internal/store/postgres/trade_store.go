package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, position_id, symbol, direction, trade_type, origin,
	entry_price, exit_price, quantity, pnl, stage, closed_at`

func scanTrades(rows pgx.Rows) ([]domain.ClosedTrade, error) {
	var trades []domain.ClosedTrade
	for rows.Next() {
		var t domain.ClosedTrade
		var direction, tradeType, origin string

		if err := rows.Scan(
			&t.ID, &t.PositionID, &t.Symbol, &direction, &tradeType, &origin,
			&t.EntryPrice, &t.ExitPrice, &t.Quantity, &t.PnL, &t.Stage, &t.ClosedAt,
		); err != nil {
			return nil, err
		}
		t.Direction = domain.Direction(direction)
		t.TradeType = domain.TradeType(tradeType)
		t.Origin = domain.PositionOrigin(origin)
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// Insert appends one closed-trade record.
func (s *TradeStore) Insert(ctx context.Context, t domain.ClosedTrade) error {
	const query = `
		INSERT INTO trades (
			position_id, symbol, direction, trade_type, origin,
			entry_price, exit_price, quantity, pnl, stage, closed_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10, $11
		)`

	_, err := s.pool.Exec(ctx, query,
		t.PositionID, t.Symbol, string(t.Direction), string(t.TradeType), string(t.Origin),
		t.EntryPrice, t.ExitPrice, t.Quantity, t.PnL, t.Stage, t.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: insert trade for position %s: %w", t.PositionID, err)
	}
	return nil
}

// ListBetween returns trades closed in [from, until), oldest first.
func (s *TradeStore) ListBetween(ctx context.Context, from, until time.Time) ([]domain.ClosedTrade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeSelectCols+` FROM trades
		 WHERE closed_at >= $1 AND closed_at < $2
		 ORDER BY closed_at ASC`, from, until)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades between: %w", err)
	}
	defer rows.Close()

	trades, err := scanTrades(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades between: %w", err)
	}
	return trades, nil
}

// ListBySymbol returns trades for one symbol, newest first.
func (s *TradeStore) ListBySymbol(ctx context.Context, symbol string, opts domain.ListOpts) ([]domain.ClosedTrade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE symbol = $1`
	args := []any{symbol}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND closed_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND closed_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY closed_at DESC"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades for %s: %w", symbol, err)
	}
	defer rows.Close()

	trades, err := scanTrades(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades for %s: %w", symbol, err)
	}
	return trades, nil
}

// ListBefore returns up to limit trades closed before the cutoff,
// oldest first, for archival batching.
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.ClosedTrade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeSelectCols+` FROM trades
		 WHERE closed_at < $1
		 ORDER BY closed_at ASC
		 LIMIT $2`, before, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	trades, err := scanTrades(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades before cutoff: %w", err)
	}
	return trades, nil
}

// DeleteBefore removes trades closed before the cutoff and reports how
// many rows went away.
func (s *TradeStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM trades WHERE closed_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trades before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}
