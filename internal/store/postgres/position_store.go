package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// PositionStore implements domain.PositionStore using PostgreSQL.
// Entries and completed partial stages are stored as JSONB so a
// position round-trips without a join.
type PositionStore struct {
	pool *pgxpool.Pool
}

// NewPositionStore creates a PositionStore backed by the given connection pool.
func NewPositionStore(pool *pgxpool.Pool) *PositionStore {
	return &PositionStore{pool: pool}
}

const positionSelectCols = `id, symbol, direction, trade_type, regime, origin, status,
	entries, initial_quantity, remaining_quantity,
	stop_loss, take_profit, leverage,
	breakeven_active, trailing_tier, pyramid_count, partials_done,
	realized_pnl, opened_at, closed_at`

func scanPosition(row pgx.Row) (domain.Position, error) {
	var p domain.Position
	var direction, tradeType, regime, origin, status, tier string
	var entriesJSON, partialsJSON []byte

	err := row.Scan(
		&p.ID, &p.Symbol, &direction, &tradeType, &regime, &origin, &status,
		&entriesJSON, &p.InitialQuantity, &p.RemainingQuantity,
		&p.StopLoss, &p.TakeProfit, &p.Leverage,
		&p.BreakevenActive, &tier, &p.PyramidCount, &partialsJSON,
		&p.RealizedPnL, &p.OpenedAt, &p.ClosedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}

	p.Direction = domain.Direction(direction)
	p.TradeType = domain.TradeType(tradeType)
	p.Regime = domain.Regime(regime)
	p.Origin = domain.PositionOrigin(origin)
	p.Status = domain.PositionStatus(status)
	p.TrailingTier = domain.ParseTrailingTier(tier)

	if err := json.Unmarshal(entriesJSON, &p.Entries); err != nil {
		return domain.Position{}, fmt.Errorf("unmarshal entries: %w", err)
	}
	if err := json.Unmarshal(partialsJSON, &p.PartialsDone); err != nil {
		return domain.Position{}, fmt.Errorf("unmarshal partials: %w", err)
	}
	return p, nil
}

func scanPositions(rows pgx.Rows) ([]domain.Position, error) {
	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		positions = append(positions, p)
	}
	return positions, rows.Err()
}

func positionJSON(p domain.Position) (entries, partials []byte, err error) {
	entries, err = json.Marshal(p.Entries)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal entries: %w", err)
	}
	stages := p.PartialsDone
	if stages == nil {
		stages = []domain.PartialStage{}
	}
	partials, err = json.Marshal(stages)
	if err != nil {
		return nil, nil, fmt.Errorf("marshal partials: %w", err)
	}
	return entries, partials, nil
}

// Create inserts a new position.
func (s *PositionStore) Create(ctx context.Context, p domain.Position) error {
	entriesJSON, partialsJSON, err := positionJSON(p)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}

	const query = `
		INSERT INTO positions (
			id, symbol, direction, trade_type, regime, origin, status,
			entries, initial_quantity, remaining_quantity,
			stop_loss, take_profit, leverage,
			breakeven_active, trailing_tier, pyramid_count, partials_done,
			realized_pnl, opened_at, closed_at, updated_at
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7,
			$8, $9, $10,
			$11, $12, $13,
			$14, $15, $16, $17,
			$18, $19, $20, NOW()
		)`

	_, err = s.pool.Exec(ctx, query,
		p.ID, p.Symbol, string(p.Direction), string(p.TradeType),
		string(p.Regime), string(p.Origin), string(p.Status),
		entriesJSON, p.InitialQuantity, p.RemainingQuantity,
		p.StopLoss, p.TakeProfit, p.Leverage,
		p.BreakevenActive, p.TrailingTier.String(), p.PyramidCount, partialsJSON,
		p.RealizedPnL, p.OpenedAt, p.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: create position %s: %w", p.ID, err)
	}
	return nil
}

// Update replaces all mutable fields of a position.
func (s *PositionStore) Update(ctx context.Context, p domain.Position) error {
	entriesJSON, partialsJSON, err := positionJSON(p)
	if err != nil {
		return fmt.Errorf("postgres: update position %s: %w", p.ID, err)
	}

	const query = `
		UPDATE positions SET
			status             = $2,
			entries            = $3,
			initial_quantity   = $4,
			remaining_quantity = $5,
			stop_loss          = $6,
			take_profit        = $7,
			leverage           = $8,
			breakeven_active   = $9,
			trailing_tier      = $10,
			pyramid_count      = $11,
			partials_done      = $12,
			realized_pnl       = $13,
			closed_at          = $14,
			updated_at         = NOW()
		WHERE id = $1`

	tag, err := s.pool.Exec(ctx, query,
		p.ID, string(p.Status),
		entriesJSON, p.InitialQuantity, p.RemainingQuantity,
		p.StopLoss, p.TakeProfit, p.Leverage,
		p.BreakevenActive, p.TrailingTier.String(), p.PyramidCount, partialsJSON,
		p.RealizedPnL, p.ClosedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: update position %s: %w", p.ID, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID retrieves a single position.
func (s *PositionStore) GetByID(ctx context.Context, id string) (domain.Position, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+positionSelectCols+` FROM positions WHERE id = $1`, id)

	p, err := scanPosition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Position{}, domain.ErrNotFound
		}
		return domain.Position{}, fmt.Errorf("postgres: get position %s: %w", id, err)
	}
	return p, nil
}

// ListOpen returns every open position, oldest first so evaluation
// order is stable across restarts.
func (s *PositionStore) ListOpen(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE status = 'open'
		 ORDER BY opened_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open positions: %w", err)
	}
	return positions, nil
}

// ListOpenBySymbol returns open positions for one symbol.
func (s *PositionStore) ListOpenBySymbol(ctx context.Context, symbol string) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionSelectCols+` FROM positions
		 WHERE status = 'open' AND symbol = $1
		 ORDER BY opened_at ASC`, symbol)
	if err != nil {
		return nil, fmt.Errorf("postgres: list open positions for %s: %w", symbol, err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan open positions for %s: %w", symbol, err)
	}
	return positions, nil
}

// ListHistory returns positions for a symbol with pagination and
// optional time filtering. An empty symbol matches all symbols.
func (s *PositionStore) ListHistory(ctx context.Context, symbol string, opts domain.ListOpts) ([]domain.Position, error) {
	query := `SELECT ` + positionSelectCols + ` FROM positions WHERE 1=1`
	args := []any{}
	argIdx := 1

	if symbol != "" {
		query += fmt.Sprintf(" AND symbol = $%d", argIdx)
		args = append(args, symbol)
		argIdx++
	}
	if opts.Since != nil {
		query += fmt.Sprintf(" AND opened_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND opened_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY opened_at DESC"

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
		return nil, fmt.Errorf("postgres: list position history: %w", err)
	}
	defer rows.Close()

	positions, err := scanPositions(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan position history: %w", err)
	}
	return positions, nil
}
