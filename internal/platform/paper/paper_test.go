package paper

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

type stubData struct {
	bid, ask float64
}

func (s *stubData) Klines(ctx context.Context, symbol, interval string, limit int) ([]domain.Candle, error) {
	return nil, nil
}

func (s *stubData) Ticker(ctx context.Context, symbol string) (domain.TickerStats, error) {
	return domain.TickerStats{Symbol: symbol, BidPrice: s.bid, AskPrice: s.ask}, nil
}

func (s *stubData) Limits(ctx context.Context, symbol string) (domain.SymbolLimits, error) {
	return domain.SymbolLimits{StepSize: 0.001, TickSize: 0.01}, nil
}

func testExchange(bid, ask float64) (*Exchange, *stubData) {
	data := &stubData{bid: bid, ask: ask}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(data, 10000, logger), data
}

func TestEntryThenPartialRealizesPnL(t *testing.T) {
	ex, data := testExchange(99.99, 100.01)
	ctx := context.Background()

	res, err := ex.SubmitOrder(ctx, domain.OrderRequest{
		Symbol: "BTCUSDT", Side: domain.OrderSideBuy, Kind: domain.OrderKindEntry, Quantity: 10,
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 100.0, res.AvgPrice)

	// Price moves up, half the position comes off.
	data.bid, data.ask = 104.99, 105.01
	res, err = ex.SubmitOrder(ctx, domain.OrderRequest{
		Symbol: "BTCUSDT", Side: domain.OrderSideSell, Kind: domain.OrderKindPartial, Quantity: 5,
	})
	require.NoError(t, err)
	assert.Equal(t, 5.0, res.FilledQuantity)

	equity, err := ex.Equity(ctx)
	require.NoError(t, err)
	// 10000 + realized 5*(105-100) + unrealized 5*(105-100)
	assert.InDelta(t, 10050, equity, 1e-9)
}

func TestFullExitClearsBook(t *testing.T) {
	ex, data := testExchange(99.99, 100.01)
	ctx := context.Background()

	_, err := ex.SubmitOrder(ctx, domain.OrderRequest{
		Symbol: "ETHUSDT", Side: domain.OrderSideSell, Kind: domain.OrderKindEntry, Quantity: 4,
	})
	require.NoError(t, err)

	data.bid, data.ask = 94.99, 95.01
	_, err = ex.SubmitOrder(ctx, domain.OrderRequest{
		Symbol: "ETHUSDT", Side: domain.OrderSideBuy, Kind: domain.OrderKindFullExit, Quantity: 4,
	})
	require.NoError(t, err)

	positions, err := ex.OpenPositions(ctx)
	require.NoError(t, err)
	assert.Empty(t, positions)

	// Short from 100 covered at 95 banks 4*5.
	equity, err := ex.Equity(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10020, equity, 1e-9)
}

func TestReduceWithoutPositionRejected(t *testing.T) {
	ex, _ := testExchange(99.99, 100.01)

	_, err := ex.SubmitOrder(context.Background(), domain.OrderRequest{
		Symbol: "BTCUSDT", Side: domain.OrderSideSell, Kind: domain.OrderKindPartial, Quantity: 1,
	})
	assert.ErrorIs(t, err, domain.ErrOrderRejected)
}

func TestOpenPositionsReportsShort(t *testing.T) {
	ex, data := testExchange(99.99, 100.01)
	ctx := context.Background()

	_, err := ex.SubmitOrder(ctx, domain.OrderRequest{
		Symbol: "SOLUSDT", Side: domain.OrderSideSell, Kind: domain.OrderKindEntry, Quantity: 3,
	})
	require.NoError(t, err)
	require.NoError(t, ex.SetLeverage(ctx, "SOLUSDT", 5))

	data.bid, data.ask = 97.99, 98.01
	positions, err := ex.OpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)

	p := positions[0]
	assert.Equal(t, domain.DirectionShort, p.Direction)
	assert.Equal(t, 3.0, p.Quantity)
	assert.Equal(t, 5, p.Leverage)
	assert.InDelta(t, 6.0, p.UnrealizedPnL, 1e-9)
}

func TestStopUpdateAcceptedWithoutBook(t *testing.T) {
	ex, _ := testExchange(99.99, 100.01)

	res, err := ex.SubmitOrder(context.Background(), domain.OrderRequest{
		Symbol: "BTCUSDT", Side: domain.OrderSideSell, Kind: domain.OrderKindStopUpdate, StopPrice: 95,
	})
	require.NoError(t, err)
	assert.True(t, res.Success)
}
