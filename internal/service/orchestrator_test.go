package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

func newTestOrchestrator(t *testing.T) (*Orchestrator, *fakePositionStore, *fakeTradeStore) {
	t.Helper()
	positions := newFakePositionStore()
	trades := &fakeTradeStore{}
	audit := &fakeAuditStore{}
	posSvc := NewPositionService(positions, trades, audit, discardLogger())
	orch := NewOrchestrator(OrchestratorConfig{
		PositionSvc: posSvc,
		Positions:   positions,
	}, discardLogger())
	return orch, positions, trades
}

func TestMutationForOrderPairing(t *testing.T) {
	result := domain.TickResult{
		Mutations: []domain.PositionMutation{
			{PositionID: "p1", Kind: domain.MutationPartialExit, Stage: domain.PartialP50},
			{PositionID: "p1", Kind: domain.MutationBreakeven},
			{PositionID: "p2", Kind: domain.MutationFullExit},
			{PositionID: "p3", Kind: domain.MutationPyramid},
		},
	}

	m, ok := mutationForOrder(result, domain.OrderRequest{
		PositionID: "p1", Kind: domain.OrderKindPartial, Stage: domain.PartialP50,
	})
	require.True(t, ok)
	assert.Equal(t, domain.MutationPartialExit, m.Kind)

	m, ok = mutationForOrder(result, domain.OrderRequest{
		PositionID: "p2", Kind: domain.OrderKindFullExit,
	})
	require.True(t, ok)
	assert.Equal(t, domain.MutationFullExit, m.Kind)

	m, ok = mutationForOrder(result, domain.OrderRequest{
		PositionID: "p3", Kind: domain.OrderKindEntry,
	})
	require.True(t, ok)
	assert.Equal(t, domain.MutationPyramid, m.Kind)

	// Stop updates never pair; they commit without a fill.
	_, ok = mutationForOrder(result, domain.OrderRequest{
		PositionID: "p1", Kind: domain.OrderKindStopUpdate,
	})
	assert.False(t, ok)

	// Stage mismatch must not pair with a different partial.
	_, ok = mutationForOrder(result, domain.OrderRequest{
		PositionID: "p1", Kind: domain.OrderKindPartial, Stage: domain.PartialP75,
	})
	assert.False(t, ok)
}

func TestDispatchRechecksCorrelationCapOnOpen(t *testing.T) {
	positions := newFakePositionStore()
	trades := &fakeTradeStore{}
	audit := &fakeAuditStore{}
	posSvc := NewPositionService(positions, trades, audit, discardLogger())
	accounts := NewAccountService(
		&fakeExchange{equity: 10_000}, &fakeEquityCache{}, positions,
		false, time.Minute, discardLogger(),
	)

	orderCh := make(chan domain.OrderRequest, 8)
	orch := NewOrchestrator(OrchestratorConfig{
		Accounts:      accounts,
		PositionSvc:   posSvc,
		Positions:     positions,
		OrderCh:       orderCh,
		MaxCorrelated: 3,
	}, discardLogger())

	require.NoError(t, positions.Create(context.Background(), openLong("p1")))
	require.NoError(t, positions.Create(context.Background(), openLong("p2")))

	// Two symbol evaluations staged against the same two-open snapshot
	// race for the last long slot; only one may land.
	errCh := make(chan error, 2)
	var wg sync.WaitGroup
	for _, id := range []string{"c1", "c2"} {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			pos := openLong(id)
			errCh <- orch.dispatch(context.Background(), domain.TickResult{
				NewPosition: &pos,
				Orders: []domain.OrderRequest{{
					ID:         "ord-" + id,
					PositionID: id,
					Symbol:     pos.Symbol,
					Kind:       domain.OrderKindEntry,
					Quantity:   pos.InitialQuantity,
				}},
			})
		}(id)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	open, err := positions.ListOpen(context.Background())
	require.NoError(t, err)
	assert.Len(t, open, 3)
	assert.Len(t, orderCh, 1)
}

func TestHandleResultCommitsExitOnFill(t *testing.T) {
	orch, positions, trades := newTestOrchestrator(t)
	pos := openLong("p1")
	require.NoError(t, positions.Create(context.Background(), pos))

	proposed := pos
	proposed.RemainingQuantity = 0.6
	proposed.PartialsDone = []domain.PartialStage{domain.PartialP50}

	req := domain.OrderRequest{
		ID:         "o1",
		PositionID: "p1",
		Symbol:     "BTCUSDT",
		Kind:       domain.OrderKindPartial,
		Stage:      domain.PartialP50,
		Quantity:   0.4,
	}
	orch.pending["o1"] = pendingMutation{
		mutation: domain.PositionMutation{
			PositionID: "p1",
			Kind:       domain.MutationPartialExit,
			Stage:      domain.PartialP50,
			Quantity:   0.4,
			Proposed:   &proposed,
		},
		queuedAt: time.Now(),
	}

	orch.HandleResult(context.Background(), req, domain.OrderResult{Success: true, AvgPrice: 105.0}, nil)

	stored, err := positions.GetByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, 0.6, stored.RemainingQuantity)
	require.Len(t, trades.trades, 1)
	assert.Empty(t, orch.pending)
}

func TestHandleResultLeavesStateOnFailedMutation(t *testing.T) {
	orch, positions, trades := newTestOrchestrator(t)
	pos := openLong("p1")
	require.NoError(t, positions.Create(context.Background(), pos))

	proposed := pos
	proposed.RemainingQuantity = 0.6
	orch.pending["o1"] = pendingMutation{
		mutation: domain.PositionMutation{
			PositionID: "p1",
			Kind:       domain.MutationPartialExit,
			Stage:      domain.PartialP50,
			Quantity:   0.4,
			Proposed:   &proposed,
		},
		queuedAt: time.Now(),
	}

	req := domain.OrderRequest{ID: "o1", PositionID: "p1", Kind: domain.OrderKindPartial, Stage: domain.PartialP50}
	orch.HandleResult(context.Background(), req, domain.OrderResult{Success: false, Message: "insufficient margin"}, nil)

	stored, err := positions.GetByID(context.Background(), "p1")
	require.NoError(t, err)
	// Unchanged, so the next tick re-proposes the exit.
	assert.Equal(t, 1.0, stored.RemainingQuantity)
	assert.Empty(t, trades.trades)
}

func TestHandleResultAbortsRejectedEntry(t *testing.T) {
	orch, positions, _ := newTestOrchestrator(t)
	require.NoError(t, positions.Create(context.Background(), openLong("p1")))

	orch.pending["o1"] = pendingMutation{entry: true, queuedAt: time.Now()}
	req := domain.OrderRequest{ID: "o1", PositionID: "p1", Kind: domain.OrderKindEntry}
	orch.HandleResult(context.Background(), req, domain.OrderResult{Success: false, Message: "rejected"}, nil)

	stored, err := positions.GetByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusClosed, stored.Status)
}

func TestHandleResultKeepsFilledEntryOpen(t *testing.T) {
	orch, positions, _ := newTestOrchestrator(t)
	require.NoError(t, positions.Create(context.Background(), openLong("p1")))

	orch.pending["o1"] = pendingMutation{entry: true, queuedAt: time.Now()}
	req := domain.OrderRequest{ID: "o1", PositionID: "p1", Kind: domain.OrderKindEntry}
	orch.HandleResult(context.Background(), req, domain.OrderResult{Success: true, AvgPrice: 100.1}, nil)

	stored, err := positions.GetByID(context.Background(), "p1")
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusOpen, stored.Status)
}

func TestHandleResultIgnoresUnknownOrder(t *testing.T) {
	orch, _, trades := newTestOrchestrator(t)

	req := domain.OrderRequest{ID: "unknown", PositionID: "p1", Kind: domain.OrderKindPartial}
	orch.HandleResult(context.Background(), req, domain.OrderResult{Success: true}, nil)
	assert.Empty(t, trades.trades)
}

func TestPurgePendingDropsStaleEntries(t *testing.T) {
	orch, _, _ := newTestOrchestrator(t)
	orch.pending["old"] = pendingMutation{queuedAt: time.Now().Add(-time.Hour)}
	orch.pending["fresh"] = pendingMutation{queuedAt: time.Now()}

	orch.purgePending()

	assert.NotContains(t, orch.pending, "old")
	assert.Contains(t, orch.pending, "fresh")
}
