package executor

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

type fakeSubmitter struct {
	mu       sync.Mutex
	requests []domain.OrderRequest
	results  []domain.OrderResult
	errs     []error
}

func (f *fakeSubmitter) Submit(ctx context.Context, req domain.OrderRequest) (domain.OrderResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	i := len(f.requests) - 1
	if i < len(f.results) {
		var err error
		if i < len(f.errs) {
			err = f.errs[i]
		}
		return f.results[i], err
	}
	return domain.OrderResult{Success: true, ExchangeID: "1"}, nil
}

func (f *fakeSubmitter) seen() []domain.OrderRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.OrderRequest, len(f.requests))
	copy(out, f.requests)
	return out
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func runExecutor(t *testing.T, ch chan domain.OrderRequest, sub *fakeSubmitter, onResult ResultHandler) context.CancelFunc {
	t.Helper()
	ex := NewExecutor(ch, sub, nil, onResult, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = ex.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return cancel
}

func entryRequest(id string) domain.OrderRequest {
	return domain.OrderRequest{
		ID:         id,
		PositionID: "pos-1",
		Symbol:     "BTCUSDT",
		Side:       domain.OrderSideBuy,
		Kind:       domain.OrderKindEntry,
		Quantity:   1,
		CreatedAt:  time.Now(),
	}
}

func TestExecutorSubmitsOrder(t *testing.T) {
	ch := make(chan domain.OrderRequest, 1)
	sub := &fakeSubmitter{}

	var got domain.OrderResult
	resultCh := make(chan struct{})
	runExecutor(t, ch, sub, func(ctx context.Context, req domain.OrderRequest, res domain.OrderResult, err error) {
		got = res
		close(resultCh)
	})

	ch <- entryRequest("o1")
	select {
	case <-resultCh:
	case <-time.After(2 * time.Second):
		t.Fatal("result handler never called")
	}

	require.Len(t, sub.seen(), 1)
	assert.True(t, got.Success)
}

func TestExecutorDedupesSameID(t *testing.T) {
	ch := make(chan domain.OrderRequest, 2)
	sub := &fakeSubmitter{}

	results := make(chan struct{}, 2)
	runExecutor(t, ch, sub, func(ctx context.Context, req domain.OrderRequest, res domain.OrderResult, err error) {
		results <- struct{}{}
	})

	ch <- entryRequest("same")
	ch <- entryRequest("same")

	select {
	case <-results:
	case <-time.After(2 * time.Second):
		t.Fatal("first order never processed")
	}
	// The duplicate is dropped before submission, so only one request
	// ever reaches the venue.
	assert.Eventually(t, func() bool {
		return len(ch) == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, sub.seen(), 1)
}

func TestExecutorDedupesPartialStageAcrossIDs(t *testing.T) {
	ch := make(chan domain.OrderRequest, 2)
	sub := &fakeSubmitter{}

	results := make(chan struct{}, 2)
	runExecutor(t, ch, sub, func(ctx context.Context, req domain.OrderRequest, res domain.OrderResult, err error) {
		results <- struct{}{}
	})

	partial := func(id string) domain.OrderRequest {
		req := entryRequest(id)
		req.Kind = domain.OrderKindPartial
		req.Stage = domain.PartialP50
		req.Side = domain.OrderSideSell
		return req
	}
	ch <- partial("a")
	ch <- partial("b")

	select {
	case <-results:
	case <-time.After(2 * time.Second):
		t.Fatal("first partial never processed")
	}
	assert.Eventually(t, func() bool {
		return len(ch) == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, sub.seen(), 1)
}

func TestExecutorDedupesPyramidAddAcrossIDs(t *testing.T) {
	ch := make(chan domain.OrderRequest, 2)
	sub := &fakeSubmitter{}

	results := make(chan struct{}, 2)
	runExecutor(t, ch, sub, func(ctx context.Context, req domain.OrderRequest, res domain.OrderResult, err error) {
		results <- struct{}{}
	})

	add := func(id string) domain.OrderRequest {
		req := entryRequest(id)
		req.Seq = 1
		return req
	}
	// Consecutive ticks re-propose the same add under fresh IDs while
	// the first order is still in flight.
	ch <- add("a")
	ch <- add("b")

	select {
	case <-results:
	case <-time.After(2 * time.Second):
		t.Fatal("first add never processed")
	}
	assert.Eventually(t, func() bool {
		return len(ch) == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Len(t, sub.seen(), 1)
}

func TestExecutorAllowsDistinctPyramidAdds(t *testing.T) {
	ch := make(chan domain.OrderRequest, 2)
	sub := &fakeSubmitter{}

	results := make(chan struct{}, 2)
	runExecutor(t, ch, sub, func(ctx context.Context, req domain.OrderRequest, res domain.OrderResult, err error) {
		results <- struct{}{}
	})

	first := entryRequest("a")
	first.Seq = 1
	second := entryRequest("b")
	second.Seq = 2
	ch <- first
	ch <- second

	for i := 0; i < 2; i++ {
		select {
		case <-results:
		case <-time.After(2 * time.Second):
			t.Fatal("add never processed")
		}
	}
	assert.Len(t, sub.seen(), 2)
}

func TestExecutorSkipsStaleOrder(t *testing.T) {
	ch := make(chan domain.OrderRequest, 1)
	sub := &fakeSubmitter{}
	runExecutor(t, ch, sub, nil)

	req := entryRequest("old")
	req.CreatedAt = time.Now().Add(-time.Minute)
	ch <- req

	assert.Eventually(t, func() bool {
		return len(ch) == 0
	}, 2*time.Second, 10*time.Millisecond)
	assert.Empty(t, sub.seen())
}

func TestExecutorRetriesOnce(t *testing.T) {
	ch := make(chan domain.OrderRequest, 1)
	sub := &fakeSubmitter{
		results: []domain.OrderResult{
			{ShouldRetry: true, Message: "rate limited"},
			{Success: true, ExchangeID: "2"},
		},
		errs: []error{domain.ErrRateLimited, nil},
	}

	var got domain.OrderResult
	resultCh := make(chan struct{})
	runExecutor(t, ch, sub, func(ctx context.Context, req domain.OrderRequest, res domain.OrderResult, err error) {
		got = res
		close(resultCh)
	})

	ch <- entryRequest("r1")
	select {
	case <-resultCh:
	case <-time.After(3 * time.Second):
		t.Fatal("result handler never called")
	}

	assert.Len(t, sub.seen(), 2)
	assert.True(t, got.Success)
}
