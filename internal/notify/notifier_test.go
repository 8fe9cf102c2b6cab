package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	name   string
	err    error
	titles []string
}

func (s *recordingSender) Send(_ context.Context, title, _ string) error {
	s.titles = append(s.titles, title)
	return s.err
}

func (s *recordingSender) Name() string { return s.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyFiltersUnsubscribedEvents(t *testing.T) {
	sender := &recordingSender{name: "telegram"}
	n := NewNotifier([]Sender{sender}, []string{"position_opened"}, discardLogger())

	require.NoError(t, n.Notify(context.Background(), "stop_moved", "Stop moved", "BTCUSDT"))
	assert.Empty(t, sender.titles)

	require.NoError(t, n.Notify(context.Background(), "position_opened", "Opened", "BTCUSDT"))
	assert.Equal(t, []string{"Opened"}, sender.titles)
}

func TestNotifyAllBypassesSubscriptions(t *testing.T) {
	sender := &recordingSender{name: "discord"}
	n := NewNotifier([]Sender{sender}, []string{"position_opened"}, discardLogger())

	require.NoError(t, n.NotifyAll(context.Background(), "Reconcile", "2 ghosts closed"))
	assert.Equal(t, []string{"Reconcile"}, sender.titles)
}

func TestFanOutContinuesPastFailedChannel(t *testing.T) {
	broken := &recordingSender{name: "telegram", err: errors.New("bad token")}
	healthy := &recordingSender{name: "discord"}
	n := NewNotifier([]Sender{broken, healthy}, nil, discardLogger())

	err := n.Notify(context.Background(), "position_closed", "Closed", "ETHUSDT")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 2 channels failed")
	assert.Equal(t, []string{"Closed"}, healthy.titles)
}
