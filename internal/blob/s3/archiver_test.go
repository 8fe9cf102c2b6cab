package s3blob

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

type capturedPut struct {
	path        string
	contentType string
	body        []byte
}

type fakeWriter struct {
	puts []capturedPut
	err  error
}

func (w *fakeWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	if w.err != nil {
		return w.err
	}
	body, _ := io.ReadAll(data)
	w.puts = append(w.puts, capturedPut{path: path, contentType: contentType, body: body})
	return nil
}

func (w *fakeWriter) PutMultipart(_ context.Context, path string, data io.Reader, _ int64) error {
	return w.Put(context.Background(), path, data, "")
}

type fakeTradeArchive struct {
	trades  []domain.ClosedTrade
	deleted *time.Time
}

func (s *fakeTradeArchive) Insert(context.Context, domain.ClosedTrade) error { return nil }

func (s *fakeTradeArchive) ListBetween(context.Context, time.Time, time.Time) ([]domain.ClosedTrade, error) {
	return nil, nil
}

func (s *fakeTradeArchive) ListBySymbol(context.Context, string, domain.ListOpts) ([]domain.ClosedTrade, error) {
	return nil, nil
}

func (s *fakeTradeArchive) ListBefore(_ context.Context, before time.Time, limit int) ([]domain.ClosedTrade, error) {
	var out []domain.ClosedTrade
	for _, t := range s.trades {
		if t.ClosedAt.Before(before) && len(out) < limit {
			out = append(out, t)
		}
	}
	return out, nil
}

func (s *fakeTradeArchive) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	s.deleted = &before
	var n int64
	for _, t := range s.trades {
		if t.ClosedAt.Before(before) {
			n++
		}
	}
	return n, nil
}

type fakeAuditArchive struct {
	rows   []domain.AuditEntry
	events []string
}

func (s *fakeAuditArchive) Log(_ context.Context, event string, _ map[string]any) error {
	s.events = append(s.events, event)
	return nil
}

func (s *fakeAuditArchive) List(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func (s *fakeAuditArchive) ListBefore(_ context.Context, before time.Time, limit int) ([]domain.AuditEntry, error) {
	var out []domain.AuditEntry
	for _, row := range s.rows {
		if row.CreatedAt.Before(before) && len(out) < limit {
			out = append(out, row)
		}
	}
	return out, nil
}

func (s *fakeAuditArchive) DeleteBefore(_ context.Context, before time.Time) (int64, error) {
	var n int64
	for _, row := range s.rows {
		if row.CreatedAt.Before(before) {
			n++
		}
	}
	return n, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestArchiveTradesUploadsAndPrunes(t *testing.T) {
	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	trades := &fakeTradeArchive{trades: []domain.ClosedTrade{
		{PositionID: "p1", Symbol: "BTCUSDT", PnL: 12.5, ClosedAt: cutoff.Add(-48 * time.Hour)},
		{PositionID: "p2", Symbol: "ETHUSDT", PnL: -3.0, ClosedAt: cutoff.Add(-24 * time.Hour)},
		{PositionID: "p3", Symbol: "BTCUSDT", PnL: 7.0, ClosedAt: cutoff.Add(time.Hour)}, // after cutoff
	}}
	audit := &fakeAuditArchive{}
	writer := &fakeWriter{}
	archiver := NewArchiver(writer, trades, audit, testLogger())

	count, err := archiver.ArchiveTrades(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.Len(t, writer.puts, 1)
	put := writer.puts[0]
	assert.Equal(t, "archive/trades/2026-08-01.jsonl", put.path)
	assert.Equal(t, "application/x-ndjson", put.contentType)
	assert.Equal(t, 2, bytes.Count(put.body, []byte("\n")))
	assert.True(t, strings.Contains(string(put.body), "BTCUSDT"))

	require.NotNil(t, trades.deleted)
	assert.Equal(t, cutoff, *trades.deleted)
	assert.Contains(t, audit.events, "trades_archived")
}

func TestArchiveTradesEmptyIsNoOp(t *testing.T) {
	writer := &fakeWriter{}
	archiver := NewArchiver(writer, &fakeTradeArchive{}, &fakeAuditArchive{}, testLogger())

	count, err := archiver.ArchiveTrades(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, count)
	assert.Empty(t, writer.puts)
}

func TestArchiveAuditUploadsRows(t *testing.T) {
	cutoff := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	audit := &fakeAuditArchive{rows: []domain.AuditEntry{
		{ID: 1, Event: "position_opened", CreatedAt: cutoff.Add(-time.Hour)},
		{ID: 2, Event: "stop_moved", CreatedAt: cutoff.Add(-30 * time.Minute)},
	}}
	writer := &fakeWriter{}
	archiver := NewArchiver(writer, &fakeTradeArchive{}, audit, testLogger())

	count, err := archiver.ArchiveAudit(context.Background(), cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), count)

	require.Len(t, writer.puts, 1)
	assert.Equal(t, "archive/audit/2026-08-01.jsonl", writer.puts[0].path)
	assert.Contains(t, audit.events, "audit_archived")
}

func TestArchiveTradesUploadFailureSkipsPrune(t *testing.T) {
	cutoff := time.Now().UTC()
	trades := &fakeTradeArchive{trades: []domain.ClosedTrade{
		{PositionID: "p1", ClosedAt: cutoff.Add(-time.Hour)},
	}}
	writer := &fakeWriter{err: assert.AnError}
	archiver := NewArchiver(writer, trades, &fakeAuditArchive{}, testLogger())

	_, err := archiver.ArchiveTrades(context.Background(), cutoff)
	require.Error(t, err)
	assert.Nil(t, trades.deleted)
}
