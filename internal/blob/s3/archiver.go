package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// archiveBatch caps how many rows one archive pass pulls from the
// database at a time.
const archiveBatch = 5000

// Archiver implements domain.Archiver: it drains closed trades and
// audit rows older than a cutoff into JSONL objects in the blob store,
// then deletes the archived rows from the primary database. Upload
// happens before delete, so a failed upload never loses rows.
type Archiver struct {
	writer domain.BlobWriter
	trades domain.TradeStore
	audit  domain.AuditStore
	logger *slog.Logger
}

// NewArchiver creates an Archiver.
func NewArchiver(writer domain.BlobWriter, trades domain.TradeStore, audit domain.AuditStore, logger *slog.Logger) *Archiver {
	return &Archiver{
		writer: writer,
		trades: trades,
		audit:  audit,
		logger: logger.With(slog.String("component", "archiver")),
	}
}

var _ domain.Archiver = (*Archiver)(nil)

// ArchiveTrades uploads closed trades recorded before the cutoff to
// archive/trades/YYYY-MM-DD.jsonl and prunes them from the database.
// Returns the number of rows archived.
func (a *Archiver) ArchiveTrades(ctx context.Context, before time.Time) (int64, error) {
	trades, err := a.trades.ListBefore(ctx, before, archiveBatch)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades query: %w", err)
	}
	if len(trades) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(trades)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive trades marshal: %w", err)
	}

	path := archivePath("trades", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive trades upload: %w", err)
	}

	// Prune only up to the last archived row: a full batch means more
	// rows remain under the cutoff for the next pass.
	pruneBefore := before
	if len(trades) == archiveBatch {
		pruneBefore = trades[len(trades)-1].ClosedAt.Add(time.Millisecond)
	}
	deleted, err := a.trades.DeleteBefore(ctx, pruneBefore)
	if err != nil {
		return int64(len(trades)), fmt.Errorf("s3blob: prune archived trades: %w", err)
	}

	a.logArchive(ctx, "trades_archived", path, int64(len(trades)), deleted, before)
	return int64(len(trades)), nil
}

// ArchiveAudit uploads audit rows created before the cutoff to
// archive/audit/YYYY-MM-DD.jsonl and prunes them from the database.
// Returns the number of rows archived.
func (a *Archiver) ArchiveAudit(ctx context.Context, before time.Time) (int64, error) {
	rows, err := a.audit.ListBefore(ctx, before, archiveBatch)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit query: %w", err)
	}
	if len(rows) == 0 {
		return 0, nil
	}

	buf, err := marshalJSONL(rows)
	if err != nil {
		return 0, fmt.Errorf("s3blob: archive audit marshal: %w", err)
	}

	path := archivePath("audit", before)
	if err := a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson"); err != nil {
		return 0, fmt.Errorf("s3blob: archive audit upload: %w", err)
	}

	pruneBefore := before
	if len(rows) == archiveBatch {
		pruneBefore = rows[len(rows)-1].CreatedAt.Add(time.Millisecond)
	}
	deleted, err := a.audit.DeleteBefore(ctx, pruneBefore)
	if err != nil {
		return int64(len(rows)), fmt.Errorf("s3blob: prune archived audit rows: %w", err)
	}

	a.logArchive(ctx, "audit_archived", path, int64(len(rows)), deleted, before)
	return int64(len(rows)), nil
}

func (a *Archiver) logArchive(ctx context.Context, event, path string, archived, deleted int64, before time.Time) {
	if err := a.audit.Log(ctx, event, map[string]any{
		"path":     path,
		"archived": archived,
		"deleted":  deleted,
		"before":   before.Format(time.RFC3339),
	}); err != nil {
		a.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}

	a.logger.InfoContext(ctx, "archive pass complete",
		slog.String("path", path),
		slog.Int64("archived", archived),
		slog.Int64("deleted", deleted),
	)
}

// archivePath builds the blob key for one archive pass, partitioned by
// the cutoff date:
//
//	archive/trades/2026-08-01.jsonl
//	archive/audit/2026-08-01.jsonl
func archivePath(kind string, before time.Time) string {
	return fmt.Sprintf("archive/%s/%s.jsonl", kind, before.Format("2006-01-02"))
}

// marshalJSONL serialises records as newline-delimited JSON, one compact
// line per record.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)

	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}
