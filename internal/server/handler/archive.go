package handler

import (
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// ArchiveHandler lists archived objects in the blob store.
type ArchiveHandler struct {
	reader domain.BlobReader
	logger *slog.Logger
}

// NewArchiveHandler creates an ArchiveHandler.
func NewArchiveHandler(reader domain.BlobReader, logger *slog.Logger) *ArchiveHandler {
	return &ArchiveHandler{
		reader: reader,
		logger: logger,
	}
}

type listArchivesResponse struct {
	Archives []domain.BlobInfo `json:"archives"`
}

// ListArchives returns metadata for archived files under the archive
// prefix, optionally narrowed by kind (trades or audit).
// GET /api/archives?kind=trades
func (h *ArchiveHandler) ListArchives(w http.ResponseWriter, r *http.Request) {
	prefix := "archive/"
	switch kind := r.URL.Query().Get("kind"); kind {
	case "":
	case "trades", "audit":
		prefix += kind + "/"
	default:
		writeError(w, http.StatusBadRequest, "kind must be trades or audit")
		return
	}

	infos, err := h.reader.List(r.Context(), prefix)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "handler: list archives failed",
			slog.String("prefix", prefix),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, "failed to list archives")
		return
	}

	if infos == nil {
		infos = []domain.BlobInfo{}
	}
	writeJSON(w, http.StatusOK, listArchivesResponse{Archives: infos})
}
