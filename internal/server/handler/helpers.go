package handler

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/swingbot/internal/domain"
)

// List endpoints default to one page of 50 rows and refuse to hand out
// more than 500 at a time.
const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// writeJSON sends v with the given status. A marshal failure turns into
// a plain 500 instead of a half-written body.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// writeError sends a JSON error body with the given status.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// parseListOpts reads limit/offset from the query string, clamping bad
// or missing values to the paging defaults.
func parseListOpts(r *http.Request) domain.ListOpts {
	q := r.URL.Query()

	limit := defaultPageSize
	if n, err := strconv.Atoi(q.Get("limit")); err == nil && n > 0 {
		limit = min(n, maxPageSize)
	}

	offset := 0
	if n, err := strconv.Atoi(q.Get("offset")); err == nil && n > 0 {
		offset = n
	}

	return domain.ListOpts{Limit: limit, Offset: offset}
}

// pathParam reads a named segment from the route pattern.
func pathParam(r *http.Request, name string) string {
	return r.PathValue(name)
}

// logHandler tags a logger with the handler name.
func logHandler(logger *slog.Logger, handler string) *slog.Logger {
	return logger.With(slog.String("handler", handler))
}
