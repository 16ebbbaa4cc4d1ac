package handler

import (
	"log/slog"
	"net/http"

	"github.com/polymathbot/polymath/internal/domain"
	"github.com/polymathbot/polymath/internal/guard"
)

// ExecutionsHandler lists recent execution attempts. When a persistent store
// is configured the listing comes from Postgres; otherwise it falls back to
// the guard's in-memory ring, which only covers the current process.
type ExecutionsHandler struct {
	guard  *guard.Guard
	store  domain.ExecutionStore // optional
	logger *slog.Logger
}

// NewExecutionsHandler creates an ExecutionsHandler. store may be nil.
func NewExecutionsHandler(g *guard.Guard, store domain.ExecutionStore, logger *slog.Logger) *ExecutionsHandler {
	return &ExecutionsHandler{
		guard:  g,
		store:  store,
		logger: logHandler(logger, "executions"),
	}
}

// List returns recent execution records, newest first.
// GET /api/executions?limit=N
func (h *ExecutionsHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, 50, 500)

	var (
		recs []domain.ExecutionRecord
		err  error
	)
	if h.store != nil {
		recs, err = h.store.ListRecent(r.Context(), limit)
		if err != nil {
			h.logger.Error("list executions failed", slog.String("error", err.Error()))
			writeError(w, http.StatusInternalServerError, "failed to list executions")
			return
		}
	} else {
		recs = h.guard.Recent(limit)
	}
	if recs == nil {
		recs = []domain.ExecutionRecord{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"executions": recs,
		"count":      len(recs),
	})
}
