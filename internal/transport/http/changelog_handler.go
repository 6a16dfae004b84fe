package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/render"

	"avion/internal/changelog"
	"avion/internal/infrastructure"
)

// ChangelogHandler serves the release-notes feed.
type ChangelogHandler struct {
	service *changelog.Service
	logger  *slog.Logger
}

// NewChangelogHandler creates a new changelog handler.
func NewChangelogHandler(service *changelog.Service, logger *slog.Logger) *ChangelogHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChangelogHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "changelog")),
	}
}

// ChangelogResponse wraps the feed entries. Stale means the live fetch
// failed and the built-in fallback was served.
type ChangelogResponse struct {
	Entries []changelog.Entry `json:"entries"`
	Stale   bool              `json:"stale"`
	TraceID string            `json:"trace_id"`
}

// Get handles GET /api/changelog.
func (h *ChangelogHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	entries, live := h.service.Entries(ctx)

	render.Status(r, http.StatusOK)
	render.JSON(w, r, ChangelogResponse{
		Entries: entries,
		Stale:   !live,
		TraceID: infrastructure.TraceIDFromContext(ctx),
	})
}
