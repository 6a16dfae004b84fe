package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/render"
)

// HealthHandler reports liveness and store reachability.
type HealthHandler struct {
	ping   pingFunc
	logger *slog.Logger
}

// NewHealthHandler creates a health handler. ping checks the store.
func NewHealthHandler(ping pingFunc, logger *slog.Logger) *HealthHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HealthHandler{
		ping:   ping,
		logger: logger.With(slog.String("handler", "health")),
	}
}

// HealthResponse is the health payload.
type HealthResponse struct {
	Status    string    `json:"status"` // ok|degraded
	Store     string    `json:"store"`
	Timestamp time.Time `json:"timestamp"`
}

// Get handles GET /healthz.
func (h *HealthHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	resp := HealthResponse{Status: "ok", Store: "ok", Timestamp: time.Now()}
	if err := h.ping(ctx); err != nil {
		h.logger.WarnContext(ctx, "store ping failed", slog.String("error", err.Error()))
		resp.Status = "degraded"
		resp.Store = err.Error()
		render.Status(r, http.StatusServiceUnavailable)
		render.JSON(w, r, resp)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}
