package http

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"

	apperrors "avion/internal/errors"
	custommw "avion/internal/middleware"
)

// RouterConfig carries the handler dependencies.
type RouterConfig struct {
	Logger           *slog.Logger
	LicenseHandler   *LicenseHandler
	ProfileHandler   *ProfileHandler
	ChangelogHandler *ChangelogHandler
	HealthHandler    *HealthHandler
	MetricsHandler   http.Handler
	Limiter          *custommw.ActivationLimiter
}

// NewRouter assembles the middleware chain and mounts all routes.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(custommw.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(custommw.StructuredLogger(cfg.Logger))
	r.Use(custommw.Recoverer(cfg.Logger))

	r.Route("/api", func(api chi.Router) {
		api.Mount("/license", cfg.LicenseHandler.Routes(cfg.Limiter))
		api.Mount("/profile", cfg.ProfileHandler.Routes())
		api.Get("/changelog", cfg.ChangelogHandler.Get)
	})

	r.Get("/healthz", cfg.HealthHandler.Get)
	if cfg.MetricsHandler != nil {
		r.Handle("/metrics", cfg.MetricsHandler)
	}

	return r
}

// ownerIDFrom extracts the authenticated account ID. The auth layer in
// front of this service verifies the session and forwards the subject.
func ownerIDFrom(r *http.Request) string {
	return r.Header.Get("X-User-ID")
}

// requireOwner renders 401 and returns "" when no identity is present.
func requireOwner(w http.ResponseWriter, r *http.Request) string {
	ownerID := ownerIDFrom(r)
	if ownerID == "" {
		render.Render(w, r, apperrors.ErrUnauthorized)
	}
	return ownerID
}

type pingFunc func(ctx context.Context) error
