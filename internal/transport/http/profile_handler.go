package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	apperrors "avion/internal/errors"
	"avion/internal/infrastructure"
	"avion/internal/profile"
	"avion/internal/services"
)

// ProfileHandler handles HWID profile requests.
type ProfileHandler struct {
	service  *profile.Service
	licenses services.LicenseService
	logger   *slog.Logger
}

// NewProfileHandler creates a new profile handler.
func NewProfileHandler(service *profile.Service, licenses services.LicenseService, logger *slog.Logger) *ProfileHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProfileHandler{
		service:  service,
		licenses: licenses,
		logger:   logger.With(slog.String("handler", "profile")),
	}
}

// ProfileResponse is the HWID payload the dashboard renders.
type ProfileResponse struct {
	OwnerID   string    `json:"owner_id"`
	HWID      string    `json:"hwid"`
	UpdatedAt time.Time `json:"updated_at"`
	TraceID   string    `json:"trace_id"`
}

// Routes returns a chi router for profile endpoints.
func (h *ProfileHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/hwid", h.GetHWID)
	r.Post("/hwid/reset", h.ResetHWID)

	return r
}

// GetHWID handles GET /api/profile/hwid. Issues a HWID on first contact.
func (h *ProfileHandler) GetHWID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ownerID := requireOwner(w, r)
	if ownerID == "" {
		return
	}

	p, err := h.service.HWIDFor(ctx, ownerID)
	if err != nil {
		h.logger.ErrorContext(ctx, "hwid lookup failed", slog.String("error", err.Error()))
		render.Render(w, r, apperrors.ErrInternalServer)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, h.response(ctx, p))
}

// ResetHWID handles POST /api/profile/hwid/reset. The reset re-locks
// the owner's active license to the fresh identifier.
func (h *ProfileHandler) ResetHWID(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	ownerID := requireOwner(w, r)
	if ownerID == "" {
		return
	}

	p, err := h.service.Reset(ctx, ownerID)
	if err != nil {
		h.logger.ErrorContext(ctx, "hwid reset failed", slog.String("error", err.Error()))
		render.Render(w, r, apperrors.LicenseAPIError(err))
		return
	}

	// The relock changed the license record; a cached status would show
	// the stale lock.
	h.licenses.InvalidateCache(ownerID)

	render.Status(r, http.StatusOK)
	render.JSON(w, r, h.response(ctx, p))
}

func (h *ProfileHandler) response(ctx context.Context, p profile.Profile) ProfileResponse {
	return ProfileResponse{
		OwnerID:   p.OwnerID,
		HWID:      p.HWID,
		UpdatedAt: p.UpdatedAt,
		TraceID:   infrastructure.TraceIDFromContext(ctx),
	}
}
