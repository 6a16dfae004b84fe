package http

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	apperrors "avion/internal/errors"
	"avion/internal/license"
	custommw "avion/internal/middleware"
	"avion/internal/services"
)

var validate = validator.New()

// LicenseHandler handles license-related HTTP requests.
type LicenseHandler struct {
	service services.LicenseService
	logger  *slog.Logger
}

// NewLicenseHandler creates a new license handler.
func NewLicenseHandler(service services.LicenseService, logger *slog.Logger) *LicenseHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &LicenseHandler{
		service: service,
		logger:  logger.With(slog.String("handler", "license")),
	}
}

// ActivationRequest is the activation payload.
type ActivationRequest struct {
	LicenseKey string `json:"license_key" validate:"required"`
	HWID       string `json:"hwid" validate:"required"`
}

// Bind implements the render.Binder interface for activation requests.
func (a *ActivationRequest) Bind(r *http.Request) error {
	if err := validate.Struct(a); err != nil {
		return err
	}
	if !license.ValidKeyFormat(license.NormalizeKey(a.LicenseKey)) {
		return errors.New("invalid license key format. Expected: AVION-XXXX-XXXX-XXXX")
	}
	return nil
}

// Routes returns a chi router for license endpoints. The activation
// endpoint sits behind the per-IP rate limiter.
func (h *LicenseHandler) Routes(limiter *custommw.ActivationLimiter) chi.Router {
	r := chi.NewRouter()

	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Get("/status", h.GetStatus)
	if limiter != nil {
		r.With(limiter.Handler).Post("/activate", h.Activate)
	} else {
		r.Post("/activate", h.Activate)
	}

	return r
}

// GetStatus handles GET /api/license/status.
func (h *LicenseHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("license-handler")
	ctx, span := tracer.Start(ctx, "license.get_status")
	defer span.End()

	ownerID := requireOwner(w, r)
	if ownerID == "" {
		return
	}

	resp, err := h.service.Status(ctx, ownerID)
	if err != nil {
		span.SetAttributes(attribute.String("error", err.Error()))
		render.Render(w, r, apperrors.LicenseAPIError(err))
		return
	}

	span.SetAttributes(attribute.String("license.status", resp.LicenseStatus))
	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}

// Activate handles POST /api/license/activate.
func (h *LicenseHandler) Activate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tracer := otel.Tracer("license-handler")
	ctx, span := tracer.Start(ctx, "license.activate")
	defer span.End()

	ownerID := requireOwner(w, r)
	if ownerID == "" {
		return
	}

	req := &ActivationRequest{}
	if err := render.Bind(r, req); err != nil {
		render.Render(w, r, apperrors.InvalidRequestWithError(err))
		return
	}

	resp, err := h.service.Activate(ctx, ownerID, req.LicenseKey, req.HWID)
	if err != nil {
		apiErr := apperrors.LicenseAPIError(err)
		span.SetAttributes(attribute.String("error", apiErr.ErrorCode))
		h.logger.WarnContext(ctx, "activation rejected",
			slog.String("code", apiErr.ErrorCode),
			slog.String("key", license.MaskKey(license.NormalizeKey(req.LicenseKey))),
		)
		render.Render(w, r, apiErr)
		return
	}

	render.Status(r, http.StatusOK)
	render.JSON(w, r, resp)
}
