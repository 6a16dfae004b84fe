// Package services holds the business-logic layer between the license
// registry and the HTTP transport: it composes registry calls into the
// responses the dashboard renders.
package services

import (
	"context"
	"log/slog"
	"time"

	"avion/internal/infrastructure"
	"avion/internal/license"
)

// License status values surfaced to the dashboard.
const (
	StatusActive       = "active"
	StatusExpired      = "expired"
	StatusNotActivated = "not_activated"
)

// LicenseService provides business logic for license operations.
type LicenseService interface {
	// Status returns the owner's license status, sweeping an expired
	// license into the inactive state on the way (lazy expiration).
	Status(ctx context.Context, ownerID string) (*LicenseStatusResponse, error)

	// Activate claims a key for the owner on the given hardware and
	// returns the resulting status.
	Activate(ctx context.Context, ownerID, rawKey, hwid string) (*LicenseStatusResponse, error)

	// InvalidateCache drops the owner's cached status.
	InvalidateCache(ownerID string)
}

// ExpirationInfo is the expiration breakdown the dashboard renders.
type ExpirationInfo struct {
	IsExpired        bool       `json:"is_expired"`
	IsLifetime       bool       `json:"is_lifetime"`
	DaysRemaining    int        `json:"days_remaining"`
	HoursRemaining   int        `json:"hours_remaining"`
	MinutesRemaining int        `json:"minutes_remaining"`
	ActivatedAt      *time.Time `json:"activated_at,omitempty"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
}

// LicenseStatusResponse is the standardized license status payload.
type LicenseStatusResponse struct {
	LicenseStatus  string              `json:"license_status"` // active|expired|not_activated
	Message        string              `json:"message"`
	License        *license.LicenseKey `json:"license,omitempty"`
	Expiration     *ExpirationInfo     `json:"expiration,omitempty"`
	RenewalUrgency license.Urgency     `json:"renewal_urgency"`
	TraceID        string              `json:"trace_id"`
	Timestamp      time.Time           `json:"timestamp"`
}

// licenseService implements LicenseService on the registry with a
// short-TTL status cache in front of the store.
type licenseService struct {
	registry *license.Registry
	cache    *license.StatusCache
	clock    func() time.Time
	logger   *slog.Logger
}

// NewLicenseService creates a license service. The cache may be nil.
func NewLicenseService(registry *license.Registry, cache *license.StatusCache, logger *slog.Logger) LicenseService {
	if logger == nil {
		logger = slog.Default()
	}
	return &licenseService{
		registry: registry,
		cache:    cache,
		clock:    time.Now,
		logger:   logger.With(slog.String("service", "license")),
	}
}

func (s *licenseService) Status(ctx context.Context, ownerID string) (*LicenseStatusResponse, error) {
	traceID := infrastructure.TraceIDFromContext(ctx)

	if s.cache != nil {
		if cached, ok := s.cache.Get(ownerID); ok {
			// A cached license that has expired since it was stored must
			// not dodge the sweep; fall through to the store path.
			if cached == nil || !license.Evaluate(*cached, s.clock()).Expired {
				return s.buildStatus(cached, traceID), nil
			}
			s.cache.Invalidate(ownerID)
		}
	}

	current, err := s.registry.CurrentLicenseFor(ctx, ownerID)
	if err != nil {
		s.logger.ErrorContext(ctx, "license status lookup failed",
			slog.String("trace_id", traceID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	if current == nil {
		if s.cache != nil {
			s.cache.Set(ownerID, nil)
		}
		return s.buildStatus(nil, traceID), nil
	}

	// Lazy expiration: materialize is_active=false before reporting. A
	// sweep failure propagates; an expired license is never reported as
	// healthy on the strength of a failed write.
	swept, err := s.registry.SweepExpired(ctx, *current)
	if err != nil {
		s.logger.ErrorContext(ctx, "expiration sweep failed",
			slog.String("trace_id", traceID),
			slog.String("error", err.Error()),
		)
		return nil, err
	}

	if s.cache != nil {
		if swept.IsActive {
			s.cache.Set(ownerID, &swept)
		} else {
			s.cache.Invalidate(ownerID)
		}
	}
	return s.buildStatus(&swept, traceID), nil
}

func (s *licenseService) Activate(ctx context.Context, ownerID, rawKey, hwid string) (*LicenseStatusResponse, error) {
	traceID := infrastructure.TraceIDFromContext(ctx)

	activated, err := s.registry.Activate(ctx, rawKey, ownerID, hwid)
	if err != nil {
		return nil, err
	}

	s.InvalidateCache(ownerID)
	resp := s.buildStatus(&activated, traceID)
	resp.Message = "License activated successfully"
	return resp, nil
}

func (s *licenseService) InvalidateCache(ownerID string) {
	if s.cache != nil {
		s.cache.Invalidate(ownerID)
	}
}

func (s *licenseService) buildStatus(l *license.LicenseKey, traceID string) *LicenseStatusResponse {
	now := s.clock()
	resp := &LicenseStatusResponse{
		TraceID:   traceID,
		Timestamp: now,
	}

	if l == nil {
		resp.LicenseStatus = StatusNotActivated
		resp.Message = "No active license. Activate a key to access all features"
		resp.RenewalUrgency = license.UrgencyCritical
		return resp
	}

	status := license.Evaluate(*l, now)
	resp.License = l
	resp.Expiration = &ExpirationInfo{
		IsExpired:        status.Expired,
		IsLifetime:       status.Lifetime,
		DaysRemaining:    status.Days,
		HoursRemaining:   status.Hours,
		MinutesRemaining: status.Minutes,
		ActivatedAt:      l.ActivatedAt,
		ExpiresAt:        l.ExpiresAt,
	}
	resp.RenewalUrgency = license.ClassifyUrgency(status)

	switch {
	case status.Expired || !l.IsActive:
		resp.LicenseStatus = StatusExpired
		resp.Message = "Your license has expired. Renew to continue using Avion"
	case status.Lifetime:
		resp.LicenseStatus = StatusActive
		resp.Message = "Lifetime access. Your license never expires"
	default:
		resp.LicenseStatus = StatusActive
		resp.Message = "License active, " + status.String() + " remaining"
	}
	return resp
}
