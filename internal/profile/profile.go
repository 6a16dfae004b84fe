// Package profile manages per-account hardware identifiers. Every
// account carries one HWID; resets are audited and move the hardware
// lock of the account's active license along with the profile.
package profile

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	apperrors "avion/internal/errors"
	"avion/internal/license"
)

// Profile is an account's hardware identity.
type Profile struct {
	OwnerID   string    `json:"owner_id"`
	HWID      string    `json:"hwid"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ResetLog is the audit row written for every HWID reset.
type ResetLog struct {
	ID        string    `json:"id"`
	OwnerID   string    `json:"owner_id"`
	OldHWID   string    `json:"old_hwid"`
	NewHWID   string    `json:"new_hwid"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository persists profiles and reset audit rows.
type Repository interface {
	GetProfile(ctx context.Context, ownerID string) (Profile, error)
	SaveProfile(ctx context.Context, p Profile) error
	LogReset(ctx context.Context, entry ResetLog) error
}

// Relocker moves the hardware lock of an owner's active license. The
// license registry satisfies this.
type Relocker interface {
	Relock(ctx context.Context, ownerID, hwid string) (*license.LicenseKey, error)
}

// Service implements HWID issue and reset.
type Service struct {
	repo     Repository
	licenses Relocker
	clock    func() time.Time
	logger   *slog.Logger
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithClock injects the time source.
func WithClock(clock func() time.Time) ServiceOption {
	return func(s *Service) { s.clock = clock }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(s *Service) {
		if logger != nil {
			s.logger = logger.With(slog.String("component", "profile_service"))
		}
	}
}

// NewService creates a profile service.
func NewService(repo Repository, licenses Relocker, opts ...ServiceOption) *Service {
	s := &Service{
		repo:     repo,
		licenses: licenses,
		clock:    time.Now,
		logger:   slog.Default().With(slog.String("component", "profile_service")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// HWIDFor returns the account's profile, issuing and persisting a fresh
// HWID on first contact.
func (s *Service) HWIDFor(ctx context.Context, ownerID string) (Profile, error) {
	p, err := s.repo.GetProfile(ctx, ownerID)
	if err == nil {
		return p, nil
	}
	if !errors.Is(err, apperrors.ErrProfileNotFound) {
		return Profile{}, fmt.Errorf("load profile: %w", err)
	}

	hwid, err := GenerateHWID()
	if err != nil {
		return Profile{}, fmt.Errorf("issue hwid: %w", err)
	}
	p = Profile{OwnerID: ownerID, HWID: hwid, UpdatedAt: s.clock()}
	if err := s.repo.SaveProfile(ctx, p); err != nil {
		return Profile{}, fmt.Errorf("save profile: %w", err)
	}
	s.logger.InfoContext(ctx, "hwid issued", slog.String("owner_id", ownerID))
	return p, nil
}

// Reset issues a new HWID, writes the audit row, saves the profile, and
// moves the hardware lock of the owner's active license to the new
// identifier. A relock failure propagates: a half-applied reset must
// not be reported as success.
func (s *Service) Reset(ctx context.Context, ownerID string) (Profile, error) {
	current, err := s.HWIDFor(ctx, ownerID)
	if err != nil {
		return Profile{}, err
	}

	hwid, err := GenerateHWID()
	if err != nil {
		return Profile{}, fmt.Errorf("issue hwid: %w", err)
	}
	now := s.clock()

	if err := s.repo.LogReset(ctx, ResetLog{
		ID:        uuid.NewString(),
		OwnerID:   ownerID,
		OldHWID:   current.HWID,
		NewHWID:   hwid,
		CreatedAt: now,
	}); err != nil {
		return Profile{}, fmt.Errorf("log hwid reset: %w", err)
	}

	updated := Profile{OwnerID: ownerID, HWID: hwid, UpdatedAt: now}
	if err := s.repo.SaveProfile(ctx, updated); err != nil {
		return Profile{}, fmt.Errorf("save profile: %w", err)
	}

	if _, err := s.licenses.Relock(ctx, ownerID, hwid); err != nil {
		return Profile{}, fmt.Errorf("relock license after hwid reset: %w", err)
	}

	s.logger.InfoContext(ctx, "hwid reset", slog.String("owner_id", ownerID))
	return updated, nil
}

const hwidCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// GenerateHWID produces a new hardware identifier in the form
// AVION-XXXX-XXXX-XXXX-XXXX.
func GenerateHWID() (string, error) {
	segments := make([]string, 4)
	for i := range segments {
		buf := make([]byte, 4)
		if _, err := rand.Read(buf); err != nil {
			return "", err
		}
		chars := make([]byte, 4)
		for j, b := range buf {
			chars[j] = hwidCharset[int(b)%len(hwidCharset)]
		}
		segments[i] = string(chars)
	}
	return "AVION-" + strings.Join(segments, "-"), nil
}
