package license

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "avion/internal/errors"
)

// DefaultStoreTimeout bounds every store call made by the registry.
const DefaultStoreTimeout = 8 * time.Second

// Registry owns the license key lifecycle. Every call is self-contained
// given the store and the current time; there is no internal shared
// mutable state and time is read fresh through the injected clock on
// every operation.
type Registry struct {
	repo    Repository
	clock   func() time.Time
	timeout time.Duration
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
}

// Option configures a Registry.
type Option func(*Registry)

// WithClock injects the time source. Tests use this to pin "now".
func WithClock(clock func() time.Time) Option {
	return func(r *Registry) { r.clock = clock }
}

// WithTimeout overrides the per-call store timeout.
func WithTimeout(d time.Duration) Option {
	return func(r *Registry) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		if logger != nil {
			r.logger = logger.With(slog.String("component", "license_registry"))
		}
	}
}

// WithMetrics attaches Prometheus collectors.
func WithMetrics(m *Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// NewRegistry creates a registry backed by the given repository.
func NewRegistry(repo Repository, opts ...Option) *Registry {
	r := &Registry{
		repo:    repo,
		clock:   time.Now,
		timeout: DefaultStoreTimeout,
		logger:  slog.Default().With(slog.String("component", "license_registry")),
		tracer:  otel.Tracer("license-registry"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// LookupByKey normalizes the raw key and returns the single matching
// record. A missing key is ErrKeyNotFound, never a transport failure.
func (r *Registry) LookupByKey(ctx context.Context, rawKey string) (LicenseKey, error) {
	key := NormalizeKey(rawKey)
	if !ValidKeyFormat(key) {
		return LicenseKey{}, apperrors.ErrInvalidKeyFormat
	}
	return r.findByKey(ctx, key)
}

// Activate claims a key for an account on a specific device.
//
// Checks run in order, first failure wins: the key must exist, must be
// unclaimed or claimed by the caller, and must be unlocked or locked to
// the caller's HWID. Re-activation by the same owner and HWID returns
// the stored record unchanged; the expiry is never recomputed, so a
// repeat call cannot silently renew a license.
//
// The persisted write is conditioned on the record still being
// unclaimed at write time. When two callers race on one key, exactly
// one wins and the other observes ErrAlreadyClaimed.
func (r *Registry) Activate(ctx context.Context, rawKey, ownerID, hwid string) (LicenseKey, error) {
	ctx, span := r.tracer.Start(ctx, "license.activate")
	defer span.End()

	key := NormalizeKey(rawKey)
	if !ValidKeyFormat(key) {
		r.metrics.observeActivation(outcomeInvalidFormat)
		return LicenseKey{}, apperrors.ErrInvalidKeyFormat
	}
	span.SetAttributes(attribute.String("license.key", MaskKey(key)))

	rec, err := r.findByKey(ctx, key)
	if err != nil {
		r.metrics.observeActivation(activationOutcome(err))
		return LicenseKey{}, err
	}

	if rec.Claimed() && !rec.OwnedBy(ownerID) {
		r.metrics.observeActivation(outcomeAlreadyClaimed)
		r.logger.WarnContext(ctx, "activation rejected: key claimed by another account",
			slog.String("key", MaskKey(key)))
		return LicenseKey{}, apperrors.ErrAlreadyClaimed
	}
	if rec.HWIDLock != nil && !rec.LockedTo(hwid) {
		r.metrics.observeActivation(outcomeHardwareMismatch)
		r.logger.WarnContext(ctx, "activation rejected: hardware mismatch",
			slog.String("key", MaskKey(key)))
		return LicenseKey{}, apperrors.ErrHardwareMismatch
	}
	if rec.Claimed() && rec.HWIDLock != nil {
		// Same owner, same device: idempotent re-confirmation.
		r.metrics.observeActivation(outcomeIdempotent)
		return rec, nil
	}

	now := r.clock()
	var expiresAt *time.Time
	if d, ok := rec.Kind.Duration(); ok {
		t := now.Add(d)
		expiresAt = &t
	}

	sctx, cancel := r.storeContext(ctx)
	updated, err := r.repo.Claim(sctx, ClaimRequest{
		Key:         key,
		OwnerID:     ownerID,
		HWID:        hwid,
		ActivatedAt: now,
		ExpiresAt:   expiresAt,
	})
	cancel()
	if errors.Is(err, apperrors.ErrClaimConflict) {
		return r.classifyClaimConflict(ctx, key, ownerID, hwid)
	}
	if err != nil {
		mapped := r.mapStoreError(err)
		r.metrics.observeActivation(outcomeStoreError)
		return LicenseKey{}, mapped
	}

	r.metrics.observeActivation(outcomeActivated)
	r.logger.InfoContext(ctx, "license activated",
		slog.String("key", MaskKey(key)),
		slog.String("kind", string(updated.Kind)),
		slog.String("expires", expiresString(updated.ExpiresAt)),
	)
	return updated, nil
}

// classifyClaimConflict re-reads the record after a lost conditional
// write and turns the conflict into the rejection the caller would have
// seen had it read last.
func (r *Registry) classifyClaimConflict(ctx context.Context, key, ownerID, hwid string) (LicenseKey, error) {
	rec, err := r.findByKey(ctx, key)
	if err != nil {
		r.metrics.observeActivation(activationOutcome(err))
		return LicenseKey{}, err
	}
	switch {
	case rec.Claimed() && !rec.OwnedBy(ownerID):
		r.metrics.observeActivation(outcomeAlreadyClaimed)
		return LicenseKey{}, apperrors.ErrAlreadyClaimed
	case rec.HWIDLock != nil && !rec.LockedTo(hwid):
		r.metrics.observeActivation(outcomeHardwareMismatch)
		return LicenseKey{}, apperrors.ErrHardwareMismatch
	default:
		// Raced with an identical claim; the stored state is already
		// what this caller asked for.
		r.metrics.observeActivation(outcomeIdempotent)
		return rec, nil
	}
}

// CurrentLicenseFor returns the owner's most-recently-expiring active
// license, or nil when none exists. Lifetime keys (null expiry) sort
// greatest. Read-only.
func (r *Registry) CurrentLicenseFor(ctx context.Context, ownerID string) (*LicenseKey, error) {
	sctx, cancel := r.storeContext(ctx)
	defer cancel()

	records, err := r.repo.FindActiveByOwner(sctx, ownerID)
	if err != nil {
		return nil, r.mapStoreError(err)
	}
	return pickCurrent(records), nil
}

func pickCurrent(records []LicenseKey) *LicenseKey {
	var best *LicenseKey
	for i := range records {
		candidate := &records[i]
		if best == nil {
			best = candidate
			continue
		}
		if candidate.ExpiresAt == nil {
			best = candidate
			continue
		}
		if best.ExpiresAt != nil && candidate.ExpiresAt.After(*best.ExpiresAt) {
			best = candidate
		}
	}
	return best
}

// SweepExpired materializes expiration into is_active. If the license
// evaluates as expired and is still flagged active, the record is
// deactivated and the update returned; otherwise the record comes back
// unchanged. Invoked by callers on read, not on a schedule. A failed
// sweep propagates; it is never reported as a healthy license.
func (r *Registry) SweepExpired(ctx context.Context, l LicenseKey) (LicenseKey, error) {
	status := Evaluate(l, r.clock())
	if !status.Expired || !l.IsActive {
		return l, nil
	}

	sctx, cancel := r.storeContext(ctx)
	defer cancel()

	updated, err := r.repo.Deactivate(sctx, l.ID)
	if err != nil {
		return LicenseKey{}, r.mapStoreError(err)
	}
	r.metrics.observeSweep()
	r.logger.InfoContext(ctx, "expired license swept",
		slog.String("key", MaskKey(l.Key)),
		slog.String("kind", string(l.Kind)),
	)
	return updated, nil
}

// Relock moves the hardware lock of the owner's current license to a
// new HWID. Returns nil without error when the owner has no active
// license to relock.
func (r *Registry) Relock(ctx context.Context, ownerID, hwid string) (*LicenseKey, error) {
	current, err := r.CurrentLicenseFor(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, nil
	}

	sctx, cancel := r.storeContext(ctx)
	defer cancel()

	updated, err := r.repo.Relock(sctx, current.ID, hwid)
	if err != nil {
		return nil, r.mapStoreError(err)
	}
	r.logger.InfoContext(ctx, "license hardware lock moved",
		slog.String("key", MaskKey(updated.Key)))
	return &updated, nil
}

// Issue creates a new unclaimed key of the given kind. Used by the
// reseller/admin surface; activation is a separate, user-driven step.
func (r *Registry) Issue(ctx context.Context, kind Kind) (LicenseKey, error) {
	if !kind.Valid() {
		return LicenseKey{}, fmt.Errorf("issue license: unknown kind %q", kind)
	}
	key, err := GenerateKey()
	if err != nil {
		return LicenseKey{}, fmt.Errorf("issue license: %w", err)
	}

	sctx, cancel := r.storeContext(ctx)
	defer cancel()

	created, err := r.repo.Insert(sctx, LicenseKey{
		ID:        uuid.NewString(),
		Key:       key,
		Kind:      kind,
		CreatedAt: r.clock(),
		IsActive:  true,
	})
	if err != nil {
		return LicenseKey{}, r.mapStoreError(err)
	}
	r.metrics.observeIssued()
	r.logger.InfoContext(ctx, "license issued",
		slog.String("key", MaskKey(created.Key)),
		slog.String("kind", string(kind)),
	)
	return created, nil
}

func (r *Registry) findByKey(ctx context.Context, key string) (LicenseKey, error) {
	sctx, cancel := r.storeContext(ctx)
	defer cancel()

	rec, err := r.repo.FindByKey(sctx, key)
	if err != nil {
		return LicenseKey{}, r.mapStoreError(err)
	}
	return rec, nil
}

func (r *Registry) storeContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

// mapStoreError classifies a repository failure. Semantic sentinels
// pass through untouched; a deadline means the outcome is unknown and
// surfaces as ErrStoreTimeout, everything else as ErrStoreUnavailable.
func (r *Registry) mapStoreError(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, apperrors.ErrKeyNotFound),
		errors.Is(err, apperrors.ErrClaimConflict):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", apperrors.ErrStoreTimeout, err)
	default:
		return fmt.Errorf("%w: %v", apperrors.ErrStoreUnavailable, err)
	}
}

func activationOutcome(err error) string {
	switch {
	case errors.Is(err, apperrors.ErrKeyNotFound):
		return outcomeNotFound
	case errors.Is(err, apperrors.ErrInvalidKeyFormat):
		return outcomeInvalidFormat
	default:
		return outcomeStoreError
	}
}

func expiresString(t *time.Time) string {
	if t == nil {
		return "never"
	}
	return t.UTC().Format(time.RFC3339)
}
