package license

import (
	"context"
	"time"
)

// ClaimRequest carries the fields persisted by a successful activation.
// OwnerID, ActivatedAt, ExpiresAt and HWID are written in one
// conditional update; they are never set independently.
type ClaimRequest struct {
	Key         string
	OwnerID     string
	HWID        string
	ActivatedAt time.Time
	ExpiresAt   *time.Time
}

// Repository is the row-store contract the registry depends on. It
// performs point lookups and conditional single-row writes; the store
// is the source of truth for key uniqueness.
//
// Implementations return the sentinel errors from internal/errors:
// ErrKeyNotFound for a missing record, ErrClaimConflict when the
// conditional claim matched no row. Transport failures pass through
// and are classified by the registry.
type Repository interface {
	// FindByKey returns the record whose key exactly matches the
	// normalized key, or ErrKeyNotFound.
	FindByKey(ctx context.Context, key string) (LicenseKey, error)

	// FindActiveByOwner returns all active records claimed by the owner.
	FindActiveByOwner(ctx context.Context, ownerID string) ([]LicenseKey, error)

	// Claim atomically activates an unclaimed key. The update must be
	// conditioned on the record still being unclaimed at write time;
	// when the condition fails it returns ErrClaimConflict and mutates
	// nothing.
	Claim(ctx context.Context, req ClaimRequest) (LicenseKey, error)

	// Deactivate sets is_active=false on the record, returning the
	// updated row. Deactivation is terminal for usability.
	Deactivate(ctx context.Context, id string) (LicenseKey, error)

	// Relock replaces the hardware lock on an already-claimed record.
	// Used by the HWID reset flow, never by activation.
	Relock(ctx context.Context, id, hwid string) (LicenseKey, error)

	// Insert stores a newly issued, unclaimed record.
	Insert(ctx context.Context, l LicenseKey) (LicenseKey, error)
}
