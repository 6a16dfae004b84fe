// Package store provides the persistent backends for the license
// registry and profile service: a pgx-backed Postgres store for
// production and a mutex-guarded in-memory store for tests and local
// runs without a database.
package store

import (
	"context"
	"sync"

	"github.com/google/uuid"

	apperrors "avion/internal/errors"
	"avion/internal/license"
	"avion/internal/profile"
)

// Memory is an in-memory implementation of license.Repository and
// profile.Repository with the same conditional-claim semantics as the
// Postgres store.
type Memory struct {
	mu       sync.RWMutex
	licenses map[string]license.LicenseKey // by id
	byKey    map[string]string             // normalized key -> id
	profiles map[string]profile.Profile
	resets   []profile.ResetLog
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		licenses: make(map[string]license.LicenseKey),
		byKey:    make(map[string]string),
		profiles: make(map[string]profile.Profile),
	}
}

// FindByKey implements license.Repository.
func (m *Memory) FindByKey(ctx context.Context, key string) (license.LicenseKey, error) {
	if err := ctx.Err(); err != nil {
		return license.LicenseKey{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byKey[key]
	if !ok {
		return license.LicenseKey{}, apperrors.ErrKeyNotFound
	}
	return m.licenses[id], nil
}

// FindActiveByOwner implements license.Repository.
func (m *Memory) FindActiveByOwner(ctx context.Context, ownerID string) ([]license.LicenseKey, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []license.LicenseKey
	for _, rec := range m.licenses {
		if rec.IsActive && rec.OwnedBy(ownerID) {
			out = append(out, rec)
		}
	}
	return out, nil
}

// Claim implements license.Repository. The read and the write happen
// under one lock, so at most one of two racing claimants succeeds; the
// loser gets ErrClaimConflict.
func (m *Memory) Claim(ctx context.Context, req license.ClaimRequest) (license.LicenseKey, error) {
	if err := ctx.Err(); err != nil {
		return license.LicenseKey{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	id, ok := m.byKey[req.Key]
	if !ok {
		return license.LicenseKey{}, apperrors.ErrKeyNotFound
	}
	rec := m.licenses[id]
	if rec.OwnerID != nil || rec.HWIDLock != nil || rec.ActivatedAt != nil {
		return license.LicenseKey{}, apperrors.ErrClaimConflict
	}

	ownerID := req.OwnerID
	hwid := req.HWID
	activatedAt := req.ActivatedAt
	rec.OwnerID = &ownerID
	rec.HWIDLock = &hwid
	rec.ActivatedAt = &activatedAt
	rec.ExpiresAt = req.ExpiresAt
	rec.IsActive = true
	m.licenses[id] = rec
	return rec, nil
}

// Deactivate implements license.Repository.
func (m *Memory) Deactivate(ctx context.Context, id string) (license.LicenseKey, error) {
	if err := ctx.Err(); err != nil {
		return license.LicenseKey{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.licenses[id]
	if !ok {
		return license.LicenseKey{}, apperrors.ErrKeyNotFound
	}
	rec.IsActive = false
	m.licenses[id] = rec
	return rec, nil
}

// Relock implements license.Repository.
func (m *Memory) Relock(ctx context.Context, id, hwid string) (license.LicenseKey, error) {
	if err := ctx.Err(); err != nil {
		return license.LicenseKey{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.licenses[id]
	if !ok {
		return license.LicenseKey{}, apperrors.ErrKeyNotFound
	}
	lock := hwid
	rec.HWIDLock = &lock
	m.licenses[id] = rec
	return rec, nil
}

// Insert implements license.Repository.
func (m *Memory) Insert(ctx context.Context, l license.LicenseKey) (license.LicenseKey, error) {
	if err := ctx.Err(); err != nil {
		return license.LicenseKey{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	m.licenses[l.ID] = l
	m.byKey[l.Key] = l.ID
	return l, nil
}

// GetProfile implements profile.Repository.
func (m *Memory) GetProfile(ctx context.Context, ownerID string) (profile.Profile, error) {
	if err := ctx.Err(); err != nil {
		return profile.Profile{}, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	p, ok := m.profiles[ownerID]
	if !ok {
		return profile.Profile{}, apperrors.ErrProfileNotFound
	}
	return p, nil
}

// SaveProfile implements profile.Repository.
func (m *Memory) SaveProfile(ctx context.Context, p profile.Profile) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.profiles[p.OwnerID] = p
	return nil
}

// LogReset implements profile.Repository.
func (m *Memory) LogReset(ctx context.Context, entry profile.ResetLog) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	m.resets = append(m.resets, entry)
	return nil
}

// ResetLogsFor returns the audit rows recorded for an owner.
func (m *Memory) ResetLogsFor(ownerID string) []profile.ResetLog {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []profile.ResetLog
	for _, entry := range m.resets {
		if entry.OwnerID == ownerID {
			out = append(out, entry)
		}
	}
	return out
}

// Ping implements the health check.
func (m *Memory) Ping(ctx context.Context) error {
	return ctx.Err()
}
