package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "avion/internal/errors"
	"avion/internal/license"
	"avion/internal/profile"
)

// Schema mirrors the hosted tables the dashboard was built against.
const Schema = `
CREATE TABLE IF NOT EXISTS license_keys (
	id           UUID PRIMARY KEY,
	key          TEXT NOT NULL UNIQUE,
	type         TEXT NOT NULL,
	owner_id     TEXT,
	created_at   TIMESTAMPTZ NOT NULL,
	activated_at TIMESTAMPTZ,
	expires_at   TIMESTAMPTZ,
	is_active    BOOLEAN NOT NULL DEFAULT TRUE,
	hwid_locked  TEXT
);

CREATE INDEX IF NOT EXISTS license_keys_owner_idx ON license_keys (owner_id) WHERE is_active;

CREATE TABLE IF NOT EXISTS profiles (
	owner_id   TEXT PRIMARY KEY,
	hwid       TEXT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS hwid_reset_logs (
	id         UUID PRIMARY KEY,
	owner_id   TEXT NOT NULL,
	old_hwid   TEXT NOT NULL,
	new_hwid   TEXT NOT NULL,
	created_at TIMESTAMPTZ NOT NULL
);
`

const licenseColumns = `id, key, type, owner_id, created_at, activated_at, expires_at, is_active, hwid_locked`

// Postgres implements license.Repository and profile.Repository on a
// pgx connection pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres connects, pings, and returns a Postgres store.
func NewPostgres(ctx context.Context, dsn string, maxConns int32) (*Postgres, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database DSN: %w", err)
	}
	if maxConns > 0 {
		poolCfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Postgres{pool: pool}, nil
}

// EnsureSchema creates the tables if they do not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	if _, err := p.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}

// Ping implements the health check.
func (p *Postgres) Ping(ctx context.Context) error {
	return p.pool.Ping(ctx)
}

// FindByKey implements license.Repository.
func (p *Postgres) FindByKey(ctx context.Context, key string) (license.LicenseKey, error) {
	row := p.pool.QueryRow(ctx,
		`SELECT `+licenseColumns+` FROM license_keys WHERE key = $1`, key)
	rec, err := scanLicense(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return license.LicenseKey{}, apperrors.ErrKeyNotFound
	}
	return rec, err
}

// FindActiveByOwner implements license.Repository.
func (p *Postgres) FindActiveByOwner(ctx context.Context, ownerID string) ([]license.LicenseKey, error) {
	rows, err := p.pool.Query(ctx,
		`SELECT `+licenseColumns+` FROM license_keys WHERE owner_id = $1 AND is_active`, ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []license.LicenseKey
	for rows.Next() {
		rec, err := scanLicense(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// Claim implements license.Repository. The UPDATE is conditioned on the
// row still being unclaimed, so of two racing activators at most one
// matches; the other sees ErrClaimConflict and the registry classifies
// it from a re-read.
func (p *Postgres) Claim(ctx context.Context, req license.ClaimRequest) (license.LicenseKey, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE license_keys
		SET owner_id = $1, hwid_locked = $2, activated_at = $3, expires_at = $4, is_active = TRUE
		WHERE key = $5
		  AND owner_id IS NULL
		  AND hwid_locked IS NULL
		  AND activated_at IS NULL
		RETURNING `+licenseColumns,
		req.OwnerID, req.HWID, req.ActivatedAt, req.ExpiresAt, req.Key)
	rec, err := scanLicense(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return license.LicenseKey{}, apperrors.ErrClaimConflict
	}
	return rec, err
}

// Deactivate implements license.Repository.
func (p *Postgres) Deactivate(ctx context.Context, id string) (license.LicenseKey, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE license_keys SET is_active = FALSE WHERE id = $1
		RETURNING `+licenseColumns, id)
	rec, err := scanLicense(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return license.LicenseKey{}, apperrors.ErrKeyNotFound
	}
	return rec, err
}

// Relock implements license.Repository.
func (p *Postgres) Relock(ctx context.Context, id, hwid string) (license.LicenseKey, error) {
	row := p.pool.QueryRow(ctx, `
		UPDATE license_keys SET hwid_locked = $2 WHERE id = $1
		RETURNING `+licenseColumns, id, hwid)
	rec, err := scanLicense(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return license.LicenseKey{}, apperrors.ErrKeyNotFound
	}
	return rec, err
}

// Insert implements license.Repository.
func (p *Postgres) Insert(ctx context.Context, l license.LicenseKey) (license.LicenseKey, error) {
	row := p.pool.QueryRow(ctx, `
		INSERT INTO license_keys (id, key, type, owner_id, created_at, activated_at, expires_at, is_active, hwid_locked)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING `+licenseColumns,
		l.ID, l.Key, string(l.Kind), l.OwnerID, l.CreatedAt, l.ActivatedAt, l.ExpiresAt, l.IsActive, l.HWIDLock)
	return scanLicense(row)
}

// GetProfile implements profile.Repository.
func (p *Postgres) GetProfile(ctx context.Context, ownerID string) (profile.Profile, error) {
	var out profile.Profile
	err := p.pool.QueryRow(ctx,
		`SELECT owner_id, hwid, updated_at FROM profiles WHERE owner_id = $1`, ownerID).
		Scan(&out.OwnerID, &out.HWID, &out.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return profile.Profile{}, apperrors.ErrProfileNotFound
	}
	return out, err
}

// SaveProfile implements profile.Repository.
func (p *Postgres) SaveProfile(ctx context.Context, pr profile.Profile) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO profiles (owner_id, hwid, updated_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (owner_id) DO UPDATE SET hwid = EXCLUDED.hwid, updated_at = EXCLUDED.updated_at`,
		pr.OwnerID, pr.HWID, pr.UpdatedAt)
	return err
}

// LogReset implements profile.Repository.
func (p *Postgres) LogReset(ctx context.Context, entry profile.ResetLog) error {
	_, err := p.pool.Exec(ctx, `
		INSERT INTO hwid_reset_logs (id, owner_id, old_hwid, new_hwid, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		entry.ID, entry.OwnerID, entry.OldHWID, entry.NewHWID, entry.CreatedAt)
	return err
}

func scanLicense(row pgx.Row) (license.LicenseKey, error) {
	var rec license.LicenseKey
	var kind string
	err := row.Scan(&rec.ID, &rec.Key, &kind, &rec.OwnerID, &rec.CreatedAt,
		&rec.ActivatedAt, &rec.ExpiresAt, &rec.IsActive, &rec.HWIDLock)
	if err != nil {
		return license.LicenseKey{}, err
	}
	rec.Kind = license.Kind(kind)
	return rec, nil
}
