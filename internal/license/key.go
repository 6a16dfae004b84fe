package license

import (
	"crypto/rand"
	"fmt"
	"regexp"
	"strings"
	"time"
)

// Kind is the license duration class. It is immutable after issuance
// and determines the expiration policy at activation time.
type Kind string

const (
	KindWeekly   Kind = "weekly"
	KindMonthly  Kind = "monthly"
	KindLifetime Kind = "lifetime"
)

// Valid reports whether k is a known license kind.
func (k Kind) Valid() bool {
	switch k {
	case KindWeekly, KindMonthly, KindLifetime:
		return true
	}
	return false
}

// Duration returns the activation-to-expiry duration for the kind.
// Lifetime keys have no duration; ok is false.
func (k Kind) Duration() (time.Duration, bool) {
	switch k {
	case KindWeekly:
		return 7 * 24 * time.Hour, true
	case KindMonthly:
		return 30 * 24 * time.Hour, true
	default:
		return 0, false
	}
}

// LicenseKey is a single license record. Nullable columns map to
// pointer fields: OwnerID and HWIDLock are nil until activation binds
// them (always together), ExpiresAt is nil for lifetime keys and for
// keys that were never activated.
type LicenseKey struct {
	ID          string     `json:"id"`
	Key         string     `json:"key"`
	Kind        Kind       `json:"type"`
	OwnerID     *string    `json:"owner_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	ActivatedAt *time.Time `json:"activated_at,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	IsActive    bool       `json:"is_active"`
	HWIDLock    *string    `json:"hwid_locked,omitempty"`
}

// Claimed reports whether the key has been activated by any account.
func (l LicenseKey) Claimed() bool {
	return l.OwnerID != nil
}

// OwnedBy reports whether the key is claimed by the given account.
func (l LicenseKey) OwnedBy(ownerID string) bool {
	return l.OwnerID != nil && *l.OwnerID == ownerID
}

// LockedTo reports whether the key is hardware-locked to the given HWID.
func (l LicenseKey) LockedTo(hwid string) bool {
	return l.HWIDLock != nil && *l.HWIDLock == hwid
}

var keyPattern = regexp.MustCompile(`^AVION-[A-Z0-9]{4}-[A-Z0-9]{4}-[A-Z0-9]{4}$`)

// NormalizeKey trims surrounding whitespace and upper-cases a raw,
// user-entered key. All comparison and storage uses the normalized form.
func NormalizeKey(raw string) string {
	return strings.ToUpper(strings.TrimSpace(raw))
}

// ValidKeyFormat reports whether a normalized key matches the canonical
// display form AVION-XXXX-XXXX-XXXX.
func ValidKeyFormat(key string) bool {
	return keyPattern.MatchString(key)
}

// MaskKey hides the tail of a key for logging. Full keys never appear
// in log output.
func MaskKey(key string) string {
	parts := strings.Split(key, "-")
	if len(parts) != 4 {
		if len(key) <= 4 {
			return "****"
		}
		return key[:4] + strings.Repeat("*", len(key)-4)
	}
	return parts[0] + "-" + parts[1] + "-****-****"
}

// keyCharset excludes ambiguous characters (0/O, 1/I/L) so keys survive
// being read aloud or retyped from a receipt.
const keyCharset = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// GenerateKey produces a new unclaimed key in canonical form.
func GenerateKey() (string, error) {
	segments := make([]string, 3)
	for i := range segments {
		seg, err := randomSegment(4)
		if err != nil {
			return "", fmt.Errorf("generate key segment: %w", err)
		}
		segments[i] = seg
	}
	return "AVION-" + strings.Join(segments, "-"), nil
}

func randomSegment(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	out := make([]byte, n)
	for i, b := range buf {
		out[i] = keyCharset[int(b)%len(keyCharset)]
	}
	return string(out), nil
}
