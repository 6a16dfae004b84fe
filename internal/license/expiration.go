package license

import (
	"fmt"
	"time"
)

// ExpirationStatus is the result of evaluating a license against a
// point in time. Lifetime means the license never expires; Remaining
// is zero when expired and meaningless for lifetime keys.
type ExpirationStatus struct {
	Expired   bool          `json:"is_expired"`
	Lifetime  bool          `json:"is_lifetime"`
	Remaining time.Duration `json:"-"`
	Days      int           `json:"days_remaining"`
	Hours     int           `json:"hours_remaining"`
	Minutes   int           `json:"minutes_remaining"`
}

// Evaluate computes the expiration status of a license at the given
// instant. Pure function, no I/O; callers pass a fresh now so the check
// is never stale.
//
// The boundary is inclusive: a license is expired at exactly its
// expiry instant. Remaining time is decomposed by flooring at each
// level, so 1d23h59m59s reports as 1d 23h 59m, never 2d.
func Evaluate(l LicenseKey, now time.Time) ExpirationStatus {
	if l.Kind == KindLifetime || l.ExpiresAt == nil {
		return ExpirationStatus{Lifetime: true}
	}
	if !now.Before(*l.ExpiresAt) {
		return ExpirationStatus{Expired: true}
	}
	remaining := l.ExpiresAt.Sub(now)
	return ExpirationStatus{
		Remaining: remaining,
		Days:      int(remaining / (24 * time.Hour)),
		Hours:     int(remaining % (24 * time.Hour) / time.Hour),
		Minutes:   int(remaining % time.Hour / time.Minute),
	}
}

// String renders the status for display and logs.
func (s ExpirationStatus) String() string {
	switch {
	case s.Lifetime:
		return "lifetime"
	case s.Expired:
		return "expired"
	default:
		return fmt.Sprintf("%dd %dh %dm", s.Days, s.Hours, s.Minutes)
	}
}

// Urgency classifies how soon the user should act on renewal. It is
// derived presentation data, computed on demand and never persisted.
type Urgency string

const (
	UrgencyCritical Urgency = "critical"
	UrgencyWarning  Urgency = "warning"
	UrgencyOK       Urgency = "ok"
)

// ClassifyUrgency maps an expiration status to a renewal urgency:
// expired or one day left is critical, three days left is a warning,
// anything else (lifetime included) is ok.
func ClassifyUrgency(s ExpirationStatus) Urgency {
	switch {
	case s.Lifetime:
		return UrgencyOK
	case s.Expired:
		return UrgencyCritical
	case s.Remaining <= 24*time.Hour:
		return UrgencyCritical
	case s.Remaining <= 3*24*time.Hour:
		return UrgencyWarning
	default:
		return UrgencyOK
	}
}
