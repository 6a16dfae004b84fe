package errors

import (
	"errors"
	"net/http"
)

// License-specific sentinel errors. The four semantic rejections
// (format, not found, claimed, hardware) are expected outcomes the
// caller switches on; only the store errors mean the outcome of the
// operation is unknown.
var (
	ErrInvalidKeyFormat = errors.New("invalid license key format")
	ErrKeyNotFound      = errors.New("license key not found")
	ErrAlreadyClaimed   = errors.New("license key already claimed by another account")
	ErrHardwareMismatch = errors.New("license key is locked to a different device")
	ErrStoreTimeout     = errors.New("license store timed out")
	ErrStoreUnavailable = errors.New("license store unavailable")

	// ErrClaimConflict is returned by a repository when the conditional
	// activation update matched no row. The registry re-reads the record
	// to classify it into one of the rejections above.
	ErrClaimConflict = errors.New("license claim conflict")

	// ErrProfileNotFound is returned when an account has no HWID profile yet.
	ErrProfileNotFound = errors.New("profile not found")
)

// Error codes for license operations
const (
	ErrCodeInvalidFormat    = "INVALID_LICENSE_KEY"
	ErrCodeNotFound         = "LICENSE_NOT_FOUND"
	ErrCodeAlreadyClaimed   = "ALREADY_CLAIMED"
	ErrCodeHardwareMismatch = "HARDWARE_MISMATCH"
	ErrCodeStoreTimeout     = "STORE_TIMEOUT"
	ErrCodeStoreUnavailable = "STORE_UNAVAILABLE"
)

// LicenseAPIError maps a license error to its HTTP representation so
// handlers never have to inspect free-text error strings.
func LicenseAPIError(err error) *APIError {
	switch {
	case errors.Is(err, ErrInvalidKeyFormat):
		return New(http.StatusBadRequest, ErrCodeInvalidFormat,
			"The provided license key is invalid or malformed. Expected format: AVION-XXXX-XXXX-XXXX")
	case errors.Is(err, ErrKeyNotFound):
		return New(http.StatusNotFound, ErrCodeNotFound,
			"The specified license key was not found in our system")
	case errors.Is(err, ErrAlreadyClaimed):
		return New(http.StatusConflict, ErrCodeAlreadyClaimed,
			"This license key is already registered to a different account")
	case errors.Is(err, ErrHardwareMismatch):
		return New(http.StatusForbidden, ErrCodeHardwareMismatch,
			"This license key is locked to a different machine. Reset your HWID or contact support")
	case errors.Is(err, ErrStoreTimeout):
		return New(http.StatusServiceUnavailable, ErrCodeStoreTimeout,
			"The license store did not respond in time. The outcome is unknown; please check your license status before retrying")
	case errors.Is(err, ErrStoreUnavailable):
		return New(http.StatusServiceUnavailable, ErrCodeStoreUnavailable,
			"The license store is temporarily unavailable. Please try again later")
	default:
		return ErrInternalServer
	}
}
