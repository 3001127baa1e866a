// Package common defines shared constants and sentinel errors used across
// client and server layers of PinVault. Callers should use errors.Is to
// match these values.
package common

import (
	"errors"
	"fmt"
)

var (
	// Repository-level errors.
	ErrorNotFound = errors.New("not found")

	// Malformed input; nothing was mutated.
	ErrValidation = errors.New("validation error")

	// Duplicate email on registration.
	ErrConflict = errors.New("already exists")

	// Stale expected version on a vault write.
	ErrVersionConflict = errors.New("version conflict")

	// Service-level errors (generic/internal flow control).
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Bad authKey at login or bad old authKey on password change. Never says
	// whether the account exists.
	ErrInvalidCredential = errors.New("invalid email or password")

	// Recovery errors. ErrInvalidOtp and ErrExpiredOtp are only logged; the
	// caller gets ErrRecoveryFailed.
	ErrInvalidOtp     = errors.New("invalid otp")
	ErrExpiredOtp     = errors.New("expired otp")
	ErrRecoveryFailed = errors.New("recovery failed")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")

	ErrTooManyRequests = errors.New("too many requests")
)

// VersionConflictError reports a rejected compare-and-swap write together with
// the version currently stored, so the caller can re-read and reapply.
type VersionConflictError struct {
	Current int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("version conflict: stored version is %d", e.Current)
}

// Is makes errors.Is(err, ErrVersionConflict) hold.
func (e *VersionConflictError) Is(target error) bool {
	return target == ErrVersionConflict
}

// ValidationError wraps ErrValidation with the offending field.
func ValidationError(field, reason string) error {
	return fmt.Errorf("%w: %s %s", ErrValidation, field, reason)
}
