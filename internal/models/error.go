package models

import (
	"errors"
	"strings"
)

// Sentinel errors for common failure conditions
var (
	ErrNotFound       = errors.New("resource not found")
	ErrConflict       = errors.New("resource already exists")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrForbidden      = errors.New("forbidden")
	ErrBadRequest     = errors.New("bad request")
	ErrInternalServer = errors.New("internal server error")

	// Store could not be reached or did not answer in time
	ErrStoreUnavailable = errors.New("store unavailable")

	// Authentication errors
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account is temporarily locked")
	ErrTwoFactorInvalid   = errors.New("invalid two-factor code")
	ErrTwoFactorState     = errors.New("two-factor authentication is in the wrong state")

	// Session errors. All of them wrap ErrUnauthenticated.
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrSessionNotFound = &sessionError{"session not found"}
	ErrSessionExpired  = &sessionError{"session expired"}
	ErrSessionRevoked  = &sessionError{"session revoked"}

	// Validation sentinels carried by field violations
	ErrPasswordMismatch = errors.New("passwords do not match")
	ErrUnknownAction    = errors.New("unknown service action")

	// OS layer
	ErrOSCommandFailed = errors.New("os command failed")
)

type sessionError struct{ msg string }

func (e *sessionError) Error() string { return e.msg }
func (e *sessionError) Unwrap() error { return ErrUnauthenticated }

// FieldViolation describes one rejected input field.
type FieldViolation struct {
	Field   string `json:"field"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// ValidationError aggregates all violations found in one input.
type ValidationError struct {
	Violations []FieldViolation
}

func (e *ValidationError) Error() string {
	if len(e.Violations) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		parts = append(parts, v.Field+": "+v.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Unwrap exposes ErrBadRequest and any sentinel attached to a violation,
// so errors.Is(err, ErrPasswordMismatch) works on the aggregate.
func (e *ValidationError) Unwrap() []error {
	errs := []error{ErrBadRequest}
	for _, v := range e.Violations {
		if v.Err != nil {
			errs = append(errs, v.Err)
		}
	}
	return errs
}

// Add appends a violation.
func (e *ValidationError) Add(field, message string, sentinel error) {
	e.Violations = append(e.Violations, FieldViolation{Field: field, Message: message, Err: sentinel})
}

// OrNil returns nil when no violation was recorded.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Violations) == 0 {
		return nil
	}
	return e
}
