package domain

import "errors"

// Sentinel errors shared across layers for stable error mapping. Wrong-state
// operations (ErrNotConfigured, ErrAlreadyConfigured) are operational errors,
// deliberately distinct from ErrAuthentication so callers can tell a logic
// mistake apart from a failed credential check.
var (
	// ErrValidation indicates malformed input (empty user id, bad token format).
	ErrValidation = errors.New("validation failed")

	// ErrAuthentication indicates a credential or token that does not verify.
	ErrAuthentication = errors.New("authentication failed")

	// ErrNotConfigured indicates an MFA operation attempted before setup.
	ErrNotConfigured = errors.New("mfa not configured")

	// ErrAlreadyConfigured indicates MFA setup attempted when already enabled.
	ErrAlreadyConfigured = errors.New("mfa already configured")

	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("not found")
)
