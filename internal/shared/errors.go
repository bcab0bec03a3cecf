package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrDuplicateCode indicates a unique code or key already exists.
	ErrDuplicateCode = errors.New("duplicate code")
	// ErrInvalidParentType indicates the parent type is not allowed for the child type.
	ErrInvalidParentType = errors.New("invalid parent type")
	// ErrCycleDetected indicates a re-parent would make a structure its own ancestor.
	ErrCycleDetected = errors.New("cycle detected")
	// ErrInvalidPeriod indicates an end date before the start date.
	ErrInvalidPeriod = errors.New("invalid period")
	// ErrInvalidTransition indicates a status change not allowed from the current status.
	ErrInvalidTransition = errors.New("invalid transition")
	// ErrAlreadyCurrent reports a no-op switch to the association that is already current.
	ErrAlreadyCurrent = errors.New("already current")
	// ErrIssuerUnavailable indicates the token issuer call failed.
	ErrIssuerUnavailable = errors.New("token issuer unavailable")
	// ErrUserBlocked indicates the user may not receive session credentials.
	ErrUserBlocked = errors.New("user blocked")
	// ErrInvalidToken indicates a token failed validation.
	ErrInvalidToken = errors.New("invalid token")
	// ErrValidation indicates malformed input.
	ErrValidation = errors.New("validation failed")
)
