package domain

import "errors"

// Sentinel errors for the agreement service
// These errors should be checked using errors.Is() instead of string matching
var (
	// ErrNotFound indicates the agreement, revision, user or session no longer exists
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates validation failure on input parameters
	ErrInvalidInput = errors.New("invalid input parameters")

	// ErrInvalidRevision indicates the revision does not belong to the agreement
	ErrInvalidRevision = errors.New("invalid revision")

	// ErrCannotDeleteDefault indicates an attempt to delete the default revision
	ErrCannotDeleteDefault = errors.New("cannot delete the default revision")

	// ErrRevisionLocked indicates an in-place edit of a superseded or published revision
	ErrRevisionLocked = errors.New("revision cannot be edited in place")

	// ErrPostponeRequested asks the queue to redeliver the task later. It is not a failure.
	ErrPostponeRequested = errors.New("postpone requested")

	// ErrSessionExpired indicates the pending consent session aged out or was cleared
	ErrSessionExpired = errors.New("consent session expired")

	// ErrConflict indicates a concurrent modification that could not be retried
	ErrConflict = errors.New("concurrent modification")

	// ErrUnauthorized indicates a missing or invalid principal
	ErrUnauthorized = errors.New("unauthorized action")

	// ErrForbidden indicates the principal lacks the required role
	ErrForbidden = errors.New("insufficient permissions")

	// ErrAccountBlocked indicates the account was deactivated, e.g. by the expiry sweeper
	ErrAccountBlocked = errors.New("account is blocked")
)
