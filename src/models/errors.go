package models

import "errors"

// Sentinel errors for the failure modes callers are expected to branch on.
var (
	// ErrPolicyViolation: the caller's plan does not permit what was asked
	// (e.g. a custom similarity threshold). Never silently downgraded.
	ErrPolicyViolation = errors.New("plan policy violation")

	// ErrInvalidAction: unknown maintenance action name.
	ErrInvalidAction = errors.New("invalid maintenance action")

	// ErrVersionConflict: a conditional write lost to a concurrent update.
	ErrVersionConflict = errors.New("entry modified concurrently")

	// ErrMaintenanceBusy: the same batch action is already in flight.
	ErrMaintenanceBusy = errors.New("maintenance action already running")

	// ErrNotFound: no entry with the given id.
	ErrNotFound = errors.New("cache entry not found")
)
