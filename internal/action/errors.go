package action

import "errors"

var (
	// ErrAlreadyRunning is returned when an action is invoked while its
	// previous invocation still holds the reentrancy guard.
	ErrAlreadyRunning = errors.New("action already running")
	// ErrNotFound is returned for an unknown action id.
	ErrNotFound = errors.New("action not found")
	// ErrDependencyUnmet is returned at admission when a dependency has never
	// executed or is executing right now.
	ErrDependencyUnmet = errors.New("action dependency unmet")
	// ErrTimeout is returned when the final attempt exceeded its timeout.
	ErrTimeout = errors.New("action timed out")
	// ErrHandlerFailure wraps the handler's own error after retries ran out.
	ErrHandlerFailure = errors.New("action handler failed")
	// ErrNotConfigured is returned by schedule operations on an action that
	// is unknown or has no enabled schedule.
	ErrNotConfigured = errors.New("action schedule not configured")

	ErrInvalidAction   = errors.New("invalid action")
	ErrInvalidSchedule = errors.New("invalid schedule")
)
