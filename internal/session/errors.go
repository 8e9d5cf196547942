package session

import "errors"

var (
	// ErrInvalidInput means a caller passed an ID that does not exist in the
	// assessment, or built an assessment that breaks its invariants.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDegenerateAssessment means the assessment has no questions and cannot be scored.
	ErrDegenerateAssessment = errors.New("assessment has no questions")

	// ErrNotificationFailure wraps a failed delivery of a result to the backend.
	// The local result stays authoritative.
	ErrNotificationFailure = errors.New("result notification failed")

	// ErrSessionClosed is returned by mutators once submission has started.
	ErrSessionClosed = errors.New("session is no longer in progress")

	// ErrRunnerStopped is returned by Runner.Do after the event loop exited.
	ErrRunnerStopped = errors.New("session runner stopped")
)
