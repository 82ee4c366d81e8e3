package nav

import "errors"

var (
	// ErrSessionActive is returned by Start while a session is running or paused.
	ErrSessionActive = errors.New("navigation session already active")

	// ErrInvalidTransition is returned when a control request does not apply to the current state.
	ErrInvalidTransition = errors.New("invalid navigation state transition")

	// ErrEmptyRoute is returned by Start for a route without steps.
	ErrEmptyRoute = errors.New("route has no steps")

	// ErrUnknownAction marks a step whose action is not recognized. The step is skipped.
	ErrUnknownAction = errors.New("unknown navigation action")

	// ErrMalformedStep marks a step with an unusable value. The step is skipped.
	ErrMalformedStep = errors.New("malformed navigation step")

	// ErrBypassExhausted is returned when the side sensor never clears during a bypass.
	ErrBypassExhausted = errors.New("bypass did not clear obstacle")

	// ErrCancelled is reported by Wait for sessions ended by Cancel.
	ErrCancelled = errors.New("navigation cancelled")
)

// isStepError reports whether err only invalidates the current step.
func isStepError(err error) bool {
	return errors.Is(err, ErrUnknownAction) || errors.Is(err, ErrMalformedStep)
}
