package orchestrator

import "errors"

var (
	// ErrBusy is returned when a submission arrives while another is in flight.
	ErrBusy = errors.New("an analysis is already running")
	// ErrTrialExpired is returned when an anonymous caller has no trial uses left.
	ErrTrialExpired = errors.New("trial expired")
	// ErrAnonymous is returned by operations that need a signed-in user.
	ErrAnonymous = errors.New("not signed in")
)

// Validation messages.
const (
	MsgEmptyURL   = "Please enter a URL"
	MsgInvalidURL = "Please enter a valid URL"
	MsgQuotaCheck = "Could not verify trial usage"
)

// ValidationError reports input rejected before any network call.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }
