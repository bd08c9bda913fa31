package checkout

import (
	"errors"
	"strings"
)

// ErrSubmitInFlight is returned when a submit is attempted while a previous
// one for the same user has not reached a terminal outcome.
var ErrSubmitInFlight = errors.New("checkout already in progress")

// ValidationError carries every violated rule at once so the caller can
// display all problems together.
type ValidationError struct {
	Messages []string
}

func (e *ValidationError) Error() string {
	return "checkout validation failed: " + strings.Join(e.Messages, "; ")
}
