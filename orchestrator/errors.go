package orchestrator

import (
	"errors"
	"fmt"
)

// Precondition failures. None of them changes state.
var (
	ErrNoImage        = errors.New("orchestrator: no source image uploaded")
	ErrEmptySelection = errors.New("orchestrator: no styles selected")
	ErrInvalidState   = errors.New("orchestrator: operation not valid in the current state")
	ErrItemPending    = errors.New("orchestrator: item is already generating")
	ErrUnknownItem    = errors.New("orchestrator: no such item in the active session")
	ErrUnknownStyle   = errors.New("orchestrator: style is not offered")
	ErrInvalidImage   = errors.New("orchestrator: source image is not a valid image data URL")
	ErrClosed         = errors.New("orchestrator: closed")
)

// InsufficientCreditsError is the refusal returned when a run costs more
// than the balance. The caller presents the top-up flow and may retry.
type InsufficientCreditsError struct {
	Needed    int
	Available int
}

func (e *InsufficientCreditsError) Error() string {
	return fmt.Sprintf("orchestrator: insufficient credits: need %d, have %d", e.Needed, e.Available)
}

// IsInsufficientCredits reports whether err is a credit refusal.
func IsInsufficientCredits(err error) (*InsufficientCreditsError, bool) {
	var ice *InsufficientCreditsError
	if errors.As(err, &ice) {
		return ice, true
	}
	return nil, false
}
