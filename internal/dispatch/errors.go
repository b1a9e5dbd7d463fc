package dispatch

import (
	"fmt"
	"strings"

	"github.com/subwise/resilience/internal/domain"
)

// ResolutionError marks a channel that was requested by the recipient's
// preference but could not be attempted at all.
type ResolutionError struct {
	Channel domain.Channel
	Reason  string
}

func (e *ResolutionError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("cannot resolve %s delivery: %s", strings.ToLower(e.Channel.String()), e.Reason)
}

// ExhaustedError marks a channel whose every permitted attempt failed.
type ExhaustedError struct {
	Channel  domain.Channel
	Attempts int
	Last     error
}

func (e *ExhaustedError) Error() string {
	if e == nil {
		return "<nil>"
	}
	return fmt.Sprintf("%s delivery failed after %d attempts: %v", strings.ToLower(e.Channel.String()), e.Attempts, e.Last)
}

func (e *ExhaustedError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Last
}
