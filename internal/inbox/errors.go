package inbox

import "errors"

// ValidationNoop reports that a local precondition was not met. The
// operation returned before reaching the network.
type ValidationNoop struct {
	Reason string
}

func (e *ValidationNoop) Error() string {
	return "no-op: " + e.Reason
}

var (
	ErrEmptySelection = &ValidationNoop{Reason: "no notifications selected"}
	ErrActionInFlight = &ValidationNoop{Reason: "the same action is already in progress"}
	ErrOutOfSequence  = &ValidationNoop{Reason: "page requested out of sequence"}
	ErrNoMorePages    = &ValidationNoop{Reason: "no more pages to load"}
)

// ErrStaleResponse is returned when a list response arrived after a newer
// request was applied, or after the filters changed, and was dropped.
var ErrStaleResponse = errors.New("stale response discarded")

// IsValidationNoop reports whether err (or any error in its chain) is a ValidationNoop.
func IsValidationNoop(err error) bool {
	var noop *ValidationNoop
	return errors.As(err, &noop)
}
