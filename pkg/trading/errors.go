package trading

import (
	"errors"
	"fmt"
)

// Error taxonomy for the engine. Upstream clients wrap these sentinels so
// the scheduler can decide whether to skip an item or surface a failure.
var (
	// ErrTransientUpstream marks timeouts, 5xx, 429 and network errors
	// that survived the retry budget.
	ErrTransientUpstream = errors.New("transient upstream error")

	// ErrNotFound marks a missing event slug or an empty observation
	// window. Not a failure; callers skip the item this cycle.
	ErrNotFound = errors.New("not found")

	// ErrMalformedResponse marks a JSON body that violates the expected
	// shape union.
	ErrMalformedResponse = errors.New("malformed upstream response")

	// ErrPrecondition marks invalid inputs to the pure components: empty
	// forecast, empty bracket set, price outside [0,1].
	ErrPrecondition = errors.New("precondition failed")
)

// TransientUpstream wraps err as a transient upstream failure.
func TransientUpstream(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrTransientUpstream, err)
}

// Malformed wraps a shape violation with context about the offending field.
func Malformed(op, detail string) error {
	return fmt.Errorf("%s: %w: %s", op, ErrMalformedResponse, detail)
}

// Precondition reports an invalid input to a pure component.
func Precondition(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPrecondition, fmt.Sprintf(format, args...))
}
