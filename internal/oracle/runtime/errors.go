package runtime

import (
	"errors"
	"fmt"
)

// Transaction validity errors. None of them mutate state; each aborts only the
// offending transaction.
var (
	// ErrCallShape rejects a candidate that is not a well-formed response.
	// Such a transaction can never become valid.
	ErrCallShape = errors.New("invalid call")

	// ErrStale rejects a response whose request no longer exists. It is not a
	// failure of the requester, who may submit a new request.
	ErrStale = errors.New("stale: no pending request for account")

	// ErrNoMatchingRequest is the apply-time form of ErrStale.
	ErrNoMatchingRequest = fmt.Errorf("no request for this account: %w", ErrStale)

	// ErrBadOrigin rejects a call dispatched with the wrong kind of origin.
	ErrBadOrigin = errors.New("bad origin")
)

// Outcome labels an error for logs and metrics.
func Outcome(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrCallShape):
		return "invalid_call"
	case errors.Is(err, ErrStale):
		return "stale"
	case errors.Is(err, ErrBadOrigin):
		return "bad_origin"
	default:
		return "error"
	}
}
