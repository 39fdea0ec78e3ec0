// Package collaborator wires external generation services behind the uniform
// Collaborator interface and classifies their failures for the retry policy.
package collaborator

import (
	"errors"
	"fmt"
)

// ReasonTimeout marks an attempt abandoned at its declared timeout. Timeouts
// are always retryable; a late result from the abandoned call is discarded.
const ReasonTimeout = "timeout"

// Error classifies a failed collaborator call. The orchestrator interprets
// only the Retryable flag and the reason; everything else is opaque detail.
type Error struct {
	Reason    string
	Retryable bool
	Err       error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("collaborator error (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("collaborator error (%s)", e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// NewRetryable wraps a transient failure (timeout, 5xx, connection reset).
func NewRetryable(reason string, err error) *Error {
	return &Error{Reason: reason, Retryable: true, Err: err}
}

// NewFatal wraps a permanent failure (malformed response, permanent rejection).
func NewFatal(reason string, err error) *Error {
	return &Error{Reason: reason, Retryable: false, Err: err}
}

// IsRetryable reports whether err should be retried under the stage's
// retry budget. Unclassified errors are treated as fatal.
func IsRetryable(err error) bool {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Retryable
	}
	return false
}

// Reason extracts the failure reason, or "unknown" for unclassified errors.
func Reason(err error) string {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.Reason
	}
	return "unknown"
}
