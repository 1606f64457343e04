package external

import "errors"

var (
	// ErrNotConfigured is returned by New when no base URL is set.
	ErrNotConfigured = errors.New("external: base url not configured")

	// ErrUnreachable marks a confirmation that never reached the external
	// system (timeout or connection refused). It should be retried.
	ErrUnreachable = errors.New("external: system unreachable")

	// ErrRejected marks a confirmation the external system answered with a
	// failure, or that failed for any reason other than reachability. It
	// must not be retried.
	ErrRejected = errors.New("external: confirmation rejected")
)

// IsRetryable reports whether err leaves the confirmation eligible for
// redelivery.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrUnreachable)
}
