package orchestrator

import "errors"

var (
	// ErrStopped is returned by calls made after Stop.
	ErrStopped = errors.New("orchestrator: stopped")

	// ErrNotStarted is returned by calls made before Start.
	ErrNotStarted = errors.New("orchestrator: not started")

	// ErrNoPolicy is returned by Process when no control policy is set.
	ErrNoPolicy = errors.New("orchestrator: no control policy")

	// ErrTargetNotFound is reported when a command's unit or endpoint is not
	// configured.
	ErrTargetNotFound = errors.New("orchestrator: target not found")
)
