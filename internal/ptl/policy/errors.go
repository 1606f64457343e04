package policy

import "errors"

var (
	// ErrUnknownAction is returned for an action name no policy defines.
	ErrUnknownAction = errors.New("policy: unknown action")

	// ErrUnsupportedAction is returned when the active policy does not
	// implement a known action, i.e. the service runs the wrong mode for
	// the request.
	ErrUnsupportedAction = errors.New("policy: action not supported by this mode")

	// ErrInvalidPayload is returned when an action gets a payload of the
	// wrong type.
	ErrInvalidPayload = errors.New("policy: invalid payload")

	// ErrDuplicate is returned when a movement with the same external id is
	// already queued.
	ErrDuplicate = errors.New("policy: duplicate movement")

	// ErrNotFound is returned when a movement or unit does not exist.
	ErrNotFound = errors.New("policy: not found")

	// ErrSendFailed is returned when a device command could not be written.
	ErrSendFailed = errors.New("policy: command not sent")
)
