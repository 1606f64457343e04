package link

import "errors"

// Domain errors for the device link package.
var (
	// ErrNotConnected is returned when an operation requires a live
	// connection to the controller.
	ErrNotConnected = errors.New("link: not connected to controller")

	// ErrDialFailed is returned when a connection attempt fails.
	ErrDialFailed = errors.New("link: connection to controller failed")

	// ErrBufferOverflow is returned when unframed bytes exceed the pending
	// buffer limit and are dropped.
	ErrBufferOverflow = errors.New("link: unframed input exceeds buffer")
)
