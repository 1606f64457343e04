package mqtt

import "errors"

// Sentinel errors of the broker client. Failures from paho are wrapped with
// %w so callers can match both.
var (
	// ErrNotConnected means the broker session is down; nothing was sent.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed wraps a failed or timed out initial connect.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrPublishFailed wraps publish timeouts, broker rejections and
	// oversized or unencodable payloads.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrSubscribeFailed wraps subscribe timeouts and nil handlers.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed wraps unsubscribe timeouts.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrInvalidQoS rejects QoS levels above 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrInvalidTopic rejects an empty topic.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrForeignCommand is returned for a message outside this site's
	// command topics.
	ErrForeignCommand = errors.New("mqtt: not a command topic of this site")
)
