package mqtt

import "errors"

// Errors returned by Handle operations. Use errors.Is to check for them.
var (
	// ErrNotConnected is returned when an operation needs an open connection.
	ErrNotConnected = errors.New("mqtt: client not connected")

	// ErrConnectionFailed wraps handshake, authentication and dial failures.
	ErrConnectionFailed = errors.New("mqtt: connection failed")

	// ErrConnectionRefused is returned when the broker answers with an
	// error-carrying CONNACK.
	ErrConnectionRefused = errors.New("mqtt: connection refused by broker")

	// ErrSubscribeFailed is returned when a subscribe request fails.
	ErrSubscribeFailed = errors.New("mqtt: subscribe failed")

	// ErrUnsubscribeFailed is returned when an unsubscribe request fails.
	ErrUnsubscribeFailed = errors.New("mqtt: unsubscribe failed")

	// ErrPublishFailed is returned when a publish request fails.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrInvalidTopic is returned for an empty topic.
	ErrInvalidTopic = errors.New("mqtt: topic cannot be empty")

	// ErrInvalidQoS is returned for a QoS level above 2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level (must be 0, 1, or 2)")

	// ErrTimeout is returned when the transport does not resolve a request in time.
	ErrTimeout = errors.New("mqtt: operation timed out")
)
