package mqtt

import "errors"

// Sentinel errors for the broker feed, matched with errors.Is.
var (
	// ErrNotConnected is returned for operations attempted while the
	// client has no broker connection.
	ErrNotConnected = errors.New("mqtt: not connected")

	// ErrConnectionFailed is returned when the initial connect fails.
	ErrConnectionFailed = errors.New("mqtt: connect failed")

	// ErrPublishFailed is returned when a publish cannot be completed.
	ErrPublishFailed = errors.New("mqtt: publish failed")

	// ErrInvalidQoS is returned for QoS levels outside 0..2.
	ErrInvalidQoS = errors.New("mqtt: invalid QoS level")

	// ErrInvalidTopic is returned for an empty topic.
	ErrInvalidTopic = errors.New("mqtt: empty topic")
)
