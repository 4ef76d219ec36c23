package mqtt

import "errors"

// Sentinel errors. Failures from the broker are wrapped around the matching
// sentinel, so callers test with errors.Is.
var (
	ErrNotConnected = errors.New("mqtt: not connected")
	ErrConnect      = errors.New("mqtt: connect failed")
	ErrPublish      = errors.New("mqtt: publish failed")
	ErrSubscribe    = errors.New("mqtt: subscribe failed")
	ErrUnsubscribe  = errors.New("mqtt: unsubscribe failed")
	ErrBadQoS       = errors.New("mqtt: qos must be 0, 1 or 2")
	ErrEmptyTopic   = errors.New("mqtt: empty topic")
)
