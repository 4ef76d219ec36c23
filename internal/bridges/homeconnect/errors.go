package homeconnect

import "errors"

// Domain errors for the appliance bridge.
var (
	// ErrNullValue is returned when an event carries no value for a key that
	// requires one.
	ErrNullValue = errors.New("homeconnect: event value is null")

	// ErrCoercion is returned when an event value cannot be converted to the
	// type a rule expects.
	ErrCoercion = errors.New("homeconnect: value coercion failed")

	// ErrUnknownCommand is returned for a command name the appliance type
	// does not support.
	ErrUnknownCommand = errors.New("homeconnect: unknown command")

	// ErrMissingParameter is returned when a required command parameter is absent.
	ErrMissingParameter = errors.New("homeconnect: missing parameter")

	// ErrInvalidValue is returned when a command's only parameter is not in
	// its constraint table. Nothing is dispatched.
	ErrInvalidValue = errors.New("homeconnect: value not allowed")

	// ErrUnknownDevice is returned when a device ID is not configured.
	ErrUnknownDevice = errors.New("homeconnect: unknown device")

	// ErrUnknownApplianceType is returned for an unsupported appliance type.
	ErrUnknownApplianceType = errors.New("homeconnect: unknown appliance type")

	// ErrInvalidPayload is returned when an inbound MQTT payload cannot be decoded.
	ErrInvalidPayload = errors.New("homeconnect: invalid payload")

	// ErrStateNotFound is returned when no persisted state exists for a device.
	ErrStateNotFound = errors.New("homeconnect: persisted state not found")

	// ErrHistoryUnavailable is returned when the configured store does not
	// keep snapshot history.
	ErrHistoryUnavailable = errors.New("homeconnect: snapshot history not available")
)
