package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, device.ErrDuplicateDevice) {
//	    // abort startup for this device
//	}
var (
	// ErrInvalidKey is returned when a controller, device or point key is
	// empty or whitespace.
	ErrInvalidKey = errors.New("device: key must not be empty")

	// ErrDuplicateController is returned when a controller key is already registered.
	ErrDuplicateController = errors.New("device: controller already registered")

	// ErrDuplicateDevice is returned when a device key is already registered.
	ErrDuplicateDevice = errors.New("device: device already registered")

	// ErrDuplicatePoint is returned when a device+point key is already registered.
	ErrDuplicatePoint = errors.New("device: point already registered")

	// ErrControllerNotFound is returned when a controller key is not registered.
	ErrControllerNotFound = errors.New("device: controller not found")

	// ErrDeviceNotFound is returned when a device key is not registered.
	ErrDeviceNotFound = errors.New("device: not found")

	// ErrPointNotFound is returned when a device+point key is not registered.
	ErrPointNotFound = errors.New("device: point not found")

	// ErrNoPointType is returned when a point definition's native type does
	// not map to a point type.
	ErrNoPointType = errors.New("device: no point type for native type")

	// ErrInvalidConfig is returned when a controller rejects a device's
	// configuration payload.
	ErrInvalidConfig = errors.New("device: invalid controller config")
)
