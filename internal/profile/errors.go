package profile

import "errors"

var (
	// ErrDuplicateDevice is returned when a device id is added twice.
	ErrDuplicateDevice = errors.New("profile: device already exists")

	// ErrDeviceNotFound is returned by operations that need an existing device.
	ErrDeviceNotFound = errors.New("profile: device not found")
)
