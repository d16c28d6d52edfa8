package hub

import "errors"

var (
	// ErrDeviceOffline is returned when sending to a device with no live connection.
	ErrDeviceOffline = errors.New("hub: device offline")
)
