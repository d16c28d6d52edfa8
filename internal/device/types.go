package device

import "time"

// Device is one fleet member's persistent record.
//
// CurrentVersion is whatever the device last reported in its hello; it is
// empty until the first connection carries one and survives disconnects, so
// the fleet view stays meaningful while a device is offline. LastSeen never
// moves backwards.
type Device struct {
	DeviceID       string    `json:"device_id"`
	LastIP         string    `json:"last_ip"`
	CurrentVersion string    `json:"current_version"`
	Status         Status    `json:"status"`
	LastSeen       time.Time `json:"last_seen"`
}
