package mqtt

import "fmt"

// Topic layout for the event mirror:
//
//	otacore/system/status          — retained online/offline (LWT on crash)
//	otacore/event/device/{id}      — per-device status transitions
//	otacore/event/firmware         — firmware added/deleted
const topicPrefix = "otacore"

// SystemStatusTopic returns the retained system status topic.
func SystemStatusTopic() string {
	return topicPrefix + "/system/status"
}

// DeviceEventTopic returns the event topic for a single device.
func DeviceEventTopic(deviceID string) string {
	return fmt.Sprintf("%s/event/device/%s", topicPrefix, deviceID)
}

// FirmwareEventTopic returns the firmware catalogue event topic.
func FirmwareEventTopic() string {
	return topicPrefix + "/event/firmware"
}
