package influxdb

import (
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// WriteUpdateStatus records a device status transition.
//
// Tags carry device_id and the status phase for grouping; the installer
// result code (0 when not applicable) is the field value. Writes are
// batched and non-blocking; when disconnected the point is dropped.
//
// Example:
//
//	client.WriteUpdateStatus("AA:BB:CC:DD:EE:FF", "failed", 103)
func (c *Client) WriteUpdateStatus(deviceID, status string, code int) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"update_status",
		map[string]string{
			"device_id": deviceID,
			"status":    status,
		},
		map[string]interface{}{
			"code": code,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}

// WriteFirmwareEvent records a firmware catalogue change (added or deleted).
func (c *Client) WriteFirmwareEvent(action, version string) {
	if !c.IsConnected() {
		return
	}

	point := write.NewPoint(
		"firmware_catalogue",
		map[string]string{
			"action":  action,
			"version": version,
		},
		map[string]interface{}{
			"count": 1,
		},
		time.Now(),
	)

	c.writeAPI.WritePoint(point)
}
