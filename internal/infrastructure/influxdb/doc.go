// Package influxdb provides optional update-outcome telemetry for otacore.
//
// When enabled, every device status transition is recorded as a point in
// the update_status measurement so fleet rollouts can be graphed: how many
// devices are downloading, how many have succeeded, which failure codes are
// occurring. Writes are batched and non-blocking; the core never waits on
// the telemetry path.
package influxdb
