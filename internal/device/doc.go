// Package device tracks the fleet: every device that has ever connected,
// its reported firmware version, and where it is in the update lifecycle.
//
// A device row is created the first time a device says hello and updated in
// place afterwards. Rows are never deleted automatically; a device that has
// dropped off the network keeps its last known version and a status of
// disconnected, which is what an operator wants to see when auditing a
// rollout.
//
// Status is a small state machine (connected, offered, downloading,
// verifying, installing, success, failed, disconnected). Failure carries the
// installer's exit code, rendered as "failed:install_code_N" wherever the
// status crosses a boundary (database, API, events) so the cause survives
// the round trip.
//
// Architecture:
//
//	Registry (lifecycle rules, logging)
//	    └── Repository (SQLite persistence)
package device
