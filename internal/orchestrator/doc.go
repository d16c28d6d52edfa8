// Package orchestrator decides when devices are offered new firmware and
// records what they do with it.
//
// The engine sits between the device registry, the firmware catalogue, and
// the connection hub. It runs no clock of its own; everything is driven by
// two edges:
//
//   - a device connects (or reconnects) and reports its running version
//   - an operator adds a firmware image to the catalogue
//
// On either edge the engine compares each affected device's version against
// the latest catalogued image and pushes an update offer to the ones that
// differ. The comparison is inequality, not ordering: a device on a version
// newer than the catalogue's latest is offered the "downgrade", which is
// exactly what an operator doing a rollback wants.
//
// Per-device delivery failures are logged and skipped. A wedged connection
// costs that device its offer until it reconnects; it never stalls the rest
// of the fleet.
//
// There is deliberately no timeout on update sessions. A device that stops
// reporting mid-update keeps its last phase until it reconnects, at which
// point the comparison starts over; nothing expires a stale "downloading".
package orchestrator
