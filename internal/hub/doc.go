// Package hub multiplexes live device connections.
//
// The hub maps device IDs to their active outbound channel so the rest of
// the system can push a frame to "that device, if it is online" without
// knowing anything about websockets. One connection per device: a second
// registration for the same ID supersedes the first, which is closed. This
// keeps a reconnecting device (crashed client, flapping network) from
// leaving a stale half-open entry shadowing the live one.
package hub
