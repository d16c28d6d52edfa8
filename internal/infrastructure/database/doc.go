// Package database provides the SQLite persistence layer for otacore.
//
// It wraps database/sql with lifecycle management (Open/Close), health
// checks, and an embedded-migration runner. The schema itself lives in the
// top-level migrations package, which registers its embedded files here at
// init time.
//
// SQLite is configured for a single writer with WAL mode so the device
// channel goroutines and the administrative API can read concurrently while
// one write is in flight. Every row mutation is a single implicit
// transaction: readers observe the pre- or post-state of a write, never a
// partial row.
package database
