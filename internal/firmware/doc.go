// Package firmware manages the catalogue of installable firmware images.
//
// A firmware image has two halves: a metadata row in SQLite (file name,
// version, SHA-256 digest, upload time) and the binary artifact on disk.
// The Registry keeps the two consistent: an image is either fully present
// (row plus artifact) or absent, never half-added.
//
// Version ordering is by insertion: the most recently added image is the
// latest, regardless of how its version string compares lexically. This
// makes rollbacks trivial (re-upload the old image) at the cost of trusting
// the operator to upload in order.
//
// Architecture:
//
//	Registry (consistency, logging)
//	    ├── Repository (SQLite metadata)
//	    └── Store (disk artifacts, digests)
package firmware
