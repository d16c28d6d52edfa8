package firmware

import "time"

// Firmware is one installable image in the catalogue.
//
// ID is assigned by SQLite on insert and doubles as the recency order:
// the image with the highest ID is the latest. Hash is the lowercase hex
// SHA-256 digest of the artifact, computed when the image is added.
type Firmware struct {
	ID       int64     `json:"id"`
	FileName string    `json:"file_name"`
	Version  string    `json:"version"`
	Hash     string    `json:"hash"`
	Size     int64     `json:"size"`
	AddedAt  time.Time `json:"added_at"`
}
