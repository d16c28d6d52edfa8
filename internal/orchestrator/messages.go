package orchestrator

// OfferCommand is the command field of an update offer frame.
const OfferCommand = "update"

// Hello is the first frame a device sends after connecting: who it is and
// what it is running. Version may be empty on devices too old to know.
type Hello struct {
	DeviceID string `json:"device_id"`
	Version  string `json:"version"`
}

// Report is a device's progress frame during an update. Status carries
// either a lifecycle phase ("downloading", "installing", ...) or a final
// rendered result ("success", "failed:install_code_103"). Devices that
// report the raw installer exit code instead send status "failed" plus
// Code, or just Code with an empty status. Version is what the device is
// running as of this frame — after a successful install that is the new
// image's version; an empty Version leaves the stored one alone.
type Report struct {
	Status  string `json:"status"`
	Code    *int   `json:"code,omitempty"`
	Version string `json:"version,omitempty"`
}

// Offer tells a device to fetch and install an image. URI points at the
// unauthenticated artifact endpoint; Hash and Size let the device verify
// the download before handing it to the installer.
type Offer struct {
	Command  string `json:"command"`
	FileName string `json:"file_name"`
	Version  string `json:"version"`
	URI      string `json:"uri"`
	Hash     string `json:"hash"`
	Size     int64  `json:"size"`
}
