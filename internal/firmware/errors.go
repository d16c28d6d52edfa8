package firmware

import "errors"

// Domain errors for the firmware package.
//
// These errors can be checked using errors.Is() for error handling:
//
//	if errors.Is(err, firmware.ErrFirmwareNotFound) {
//	    // handle not found case
//	}
var (
	// ErrFirmwareNotFound is returned when a firmware ID or file name does not exist.
	ErrFirmwareNotFound = errors.New("firmware: not found")

	// ErrFirmwareExists is returned when adding an image whose file name or
	// version collides with one already in the catalogue.
	ErrFirmwareExists = errors.New("firmware: already exists")

	// ErrNoFirmware is returned by Latest when the catalogue is empty.
	ErrNoFirmware = errors.New("firmware: catalogue empty")

	// ErrInvalidFileName is returned when a file name is empty or would
	// escape the artifact directory.
	ErrInvalidFileName = errors.New("firmware: invalid file name")

	// ErrInvalidVersion is returned when a version string is empty.
	ErrInvalidVersion = errors.New("firmware: invalid version")
)
