package api

import (
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ferrolink/otacore/internal/firmware"
)

// handleDownloadFirmware streams a catalogued artifact to a device. The
// digest rides along in a header so a device can verify before flashing
// even if its offer frame is long gone.
func (s *Server) handleDownloadFirmware(w http.ResponseWriter, r *http.Request) {
	fileName := chi.URLParam(r, "fileName")

	fw, artifact, err := s.firmwares.OpenArtifact(r.Context(), fileName)
	if err != nil {
		switch {
		case errors.Is(err, firmware.ErrFirmwareNotFound),
			errors.Is(err, firmware.ErrInvalidFileName):
			writeNotFound(w, "firmware not found")
		default:
			s.logger.Error("opening artifact", "file_name", fileName, "error", err)
			writeInternalError(w, "failed to open firmware")
		}
		return
	}
	defer artifact.Close() //nolint:errcheck // read-only file

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.FormatInt(fw.Size, 10))
	w.Header().Set("Content-Disposition", `attachment; filename="`+fw.FileName+`"`)
	w.Header().Set("X-Checksum-SHA256", fw.Hash)

	if _, err := io.Copy(w, artifact); err != nil {
		// Devices on flaky links abandon downloads all the time.
		s.logger.Debug("artifact download aborted", "file_name", fileName, "error", err)
	}
}
