package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ferrolink/otacore/internal/firmware"
)

// handleListFirmwares returns the full catalogue, oldest first.
func (s *Server) handleListFirmwares(w http.ResponseWriter, r *http.Request) {
	firmwares, err := s.firmwares.List(r.Context())
	if err != nil {
		s.logger.Error("listing firmwares", "error", err)
		writeInternalError(w, "failed to list firmwares")
		return
	}
	if firmwares == nil {
		firmwares = []firmware.Firmware{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"firmwares": firmwares,
		"count":     len(firmwares),
	})
}

// handleLatestFirmware returns the image devices are currently steered to.
func (s *Server) handleLatestFirmware(w http.ResponseWriter, r *http.Request) {
	fw, err := s.firmwares.Latest(r.Context())
	if err != nil {
		if errors.Is(err, firmware.ErrNoFirmware) {
			writeNotFound(w, "catalogue is empty")
			return
		}
		s.logger.Error("getting latest firmware", "error", err)
		writeInternalError(w, "failed to get latest firmware")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"firmware": fw})
}

// handleUploadFirmware ingests a new image from a multipart form with a
// "file" part and a "version" field. On success the rollout to online
// devices starts immediately.
func (s *Server) handleUploadFirmware(w http.ResponseWriter, r *http.Request) {
	file, header, err := r.FormFile("file")
	if err != nil {
		writeBadRequest(w, "multipart field 'file' is required")
		return
	}
	defer file.Close() //nolint:errcheck // read-only temp file

	version := r.FormValue("version")
	if version == "" {
		writeBadRequest(w, "form field 'version' is required")
		return
	}

	fw, err := s.firmwares.Add(r.Context(), header.Filename, version, file)
	if err != nil {
		switch {
		case errors.Is(err, firmware.ErrFirmwareExists):
			writeConflict(w, "firmware with this file name or version already exists")
		case errors.Is(err, firmware.ErrInvalidFileName):
			writeBadRequest(w, "invalid file name")
		case errors.Is(err, firmware.ErrInvalidVersion):
			writeBadRequest(w, "invalid version")
		default:
			s.logger.Error("adding firmware", "file_name", header.Filename, "error", err)
			writeInternalError(w, "failed to add firmware")
		}
		return
	}

	s.engine.FirmwareAdded(r.Context(), fw)

	writeJSON(w, http.StatusCreated, map[string]any{"firmware": fw})
}

// handleDeleteFirmware removes an image from the catalogue.
func (s *Server) handleDeleteFirmware(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		writeBadRequest(w, "invalid firmware id")
		return
	}

	fw, err := s.firmwares.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, firmware.ErrFirmwareNotFound) {
			writeNotFound(w, "firmware not found")
			return
		}
		s.logger.Error("getting firmware", "id", id, "error", err)
		writeInternalError(w, "failed to delete firmware")
		return
	}

	if err := s.firmwares.Delete(r.Context(), id); err != nil {
		if errors.Is(err, firmware.ErrFirmwareNotFound) {
			writeNotFound(w, "firmware not found")
			return
		}
		s.logger.Error("deleting firmware", "id", id, "error", err)
		writeInternalError(w, "failed to delete firmware")
		return
	}

	s.engine.FirmwareDeleted(fw)

	writeJSON(w, http.StatusOK, map[string]any{"deleted": fw.ID})
}
