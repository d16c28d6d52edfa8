package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ferrolink/otacore/internal/device"
)

// handleListDevices returns every device the fleet has ever seen, online
// or not, ordered by device ID.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.devices.List(r.Context())
	if err != nil {
		s.logger.Error("listing devices", "error", err)
		writeInternalError(w, "failed to list devices")
		return
	}
	if devices == nil {
		devices = []device.Device{}
	}

	online := make([]bool, len(devices))
	for i := range devices {
		online[i] = s.hub.IsOnline(devices[i].DeviceID)
	}

	type entry struct {
		device.Device
		Online bool `json:"online"`
	}
	out := make([]entry, len(devices))
	for i := range devices {
		out[i] = entry{Device: devices[i], Online: online[i]}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"devices": out,
		"count":   len(out),
	})
}

// handleGetDevice returns one device's record.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	d, err := s.devices.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Error("getting device", "device_id", id, "error", err)
		writeInternalError(w, "failed to get device")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"device": d,
		"online": s.hub.IsOnline(d.DeviceID),
	})
}
