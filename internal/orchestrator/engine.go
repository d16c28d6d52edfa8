package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/errgroup"

	"github.com/ferrolink/otacore/internal/device"
	"github.com/ferrolink/otacore/internal/firmware"
	"github.com/ferrolink/otacore/internal/hub"
)

// Logger defines the logging interface used by the Engine.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// rolloutConcurrency bounds how many offers a catalogue sweep pushes at once.
const rolloutConcurrency = 8

// Notifier mirrors fleet events to an external bus. Implementations must
// not block; a nil Notifier disables mirroring.
type Notifier interface {
	DeviceEvent(deviceID string, payload any)
	FirmwareEvent(payload any)
}

// Recorder writes update outcomes to a telemetry store. Implementations
// must not block; a nil Recorder disables telemetry.
type Recorder interface {
	WriteUpdateStatus(deviceID, status string, code int)
	WriteFirmwareEvent(action, version string)
}

// Engine drives the update rollout.
//
// All public methods are thread-safe.
type Engine struct {
	devices   *device.Registry
	firmwares *firmware.Registry
	hub       *hub.Hub
	baseURL   string

	logger   Logger
	notifier Notifier
	recorder Recorder
}

// New creates an engine. baseURL is the externally reachable prefix for
// artifact downloads, without a trailing slash.
func New(devices *device.Registry, firmwares *firmware.Registry, h *hub.Hub, baseURL string) *Engine {
	return &Engine{
		devices:   devices,
		firmwares: firmwares,
		hub:       h,
		baseURL:   baseURL,
		logger:    noopLogger{},
	}
}

// SetLogger sets the logger for the engine.
func (e *Engine) SetLogger(logger Logger) {
	e.logger = logger
}

// SetNotifier sets the event mirror, or nil to disable it.
func (e *Engine) SetNotifier(n Notifier) {
	e.notifier = n
}

// SetRecorder sets the telemetry sink, or nil to disable it.
func (e *Engine) SetRecorder(r Recorder) {
	e.recorder = r
}

// HandleConnect processes a device hello: the registry row is created or
// refreshed, and if the device's reported version differs from the latest
// catalogued firmware an offer goes straight back down the connection.
//
// The catalogue is consulted fresh on every connect, so a device that was
// offline while an image was added hears about it the moment it returns.
func (e *Engine) HandleConnect(ctx context.Context, deviceID, ip, version string) (*device.Device, error) {
	d, err := e.devices.Connect(ctx, deviceID, ip, version)
	if err != nil {
		return nil, err
	}
	e.emitDeviceEvent(d)

	latest, err := e.firmwares.Latest(ctx)
	if err != nil {
		if errors.Is(err, firmware.ErrNoFirmware) {
			return d, nil
		}
		return nil, fmt.Errorf("checking latest firmware: %w", err)
	}

	if d.CurrentVersion == latest.Version {
		e.logger.Debug("device up to date", "device_id", deviceID, "version", d.CurrentVersion)
		return d, nil
	}

	if err := e.offer(ctx, d.DeviceID, latest); err != nil {
		// The connection may have dropped between hello and offer. The
		// device stays "connected" and gets another chance on reconnect.
		e.logger.Warn("offer not delivered", "device_id", deviceID, "error", err)
		return d, nil
	}
	return e.devices.Get(ctx, deviceID)
}

// HandleReport processes a device's progress frame and records the
// resulting status, plus the running version when the frame carries one —
// that is how a successful install lands in current_version without
// waiting for the next reconnect. Reports from ids the registry has never
// seen create the row. Terminal outcomes go to the telemetry sink.
func (e *Engine) HandleReport(ctx context.Context, deviceID string, r Report) error {
	status, err := parseReport(r)
	if err != nil {
		return err
	}

	if err := e.devices.Report(ctx, deviceID, r.Version, status); err != nil {
		return err
	}

	e.logger.Info("device reported", "device_id", deviceID, "status", status.String())
	if d, err := e.devices.Get(ctx, deviceID); err == nil {
		e.emitDeviceEvent(d)
	}
	if e.recorder != nil && status.IsTerminal() {
		e.recorder.WriteUpdateStatus(deviceID, string(status.Phase), status.Code)
	}
	return nil
}

// parseReport maps a wire report onto a Status. A rendered status string
// wins; otherwise a bare exit code is decoded (0 success, anything else a
// failure carrying the code).
func parseReport(r Report) (device.Status, error) {
	if r.Status != "" && (r.Status != string(device.PhaseFailed) || r.Code == nil) {
		return device.ParseStatus(r.Status)
	}
	if r.Code != nil {
		return device.StatusFromExitCode(*r.Code), nil
	}
	return device.Status{}, fmt.Errorf("%w: empty report", device.ErrInvalidStatus)
}

// HandleDisconnect marks a device offline. Unknown devices (a connection
// that dropped before its hello) are ignored.
func (e *Engine) HandleDisconnect(ctx context.Context, deviceID string) {
	if deviceID == "" {
		return
	}
	if err := e.devices.Disconnect(ctx, deviceID); err != nil {
		if !errors.Is(err, device.ErrDeviceNotFound) {
			e.logger.Error("recording disconnect", "device_id", deviceID, "error", err)
		}
		return
	}
	if d, err := e.devices.Get(ctx, deviceID); err == nil {
		e.emitDeviceEvent(d)
	}
}

// FirmwareAdded sweeps every online device after a new image lands in the
// catalogue and offers it to the ones running something else. Offline
// devices are not chased; they get their offer from HandleConnect when
// they next appear.
func (e *Engine) FirmwareAdded(ctx context.Context, fw *firmware.Firmware) {
	if e.notifier != nil {
		e.notifier.FirmwareEvent(map[string]any{
			"action":    "added",
			"file_name": fw.FileName,
			"version":   fw.Version,
		})
	}
	if e.recorder != nil {
		e.recorder.WriteFirmwareEvent("added", fw.Version)
	}

	var offered atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(rolloutConcurrency)
	for _, id := range e.hub.DeviceIDs() {
		g.Go(func() error {
			d, err := e.devices.Get(gctx, id)
			if err != nil {
				e.logger.Warn("online device missing from registry", "device_id", id, "error", err)
				return nil
			}
			if d.CurrentVersion == fw.Version {
				return nil
			}
			if err := e.offer(gctx, id, fw); err != nil {
				e.logger.Warn("offer not delivered", "device_id", id, "error", err)
				return nil
			}
			offered.Add(1)
			return nil
		})
	}
	g.Wait() //nolint:errcheck // workers never return errors; failures are logged per device

	e.logger.Info("firmware rollout started",
		"version", fw.Version, "offered", offered.Load(), "online", e.hub.Count())
}

// FirmwareDeleted mirrors a catalogue removal. In-flight downloads of the
// removed artifact will fail at the download endpoint; no offers are
// retracted.
func (e *Engine) FirmwareDeleted(fw *firmware.Firmware) {
	if e.notifier != nil {
		e.notifier.FirmwareEvent(map[string]any{
			"action":    "deleted",
			"file_name": fw.FileName,
			"version":   fw.Version,
		})
	}
	if e.recorder != nil {
		e.recorder.WriteFirmwareEvent("deleted", fw.Version)
	}
}

// offer pushes an update frame to one device and marks it offered.
func (e *Engine) offer(ctx context.Context, deviceID string, fw *firmware.Firmware) error {
	frame, err := json.Marshal(Offer{
		Command:  OfferCommand,
		FileName: fw.FileName,
		Version:  fw.Version,
		URI:      fmt.Sprintf("%s/firmware/%s", e.baseURL, fw.FileName),
		Hash:     fw.Hash,
		Size:     fw.Size,
	})
	if err != nil {
		return fmt.Errorf("encoding offer: %w", err)
	}

	if err := e.hub.SendTo(deviceID, frame); err != nil {
		return err
	}
	if err := e.devices.SetStatus(ctx, deviceID, device.StatusFor(device.PhaseOffered)); err != nil {
		return err
	}

	e.logger.Info("update offered", "device_id", deviceID, "version", fw.Version)
	if d, err := e.devices.Get(ctx, deviceID); err == nil {
		e.emitDeviceEvent(d)
	}
	return nil
}

// emitDeviceEvent mirrors a device's current row to the event bus.
func (e *Engine) emitDeviceEvent(d *device.Device) {
	if e.notifier == nil {
		return
	}
	e.notifier.DeviceEvent(d.DeviceID, d)
}
