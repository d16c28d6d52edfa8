package device

import (
	"context"
	"time"
)

// Logger defines the logging interface used by the Registry.
// This allows different logging implementations to be used.
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

// Registry applies the device lifecycle rules on top of a Repository.
//
// All public methods are thread-safe (the repository serialises access).
type Registry struct {
	repo   Repository
	logger Logger
	now    func() time.Time // injectable for tests
}

// NewRegistry creates a new device registry over the given repository.
func NewRegistry(repo Repository) *Registry {
	return &Registry{
		repo:   repo,
		logger: noopLogger{},
		now:    time.Now,
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Connect records a device's hello: the row is created or refreshed with
// the caller's address and reported version, and the status resets to
// connected. An empty version leaves any previously stored version alone.
func (r *Registry) Connect(ctx context.Context, id, ip, version string) (*Device, error) {
	if id == "" {
		return nil, ErrInvalidDeviceID
	}

	d := &Device{
		DeviceID:       id,
		LastIP:         ip,
		CurrentVersion: version,
		Status:         StatusFor(PhaseConnected),
		LastSeen:       r.now().UTC(),
	}
	if err := r.repo.Upsert(ctx, d); err != nil {
		return nil, err
	}

	r.logger.Info("device connected", "device_id", id, "ip", ip, "version", version)
	return r.repo.GetByID(ctx, id)
}

// SetStatus records a lifecycle transition and bumps last_seen.
func (r *Registry) SetStatus(ctx context.Context, id string, status Status) error {
	if err := r.repo.UpdateStatus(ctx, id, status, r.now().UTC()); err != nil {
		return err
	}
	r.logger.Debug("device status updated", "device_id", id, "status", status.String())
	return nil
}

// Report records a device's progress frame: status always, current_version
// when the frame carries one. A report from an id the registry has never
// seen creates the row — a report proves the device exists just as well as
// a hello does. The address stays as it was; reports carry no address.
func (r *Registry) Report(ctx context.Context, id, version string, status Status) error {
	if id == "" {
		return ErrInvalidDeviceID
	}

	d := &Device{
		DeviceID:       id,
		CurrentVersion: version,
		Status:         status,
		LastSeen:       r.now().UTC(),
	}
	if err := r.repo.Upsert(ctx, d); err != nil {
		return err
	}

	r.logger.Debug("device report recorded",
		"device_id", id, "status", status.String(), "version", version)
	return nil
}

// Disconnect marks a device offline. The stored version and address stay
// as they were so the fleet view remains useful while the device is away.
func (r *Registry) Disconnect(ctx context.Context, id string) error {
	if err := r.repo.UpdateStatus(ctx, id, StatusFor(PhaseDisconnected), r.now().UTC()); err != nil {
		return err
	}
	r.logger.Info("device disconnected", "device_id", id)
	return nil
}

// Get retrieves a device by ID.
// Returns ErrDeviceNotFound if the device does not exist.
func (r *Registry) Get(ctx context.Context, id string) (*Device, error) {
	return r.repo.GetByID(ctx, id)
}

// List retrieves all devices ordered by device ID.
func (r *Registry) List(ctx context.Context) ([]Device, error) {
	return r.repo.List(ctx)
}
