package device

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// Repository defines the interface for device persistence operations.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// GetByID retrieves a device by its unique identifier.
	// Returns ErrDeviceNotFound if the device does not exist.
	GetByID(ctx context.Context, id string) (*Device, error)

	// List retrieves all devices ordered by device ID.
	List(ctx context.Context) ([]Device, error)

	// Upsert inserts a device row or refreshes an existing one in place.
	// last_seen only moves forward: an upsert carrying an older timestamp
	// keeps the stored value. An empty current_version or last_ip leaves
	// the stored value alone.
	Upsert(ctx context.Context, d *Device) error

	// UpdateStatus sets a device's status and advances last_seen.
	// Returns ErrDeviceNotFound if the device does not exist.
	UpdateStatus(ctx context.Context, id string, status Status, seen time.Time) error
}

// SQLiteRepository implements Repository using SQLite.
type SQLiteRepository struct {
	db *sql.DB
}

// NewSQLiteRepository creates a new SQLite-backed repository.
// The db parameter should be an open SQLite connection.
func NewSQLiteRepository(db *sql.DB) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

// GetByID retrieves a device by its unique identifier.
func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*Device, error) {
	query := `
		SELECT device_id, last_ip, current_version, status, last_seen
		FROM devices
		WHERE device_id = ?`

	d, err := scanDevice(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrDeviceNotFound
		}
		return nil, fmt.Errorf("querying device by id: %w", err)
	}
	return d, nil
}

// List retrieves all devices ordered by device ID.
func (r *SQLiteRepository) List(ctx context.Context) ([]Device, error) {
	query := `
		SELECT device_id, last_ip, current_version, status, last_seen
		FROM devices
		ORDER BY device_id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying devices: %w", err)
	}
	defer rows.Close()

	var devices []Device
	for rows.Next() {
		d, err := scanDevice(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning device: %w", err)
		}
		devices = append(devices, *d)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating devices: %w", err)
	}
	return devices, nil
}

// Upsert inserts a device row or refreshes an existing one in place.
//
// RFC3339 timestamps compare correctly as text, so MAX() keeps last_seen
// monotonic inside the statement.
func (r *SQLiteRepository) Upsert(ctx context.Context, d *Device) error {
	if d.DeviceID == "" {
		return ErrInvalidDeviceID
	}
	if d.LastSeen.IsZero() {
		d.LastSeen = time.Now().UTC()
	}

	query := `
		INSERT INTO devices (device_id, last_ip, current_version, status, last_seen)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(device_id) DO UPDATE SET
			last_ip = COALESCE(NULLIF(excluded.last_ip, ''), last_ip),
			current_version = COALESCE(NULLIF(excluded.current_version, ''), current_version),
			status = excluded.status,
			last_seen = MAX(last_seen, excluded.last_seen)`

	_, err := r.db.ExecContext(ctx, query,
		d.DeviceID,
		d.LastIP,
		nullableString(d.CurrentVersion),
		d.Status.String(),
		d.LastSeen.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("upserting device: %w", err)
	}
	return nil
}

// UpdateStatus sets a device's status and advances last_seen.
func (r *SQLiteRepository) UpdateStatus(ctx context.Context, id string, status Status, seen time.Time) error {
	query := `
		UPDATE devices
		SET status = ?, last_seen = MAX(last_seen, ?)
		WHERE device_id = ?`

	result, err := r.db.ExecContext(ctx, query,
		status.String(),
		seen.UTC().Format(time.RFC3339),
		id,
	)
	if err != nil {
		return fmt.Errorf("updating device status: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrDeviceNotFound
	}
	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanDevice scans a row or rows result into a Device.
func scanDevice(scanner rowScanner) (*Device, error) {
	var d Device
	var currentVersion sql.NullString
	var status, lastSeen string

	err := scanner.Scan(&d.DeviceID, &d.LastIP, &currentVersion, &status, &lastSeen)
	if err != nil {
		return nil, err
	}

	if currentVersion.Valid {
		d.CurrentVersion = currentVersion.String
	}

	d.Status, err = ParseStatus(status)
	if err != nil {
		return nil, fmt.Errorf("parsing status: %w", err)
	}

	d.LastSeen, err = time.Parse(time.RFC3339, lastSeen)
	if err != nil {
		return nil, fmt.Errorf("parsing last_seen: %w", err)
	}
	return &d, nil
}

// nullableString returns a sql.NullString that stores "" as NULL.
func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
