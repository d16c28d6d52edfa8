package firmware

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Repository defines the interface for firmware metadata persistence.
// This abstraction allows for different implementations (SQLite, mock, etc.)
// and enables unit testing without database dependencies.
type Repository interface {
	// Insert adds a new firmware row and fills in the assigned ID.
	// Returns ErrFirmwareExists if the file name or version is already taken.
	Insert(ctx context.Context, fw *Firmware) error

	// GetByID retrieves a firmware image by its catalogue ID.
	// Returns ErrFirmwareNotFound if no such image exists.
	GetByID(ctx context.Context, id int64) (*Firmware, error)

	// GetByFileName retrieves a firmware image by artifact file name.
	// Returns ErrFirmwareNotFound if no such image exists.
	GetByFileName(ctx context.Context, fileName string) (*Firmware, error)

	// List retrieves all firmware images ordered oldest first.
	List(ctx context.Context) ([]Firmware, error)

	// Latest retrieves the most recently added image.
	// Returns ErrNoFirmware if the catalogue is empty.
	Latest(ctx context.Context) (*Firmware, error)

	// Delete removes a firmware row by ID.
	// Returns ErrFirmwareNotFound if no such image exists.
	Delete(ctx context.Context, id int64) error
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

// Insert adds a new firmware row and fills in the assigned ID.
func (r *SQLiteRepository) Insert(ctx context.Context, fw *Firmware) error {
	if fw.AddedAt.IsZero() {
		fw.AddedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO firmwares (file_name, version, hash, size, added_at)
		VALUES (?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		fw.FileName,
		fw.Version,
		fw.Hash,
		fw.Size,
		fw.AddedAt.Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ErrFirmwareExists
		}
		return fmt.Errorf("inserting firmware: %w", err)
	}

	fw.ID, err = result.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading insert id: %w", err)
	}
	return nil
}

// GetByID retrieves a firmware image by its catalogue ID.
func (r *SQLiteRepository) GetByID(ctx context.Context, id int64) (*Firmware, error) {
	query := `
		SELECT id, file_name, version, hash, size, added_at
		FROM firmwares
		WHERE id = ?`

	fw, err := scanFirmware(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFirmwareNotFound
		}
		return nil, fmt.Errorf("querying firmware by id: %w", err)
	}
	return fw, nil
}

// GetByFileName retrieves a firmware image by artifact file name.
func (r *SQLiteRepository) GetByFileName(ctx context.Context, fileName string) (*Firmware, error) {
	query := `
		SELECT id, file_name, version, hash, size, added_at
		FROM firmwares
		WHERE file_name = ?`

	fw, err := scanFirmware(r.db.QueryRowContext(ctx, query, fileName))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrFirmwareNotFound
		}
		return nil, fmt.Errorf("querying firmware by file name: %w", err)
	}
	return fw, nil
}

// List retrieves all firmware images ordered oldest first.
func (r *SQLiteRepository) List(ctx context.Context) ([]Firmware, error) {
	query := `
		SELECT id, file_name, version, hash, size, added_at
		FROM firmwares
		ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying firmwares: %w", err)
	}
	defer rows.Close()

	var firmwares []Firmware
	for rows.Next() {
		fw, err := scanFirmware(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning firmware: %w", err)
		}
		firmwares = append(firmwares, *fw)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating firmwares: %w", err)
	}
	return firmwares, nil
}

// Latest retrieves the most recently added image.
func (r *SQLiteRepository) Latest(ctx context.Context) (*Firmware, error) {
	query := `
		SELECT id, file_name, version, hash, size, added_at
		FROM firmwares
		ORDER BY id DESC
		LIMIT 1`

	fw, err := scanFirmware(r.db.QueryRowContext(ctx, query))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNoFirmware
		}
		return nil, fmt.Errorf("querying latest firmware: %w", err)
	}
	return fw, nil
}

// Delete removes a firmware row by ID.
func (r *SQLiteRepository) Delete(ctx context.Context, id int64) error {
	result, err := r.db.ExecContext(ctx, "DELETE FROM firmwares WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("deleting firmware: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("checking rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrFirmwareNotFound
	}
	return nil
}

// rowScanner is an interface that sql.Row and sql.Rows both implement.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanFirmware scans a row or rows result into a Firmware.
func scanFirmware(scanner rowScanner) (*Firmware, error) {
	var fw Firmware
	var addedAt string

	err := scanner.Scan(&fw.ID, &fw.FileName, &fw.Version, &fw.Hash, &fw.Size, &addedAt)
	if err != nil {
		return nil, err
	}

	fw.AddedAt, err = time.Parse(time.RFC3339, addedAt)
	if err != nil {
		return nil, fmt.Errorf("parsing added_at: %w", err)
	}
	return &fw, nil
}

// isUniqueConstraintError checks if an error is a SQLite unique constraint violation.
func isUniqueConstraintError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "unique constraint")
}
