package firmware

import (
	"context"
	"fmt"
	"io"
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

// Registry coordinates the metadata repository and the artifact store so
// the catalogue never holds a row without its artifact or vice versa.
//
// All public methods are thread-safe.
type Registry struct {
	repo   Repository
	store  *Store
	logger Logger
}

// NewRegistry creates a new firmware registry over the given repository
// and artifact store.
func NewRegistry(repo Repository, store *Store) *Registry {
	return &Registry{
		repo:   repo,
		store:  store,
		logger: noopLogger{},
	}
}

// SetLogger sets the logger for the registry.
func (r *Registry) SetLogger(logger Logger) {
	r.logger = logger
}

// Add ingests a new firmware image: the artifact is staged under a
// temporary name while its SHA-256 digest is computed, the metadata row is
// inserted, and only then is the artifact promoted to its final name. A
// rejected upload (duplicate file name or version) is discarded from
// staging and never touches an artifact already catalogued under that name.
func (r *Registry) Add(ctx context.Context, fileName, version string, artifact io.Reader) (*Firmware, error) {
	if err := ValidateFileName(fileName); err != nil {
		return nil, err
	}
	if version == "" {
		return nil, ErrInvalidVersion
	}

	staged, err := r.store.Stage(artifact)
	if err != nil {
		return nil, fmt.Errorf("storing artifact: %w", err)
	}
	defer staged.Discard()

	fw := &Firmware{
		FileName: fileName,
		Version:  version,
		Hash:     staged.Hash,
		Size:     staged.Size,
	}
	if err := r.repo.Insert(ctx, fw); err != nil {
		return nil, err
	}
	if err := staged.Promote(fileName); err != nil {
		// The row committed but the artifact never landed; take the row
		// back out so the catalogue cannot point at a missing file.
		if delErr := r.repo.Delete(ctx, fw.ID); delErr != nil {
			r.logger.Error("orphaned row after failed artifact placement",
				"file_name", fileName, "error", delErr)
		}
		return nil, fmt.Errorf("storing artifact: %w", err)
	}

	r.logger.Info("firmware added",
		"id", fw.ID, "file_name", fw.FileName, "version", fw.Version,
		"size", fw.Size, "hash", fw.Hash)
	return fw, nil
}

// Delete removes a firmware image by catalogue ID, row first then artifact.
// Returns ErrFirmwareNotFound if no such image exists.
func (r *Registry) Delete(ctx context.Context, id int64) error {
	fw, err := r.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if err := r.repo.Delete(ctx, id); err != nil {
		return err
	}
	if err := r.store.Remove(fw.FileName); err != nil {
		// Row is gone; an orphaned artifact is recoverable by hand.
		r.logger.Error("removing artifact", "file_name", fw.FileName, "error", err)
	}

	r.logger.Info("firmware deleted",
		"id", fw.ID, "file_name", fw.FileName, "version", fw.Version)
	return nil
}

// List retrieves all firmware images ordered oldest first.
func (r *Registry) List(ctx context.Context) ([]Firmware, error) {
	return r.repo.List(ctx)
}

// Get retrieves a firmware image by catalogue ID.
func (r *Registry) Get(ctx context.Context, id int64) (*Firmware, error) {
	return r.repo.GetByID(ctx, id)
}

// GetByFileName retrieves a firmware image by artifact file name.
func (r *Registry) GetByFileName(ctx context.Context, fileName string) (*Firmware, error) {
	return r.repo.GetByFileName(ctx, fileName)
}

// Latest retrieves the most recently added image.
// Returns ErrNoFirmware if the catalogue is empty.
func (r *Registry) Latest(ctx context.Context) (*Firmware, error) {
	return r.repo.Latest(ctx)
}

// OpenArtifact returns a reader for a catalogued image's binary. The
// metadata row is checked first so a stray file in the artifact directory
// can never be served.
func (r *Registry) OpenArtifact(ctx context.Context, fileName string) (*Firmware, io.ReadCloser, error) {
	fw, err := r.repo.GetByFileName(ctx, fileName)
	if err != nil {
		return nil, nil, err
	}
	rc, err := r.store.Open(fw.FileName)
	if err != nil {
		return nil, nil, err
	}
	return fw, rc, nil
}
