package firmware

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// Store persists firmware artifacts on disk and computes their digests.
//
// File names are validated before every operation so an artifact name from
// the network can never address a path outside the store directory.
type Store struct {
	dir string
}

// NewStore creates the artifact directory if missing and returns a store
// rooted there.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("firmware store: directory not configured")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating firmware directory: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the store's root directory.
func (s *Store) Dir() string {
	return s.dir
}

// StagedArtifact is an uploaded image held under a temporary name. It is
// invisible to Open and Size until promoted, so staging can never disturb
// an artifact already living at the target name.
type StagedArtifact struct {
	store *Store
	tmp   string

	// Hash is the SHA-256 digest of the staged bytes, lowercase hex.
	Hash string

	// Size is the staged artifact's length in bytes.
	Size int64
}

// Stage streams the artifact into a temporary file in the store directory,
// computing its digest and size in the same pass. The caller must either
// Promote or Discard the result.
func (s *Store) Stage(r io.Reader) (staged *StagedArtifact, err error) {
	tmp, err := os.CreateTemp(s.dir, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("creating temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()        //nolint:errcheck // already failing
			os.Remove(tmpName) //nolint:errcheck // best-effort cleanup
		}
	}()

	digest := sha256.New()
	size, err := io.Copy(io.MultiWriter(tmp, digest), r)
	if err != nil {
		return nil, fmt.Errorf("writing artifact: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return nil, fmt.Errorf("closing artifact: %w", err)
	}

	return &StagedArtifact{
		store: s,
		tmp:   tmpName,
		Hash:  hex.EncodeToString(digest.Sum(nil)),
		Size:  size,
	}, nil
}

// Promote moves the staged artifact to its final name, replacing whatever
// is there. Validation of the name is repeated here because the rename is
// the first time the staged bytes touch a caller-supplied path.
func (a *StagedArtifact) Promote(name string) error {
	path, err := a.store.path(name)
	if err != nil {
		return err
	}
	if err := os.Rename(a.tmp, path); err != nil {
		return fmt.Errorf("placing artifact: %w", err)
	}
	return nil
}

// Discard deletes the staged temporary file. After a successful Promote it
// is a no-op, which makes it safe to defer unconditionally.
func (a *StagedArtifact) Discard() {
	os.Remove(a.tmp) //nolint:errcheck // best-effort cleanup
}

// Open returns a reader for the named artifact.
// Returns ErrFirmwareNotFound if the artifact does not exist on disk.
func (s *Store) Open(name string) (io.ReadCloser, error) {
	path, err := s.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrFirmwareNotFound
		}
		return nil, fmt.Errorf("opening artifact: %w", err)
	}
	return f, nil
}

// Size returns the on-disk size of the named artifact in bytes.
func (s *Store) Size(name string) (int64, error) {
	path, err := s.path(name)
	if err != nil {
		return 0, err
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, ErrFirmwareNotFound
		}
		return 0, fmt.Errorf("stating artifact: %w", err)
	}
	return info.Size(), nil
}

// Remove deletes the named artifact. Removing an artifact that is already
// gone is not an error.
func (s *Store) Remove(name string) error {
	path, err := s.path(name)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing artifact: %w", err)
	}
	return nil
}

// path validates name and joins it to the store directory.
func (s *Store) path(name string) (string, error) {
	if err := ValidateFileName(name); err != nil {
		return "", err
	}
	return filepath.Join(s.dir, name), nil
}

// ValidateFileName rejects names that are empty or could escape the store
// directory when joined to it.
func ValidateFileName(name string) error {
	if name == "" {
		return ErrInvalidFileName
	}
	if strings.ContainsAny(name, "/\\") || strings.Contains(name, "..") {
		return ErrInvalidFileName
	}
	if name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return ErrInvalidFileName
	}
	return nil
}
