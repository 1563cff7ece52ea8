package staging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// ErrEmptyFile is returned when a staged file exists but has no bytes.
// A zero-length staging file is an error, not a partial success.
var ErrEmptyFile = errors.New("staged file is empty")

// Area is a filesystem location shared between the request-handling
// process and the worker processes. The server writes raw upload bytes
// here; workers read them back and clean up after themselves.
type Area struct {
	dir string
}

func New(dir string) (*Area, error) {
	err := os.MkdirAll(dir, 0755)
	if err != nil {
		return nil, fmt.Errorf("failed to create staging dir: %w", err)
	}
	return &Area{dir: dir}, nil
}

// Write stages the reader's bytes under a fresh random name carrying
// the original extension, and returns the absolute path.
func (a *Area) Write(r io.Reader, ext string) (string, error) {
	path := filepath.Join(a.dir, uuid.New().String()+ext)

	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create staging file: %w", err)
	}

	_, err = io.Copy(f, r)
	closeErr := f.Close()
	if err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(path)
		return "", fmt.Errorf("failed to write staging file: %w", err)
	}

	return path, nil
}

// Validate checks that a staged file exists and is non-empty, returning
// its size.
func (a *Area) Validate(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, fmt.Errorf("staged file missing: %w", err)
	}
	if info.Size() == 0 {
		return 0, fmt.Errorf("%w: %s", ErrEmptyFile, path)
	}
	return info.Size(), nil
}

// Open opens a staged file for reading.
func (a *Area) Open(path string) (*os.File, error) {
	return os.Open(path)
}

// Remove deletes a staged file. Removing a file that is already gone is
// not an error.
func (a *Area) Remove(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
