// Package storage persists uploaded documents on the local filesystem.
package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ErrEmptyUpload is returned for a zero-byte upload
var ErrEmptyUpload = errors.New("uploaded file is empty")

// Uploads writes incoming files into a single directory.
type Uploads struct {
	dir string
}

// NewUploads creates dir if needed.
func NewUploads(dir string) (*Uploads, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create upload directory: %w", err)
	}
	return &Uploads{dir: dir}, nil
}

// Dir returns the upload directory
func (u *Uploads) Dir() string {
	return u.dir
}

// Save copies r into <uuid-hex>_<basename> and returns the path. A partial
// file is removed on failure.
func (u *Uploads) Save(filename string, r io.Reader) (string, error) {
	name := strings.ReplaceAll(uuid.NewString(), "-", "") + "_" + sanitizeName(filename)
	path := filepath.Join(u.dir, name)

	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return "", fmt.Errorf("failed to create upload file: %w", err)
	}

	n, err := io.Copy(f, r)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err == nil && n == 0 {
		err = ErrEmptyUpload
	}
	if err != nil {
		os.Remove(path)
		return "", fmt.Errorf("failed to write upload: %w", err)
	}

	return path, nil
}

// Remove deletes a file previously returned by Save. A missing file is not
// an error.
func (u *Uploads) Remove(path string) error {
	if filepath.Dir(path) != filepath.Clean(u.dir) {
		return fmt.Errorf("refusing to remove %q outside upload directory", path)
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove upload: %w", err)
	}
	return nil
}

// sanitizeName keeps only the final path element of a client supplied name.
func sanitizeName(filename string) string {
	name := filepath.Base(strings.ReplaceAll(filename, "\\", "/"))
	switch name {
	case ".", "/", "..", "":
		return "upload"
	}
	return name
}
