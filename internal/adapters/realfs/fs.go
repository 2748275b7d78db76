// Package realfs implements ports.FileSystem on the local disk.
package realfs

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/acolita/train-wizard/internal/ports"
)

// FS is the local disk.
type FS struct{}

// New returns the local file system.
func New() *FS {
	return &FS{}
}

// Open opens name for reading.
func (f *FS) Open(name string) (fs.File, error) {
	return os.Open(name)
}

// ReadFile reads the whole file.
func (f *FS) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

// WriteFile writes to a temporary file next to name and renames it into
// place, so a concurrent reader of the result cache never sees a torn entry.
func (f *FS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(name), "."+filepath.Base(name)+".*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", name, err)
	}
	if err := tmp.Chmod(perm); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", name, err)
	}
	return os.Rename(tmpName, name)
}

// ReadDir lists name sorted by file name.
func (f *FS) ReadDir(name string) ([]fs.DirEntry, error) {
	return os.ReadDir(name)
}

// Stat follows symlinks.
func (f *FS) Stat(name string) (fs.FileInfo, error) {
	return os.Stat(name)
}

// MkdirAll creates path and any missing parents.
func (f *FS) MkdirAll(path string, perm fs.FileMode) error {
	return os.MkdirAll(path, perm)
}

// Getenv reads the process environment.
func (f *FS) Getenv(key string) string {
	return os.Getenv(key)
}

var _ ports.FileSystem = (*FS)(nil)
