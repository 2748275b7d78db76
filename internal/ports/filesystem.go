// Package ports defines the boundaries between the wizard's core and the
// outside world: local files, the SSH transport, the remote file channel and
// the user.
package ports

import (
	"io/fs"
)

// FileSystem is the local side: datasets are read from it and result cache
// entries are written to it.
type FileSystem interface {
	Open(name string) (fs.File, error)
	ReadFile(name string) ([]byte, error)

	// WriteFile replaces name with data. Readers see either the old or the
	// new content, never a partial write.
	WriteFile(name string, data []byte, perm fs.FileMode) error

	ReadDir(name string) ([]fs.DirEntry, error)
	Stat(name string) (fs.FileInfo, error)
	MkdirAll(path string, perm fs.FileMode) error

	// Getenv is used for the password_env indirection.
	Getenv(key string) string
}
