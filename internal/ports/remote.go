package ports

import (
	"io"
	"io/fs"
)

// RemoteFS is the file transfer side of a remote shell session.
type RemoteFS interface {
	// Mkdir creates a single directory. It fails if the parent is missing or the
	// path already exists.
	Mkdir(path string) error

	// Stat returns file info for a remote path.
	Stat(path string) (fs.FileInfo, error)

	// ReadDir lists a remote directory.
	ReadDir(path string) ([]fs.FileInfo, error)

	// Create creates or truncates a remote file for writing.
	Create(path string) (io.WriteCloser, error)
}
