// Package fakefs is an in-memory ports.FileSystem backed by fstest.MapFS.
// Paths are absolute and slash separated, as on the Linux hosts the wizard
// runs on.
package fakefs

import (
	"errors"
	"io/fs"
	"path"
	"sort"
	"strings"
	"sync"
	"testing/fstest"
	"time"

	"github.com/acolita/train-wizard/internal/ports"
)

// FS holds files and explicitly created directories. Parent directories of
// files exist implicitly.
type FS struct {
	mu       sync.RWMutex
	m        fstest.MapFS
	env      map[string]string
	writeErr error
}

// New returns an empty file system.
func New() *FS {
	return &FS{m: fstest.MapFS{}, env: map[string]string{}}
}

// key maps an absolute path to its MapFS key.
func key(name string) string {
	k := strings.TrimPrefix(path.Clean("/"+name), "/")
	if k == "" {
		return "."
	}
	return k
}

// restorePath puts the caller's path back into MapFS errors.
func restorePath(name string, err error) error {
	var pe *fs.PathError
	if errors.As(err, &pe) {
		return &fs.PathError{Op: pe.Op, Path: name, Err: pe.Err}
	}
	return err
}

// Open returns a read-only snapshot of name.
func (f *FS) Open(name string) (fs.File, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	file, err := f.m.Open(key(name))
	return file, restorePath(name, err)
}

func (f *FS) ReadFile(name string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	data, err := f.m.ReadFile(key(name))
	return data, restorePath(name, err)
}

// WriteFile stores a copy of data. The parent directory is created
// implicitly, unlike on a real disk.
func (f *FS) WriteFile(name string, data []byte, perm fs.FileMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return &fs.PathError{Op: "write", Path: name, Err: f.writeErr}
	}
	f.m[key(name)] = &fstest.MapFile{
		Data:    append([]byte(nil), data...),
		Mode:    perm,
		ModTime: time.Now(),
	}
	return nil
}

// ReadDir lists name sorted by entry name.
func (f *FS) ReadDir(name string) ([]fs.DirEntry, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	entries, err := f.m.ReadDir(key(name))
	return entries, restorePath(name, err)
}

func (f *FS) Stat(name string) (fs.FileInfo, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	info, err := f.m.Stat(key(name))
	return info, restorePath(name, err)
}

func (f *FS) MkdirAll(p string, perm fs.FileMode) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.writeErr != nil {
		return &fs.PathError{Op: "mkdir", Path: p, Err: f.writeErr}
	}
	if k := key(p); k != "." {
		f.m[k] = &fstest.MapFile{Mode: fs.ModeDir | perm, ModTime: time.Now()}
	}
	return nil
}

// Getenv returns what SetEnv stored, never the process environment.
func (f *FS) Getenv(k string) string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.env[k]
}

// SetEnv sets a variable seen by Getenv.
func (f *FS) SetEnv(k, v string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.env[k] = v
}

// SetWriteError makes every later WriteFile and MkdirAll fail with err.
// Pass nil to clear it.
func (f *FS) SetWriteError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

// Files returns the absolute paths of all regular files, sorted.
func (f *FS) Files() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	var out []string
	for k, mf := range f.m {
		if !mf.Mode.IsDir() {
			out = append(out, "/"+k)
		}
	}
	sort.Strings(out)
	return out
}

// HasDir reports whether p exists as a directory, explicit or implied.
func (f *FS) HasDir(p string) bool {
	info, err := f.Stat(p)
	return err == nil && info.IsDir()
}

var _ ports.FileSystem = (*FS)(nil)
