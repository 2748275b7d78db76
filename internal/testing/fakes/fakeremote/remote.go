// Package fakeremote provides an in-memory ports.RemoteFS for testing.
package fakeremote

import (
	"bytes"
	"fmt"
	"io"
	"io/fs"
	"path"
	"sort"
	"sync"
	"time"

	"github.com/acolita/train-wizard/internal/ports"
)

// FS is an in-memory remote filesystem with error injection.
type FS struct {
	mu        sync.Mutex
	files     map[string][]byte
	dirs      map[string]bool
	mkdirErr  map[string]error
	createErr error
	writeErr  error
	sizeDelta int64
	hideFiles bool
	mkdirs    []string
}

// New creates an FS containing only "/".
func New() *FS {
	return &FS{
		files:    make(map[string][]byte),
		dirs:     map[string]bool{"/": true},
		mkdirErr: make(map[string]error),
	}
}

// AddDir registers an existing directory (and its parents).
func (f *FS) AddDir(p string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for p = path.Clean(p); p != "/" && p != "."; p = path.Dir(p) {
		f.dirs[p] = true
	}
}

// AddFile registers an existing file.
func (f *FS) AddFile(p string, data []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[path.Clean(p)] = data
}

// FailMkdir makes Mkdir of p fail with err.
func (f *FS) FailMkdir(p string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.mkdirErr[path.Clean(p)] = err
}

// FailCreate makes Create fail with err.
func (f *FS) FailCreate(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.createErr = err
}

// FailWrite makes writes to created files fail with err.
func (f *FS) FailWrite(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeErr = err
}

// SkewSize makes Stat of files report delta extra bytes.
func (f *FS) SkewSize(delta int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sizeDelta = delta
}

// HideFiles makes ReadDir omit files.
func (f *FS) HideFiles() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hideFiles = true
}

// File returns the contents of p.
func (f *FS) File(p string) ([]byte, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.files[path.Clean(p)]
	return data, ok
}

// Mkdirs returns every Mkdir call in order.
func (f *FS) Mkdirs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.mkdirs...)
}

// Mkdir creates a single directory.
func (f *FS) Mkdir(p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	p = path.Clean(p)
	f.mkdirs = append(f.mkdirs, p)
	if err, ok := f.mkdirErr[p]; ok {
		return &fs.PathError{Op: "mkdir", Path: p, Err: err}
	}
	if _, isFile := f.files[p]; f.dirs[p] || isFile {
		return &fs.PathError{Op: "mkdir", Path: p, Err: fs.ErrExist}
	}
	if !f.dirs[path.Dir(p)] {
		return &fs.PathError{Op: "mkdir", Path: p, Err: fs.ErrNotExist}
	}
	f.dirs[p] = true
	return nil
}

// Stat returns file info for a path.
func (f *FS) Stat(p string) (fs.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p = path.Clean(p)
	if f.dirs[p] {
		return &info{name: path.Base(p), dir: true}, nil
	}
	if data, ok := f.files[p]; ok {
		return &info{name: path.Base(p), size: int64(len(data)) + f.sizeDelta}, nil
	}
	return nil, &fs.PathError{Op: "stat", Path: p, Err: fs.ErrNotExist}
}

// ReadDir lists a directory sorted by name.
func (f *FS) ReadDir(p string) ([]fs.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p = path.Clean(p)
	if !f.dirs[p] {
		return nil, &fs.PathError{Op: "readdir", Path: p, Err: fs.ErrNotExist}
	}
	var out []fs.FileInfo
	if !f.hideFiles {
		for name, data := range f.files {
			if path.Dir(name) == p {
				out = append(out, &info{name: path.Base(name), size: int64(len(data))})
			}
		}
	}
	for d := range f.dirs {
		if d != p && path.Dir(d) == p {
			out = append(out, &info{name: path.Base(d), dir: true})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out, nil
}

// Create opens p for writing. Content becomes visible on Close.
func (f *FS) Create(p string) (io.WriteCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	p = path.Clean(p)
	if f.createErr != nil {
		return nil, &fs.PathError{Op: "create", Path: p, Err: f.createErr}
	}
	if !f.dirs[path.Dir(p)] {
		return nil, &fs.PathError{Op: "create", Path: p, Err: fs.ErrNotExist}
	}
	f.files[p] = nil
	return &writer{fs: f, path: p}, nil
}

type writer struct {
	fs   *FS
	path string
	buf  bytes.Buffer
}

func (w *writer) Write(b []byte) (int, error) {
	w.fs.mu.Lock()
	err := w.fs.writeErr
	w.fs.mu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("write %s: %w", w.path, err)
	}
	return w.buf.Write(b)
}

func (w *writer) Close() error {
	w.fs.mu.Lock()
	defer w.fs.mu.Unlock()
	w.fs.files[w.path] = w.buf.Bytes()
	return nil
}

type info struct {
	name string
	size int64
	dir  bool
}

func (i *info) Name() string { return i.name }
func (i *info) Size() int64  { return i.size }
func (i *info) Mode() fs.FileMode {
	if i.dir {
		return fs.ModeDir | 0755
	}
	return 0644
}
func (i *info) ModTime() time.Time { return time.Time{} }
func (i *info) IsDir() bool        { return i.dir }
func (i *info) Sys() any           { return nil }

var _ ports.RemoteFS = (*FS)(nil)
