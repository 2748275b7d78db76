// Package results stores training evaluation transcripts and splits them
// into titled sections.
package results

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/acolita/train-wizard/internal/adapters/realfs"
	"github.com/acolita/train-wizard/internal/ports"
)

const (
	filePrefix = "classification_result_cache_"
	fileSuffix = ".txt"
)

// ErrNotFound is returned when no cache entry exists.
var ErrNotFound = errors.New("no cached result found")

// Entry is one stored evaluation transcript.
type Entry struct {
	ID   int
	Text string
	Path string
}

// Cache is a directory of classification_result_cache_<id>.txt files.
type Cache struct {
	dir string
	fs  ports.FileSystem
}

// NewCache returns a cache rooted at dir. An optional FileSystem replaces
// the real one.
func NewCache(dir string, fsys ...ports.FileSystem) *Cache {
	var f ports.FileSystem = realfs.New()
	if len(fsys) > 0 && fsys[0] != nil {
		f = fsys[0]
	}
	return &Cache{dir: dir, fs: f}
}

// Dir returns the cache directory.
func (c *Cache) Dir() string {
	return c.dir
}

// Path returns the file path for an id.
func (c *Cache) Path(id int) string {
	return filepath.Join(c.dir, fileName(id))
}

func fileName(id int) string {
	return filePrefix + strconv.Itoa(id) + fileSuffix
}

// parseID extracts the id from a cache file name. Zero-padded ids such as
// _007 are accepted; signs and other characters are not.
func parseID(name string) (int, bool) {
	if ok, _ := doublestar.Match(filePrefix+"*"+fileSuffix, name); !ok {
		return 0, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileSuffix)
	if raw == "" || strings.TrimLeft(raw, "0123456789") != "" {
		return 0, false
	}
	id, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Write stores text under id, replacing any previous entry.
func (c *Cache) Write(id int, text string) (*Entry, error) {
	if id < 0 {
		return nil, fmt.Errorf("invalid result id %d", id)
	}
	if err := c.fs.MkdirAll(c.dir, 0755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}

	path := c.Path(id)
	if err := c.fs.WriteFile(path, []byte(text), 0644); err != nil {
		return nil, fmt.Errorf("write cache entry: %w", err)
	}

	slog.Debug("result cached", slog.Int("id", id), slog.String("path", path))
	return &Entry{ID: id, Text: text, Path: path}, nil
}

// names maps each id on disk to its file name. When both a padded and a
// plain name carry the same id, the plain one wins.
func (c *Cache) names() (map[int]string, error) {
	entries, err := c.fs.ReadDir(c.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("read cache dir: %w", err)
	}

	out := make(map[int]string)
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, ok := parseID(e.Name())
		if !ok {
			continue
		}
		if prev, seen := out[id]; seen && prev == fileName(id) {
			continue
		}
		out[id] = e.Name()
	}
	return out, nil
}

// IDs returns the ids present on disk in ascending order.
func (c *Cache) IDs() ([]int, error) {
	names, err := c.names()
	if err != nil {
		return nil, err
	}
	ids := make([]int, 0, len(names))
	for id := range names {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

// Load reads the entry for id, falling back to a zero-padded file name.
func (c *Cache) Load(id int) (*Entry, error) {
	path := c.Path(id)
	data, err := c.fs.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		names, lerr := c.names()
		if lerr != nil {
			return nil, lerr
		}
		name, ok := names[id]
		if !ok {
			return nil, ErrNotFound
		}
		path = filepath.Join(c.dir, name)
		data, err = c.fs.ReadFile(path)
	}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read cache entry: %w", err)
	}
	return &Entry{ID: id, Text: string(data), Path: path}, nil
}

// Latest returns the entry with the highest id.
func (c *Cache) Latest() (*Entry, error) {
	ids, err := c.IDs()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, ErrNotFound
	}
	return c.Load(ids[len(ids)-1])
}

// NextID returns an id that is at least floor and above every id on disk.
func (c *Cache) NextID(floor int) int {
	ids, err := c.IDs()
	if err != nil {
		slog.Warn("listing cache ids failed", slog.String("dir", c.dir), slog.String("error", err.Error()))
	}
	if len(ids) > 0 && ids[len(ids)-1]+1 > floor {
		return ids[len(ids)-1] + 1
	}
	return floor
}

// ExtractEvaluation returns the part of a transcript starting at marker.
func ExtractEvaluation(output, marker string) (string, bool) {
	if marker == "" {
		return "", false
	}
	idx := strings.Index(output, marker)
	if idx < 0 {
		return "", false
	}
	return output[idx:], true
}
