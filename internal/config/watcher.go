package config

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// settleDelay coalesces the burst of events an editor save produces into a
// single reload.
const settleDelay = 100 * time.Millisecond

// Watcher keeps the wizard settings in sync with the config file while the
// wizard runs. Only files that load and validate replace the current settings.
type Watcher struct {
	path     string
	onChange func(*Config)

	mu     sync.Mutex
	config *Config
	raw    []byte
	timer  *time.Timer
	closed bool

	fsw  *fsnotify.Watcher
	done chan struct{}
}

func loadValid(path string) (*Config, []byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, err
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, raw, nil
}

// NewWatcher loads path and calls onChange with every valid reloaded config
// whose content differs from the last one applied.
func NewWatcher(path string, onChange func(*Config)) (*Watcher, error) {
	cfg, raw, err := loadValid(path)
	if err != nil {
		return nil, err
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	// The directory is watched because editors replace the file on save.
	if err := fsw.Add(filepath.Dir(path)); err != nil {
		fsw.Close()
		return nil, err
	}

	w := &Watcher{
		path:     path,
		onChange: onChange,
		config:   cfg,
		raw:      raw,
		fsw:      fsw,
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

// Config returns the settings currently in force.
func (w *Watcher) Config() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.config
}

func (w *Watcher) loop() {
	name := filepath.Base(w.path)
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) == name && ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
				w.schedule()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("config watcher error", slog.String("error", err.Error()))
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		return
	}
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(settleDelay, w.reload)
}

func (w *Watcher) reload() {
	cfg, raw, err := loadValid(w.path)
	if err != nil {
		slog.Warn("config change ignored",
			slog.String("path", w.path),
			slog.String("error", err.Error()),
		)
		return
	}

	w.mu.Lock()
	if w.closed || bytes.Equal(raw, w.raw) {
		w.mu.Unlock()
		return
	}
	w.config, w.raw = cfg, raw
	w.mu.Unlock()

	slog.Info("config reloaded",
		slog.String("path", w.path),
		slog.String("mode", cfg.Training.Mode),
	)
	if w.onChange != nil {
		w.onChange(cfg)
	}
}

// Close stops watching. Further calls are no-ops.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()

	close(w.done)
	return w.fsw.Close()
}
