package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// fileState identifies one version of the watched file.
type fileState struct {
	mtime time.Time
	size  int64
	hash  [sha256.Size]byte
}

// Watcher polls a config file and calls a callback with the old and new
// config whenever its content changes and the new content is valid. An
// invalid edit is reported once and the previous config stays current.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)
	onError  func(error)

	mu      sync.Mutex
	current *Config
	seen    fileState

	done     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithErrorHandler receives every failed reload in addition to the log.
func WithErrorHandler(fn func(error)) WatcherOption {
	return func(w *Watcher) { w.onError = fn }
}

// NewWatcher loads path once and starts polling it. onChange may be nil.
// It is called from the polling goroutine, never concurrently with itself.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		done:     make(chan struct{}),
		stopped:  make(chan struct{}),
	}
	for _, o := range opts {
		o(w)
	}

	state, data, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current = cfg
	w.seen = state

	go w.loop()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends polling and waits for an in-flight check to finish. Safe to
// call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
	<-w.stopped
}

func (w *Watcher) loop() {
	defer close(w.stopped)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.check()
		}
	}
}

func (w *Watcher) read() (fileState, []byte, error) {
	data, err := os.ReadFile(w.path)
	if err != nil {
		return fileState{}, nil, err
	}
	info, err := os.Stat(w.path)
	if err != nil {
		return fileState{}, nil, err
	}
	return fileState{mtime: info.ModTime(), size: info.Size(), hash: sha256.Sum256(data)}, data, nil
}

// check reloads the file when its mtime, size or content changed.
func (w *Watcher) check() {
	info, err := os.Stat(w.path)
	if err != nil {
		w.fail(fmt.Errorf("config: stat %q: %w", w.path, err))
		return
	}

	w.mu.Lock()
	seen := w.seen
	w.mu.Unlock()
	if info.ModTime().Equal(seen.mtime) && info.Size() == seen.size {
		return
	}

	state, data, err := w.read()
	if err != nil {
		w.fail(fmt.Errorf("config: read %q: %w", w.path, err))
		return
	}
	if len(bytes.TrimSpace(data)) == 0 {
		// Caught mid-write; look again on the next tick.
		return
	}

	w.mu.Lock()
	w.seen = state
	w.mu.Unlock()
	if state.hash == seen.hash {
		// Touched, not edited.
		return
	}

	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		w.fail(fmt.Errorf("config: reload %q: %w", w.path, err))
		return
	}

	w.mu.Lock()
	old := w.current
	w.current = cfg
	w.mu.Unlock()

	slog.Info("config: reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

func (w *Watcher) fail(err error) {
	slog.Warn("config: keeping previous config", "err", err)
	if w.onError != nil {
		w.onError(err)
	}
}
