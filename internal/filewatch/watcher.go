// Package filewatch invalidates cached dumps when watched files change on disk.
package filewatch

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/mattjoyce/hexview/internal/log"
)

// DefaultDebounce coalesces bursts of writes from editors and build tools.
const DefaultDebounce = 100 * time.Millisecond

// InvalidateFunc is called with the absolute path of a changed file.
type InvalidateFunc func(path string)

// Watcher watches parent directories and filters events down to the files
// registered through Watch.
type Watcher struct {
	fs       *fsnotify.Watcher
	debounce time.Duration
	onChange InvalidateFunc
	logger   *slog.Logger

	mu     sync.Mutex
	files  map[string]int
	dirs   map[string]int
	timers map[string]*time.Timer
}

type Option func(*Watcher)

func WithDebounce(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.debounce = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(w *Watcher) {
		if l != nil {
			w.logger = l
		}
	}
}

// New creates a watcher. Run must be called to deliver events.
func New(onChange InvalidateFunc, opts ...Option) (*Watcher, error) {
	if onChange == nil {
		return nil, fmt.Errorf("filewatch: invalidate callback is nil")
	}
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("filewatch: %w", err)
	}
	w := &Watcher{
		fs:       fw,
		debounce: DefaultDebounce,
		onChange: onChange,
		logger:   log.WithComponent("filewatch"),
		files:    make(map[string]int),
		dirs:     make(map[string]int),
		timers:   make(map[string]*time.Timer),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w, nil
}

// Watch registers interest in path. Calls are reference counted.
func (w *Watcher) Watch(path string) error {
	path = filepath.Clean(path)
	dir := filepath.Dir(path)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.files[path] > 0 {
		w.files[path]++
		return nil
	}
	if w.dirs[dir] == 0 {
		// Watching the directory survives editors that replace files via rename.
		if err := w.fs.Add(dir); err != nil {
			return fmt.Errorf("watch %s: %w", dir, err)
		}
	}
	w.dirs[dir]++
	w.files[path] = 1
	return nil
}

// Unwatch drops one reference to path.
func (w *Watcher) Unwatch(path string) {
	path = filepath.Clean(path)
	dir := filepath.Dir(path)

	w.mu.Lock()
	defer w.mu.Unlock()

	n, ok := w.files[path]
	if !ok {
		return
	}
	if n > 1 {
		w.files[path] = n - 1
		return
	}
	delete(w.files, path)
	if t, ok := w.timers[path]; ok {
		t.Stop()
		delete(w.timers, path)
	}

	w.dirs[dir]--
	if w.dirs[dir] <= 0 {
		delete(w.dirs, dir)
		if err := w.fs.Remove(dir); err != nil {
			w.logger.Debug("remove watch failed", "dir", dir, "error", err)
		}
	}
}

// Watching reports whether path currently has at least one reference.
func (w *Watcher) Watching(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.files[filepath.Clean(path)] > 0
}

// Run delivers events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.close()
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			w.handle(ev)
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", "error", err)
		}
	}
}

func (w *Watcher) handle(ev fsnotify.Event) {
	if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) &&
		!ev.Has(fsnotify.Remove) && !ev.Has(fsnotify.Rename) {
		return
	}
	path := filepath.Clean(ev.Name)

	w.mu.Lock()
	defer w.mu.Unlock()

	if w.files[path] == 0 {
		return
	}
	if t, ok := w.timers[path]; ok {
		t.Reset(w.debounce)
		return
	}
	w.timers[path] = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		delete(w.timers, path)
		still := w.files[path] > 0
		w.mu.Unlock()
		if still {
			w.logger.Debug("file changed", "path", path)
			w.onChange(path)
		}
	})
}

func (w *Watcher) close() {
	w.mu.Lock()
	for p, t := range w.timers {
		t.Stop()
		delete(w.timers, p)
	}
	w.mu.Unlock()
	_ = w.fs.Close()
}
