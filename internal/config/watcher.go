package config

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce coalesces the burst of events editors emit on save.
const DefaultWatchDebounce = 250 * time.Millisecond

// Watcher reports changes to a config file and the files it includes. It
// watches parent directories so atomic rename-on-save is seen.
type Watcher struct {
	path     string
	debounce time.Duration
	logger   *slog.Logger
	fs       *fsnotify.Watcher

	mu    sync.Mutex
	files map[string]struct{}
	dirs  map[string]struct{}
}

// NewWatcher starts watching path's directory.
func NewWatcher(path string, logger *slog.Logger) (*Watcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	canon, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %q: %w", path, err)
	}
	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fs.Add(filepath.Dir(canon)); err != nil {
		_ = fs.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(canon), err)
	}
	return &Watcher{
		path:     canon,
		debounce: DefaultWatchDebounce,
		logger:   logger,
		fs:       fs,
		files:    map[string]struct{}{canon: {}},
		dirs:     map[string]struct{}{filepath.Dir(canon): {}},
	}, nil
}

// Watch replaces the set of included files reported alongside the main
// file, typically LoadResult.Files after each load. Directories already
// watched stay watched.
func (w *Watcher) Watch(files []string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.files = map[string]struct{}{w.path: {}}
	for _, f := range files {
		canon, err := filepath.Abs(f)
		if err != nil {
			continue
		}
		w.files[canon] = struct{}{}
		dir := filepath.Dir(canon)
		if _, ok := w.dirs[dir]; ok {
			continue
		}
		if err := w.fs.Add(dir); err != nil {
			w.logger.Warn("failed to watch include directory", "dir", dir, "error", err)
			continue
		}
		w.dirs[dir] = struct{}{}
	}
}

// Run calls onChange after each settled burst of writes to the watched file
// until ctx is done. It closes the underlying watcher on return.
func (w *Watcher) Run(ctx context.Context, onChange func()) error {
	defer w.fs.Close()

	var (
		timer  *time.Timer
		timerC <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return ctx.Err()
		case ev, ok := <-w.fs.Events:
			if !ok {
				return nil
			}
			if !w.relevant(ev) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			timerC = timer.C
		case err, ok := <-w.fs.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("config watcher error", "error", err)
		case <-timerC:
			timerC = nil
			w.logger.Debug("config changed", "path", w.path)
			onChange()
		}
	}
}

func (w *Watcher) relevant(ev fsnotify.Event) bool {
	w.mu.Lock()
	_, ok := w.files[filepath.Clean(ev.Name)]
	w.mu.Unlock()
	if !ok {
		return false
	}
	return ev.Has(fsnotify.Write) || ev.Has(fsnotify.Create) || ev.Has(fsnotify.Rename)
}
