// Package watch rebuilds the site when catalog inputs change.
package watch

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"obiscatalog/internal/logging"
)

// Extensions lists the file types that trigger a rebuild.
var Extensions = []string{".json", ".md", ".html", ".yaml", ".yml", ".css", ".js"}

// RebuildFunc is called once per settled batch of changes.
type RebuildFunc func(ctx context.Context, changed []string) error

// Stats tracks watcher activity.
type Stats struct {
	Events        int
	Rebuilds      int
	Errors        int
	LastEventTime time.Time
	LastEventPath string
}

// Watcher watches directory trees and batches changes into rebuilds.
type Watcher struct {
	mu          sync.RWMutex
	watcher     *fsnotify.Watcher
	roots       []string
	ignore      []string
	rebuild     RebuildFunc
	pending     map[string]struct{}
	lastEvent   time.Time
	debounceDur time.Duration
	stopCh      chan struct{}
	doneCh      chan struct{}
	running     bool
	stopped     bool
	closeOnce   sync.Once

	stats Stats
}

// New creates a watcher over roots. Paths under any ignore entry, such as
// the output directory, never trigger a rebuild.
func New(roots, ignore []string, debounce time.Duration, rebuild RebuildFunc) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if debounce <= 0 {
		debounce = 300 * time.Millisecond
	}
	w := &Watcher{
		watcher:     fw,
		rebuild:     rebuild,
		pending:     make(map[string]struct{}),
		debounceDur: debounce,
		stopCh:      make(chan struct{}),
		doneCh:      make(chan struct{}),
	}
	for _, r := range roots {
		w.roots = append(w.roots, filepath.Clean(r))
	}
	for _, i := range ignore {
		if i != "" {
			w.ignore = append(w.ignore, filepath.Clean(i))
		}
	}
	return w, nil
}

// ErrStopped is returned by Start once the watcher has been stopped.
var ErrStopped = errors.New("watch: watcher stopped")

// Start adds every directory under the roots and begins watching in a
// goroutine. A stopped watcher cannot be restarted.
func (w *Watcher) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return ErrStopped
	}
	if w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = true
	w.mu.Unlock()

	for _, root := range w.roots {
		if err := w.addTree(root); err != nil {
			logging.Get(logging.CategoryWatch).Warn("initial watch of %s failed: %v", root, err)
		}
	}
	logging.Watch("watching %d directories", len(w.watcher.WatchList()))

	go w.run(ctx)
	return nil
}

// Stop stops the watcher and waits for an in-flight rebuild to finish.
func (w *Watcher) Stop() {
	w.mu.Lock()
	wasRunning := w.running
	w.running = false
	w.stopped = true
	w.mu.Unlock()

	if wasRunning {
		close(w.stopCh)
		<-w.doneCh
	}

	w.closeOnce.Do(func() {
		if err := w.watcher.Close(); err != nil {
			logging.Get(logging.CategoryWatch).Error("error closing watcher: %v", err)
		}
		logging.Watch("stopped")
	})
}

func (w *Watcher) ignored(path string) bool {
	for _, i := range w.ignore {
		if path == i || strings.HasPrefix(path, i+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func skipDirName(name string) bool {
	return name == "node_modules" || (len(name) > 1 && (name[0] == '.' || name[0] == '_') && name != "_includes")
}

// addTree watches root and every directory below it.
func (w *Watcher) addTree(root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if w.ignored(path) || (path != root && skipDirName(d.Name())) {
			return filepath.SkipDir
		}
		if err := w.watcher.Add(path); err != nil {
			return err
		}
		logging.WatchDebug("watching %s", path)
		return nil
	})
}

func (w *Watcher) run(ctx context.Context) {
	defer close(w.doneCh)

	tick := w.debounceDur / 3
	if tick < 10*time.Millisecond {
		tick = 10 * time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Watch("context cancelled")
			return

		case <-w.stopCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logging.Get(logging.CategoryWatch).Error("watcher error: %v", err)
			w.mu.Lock()
			w.stats.Errors++
			w.mu.Unlock()

		case <-ticker.C:
			w.flush(ctx)
		}
	}
}

func (w *Watcher) handleEvent(event fsnotify.Event) {
	path := filepath.Clean(event.Name)
	if w.ignored(path) {
		return
	}
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return
	}

	if event.Op&fsnotify.Create != 0 {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !skipDirName(info.Name()) {
				if err := w.addTree(path); err != nil {
					logging.Get(logging.CategoryWatch).Warn("failed to watch new dir %s: %v", path, err)
				}
			}
			return
		}
	}

	if !watchedExt(path) {
		return
	}
	logging.WatchDebug("%s %s", event.Op, path)

	w.mu.Lock()
	w.pending[path] = struct{}{}
	w.lastEvent = time.Now()
	w.stats.Events++
	w.stats.LastEventTime = w.lastEvent
	w.stats.LastEventPath = path
	w.mu.Unlock()
}

func watchedExt(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// flush runs one rebuild once no event has arrived for the debounce window.
func (w *Watcher) flush(ctx context.Context) {
	w.mu.Lock()
	if len(w.pending) == 0 || time.Since(w.lastEvent) < w.debounceDur {
		w.mu.Unlock()
		return
	}
	changed := make([]string, 0, len(w.pending))
	for p := range w.pending {
		changed = append(changed, p)
	}
	w.pending = make(map[string]struct{})
	w.mu.Unlock()

	sort.Strings(changed)
	logging.Watch("rebuilding after %d change(s)", len(changed))
	err := w.rebuild(ctx, changed)

	w.mu.Lock()
	w.stats.Rebuilds++
	if err != nil {
		w.stats.Errors++
	}
	w.mu.Unlock()
	if err != nil {
		logging.Get(logging.CategoryWatch).Error("rebuild failed: %v", err)
	}
}

// GetStats returns the current watcher statistics.
func (w *Watcher) GetStats() Stats {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.stats
}

// IsWatching reports whether the watcher is running.
func (w *Watcher) IsWatching() bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.running
}

// WatchedDirs returns the directories being watched.
func (w *Watcher) WatchedDirs() []string {
	return w.watcher.WatchList()
}
