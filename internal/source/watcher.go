package source

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long a watched set must be quiet before a change is reported.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reports batches of changed document files.
// Editors often write a file in several steps, so events are debounced.
type Watcher struct {
	watcher  *fsnotify.Watcher
	supports SupportsFunc
	debounce time.Duration
	logger   *slog.Logger

	files map[string]bool // single files, watched through their parent dir
	dirs  map[string]bool
}

// NewWatcher creates a watcher. Non-positive debounce uses DefaultDebounce.
func NewWatcher(supports SupportsFunc, debounce time.Duration, logger *slog.Logger) (*Watcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		watcher:  w,
		supports: supports,
		debounce: debounce,
		logger:   logger,
		files:    map[string]bool{},
		dirs:     map[string]bool{},
	}, nil
}

// Add watches a directory, or a single file through its parent directory.
// Call Add before Watch.
func (w *Watcher) Add(p string) error {
	info, err := os.Stat(p)
	if err != nil {
		return fmt.Errorf("stat %s: %w", p, err)
	}
	dir := filepath.Clean(p)
	if info.IsDir() {
		w.dirs[dir] = true
	} else {
		w.files[dir] = true
		dir = filepath.Dir(dir)
	}
	if err := w.watcher.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}
	return nil
}

// Watch emits sorted, de-duplicated paths after each quiet period.
// The channel closes when ctx is done or the watcher is closed.
func (w *Watcher) Watch(ctx context.Context) <-chan []string {
	out := make(chan []string, 1)

	go func() {
		defer close(out)
		pending := map[string]bool{}
		timer := time.NewTimer(w.debounce)
		timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return

			case event, ok := <-w.watcher.Events:
				if !ok {
					return
				}
				if !w.relevant(event) {
					continue
				}
				pending[filepath.Clean(event.Name)] = true
				timer.Reset(w.debounce)

			case <-timer.C:
				batch := make([]string, 0, len(pending))
				for p := range pending {
					batch = append(batch, p)
				}
				sort.Strings(batch)
				clear(pending)
				select {
				case out <- batch:
				case <-ctx.Done():
					return
				}

			case err, ok := <-w.watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("File watcher error", "error", err)
			}
		}
	}()

	return out
}

func (w *Watcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) &&
		!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	name := filepath.Clean(event.Name)
	if w.files[name] {
		return true
	}
	return w.dirs[filepath.Dir(name)] && accepts(w.supports, name)
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	return w.watcher.Close()
}
