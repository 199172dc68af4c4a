package catalog

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/time/rate"

	"github.com/0xADE/ade-launchd/internal/indexer/bundle"
)

const (
	DefaultDebounce   = 2 * time.Second
	DefaultMinRebuild = 30 * time.Second
)

// WatchOptions configures a RootWatcher.
type WatchOptions struct {
	Suffix     string        // Bundle suffix whose appearance triggers a rebuild
	Home       string        // Used to expand "~" in roots
	Debounce   time.Duration // Quiet period before a rebuild starts
	MinRebuild time.Duration // Minimum time between watcher-triggered rebuilds
}

// RootWatcher rebuilds the catalog when bundles appear in or vanish from a
// search root.
type RootWatcher struct {
	cache   *Cache
	mu      sync.Mutex // guards opts.Suffix
	opts    WatchOptions
	limiter *rate.Limiter
	watcher *fsnotify.Watcher
}

// NewRootWatcher creates a watcher for cache. Call Watch to pick roots.
func NewRootWatcher(cache *Cache, opts WatchOptions) (*RootWatcher, error) {
	if opts.Suffix == "" {
		opts.Suffix = bundle.DefaultSuffix
	}
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.MinRebuild <= 0 {
		opts.MinRebuild = DefaultMinRebuild
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	return &RootWatcher{
		cache:   cache,
		opts:    opts,
		limiter: rate.NewLimiter(rate.Every(opts.MinRebuild), 1),
		watcher: watcher,
	}, nil
}

// Watch replaces the watched roots. Roots that do not exist are skipped.
func (w *RootWatcher) Watch(roots []string) {
	for _, p := range w.watcher.WatchList() {
		w.watcher.Remove(p)
	}
	for _, root := range roots {
		dir := bundle.ExpandHome(root, w.opts.Home)
		if _, err := os.Stat(dir); err != nil {
			continue
		}
		if err := w.watcher.Add(dir); err != nil {
			log.Printf("[WARN] Cannot watch %s: %v", dir, err)
		}
	}
}

// Run handles filesystem events until ctx is done or the watcher is closed.
func (w *RootWatcher) Run(ctx context.Context) {
	timer := time.NewTimer(time.Hour)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if w.relevant(event) {
				timer.Reset(w.opts.Debounce)
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Printf("[WARN] Root watcher error: %v", err)
		case <-timer.C:
			if r := w.limiter.Reserve(); r.Delay() > 0 {
				// Throttled; try again once the limiter allows it
				timer.Reset(r.Delay())
				r.Cancel()
				continue
			}
			log.Printf("[DEBUG] Search roots changed, rebuilding catalog")
			go w.cache.RebuildIfIdle(ctx)
		}
	}
}

func (w *RootWatcher) relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
		return false
	}
	w.mu.Lock()
	suffix := w.opts.Suffix
	w.mu.Unlock()
	return strings.HasSuffix(filepath.Base(event.Name), suffix)
}

// SetSuffix changes the bundle suffix that triggers rebuilds.
func (w *RootWatcher) SetSuffix(suffix string) {
	if suffix == "" {
		suffix = bundle.DefaultSuffix
	}
	w.mu.Lock()
	w.opts.Suffix = suffix
	w.mu.Unlock()
}

// Close stops the watcher.
func (w *RootWatcher) Close() error {
	return w.watcher.Close()
}
