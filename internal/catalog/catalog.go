// Package catalog owns the published application snapshot. It loads it from
// disk, rebuilds it from the search roots, records launches and answers
// searches.
//
// All writes go through one writer lock; readers take the current snapshot
// pointer and work on it without holding any lock. A rebuild scans outside
// the lock and swaps the result in whole.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"log"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/0xADE/ade-launchd/internal/indexer"
	"github.com/0xADE/ade-launchd/internal/ranking"
)

const (
	DefaultMaxAge          = 24 * time.Hour
	DefaultRebuildInterval = 24 * time.Hour
)

// ErrNotFound is returned for an application id that is not in the catalog.
var ErrNotFound = errors.New("application not found")

// Builder produces a fresh snapshot from search roots.
type Builder interface {
	Build(ctx context.Context, roots []string) (*indexer.Snapshot, error)
}

// Options configures a Cache.
type Options struct {
	Roots           []string
	CachePath       string        // Empty disables persistence
	MaxAge          time.Duration // Persisted snapshots older than this are rebuilt
	RebuildInterval time.Duration // Period of the background rebuild
	Limit           int           // Default search result limit
	PreserveUsage   bool          // Carry launch stats across rebuilds by path
}

// Cache is the single owner of the catalog.
type Cache struct {
	opts    Options
	builder Builder
	now     func() time.Time

	mu    sync.RWMutex
	snap  *indexer.Snapshot
	roots []string

	writeMu    sync.Mutex
	group      singleflight.Group
	rebuilding atomic.Bool

	// Settings that may change while running
	preserve atomic.Bool
	interval atomic.Int64
	retune   chan struct{}
}

// New creates a cache holding an empty snapshot.
func New(opts Options, builder Builder) *Cache {
	if opts.MaxAge <= 0 {
		opts.MaxAge = DefaultMaxAge
	}
	if opts.RebuildInterval <= 0 {
		opts.RebuildInterval = DefaultRebuildInterval
	}
	if opts.Limit <= 0 {
		opts.Limit = ranking.DefaultLimit
	}
	c := &Cache{
		opts:    opts,
		builder: builder,
		now:     time.Now,
		snap:    indexer.NewSnapshot(nil, opts.Roots, time.Time{}),
		roots:   slices.Clone(opts.Roots),
		retune:  make(chan struct{}, 1),
	}
	c.preserve.Store(opts.PreserveUsage)
	c.interval.Store(int64(opts.RebuildInterval))
	return c
}

// Load adopts the persisted snapshot when it is fresh and was built from the
// configured roots. Otherwise the catalog is rebuilt.
func (c *Cache) Load(ctx context.Context) error {
	if c.opts.CachePath != "" {
		snap, err := readSnapshot(c.opts.CachePath)
		switch {
		case err != nil:
			log.Printf("[DEBUG] Catalog cache miss: %v", err)
		case !c.valid(snap):
			log.Printf("[DEBUG] Catalog cache at %s is stale", c.opts.CachePath)
		default:
			c.writeMu.Lock()
			c.publish(snap)
			c.writeMu.Unlock()
			log.Printf("[DEBUG] Loaded %d applications from cache", snap.Count())
			return nil
		}
	}

	_, err := c.Rebuild(ctx)
	return err
}

func (c *Cache) valid(snap *indexer.Snapshot) bool {
	major, _, _ := strings.Cut(snap.SchemaVersion, ".")
	if want, _, _ := strings.Cut(indexer.SchemaVersion, "."); major != want {
		return false
	}
	age := c.now().Sub(snap.BuiltAt)
	if age < 0 || age >= c.opts.MaxAge {
		return false
	}
	// Files written before roots were recorded are accepted
	return snap.Roots == nil || slices.Equal(snap.Roots, c.Roots())
}

// Rebuild rescans the roots and publishes the result. Concurrent calls share
// a single scan and all receive its result.
func (c *Cache) Rebuild(ctx context.Context) (int, error) {
	v, err, _ := c.group.Do("rebuild", func() (any, error) {
		c.rebuilding.Store(true)
		defer c.rebuilding.Store(false)
		return c.rebuild(ctx)
	})
	if err != nil {
		return 0, err
	}
	return v.(int), nil
}

// RebuildIfIdle rebuilds unless a rebuild is already running. It reports
// whether it ran.
func (c *Cache) RebuildIfIdle(ctx context.Context) bool {
	if c.rebuilding.Load() {
		return false
	}
	if _, err := c.Rebuild(ctx); err != nil {
		log.Printf("[ERROR] Catalog rebuild failed: %v", err)
	}
	return true
}

// IsRebuilding reports whether a scan is in progress.
func (c *Cache) IsRebuilding() bool {
	return c.rebuilding.Load()
}

func (c *Cache) rebuild(ctx context.Context) (int, error) {
	started := c.now()
	snap, err := c.builder.Build(ctx, c.Roots())
	if err != nil {
		return 0, fmt.Errorf("failed to build catalog: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.preserve.Load() {
		mergeUsage(snap, c.Snapshot())
	}
	c.publish(snap)
	c.persist(snap)

	log.Printf("[DEBUG] Indexed %d applications in %v", snap.Count(), c.now().Sub(started))
	return snap.Count(), nil
}

// mergeUsage copies launch stats from prev into next for paths in both.
func mergeUsage(next, prev *indexer.Snapshot) {
	byPath := make(map[string]indexer.Application, len(prev.Entries))
	for _, app := range prev.Entries {
		byPath[app.Path] = app
	}
	for i := range next.Entries {
		old, ok := byPath[next.Entries[i].Path]
		if !ok {
			continue
		}
		next.Entries[i].UseCount = old.UseCount
		if old.LastUsed != nil {
			t := *old.LastUsed
			next.Entries[i].LastUsed = &t
		}
	}
}

// Search ranks the current snapshot against query. A non-positive limit
// uses the configured default.
func (c *Cache) Search(query string, limit int) []indexer.Application {
	if limit <= 0 {
		limit = c.opts.Limit
	}
	return ranking.Search(query, c.Snapshot().Entries, limit)
}

// Get returns the application with the given id.
func (c *Cache) Get(id string) (indexer.Application, bool) {
	snap := c.Snapshot()
	if i := snap.Find(id); i >= 0 {
		return snap.Entries[i], true
	}
	return indexer.Application{}, false
}

// RecordLaunch bumps the use count and last-used time of an application and
// persists the catalog.
func (c *Cache) RecordLaunch(id string) (indexer.Application, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	cur := c.Snapshot()
	i := cur.Find(id)
	if i < 0 {
		return indexer.Application{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}

	next := cur.Clone()
	t := c.now()
	next.Entries[i].UseCount++
	next.Entries[i].LastUsed = &t

	c.publish(next)
	c.persist(next)
	return next.Entries[i], nil
}

// Snapshot returns the published snapshot. It must not be modified.
func (c *Cache) Snapshot() *indexer.Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snap
}

// Roots returns the configured search roots.
func (c *Cache) Roots() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return slices.Clone(c.roots)
}

// SetRoots replaces the search roots and reports whether they changed. The
// next rebuild uses them.
func (c *Cache) SetRoots(roots []string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if slices.Equal(c.roots, roots) {
		return false
	}
	c.roots = slices.Clone(roots)
	return true
}

// SetPreserveUsage switches whether rebuilds carry launch stats over.
func (c *Cache) SetPreserveUsage(preserve bool) {
	c.preserve.Store(preserve)
}

// SetRebuildInterval changes the period of Run and reports whether it
// differed. A non-positive interval restores the default.
func (c *Cache) SetRebuildInterval(d time.Duration) bool {
	if d <= 0 {
		d = DefaultRebuildInterval
	}
	if c.interval.Swap(int64(d)) == int64(d) {
		return false
	}
	select {
	case c.retune <- struct{}{}:
	default:
	}
	return true
}

// RebuildInterval returns the current period of Run.
func (c *Cache) RebuildInterval() time.Duration {
	return time.Duration(c.interval.Load())
}

// Run rebuilds the catalog every RebuildInterval until ctx is done. Ticks
// that find a rebuild in progress are skipped.
func (c *Cache) Run(ctx context.Context) {
	ticker := time.NewTicker(c.RebuildInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.retune:
			ticker.Reset(c.RebuildInterval())
		case <-ticker.C:
			if !c.RebuildIfIdle(ctx) {
				log.Printf("[DEBUG] Periodic rebuild skipped, another rebuild is running")
			}
		}
	}
}

// publish must be called with writeMu held.
func (c *Cache) publish(snap *indexer.Snapshot) {
	c.mu.Lock()
	c.snap = snap
	c.mu.Unlock()
}

// persist must be called with writeMu held. Failures leave memory as is.
func (c *Cache) persist(snap *indexer.Snapshot) {
	if c.opts.CachePath == "" {
		return
	}
	if err := writeSnapshot(c.opts.CachePath, snap); err != nil {
		log.Printf("[ERROR] Failed to persist catalog: %v", err)
	}
}
