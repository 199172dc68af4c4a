package indexer

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/0xADE/ade-launchd/internal/indexer/bundle"
)

// Indexer builds catalog snapshots from application search roots
type Indexer struct {
	opts  bundle.Options
	newID func() string
	now   func() time.Time

	mu          sync.Mutex
	running     bool
	indexCancel context.CancelFunc
	generation  uint64
}

// NewIndexer creates a new indexer instance
func NewIndexer(opts bundle.Options) *Indexer {
	return &Indexer{
		opts:  opts,
		newID: func() string { return uuid.New().String() },
		now:   time.Now,
	}
}

// Build scans roots and returns a new snapshot. Missing or unreadable roots
// are skipped, so an empty snapshot is a valid result. An error is returned
// only when ctx is cancelled before the scan completes, or when a later
// Build supersedes this one.
func (idx *Indexer) Build(ctx context.Context, roots []string) (*Snapshot, error) {
	idx.mu.Lock()
	// Cancel previous indexing if running
	if idx.running && idx.indexCancel != nil {
		idx.indexCancel()
	}
	indexCtx, cancel := context.WithCancel(ctx)
	idx.generation++
	gen := idx.generation
	idx.running = true
	idx.indexCancel = cancel
	opts := idx.opts
	idx.mu.Unlock()

	defer func() {
		cancel()
		idx.mu.Lock()
		if idx.generation == gen {
			idx.running = false
			idx.indexCancel = nil
		}
		idx.mu.Unlock()
	}()

	bundleChan := make(chan *bundle.BundleInfo, 100)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		bundle.Scan(indexCtx, roots, opts, bundleChan)
	}()

	entries := idx.processResults(bundleChan)
	wg.Wait()

	if err := indexCtx.Err(); err != nil {
		return nil, err
	}

	return NewSnapshot(entries, roots, idx.now()), nil
}

// processResults dedups by canonical path; the bundle discovered last wins.
func (idx *Indexer) processResults(bundleChan <-chan *bundle.BundleInfo) []Application {
	byPath := make(map[string]int)
	var entries []Application

	for b := range bundleChan {
		app := NewApplication(idx.newID(), b.Name, b.Path, kindOf(b.Origin))
		if i, ok := byPath[b.Path]; ok {
			entries[i] = app
			continue
		}
		byPath[b.Path] = len(entries)
		entries = append(entries, app)
	}

	return entries
}

func kindOf(o bundle.Origin) Kind {
	switch o {
	case bundle.OriginSystem:
		return KindSystem
	case bundle.OriginWebApp:
		return KindWebApp
	default:
		return KindStandard
	}
}

// SetSuffix changes the bundle suffix used by later builds and reports
// whether it differed.
func (idx *Indexer) SetSuffix(suffix string) bool {
	if suffix == "" {
		suffix = bundle.DefaultSuffix
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.opts.Suffix == suffix {
		return false
	}
	idx.opts.Suffix = suffix
	return true
}

// IsRunning returns whether a build is currently running
func (idx *Indexer) IsRunning() bool {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.running
}

// Stop cancels a running build
func (idx *Indexer) Stop() {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.running && idx.indexCancel != nil {
		idx.indexCancel()
	}
}
