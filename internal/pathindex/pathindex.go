package pathindex

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.etcd.io/bbolt"
)

const (
	dbFile        = "launchd.path-index"
	bucketName    = "path_index"
	dbPermissions = 0600
	valueSize     = 16

	// decayDays is the time constant of the recency decay
	decayDays = 30.0
)

// ErrClosed is returned by writes after Close.
var ErrClosed = errors.New("path index closed")

// Entry is a recently used path.
type Entry struct {
	Path         string
	Frequency    uint64
	LastAccessed time.Time
}

// Score weighs frequency by an exponential decay on the time since last access.
func (e Entry) Score(now time.Time) float64 {
	days := now.Sub(e.LastAccessed).Hours() / 24
	return float64(e.Frequency) * math.Exp(-days/decayDays)
}

// PathIndex keeps recent/frequent paths in a bbolt DB.
type PathIndex struct {
	mu  sync.RWMutex // guards db against Close
	db  *bbolt.DB
	now func() time.Time
}

// NewPathIndex opens the index under the user cache directory.
func NewPathIndex() (*PathIndex, error) {
	cacheDir, err := os.UserCacheDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user cache directory: %w", err)
	}
	return Open(cacheDir)
}

// Open creates or opens the index under cacheDir/ade.
func Open(cacheDir string) (*PathIndex, error) {
	adeCacheDir := filepath.Join(cacheDir, "ade")
	if err := os.MkdirAll(adeCacheDir, 0750); err != nil {
		return nil, fmt.Errorf("failed to create cache directory: %w", err)
	}

	db, err := bbolt.Open(filepath.Join(adeCacheDir, dbFile), dbPermissions, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(bucketName)); err != nil {
			return fmt.Errorf("failed to create bucket: %w", err)
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	return &PathIndex{db: db, now: time.Now}, nil
}

// Touch records a use of path and returns the updated entry.
func (pi *PathIndex) Touch(path string) (Entry, error) {
	pi.mu.RLock()
	defer pi.mu.RUnlock()
	if pi.db == nil {
		return Entry{}, ErrClosed
	}
	e := Entry{Path: path}
	err := pi.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucketName)
		}

		if old, ok := decode(path, b.Get([]byte(path))); ok {
			e.Frequency = old.Frequency
		}
		e.Frequency++
		e.LastAccessed = pi.now()

		return b.Put([]byte(path), encode(e))
	})
	return e, err
}

// Get returns the entry for path, if any.
func (pi *PathIndex) Get(path string) (Entry, bool) {
	var (
		e  Entry
		ok bool
	)
	pi.mu.RLock()
	defer pi.mu.RUnlock()
	if pi.db == nil {
		return e, false
	}
	pi.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket([]byte(bucketName)); b != nil {
			e, ok = decode(path, b.Get([]byte(path)))
		}
		return nil
	})
	return e, ok
}

// Top returns up to limit entries by descending score, ties by path.
func (pi *PathIndex) Top(limit int) []Entry {
	if limit <= 0 {
		return nil
	}
	pi.mu.RLock()
	defer pi.mu.RUnlock()
	entries := pi.ranked()
	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries
}

// Prune drops all but the keep best entries and reports how many were removed.
func (pi *PathIndex) Prune(keep int) (int, error) {
	if keep < 0 {
		keep = 0
	}
	pi.mu.RLock()
	defer pi.mu.RUnlock()
	entries := pi.ranked()
	if len(entries) <= keep {
		return 0, nil
	}
	if pi.db == nil {
		return 0, ErrClosed
	}

	drop := entries[keep:]
	err := pi.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return fmt.Errorf("bucket %s not found", bucketName)
		}
		for _, e := range drop {
			if err := b.Delete([]byte(e.Path)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(drop), nil
}

// ranked expects mu to be held.
func (pi *PathIndex) ranked() []Entry {
	var entries []Entry
	if pi.db == nil {
		return nil
	}
	pi.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket([]byte(bucketName))
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			if e, ok := decode(string(k), v); ok {
				entries = append(entries, e)
			}
			return nil
		})
	})

	now := pi.now()
	sort.SliceStable(entries, func(i, j int) bool {
		si, sj := entries[i].Score(now), entries[j].Score(now)
		if si != sj {
			return si > sj
		}
		return entries[i].Path < entries[j].Path
	})
	return entries
}

// Close closes the database. It is safe to call more than once.
func (pi *PathIndex) Close() error {
	pi.mu.Lock()
	defer pi.mu.Unlock()
	if pi.db == nil {
		return nil
	}
	err := pi.db.Close()
	pi.db = nil
	return err
}

func encode(e Entry) []byte {
	buf := make([]byte, valueSize)
	binary.BigEndian.PutUint64(buf[:8], e.Frequency)
	binary.BigEndian.PutUint64(buf[8:], uint64(e.LastAccessed.UnixNano()))
	return buf
}

func decode(path string, val []byte) (Entry, bool) {
	if len(val) != valueSize {
		return Entry{}, false
	}
	return Entry{
		Path:         path,
		Frequency:    binary.BigEndian.Uint64(val[:8]),
		LastAccessed: time.Unix(0, int64(binary.BigEndian.Uint64(val[8:]))),
	}, true
}
