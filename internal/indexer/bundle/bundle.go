package bundle

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
)

const (
	DefaultSuffix   = ".app"
	DefaultMaxDepth = 2
)

var (
	DefaultSystemMarkers = []string{"/System/Applications"}
	DefaultWebAppMarkers = []string{"Chrome Apps", "Brave Apps", "Edge Apps"}
)

// Options controls what the scanner treats as a bundle and how it classifies it
type Options struct {
	Suffix        string   // Bundle name suffix, e.g. ".app"
	MaxDepth      int      // Subdirectory levels below a root to descend into
	SystemMarkers []string // Parent path fragments that mark system bundles
	WebAppMarkers []string // Parent path fragments that mark browser app shortcuts
	Home          string   // Home directory used for "~" expansion
}

// DefaultOptions returns the scanner defaults
func DefaultOptions() Options {
	home, _ := os.UserHomeDir()
	return Options{
		Suffix:        DefaultSuffix,
		MaxDepth:      DefaultMaxDepth,
		SystemMarkers: DefaultSystemMarkers,
		WebAppMarkers: DefaultWebAppMarkers,
		Home:          home,
	}
}

// Origin describes where a bundle was found.
type Origin int

const (
	OriginStandard Origin = iota
	OriginWebApp
	OriginSystem
)

// BundleInfo contains information about a discovered application bundle
type BundleInfo struct {
	Name   string // Bundle name without suffix
	Path   string // Canonical path to the bundle
	Origin Origin // Classified from the containing directory
}

// Scan walks roots in order and sends every bundle found to resultChan.
// The channel is closed when scanning ends. Roots that are missing or
// unreadable are skipped.
func Scan(ctx context.Context, roots []string, opts Options, resultChan chan<- *BundleInfo) {
	defer close(resultChan)

	if opts.Suffix == "" {
		opts.Suffix = DefaultSuffix
	}
	if opts.MaxDepth < 0 {
		opts.MaxDepth = DefaultMaxDepth
	}

	for _, root := range roots {
		if ctx.Err() != nil {
			return
		}
		dir := ExpandHome(root, opts.Home)
		if _, err := os.Stat(dir); err != nil {
			log.Printf("[DEBUG] Skipping search root %s: %v", root, err)
			continue
		}
		scanDir(ctx, dir, 0, opts, resultChan)
	}
}

func scanDir(ctx context.Context, dir string, depth int, opts Options, resultChan chan<- *BundleInfo) {
	if depth > opts.MaxDepth || ctx.Err() != nil {
		return
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Printf("[WARN] Failed to read %s: %v", dir, err)
		return
	}

	for _, entry := range entries {
		name := entry.Name()
		itemPath := filepath.Join(dir, name)

		// Follow symlinks; broken links are skipped
		info, err := os.Stat(itemPath)
		if err != nil {
			continue
		}

		if strings.HasSuffix(name, opts.Suffix) {
			select {
			case resultChan <- &BundleInfo{
				Name:   strings.TrimSuffix(name, opts.Suffix),
				Path:   Canonical(itemPath),
				Origin: classify(dir, opts),
			}:
			case <-ctx.Done():
				return
			}
			continue
		}

		if info.IsDir() && !strings.HasPrefix(name, ".") {
			scanDir(ctx, itemPath, depth+1, opts, resultChan)
		}
	}
}

func classify(parent string, opts Options) Origin {
	for _, m := range opts.SystemMarkers {
		if m != "" && strings.Contains(parent, m) {
			return OriginSystem
		}
	}
	for _, m := range opts.WebAppMarkers {
		if m != "" && strings.Contains(parent, m) {
			return OriginWebApp
		}
	}
	return OriginStandard
}

// Canonical returns the absolute, symlink-resolved form of path. When the
// path cannot be resolved the cleaned absolute path is returned.
func Canonical(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = filepath.Clean(path)
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}

// ExpandHome replaces a leading "~" with home.
func ExpandHome(path, home string) string {
	if home == "" {
		return path
	}
	if path == "~" {
		return home
	}
	if strings.HasPrefix(path, "~/") {
		return filepath.Join(home, path[2:])
	}
	return path
}
