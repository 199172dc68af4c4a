// Package intent decides what kind of input the user is typing.
package intent

import (
	"strings"
	"sync"
)

// Intent is the classification of a line of input.
type Intent int

const (
	AppSearch Intent = iota
	PathLike
	CommandLike
)

func (i Intent) String() string {
	switch i {
	case PathLike:
		return "path"
	case CommandLike:
		return "command"
	default:
		return "app"
	}
}

// pathMarkers cover "/", "~", "." and ".." since ".." starts with ".".
var pathMarkers = []string{"/", "~", "."}

// Classifier classifies input against a replaceable set of command prefixes.
type Classifier struct {
	mu       sync.RWMutex
	prefixes []string
}

// New creates a classifier. Blank prefixes are ignored.
func New(prefixes []string) *Classifier {
	c := &Classifier{}
	c.SetPrefixes(prefixes)
	return c
}

// SetPrefixes replaces the command prefixes.
func (c *Classifier) SetPrefixes(prefixes []string) {
	clean := make([]string, 0, len(prefixes))
	for _, p := range prefixes {
		if p = strings.TrimSpace(p); p != "" {
			clean = append(clean, p)
		}
	}

	c.mu.Lock()
	c.prefixes = clean
	c.mu.Unlock()
}

// Classify returns the intent of text. Path markers are checked before
// command prefixes, and paths are recognized by their text alone since the
// user may still be typing them.
func (c *Classifier) Classify(text string) Intent {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return AppSearch
	}

	for _, m := range pathMarkers {
		if strings.HasPrefix(trimmed, m) {
			return PathLike
		}
	}

	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, p := range c.prefixes {
		if trimmed == p || strings.HasPrefix(trimmed, p+" ") {
			return CommandLike
		}
	}

	return AppSearch
}
