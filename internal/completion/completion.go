// Package completion lists directories matching a partially typed path and
// cycles through them on repeated requests.
package completion

import (
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// Direction of a cycling request.
type Direction int

const (
	Forward Direction = iota
	Backward
)

// Completer holds the candidate list and cursor for one user. It is not safe
// for concurrent use.
type Completer struct {
	policy Policy
	home   string
	base   string

	origin     string
	candidates []string
	index      int
}

// New creates a completer. Relative inputs are resolved against base.
func New(policy Policy, home, base string) *Completer {
	return &Completer{policy: policy, home: home, base: base, index: -1}
}

// Complete lists the directories matching input, replaces the candidate set
// and unsets the cursor.
func (c *Completer) Complete(input string) []string {
	c.origin = input
	c.candidates = c.list(input)
	c.index = -1
	return c.Candidates()
}

// Candidates returns a copy of the current candidate set.
func (c *Completer) Candidates() []string {
	out := make([]string, len(c.candidates))
	copy(out, c.candidates)
	return out
}

// Advance moves the cursor one step in dir and returns the candidate under
// it. An unset cursor lands on the first candidate going forward and on the
// last going backward.
func (c *Completer) Advance(dir Direction) (string, bool) {
	n := len(c.candidates)
	if n == 0 {
		return "", false
	}

	switch {
	case c.index < 0 && dir == Backward:
		c.index = n - 1
	case c.index < 0:
		c.index = 0
	case dir == Backward:
		c.index = (c.index - 1 + n) % n
	default:
		c.index = (c.index + 1) % n
	}
	return c.candidates[c.index], true
}

// Cycle advances when input is the text the candidates were computed from or
// one of the candidates; otherwise it completes input first.
func (c *Completer) Cycle(input string, dir Direction) (string, bool) {
	if len(c.candidates) == 0 || !c.represents(input) {
		c.Complete(input)
	}
	return c.Advance(dir)
}

// Reset forgets the candidate set.
func (c *Completer) Reset() {
	c.origin = ""
	c.candidates = nil
	c.index = -1
}

func (c *Completer) represents(input string) bool {
	if input == c.origin {
		return true
	}
	for _, cand := range c.candidates {
		if cand == input {
			return true
		}
	}
	return false
}

func (c *Completer) list(input string) []string {
	input = strings.TrimSpace(input)
	if input == "" {
		return nil
	}

	tilde := input == "~" || strings.HasPrefix(input, "~/")
	expanded := input
	if tilde {
		expanded = c.home + input[1:]
	}
	abs := expanded
	if !filepath.IsAbs(abs) {
		abs = filepath.Join(c.base, abs)
	}

	var dir, prefix, typedDir string
	if strings.HasSuffix(input, "/") {
		dir, typedDir = filepath.Clean(abs), input
	} else {
		dir, prefix = filepath.Dir(abs), filepath.Base(abs)
		typedDir = input[:strings.LastIndex(input, "/")+1]
	}

	if !c.policy.Permits(dir) {
		log.Printf("[WARN] Blocked completion in %s", dir)
		return nil
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		log.Printf("[DEBUG] Cannot list %s: %v", dir, err)
		return nil
	}

	lowerPrefix := strings.ToLower(prefix)
	var names []string
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") || !strings.HasPrefix(strings.ToLower(name), lowerPrefix) {
			continue
		}
		// Stat follows symlinks to directories
		if info, err := os.Stat(filepath.Join(dir, name)); err != nil || !info.IsDir() {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]string, 0, len(names))
	for _, name := range names {
		full := filepath.Join(dir, name)
		switch {
		case tilde:
			out = append(out, c.shorten(full))
		case filepath.IsAbs(expanded):
			out = append(out, full)
		default:
			out = append(out, typedDir+name)
		}
	}
	return out
}

// shorten renders a path under home with the "~" shorthand.
func (c *Completer) shorten(path string) string {
	if c.home == "" {
		return path
	}
	home := filepath.Clean(c.home)
	if path == home {
		return "~"
	}
	if rest, ok := strings.CutPrefix(path, home+string(filepath.Separator)); ok {
		return "~/" + rest
	}
	return path
}
