package completion

import (
	"path/filepath"
	"strings"
)

// Policy restricts which directories may be listed. A directory is permitted
// when it lies within an Allow root and outside every Deny root.
type Policy struct {
	Allow []string
	Deny  []string
}

// DefaultPolicy returns the stock policy for a user whose home is home.
func DefaultPolicy(home string) Policy {
	p := Policy{
		Allow: []string{"/Applications", "/Users"},
		Deny: []string{
			"/etc", "/var", "/private",
			"/System/Library", "/Library/Keychains",
		},
	}
	if home != "" {
		p.Allow = append([]string{home}, p.Allow...)
		p.Deny = append(p.Deny,
			filepath.Join(home, ".ssh"),
			filepath.Join(home, ".gnupg"),
			filepath.Join(home, "Library", "Keychains"),
		)
	}
	return p
}

// Permits checks dir and, when it differs, its symlink-resolved form.
func (p Policy) Permits(dir string) bool {
	clean := filepath.Clean(dir)
	if !p.permits(clean) {
		return false
	}
	if resolved, err := filepath.EvalSymlinks(clean); err == nil && resolved != clean {
		return p.permits(resolved)
	}
	return true
}

func (p Policy) permits(path string) bool {
	for _, d := range p.Deny {
		if within(path, d) {
			return false
		}
	}
	for _, a := range p.Allow {
		if within(path, a) {
			return true
		}
	}
	return false
}

// within compares whole path components, so /Users does not cover /Usersx.
func within(path, root string) bool {
	if root == "" {
		return false
	}
	root = filepath.Clean(root)
	if root == string(filepath.Separator) {
		return filepath.IsAbs(path)
	}
	return path == root || strings.HasPrefix(path, root+string(filepath.Separator))
}
