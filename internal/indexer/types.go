package indexer

import (
	"encoding/json"
	"sort"
	"strings"
	"time"
	"unicode"
)

// SchemaVersion tags persisted snapshots.
const SchemaVersion = "1.0"

// Kind tells where an application was found.
type Kind int

const (
	KindStandard Kind = iota
	KindWebApp
	KindSystem
)

func (k Kind) String() string {
	switch k {
	case KindWebApp:
		return "web-app"
	case KindSystem:
		return "system"
	default:
		return "standard"
	}
}

// ParseKind maps the persisted form back to a Kind. Unknown values are standard.
func ParseKind(s string) Kind {
	switch s {
	case "web-app":
		return KindWebApp
	case "system":
		return KindSystem
	default:
		return KindStandard
	}
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		// Non-string kinds from foreign writers are not fatal.
		*k = KindStandard
		return nil
	}
	*k = ParseKind(s)
	return nil
}

// Application represents a single catalog entry
type Application struct {
	ID       string     `json:"id"`       // Opaque, stable for the process lifetime
	Name     string     `json:"name"`     // Display name, bundle suffix stripped
	Path     string     `json:"path"`     // Canonical absolute path, unique per snapshot
	Kind     Kind       `json:"kind"`     // Provenance derived from the search root
	Keywords []string   `json:"keywords"` // Lowercase search keys derived from Name
	LastUsed *time.Time `json:"lastUsed,omitempty"`
	UseCount int        `json:"useCount"`
}

// NewApplication creates an entry with keywords derived from name.
func NewApplication(id, name, path string, kind Kind) Application {
	return Application{
		ID:       id,
		Name:     name,
		Path:     path,
		Kind:     kind,
		Keywords: Keywords(name),
	}
}

// Keywords returns the lowercase name, every alphanumeric word of it and the
// initialism of those words. The result is sorted and has no duplicates.
func Keywords(name string) []string {
	if name == "" {
		return nil
	}

	set := map[string]struct{}{strings.ToLower(name): {}}

	words := strings.FieldsFunc(name, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var initials strings.Builder
	for _, w := range words {
		lw := strings.ToLower(w)
		set[lw] = struct{}{}
		for _, r := range lw {
			initials.WriteRune(r)
			break
		}
	}
	if initials.Len() > 0 {
		set[initials.String()] = struct{}{}
	}

	keywords := make([]string, 0, len(set))
	for kw := range set {
		keywords = append(keywords, kw)
	}
	sort.Strings(keywords)
	return keywords
}

// Snapshot is one fully built version of the catalog. A published snapshot
// is never modified; changes produce a copy.
type Snapshot struct {
	SchemaVersion string        `json:"schemaVersion"`
	Roots         []string      `json:"roots,omitempty"`
	BuiltAt       time.Time     `json:"builtAt"`
	Entries       []Application `json:"entries"`
}

// NewSnapshot sorts entries by case-insensitive name and wraps them.
func NewSnapshot(entries []Application, roots []string, builtAt time.Time) *Snapshot {
	SortByName(entries)
	return &Snapshot{
		SchemaVersion: SchemaVersion,
		Roots:         append([]string(nil), roots...),
		BuiltAt:       builtAt,
		Entries:       entries,
	}
}

// Clone returns a deep copy suitable for mutation before publishing.
func (s *Snapshot) Clone() *Snapshot {
	c := *s
	c.Roots = append([]string(nil), s.Roots...)
	c.Entries = make([]Application, len(s.Entries))
	for i, app := range s.Entries {
		if app.LastUsed != nil {
			t := *app.LastUsed
			app.LastUsed = &t
		}
		app.Keywords = append([]string(nil), app.Keywords...)
		c.Entries[i] = app
	}
	return &c
}

// Find returns the index of the entry with the given id, or -1.
func (s *Snapshot) Find(id string) int {
	for i := range s.Entries {
		if s.Entries[i].ID == id {
			return i
		}
	}
	return -1
}

// Count returns the number of entries in the snapshot
func (s *Snapshot) Count() int {
	if s == nil {
		return 0
	}
	return len(s.Entries)
}

// SortByName orders entries by case-insensitive name, then by path.
func SortByName(entries []Application) {
	sort.SliceStable(entries, func(i, j int) bool {
		ni, nj := strings.ToLower(entries[i].Name), strings.ToLower(entries[j].Name)
		if ni != nj {
			return ni < nj
		}
		return entries[i].Path < entries[j].Path
	})
}
