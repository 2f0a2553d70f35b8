// Package ident resolves user identifiers and organization names from the
// source store to their destination equivalents.
package ident

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/zeebo/errs"
)

// DefaultGhost is the identifier substituted for users without a mapping.
const DefaultGhost = "github:1"

var (
	// ErrMapping is returned when an identifier has no mapping and ghosting
	// is disabled.
	ErrMapping = errs.Class("identifier mapping")

	// Pattern matches a single user identifier.
	Pattern = regexp.MustCompile(`^github:\d+$`)
)

// Ghosted records an identifier replaced by the ghost and the first path
// where it was seen.
type Ghosted struct {
	ID    string `json:"id"`
	Path  string `json:"path"`
	Count int    `json:"count"`
}

// Option configures a Mapper.
type Option func(*Mapper)

// WithGhost sets the ghost identifier. An empty string disables ghosting, so
// unmapped identifiers become fatal ErrMapping errors.
func WithGhost(id string) Option {
	return func(m *Mapper) { m.ghost = id }
}

// OnDiscover registers a callback invoked, outside the mapper lock, whenever
// identity mode sees an identifier for the first time.
func OnDiscover(fn func(id string)) Option {
	return func(m *Mapper) { m.onDiscover = fn }
}

// Mapper maps old identifiers to new ones. It is safe for concurrent use.
type Mapper struct {
	mu         sync.Mutex
	ids        map[string]string
	order      []string
	identity   bool
	ghost      string
	ghosts     map[string]*Ghosted
	ghostOrder []string
	onDiscover func(id string)
}

// New returns a Mapper over an explicit old -> new map. Identifiers missing
// from the map are ghosted.
func New(ids map[string]string, opts ...Option) *Mapper {
	m := newMapper(opts...)
	keys := make([]string, 0, len(ids))
	for k := range ids {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		m.ids[k] = ids[k]
		m.order = append(m.order, k)
	}
	return m
}

// NewIdentity returns a Mapper that maps every identifier to itself and
// remembers each one it sees.
func NewIdentity(opts ...Option) *Mapper {
	m := newMapper(opts...)
	m.identity = true
	return m
}

func newMapper(opts ...Option) *Mapper {
	m := &Mapper{
		ids:    make(map[string]string),
		ghost:  DefaultGhost,
		ghosts: make(map[string]*Ghosted),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Map resolves old, which was found at the slash-delimited path. Unmapped
// identifiers resolve to the ghost and are logged; with ghosting disabled they
// produce an ErrMapping naming the identifier and path.
func (m *Mapper) Map(old, path string) (string, error) {
	m.mu.Lock()
	if m.identity {
		if _, seen := m.ids[old]; !seen {
			m.ids[old] = old
			m.order = append(m.order, old)
			m.mu.Unlock()
			if m.onDiscover != nil {
				m.onDiscover(old)
			}
			return old, nil
		}
	}
	if id, ok := m.ids[old]; ok {
		m.mu.Unlock()
		return id, nil
	}
	defer m.mu.Unlock()

	if m.ghost == "" {
		return "", ErrMapping.New("no mapping for %s at %s", old, path)
	}
	if g, ok := m.ghosts[old]; ok {
		g.Count++
	} else {
		m.ghosts[old] = &Ghosted{ID: old, Path: path, Count: 1}
		m.ghostOrder = append(m.ghostOrder, old)
	}
	return m.ghost, nil
}

// Lookup reports the mapping for old without recording anything. In
// identity mode every identifier is mapped to itself.
func (m *Mapper) Lookup(old string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.identity {
		return old, true
	}
	id, ok := m.ids[old]
	return id, ok
}

// Identity reports whether the mapper runs in identity mode.
func (m *Mapper) Identity() bool { return m.identity }

// Ghost returns the ghost identifier, or "" when ghosting is disabled.
func (m *Mapper) Ghost() string { return m.ghost }

// Pairs returns the known old -> new pairs in the order they became known.
func (m *Mapper) Pairs() [][2]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	pairs := make([][2]string, len(m.order))
	for i, k := range m.order {
		pairs[i] = [2]string{k, m.ids[k]}
	}
	return pairs
}

// Len returns the number of known identifiers.
func (m *Mapper) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.order)
}

// Ghosted returns the ghost log in first-seen order.
func (m *Mapper) Ghosted() []Ghosted {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Ghosted, len(m.ghostOrder))
	for i, id := range m.ghostOrder {
		out[i] = *m.ghosts[id]
	}
	return out
}

// LoadMap reads an identifier map file: a JSON object of old -> new
// identifiers. Every key and value must be a well-formed identifier and no
// two old identifiers may share a new one.
func LoadMap(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading identifier map: %w", err)
	}

	var ids map[string]string
	if err := json.Unmarshal(data, &ids); err != nil {
		return nil, fmt.Errorf("parsing identifier map %s: %w", path, err)
	}

	var problems []string
	byNew := make(map[string]string, len(ids))
	for old, id := range ids {
		if !Pattern.MatchString(old) {
			problems = append(problems, fmt.Sprintf("key %q is not an identifier", old))
		}
		if !Pattern.MatchString(id) {
			problems = append(problems, fmt.Sprintf("value %q for %s is not an identifier", id, old))
		}
		if prev, dup := byNew[id]; dup {
			problems = append(problems, fmt.Sprintf("%s and %s both map to %s", prev, old, id))
		}
		byNew[id] = old
	}
	if len(problems) > 0 {
		sort.Strings(problems)
		return nil, fmt.Errorf("invalid identifier map %s: %s", path, strings.Join(problems, "; "))
	}
	return ids, nil
}
