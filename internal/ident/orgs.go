package ident

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
)

// OrgMapper renames organizations. Names missing from an explicit map keep
// their old value and are reported. It is safe for concurrent use.
type OrgMapper struct {
	mu       sync.Mutex
	names    map[string]string
	unmapped []string
	seen     map[string]bool
}

// NewOrgMapper returns an OrgMapper over old -> new names. A nil map means
// every name maps to itself.
func NewOrgMapper(names map[string]string) *OrgMapper {
	m := &OrgMapper{seen: make(map[string]bool)}
	if names != nil {
		m.names = make(map[string]string, len(names))
		for k, v := range names {
			m.names[strings.ToLower(k)] = strings.ToLower(v)
		}
	}
	return m
}

// Map returns the destination name for org. Names are compared lowercase.
func (m *OrgMapper) Map(org string) string {
	org = strings.ToLower(org)
	if m == nil || m.names == nil {
		return org
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if name, ok := m.names[org]; ok {
		return name
	}
	if !m.seen[org] {
		m.seen[org] = true
		m.unmapped = append(m.unmapped, org)
	}
	return org
}

// MapRepo maps the owner half of an "owner/repo" name.
func (m *OrgMapper) MapRepo(fullName string) string {
	owner, repo, ok := strings.Cut(fullName, "/")
	if !ok {
		return strings.ToLower(fullName)
	}
	return m.Map(owner) + "/" + strings.ToLower(repo)
}

// Unmapped returns organizations that had no entry in the map.
func (m *OrgMapper) Unmapped() []string {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.unmapped))
	copy(out, m.unmapped)
	return out
}

// LoadOrgMap reads a JSON object of old -> new organization names.
func LoadOrgMap(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading organization map: %w", err)
	}
	var names map[string]string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("parsing organization map %s: %w", path, err)
	}
	for old, name := range names {
		if old == "" || name == "" || strings.Contains(old, "/") || strings.Contains(name, "/") {
			return nil, fmt.Errorf("invalid organization map entry %q -> %q", old, name)
		}
	}
	return names, nil
}
