package ident

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIdentityMapperRemembersWithoutGhosting(t *testing.T) {
	var discovered []string
	m := NewIdentity(OnDiscover(func(id string) { discovered = append(discovered, id) }))

	got, err := m.Map("github:42", "reviews/r1/core/author")
	require.NoError(t, err)
	require.Equal(t, "github:42", got)

	got, err = m.Map("github:42", "users/github:42")
	require.NoError(t, err)
	require.Equal(t, "github:42", got)

	require.Empty(t, m.Ghosted())
	require.Equal(t, []string{"github:42"}, discovered)
	require.Equal(t, [][2]string{{"github:42", "github:42"}}, m.Pairs())
}

func TestExplicitMapperGhostsUnmapped(t *testing.T) {
	m := New(map[string]string{"github:1000": "github:7"})

	got, err := m.Map("github:1000", "a")
	require.NoError(t, err)
	require.Equal(t, "github:7", got)

	got, err = m.Map("github:99", "reviews/r1/tracker")
	require.NoError(t, err)
	require.Equal(t, DefaultGhost, got)

	_, err = m.Map("github:99", "reviews/r2/tracker")
	require.NoError(t, err)

	require.Equal(t, []Ghosted{{ID: "github:99", Path: "reviews/r1/tracker", Count: 2}}, m.Ghosted())
}

func TestExplicitMapperWithoutGhostFails(t *testing.T) {
	m := New(map[string]string{"github:1000": "github:7"}, WithGhost(""))

	_, err := m.Map("github:99", "reviews/r1/core/author")
	require.Error(t, err)
	require.True(t, ErrMapping.Has(err))
	require.Contains(t, err.Error(), "github:99")
	require.Contains(t, err.Error(), "reviews/r1/core/author")
}

func TestLookupDoesNotRecord(t *testing.T) {
	m := New(map[string]string{"github:1": "github:2"})

	_, ok := m.Lookup("github:3")
	require.False(t, ok)
	require.Empty(t, m.Ghosted())

	id, ok := NewIdentity().Lookup("github:3")
	require.True(t, ok)
	require.Equal(t, "github:3", id)
}

func TestMapperConcurrentDiscovery(t *testing.T) {
	m := NewIdentity()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = m.Map("github:5", "x")
			_, _ = m.Map("github:6", "y")
		}()
	}
	wg.Wait()

	require.Equal(t, 2, m.Len())
}

func TestLoadMapValidates(t *testing.T) {
	dir := t.TempDir()

	good := filepath.Join(dir, "good.json")
	require.NoError(t, os.WriteFile(good, []byte(`{"github:1":"github:10","github:2":"github:20"}`), 0o644))
	ids, err := LoadMap(good)
	require.NoError(t, err)
	require.Len(t, ids, 2)

	dup := filepath.Join(dir, "dup.json")
	require.NoError(t, os.WriteFile(dup, []byte(`{"github:1":"github:10","github:2":"github:10"}`), 0o644))
	_, err = LoadMap(dup)
	require.ErrorContains(t, err, "both map to github:10")

	bad := filepath.Join(dir, "bad.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"alice":"github:10"}`), 0o644))
	_, err = LoadMap(bad)
	require.ErrorContains(t, err, "not an identifier")
}

func TestOrgMapper(t *testing.T) {
	m := NewOrgMapper(map[string]string{"Acme": "acme-corp"})

	require.Equal(t, "acme-corp", m.Map("ACME"))
	require.Equal(t, "acme-corp/widgets", m.MapRepo("acme/Widgets"))
	require.Equal(t, "other", m.Map("other"))
	require.Equal(t, "other", m.Map("other"))
	require.Equal(t, []string{"other"}, m.Unmapped())

	identity := NewOrgMapper(nil)
	require.Equal(t, "other", identity.Map("Other"))
	require.Empty(t, identity.Unmapped())
}
