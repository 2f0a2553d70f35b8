package extract

import (
	"sort"
	"sync"
)

// Entity kinds, used as record key prefixes and report labels.
const (
	KindSystem          = "system"
	KindOrganizations   = "organizations"
	KindRepositories    = "repositories"
	KindRules           = "rules"
	KindReviews         = "reviews"
	KindArchivedReviews = "archivedReviews"
	KindLinemaps        = "linemaps"
	KindFilemaps        = "filemaps"
	KindBasemaps        = "basemaps"
	KindUsers           = "users"
	KindQueues          = "queues"
)

// kindOrder fixes the order counts are reported in.
var kindOrder = []string{
	KindSystem, KindOrganizations, KindRepositories, KindRules, KindReviews,
	KindArchivedReviews, KindLinemaps, KindFilemaps, KindBasemaps, KindUsers, KindQueues,
}

// MissingReview is a review key referenced by a repository but found neither
// live nor archived.
type MissingReview struct {
	Key         string `json:"key"`
	PullRequest string `json:"pull_request,omitempty"`
}

// State is the bookkeeping shared by the walker's phases. It is safe for
// concurrent use.
type State struct {
	mu           sync.Mutex
	keys         []string
	pullRequests map[string]string
	reachable    map[string]struct{}
	missing      []MissingReview
	missingRepos []string
	counts       map[string]int64
}

// NewState returns empty walker state.
func NewState() *State {
	return &State{
		pullRequests: make(map[string]string),
		counts:       make(map[string]int64),
	}
}

// AddReview appends a review key found in a repository. The first pull
// request recorded for a key is kept.
func (s *State) AddReview(key, pullRequest string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keys = append(s.keys, key)
	if _, ok := s.pullRequests[key]; !ok {
		s.pullRequests[key] = pullRequest
	}
}

// Dedupe fixes the reachable review set and returns its keys in sorted
// order. Keys added afterwards are ignored by Reachable.
func (s *State) Dedupe() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reachable = make(map[string]struct{}, len(s.keys))
	out := make([]string, 0, len(s.keys))
	for _, k := range s.keys {
		if _, dup := s.reachable[k]; dup {
			continue
		}
		s.reachable[k] = struct{}{}
		out = append(out, k)
	}
	s.keys = nil
	sort.Strings(out)
	return out
}

// Reachable returns the set fixed by Dedupe, or nil before it ran.
func (s *State) Reachable() map[string]struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reachable
}

// PullRequest returns the "owner/repo#number" a review key was found under.
func (s *State) PullRequest(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pullRequests[key]
}

// Missing records a review that could not be found.
func (s *State) Missing(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missing = append(s.missing, MissingReview{Key: key, PullRequest: s.pullRequests[key]})
}

// MissingRepository records a seed repository absent from the source.
func (s *State) MissingRepository(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.missingRepos = append(s.missingRepos, name)
}

func (s *State) count(kind string) {
	s.mu.Lock()
	s.counts[kind]++
	s.mu.Unlock()
}

// Count returns the number of records written for kind.
func (s *State) Count(kind string) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counts[kind]
}
