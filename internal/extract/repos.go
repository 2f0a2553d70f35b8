package extract

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// LoadRepos reads the seed list: a JSON array of "owner/repo" names. Names
// are lowercased and duplicates removed.
func LoadRepos(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading repository list: %w", err)
	}
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return nil, fmt.Errorf("parsing repository list %s: %w", path, err)
	}

	var bad []string
	seen := make(map[string]bool, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		owner, repo, ok := strings.Cut(n, "/")
		if !ok || owner == "" || repo == "" || strings.Contains(repo, "/") {
			bad = append(bad, fmt.Sprintf("%q", n))
			continue
		}
		if !seen[n] {
			seen[n] = true
			out = append(out, n)
		}
	}
	if len(bad) > 0 {
		sort.Strings(bad)
		return nil, fmt.Errorf("repository list %s: not owner/repo: %s", path, strings.Join(bad, ", "))
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("repository list %s is empty", path)
	}
	return out, nil
}
