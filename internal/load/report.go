package load

import (
	"fmt"
	"sort"
	"sync"
	"time"

	humanize "github.com/dustin/go-humanize"

	"github.com/ALT-F4-LLC/revmigrate/internal/ident"
	"github.com/ALT-F4-LLC/revmigrate/internal/render"
)

// Report is the outcome of a load.
type Report struct {
	Counts      map[string]int64 `json:"counts"`
	Applied     int64            `json:"applied"`
	Empty       int64            `json:"empty"`
	Skipped     int              `json:"skipped"`
	Resume      int              `json:"resume"`
	SyncJobs    int64            `json:"sync_jobs"`
	ProfileJobs int64            `json:"profile_jobs"`
	Ghosted     []ident.Ghosted  `json:"ghosted"`
	DryRun      bool             `json:"dry_run"`
	Elapsed     time.Duration    `json:"elapsed_ns"`
}

// Summary converts the report for terminal rendering.
func (r *Report) Summary() render.Summary {
	s := render.Summary{Title: "Load complete"}
	if r.DryRun {
		s.Title = "Dry run complete"
	}

	kinds := make([]string, 0, len(r.Counts))
	for k := range r.Counts {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	for _, k := range kinds {
		s.Counts = append(s.Counts, render.Count{Label: k, N: r.Counts[k]})
	}
	if r.SyncJobs > 0 {
		s.Counts = append(s.Counts, render.Count{Label: "pull request sync jobs", N: r.SyncJobs})
	}
	if r.ProfileJobs > 0 {
		s.Counts = append(s.Counts, render.Count{Label: "profile jobs", N: r.ProfileJobs})
	}

	ghosted := make([]string, len(r.Ghosted))
	for i, g := range r.Ghosted {
		ghosted[i] = fmt.Sprintf("%s at %s (%d)", g.ID, g.Path, g.Count)
	}
	s.Sections = []render.Section{{Title: "Ghosted users", Items: ghosted}}

	s.Notes = append(s.Notes, fmt.Sprintf("Applied %s records in %s.",
		humanize.Comma(r.Applied), r.Elapsed.Round(time.Millisecond)))
	if r.Skipped > 0 {
		s.Notes = append(s.Notes, fmt.Sprintf("Skipped the first %s records.", humanize.Comma(int64(r.Skipped))))
	}
	return s
}

// watermark tracks the longest prefix of records, in file order, that have
// all been applied. Records finish out of order under concurrency.
type watermark struct {
	mu      sync.Mutex
	next    int
	pending map[int]bool
}

func newWatermark() *watermark {
	return &watermark{pending: make(map[int]bool)}
}

func (w *watermark) done(seq int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.pending[seq] = true
	for w.pending[w.next] {
		delete(w.pending, w.next)
		w.next++
	}
}

func (w *watermark) contiguous() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.next
}
