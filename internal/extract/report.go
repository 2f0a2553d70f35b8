package extract

import (
	"fmt"
	"time"

	humanize "github.com/dustin/go-humanize"

	"github.com/ALT-F4-LLC/revmigrate/internal/ident"
	"github.com/ALT-F4-LLC/revmigrate/internal/render"
	"github.com/ALT-F4-LLC/revmigrate/internal/uploads"
)

// Report is the outcome of an extraction. None of its diagnostic lists
// make the run fail.
type Report struct {
	Counts                map[string]int64 `json:"counts"`
	Records               int64            `json:"records"`
	Reviews               int              `json:"reachable_reviews"`
	Ghosted               []ident.Ghosted  `json:"ghosted"`
	MissingReviews        []MissingReview  `json:"missing_reviews"`
	MissingRepositories   []string         `json:"missing_repositories"`
	UnmappedOrganizations []string         `json:"unmapped_organizations"`
	Downloaded            int              `json:"downloaded"`
	BrokenFiles           []uploads.Broken `json:"broken_files"`
	Elapsed               time.Duration    `json:"elapsed_ns"`
	Output                string           `json:"output,omitempty"`
}

// Summary converts the report for terminal rendering.
func (r *Report) Summary() render.Summary {
	s := render.Summary{Title: "Extraction complete"}
	for _, kind := range kindOrder {
		if n := r.Counts[kind]; n > 0 {
			s.Counts = append(s.Counts, render.Count{Label: kind, N: n})
		}
	}

	ghosted := make([]string, len(r.Ghosted))
	for i, g := range r.Ghosted {
		ghosted[i] = fmt.Sprintf("%s at %s (%d)", g.ID, g.Path, g.Count)
	}
	missing := make([]string, len(r.MissingReviews))
	for i, m := range r.MissingReviews {
		missing[i] = m.Key
		if m.PullRequest != "" {
			missing[i] += " (" + m.PullRequest + ")"
		}
	}
	broken := make([]string, len(r.BrokenFiles))
	for i, b := range r.BrokenFiles {
		broken[i] = b.URL + ": " + b.Err
	}

	s.Sections = []render.Section{
		{Title: "Ghosted users", Items: ghosted},
		{Title: "Missing reviews", Items: missing},
		{Title: "Missing repositories", Items: r.MissingRepositories},
		{Title: "Unmapped organizations", Items: r.UnmappedOrganizations},
		{Title: "Broken files", Items: broken},
	}

	note := fmt.Sprintf("Wrote %s records from %s reachable reviews in %s.",
		humanize.Comma(r.Records), humanize.Comma(int64(r.Reviews)), r.Elapsed.Round(time.Millisecond))
	if r.Output != "" {
		note += " Output: " + r.Output
	}
	s.Notes = append(s.Notes, note)
	if r.Downloaded > 0 {
		s.Notes = append(s.Notes, fmt.Sprintf("Downloaded %s attachments.", humanize.Comma(int64(r.Downloaded))))
	}
	return s
}
