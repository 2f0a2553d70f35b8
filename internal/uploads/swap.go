// Package uploads handles links to uploaded attachments inside comment
// bodies. Extraction swaps the source uploads URL for a placeholder and
// optionally downloads each file; loading swaps in the destination URL.
package uploads

import (
	"regexp"
	"strings"
)

// Placeholder stands in for the uploads base URL inside record files.
const Placeholder = "{{REVMIGRATE_UPLOADS}}/"

// Scheduler accepts attachment URLs for download.
type Scheduler interface {
	Schedule(url string)
}

// Swapper replaces the uploads base URL in comment bodies.
type Swapper struct {
	base  string
	links *regexp.Regexp
	sched Scheduler
}

// NewSwapper returns a Swapper for baseURL, or nil when baseURL is empty.
// sched may be nil.
func NewSwapper(baseURL string, sched Scheduler) *Swapper {
	base := normalize(baseURL)
	if base == "" {
		return nil
	}
	return &Swapper{
		base:  base,
		links: regexp.MustCompile(regexp.QuoteMeta(base) + `[^\s()<>"'\]\[]+`),
		sched: sched,
	}
}

// Swap replaces every uploads link in body with the placeholder form and
// schedules each link for download. It reports whether body changed.
func (s *Swapper) Swap(body string) (string, bool) {
	if s == nil || !strings.Contains(body, s.base) {
		return body, false
	}
	out := s.links.ReplaceAllStringFunc(body, func(link string) string {
		if s.sched != nil {
			s.sched.Schedule(link)
		}
		return Placeholder + strings.TrimPrefix(link, s.base)
	})
	return out, out != body
}

// Restore replaces the placeholder with baseURL. It reports whether body
// changed.
func Restore(body, baseURL string) (string, bool) {
	if !strings.Contains(body, Placeholder) {
		return body, false
	}
	return strings.ReplaceAll(body, Placeholder, normalize(baseURL)), true
}

func normalize(baseURL string) string {
	baseURL = strings.TrimSpace(baseURL)
	if baseURL == "" {
		return ""
	}
	return strings.TrimRight(baseURL, "/") + "/"
}
