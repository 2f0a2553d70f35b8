package render

import (
	"fmt"
	"strings"
	"unicode/utf8"

	humanize "github.com/dustin/go-humanize"

	"github.com/charmbracelet/lipgloss"
)

const maxItemWidth = 100

// maxItems caps how many entries of one diagnostic list are printed.
const maxItems = 50

// Count is one labelled number in a summary.
type Count struct {
	Label string
	N     int64
}

// Section is a titled diagnostic list.
type Section struct {
	Title string
	Items []string
}

// Summary is the end-of-run report shown to the operator.
type Summary struct {
	Title    string
	Counts   []Count
	Sections []Section
	Notes    []string
}

// StyledText applies a lipgloss style to text when colors are enabled.
// When colors are disabled, it returns the plain text unchanged.
func StyledText(text string, style lipgloss.Style) string {
	if ColorsEnabled() {
		return style.Render(text)
	}
	return text
}

// truncate shortens a string to maxLen runes, appending an ellipsis if truncated.
func truncate(s string, maxLen int) string {
	if utf8.RuneCountInString(s) <= maxLen {
		return s
	}
	runes := []rune(s)
	if maxLen <= 3 {
		return string(runes[:maxLen])
	}
	return string(runes[:maxLen-3]) + "..."
}

// emptyState renders message dimmed when colors are enabled.
func emptyState(message string) string {
	return StyledText(message, lipgloss.NewStyle().Foreground(lipgloss.Color("8")))
}

// Markdown formats the summary as a Markdown document. Empty sections are
// left out.
func (s Summary) Markdown() string {
	var b strings.Builder
	if s.Title != "" {
		fmt.Fprintf(&b, "# %s\n\n", s.Title)
	}

	if len(s.Counts) > 0 {
		b.WriteString("| Kind | Count |\n|---|---:|\n")
		for _, c := range s.Counts {
			fmt.Fprintf(&b, "| %s | %s |\n", c.Label, humanize.Comma(c.N))
		}
		b.WriteString("\n")
	}

	for _, sec := range s.Sections {
		if len(sec.Items) == 0 {
			continue
		}
		fmt.Fprintf(&b, "## %s (%s)\n\n", sec.Title, humanize.Comma(int64(len(sec.Items))))
		for i, item := range sec.Items {
			if i == maxItems {
				fmt.Fprintf(&b, "- ... and %s more\n", humanize.Comma(int64(len(sec.Items)-maxItems)))
				break
			}
			fmt.Fprintf(&b, "- `%s`\n", strings.ReplaceAll(truncate(item, maxItemWidth), "`", "'"))
		}
		b.WriteString("\n")
	}

	for _, n := range s.Notes {
		fmt.Fprintf(&b, "%s\n\n", n)
	}
	return strings.TrimSpace(b.String())
}

// RenderSummary renders the summary for the terminal.
func RenderSummary(s Summary) (string, error) {
	md := s.Markdown()
	if md == "" {
		return emptyState("Nothing to report."), nil
	}
	return RenderMarkdown(md)
}
