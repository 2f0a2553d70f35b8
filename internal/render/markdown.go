package render

import (
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"
)

const (
	defaultWrap = 80
	maxWrap     = 120
)

// ColorsEnabled returns whether terminal colors should be used.
// NO_COLOR (any value) and TERM=dumb turn them off.
func ColorsEnabled() bool {
	if _, ok := os.LookupEnv("NO_COLOR"); ok {
		return false
	}
	return os.Getenv("TERM") != "dumb"
}

// wrapWidth is the stdout terminal width, clamped to maxWrap. Outside a
// terminal it is defaultWrap.
func wrapWidth() int {
	w, _, err := term.GetSize(int(os.Stdout.Fd()))
	if err != nil || w <= 0 {
		return defaultWrap
	}
	return min(w, maxWrap)
}

// RenderMarkdown renders a report for the terminal, wrapping at the
// terminal width. Without colors the markdown is returned as written so
// it can be pasted into an issue or a migration log.
func RenderMarkdown(content string) (string, error) {
	return renderMarkdown(content, wrapWidth())
}

func renderMarkdown(content string, width int) (string, error) {
	if content == "" || !ColorsEnabled() {
		return content, nil
	}

	r, err := glamour.NewTermRenderer(
		glamour.WithEnvironmentConfig(),
		glamour.WithWordWrap(width),
	)
	if err != nil {
		return content, err
	}
	rendered, err := r.Render(content)
	if err != nil {
		return content, err
	}
	return strings.TrimSpace(rendered), nil
}
