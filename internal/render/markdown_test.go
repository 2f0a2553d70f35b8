package render

import (
	"os"
	"strings"
	"testing"
)

func TestRenderMarkdownPlainWithoutColors(t *testing.T) {
	t.Setenv("NO_COLOR", "1")
	in := "# Load complete\n\n| Kind | Count |\n|---|---:|\n| reviews | 3 |"
	got, err := RenderMarkdown(in)
	if err != nil {
		t.Fatalf("RenderMarkdown: %v", err)
	}
	if got != in {
		t.Errorf("RenderMarkdown changed plain output:\n%s", got)
	}
}

func TestRenderMarkdownWraps(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	os.Unsetenv("NO_COLOR")
	t.Setenv("TERM", "xterm-256color")
	t.Setenv("GLAMOUR_STYLE", "notty")
	words := strings.Repeat("ghost ", 40)
	got, err := renderMarkdown(words, 40)
	if err != nil {
		t.Fatalf("renderMarkdown: %v", err)
	}
	lines := strings.Split(got, "\n")
	if len(lines) < 4 {
		t.Errorf("240 columns of text wrapped at 40 gave %d lines, want at least 4", len(lines))
	}
	for _, line := range lines {
		if n := len(strings.TrimSpace(line)); n > 40 {
			t.Errorf("line is %d columns wide, want at most 40: %q", n, line)
		}
	}
	if !strings.Contains(got, "ghost") {
		t.Errorf("rendered output lost its text: %q", got)
	}
}

func TestColorsEnabled(t *testing.T) {
	t.Setenv("NO_COLOR", "")
	os.Unsetenv("NO_COLOR")
	t.Setenv("TERM", "dumb")
	if ColorsEnabled() {
		t.Error("ColorsEnabled() = true with TERM=dumb")
	}
	t.Setenv("TERM", "xterm")
	if !ColorsEnabled() {
		t.Error("ColorsEnabled() = false with TERM=xterm")
	}
}
