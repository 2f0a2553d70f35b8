package render

import (
	"strings"
	"testing"
)

func TestHTMLRenderer(t *testing.T) {
	r := NewHTMLRenderer()

	tests := []struct {
		name     string
		input    string
		contains []string
		excludes []string
	}{
		{
			name:     "empty",
			input:    "  ",
			contains: nil,
		},
		{
			name:     "emphasis and image",
			input:    "**bold** ![shot](https://files.example.com/a.png)",
			contains: []string{"<strong>bold</strong>", `src="https://files.example.com/a.png"`},
		},
		{
			name:     "script stripped",
			input:    "hi <script>alert(1)</script>",
			contains: []string{"hi"},
			excludes: []string{"<script>"},
		},
		{
			name:     "autolink",
			input:    "see https://example.com/x",
			contains: []string{`href="https://example.com/x"`},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := r.HTML(tt.input)
			if err != nil {
				t.Fatalf("HTML failed: %v", err)
			}
			if tt.contains == nil && got != "" {
				t.Errorf("HTML(%q) = %q, want empty", tt.input, got)
			}
			for _, s := range tt.contains {
				if !strings.Contains(got, s) {
					t.Errorf("HTML(%q) = %q, missing %q", tt.input, got, s)
				}
			}
			for _, s := range tt.excludes {
				if strings.Contains(got, s) {
					t.Errorf("HTML(%q) = %q, should not contain %q", tt.input, got, s)
				}
			}
		})
	}
}
