package render

import (
	"bytes"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	mdhtml "github.com/yuin/goldmark/renderer/html"
)

// HTMLRenderer converts comment markdown into sanitized HTML.
type HTMLRenderer interface {
	HTML(markdown string) (string, error)
}

type htmlRenderer struct {
	md     goldmark.Markdown
	policy *bluemonday.Policy
}

// NewHTMLRenderer returns the renderer used to rebuild comment HTML bodies.
func NewHTMLRenderer() HTMLRenderer {
	return &htmlRenderer{
		md: goldmark.New(
			goldmark.WithExtensions(extension.GFM, extension.Linkify, extension.Strikethrough),
			goldmark.WithRendererOptions(mdhtml.WithUnsafe()),
		),
		policy: bluemonday.UGCPolicy(),
	}
}

func (r *htmlRenderer) HTML(markdown string) (string, error) {
	if strings.TrimSpace(markdown) == "" {
		return "", nil
	}
	var buf bytes.Buffer
	if err := r.md.Convert([]byte(markdown), &buf); err != nil {
		return "", err
	}
	return string(r.policy.SanitizeBytes(buf.Bytes())), nil
}
