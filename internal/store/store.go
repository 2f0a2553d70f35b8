// Package store defines the tree-addressed document store the migration
// reads from and writes to, plus path helpers shared by every backend.
package store

import (
	"context"
	"regexp"
	"strings"

	"github.com/zeebo/errs"

	"github.com/ALT-F4-LLC/revmigrate/internal/tree"
)

// Error is the class of every failure reported by a store backend.
var Error = errs.Class("store")

// TransactionFunc receives the current value at a path (nil when absent)
// and returns the value to store. Returning nil deletes the path. The
// function may be called more than once if the value changes concurrently.
type TransactionFunc func(current tree.Value) (tree.Value, error)

// Store is a hierarchical JSON tree addressed by slash-delimited paths.
// Paths passed to a Store must already be escaped.
type Store interface {
	// Get returns the value at path, or nil with no error when absent.
	Get(ctx context.Context, path string) (tree.Value, error)
	// Set replaces the value at path. A nil value deletes it.
	Set(ctx context.Context, path string, v tree.Value) error
	// Update merges each child of fields into path, leaving siblings alone.
	// Child keys may be nested paths.
	Update(ctx context.Context, path string, fields *tree.Object) error
	// Transaction atomically replaces the value at path with fn(current).
	Transaction(ctx context.Context, path string, fn TransactionFunc) (tree.Value, error)
	Close() error
}

const reserved = `\.$#[]/`

// Escape makes s usable as a single path segment. Each reserved character
// is replaced with a backslash and its two-digit lowercase hex code.
func Escape(s string) string {
	if !strings.ContainsAny(s, reserved) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if strings.IndexByte(reserved, c) >= 0 {
			b.WriteByte('\\')
			b.WriteByte(hexDigits[c>>4])
			b.WriteByte(hexDigits[c&0xf])
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

const hexDigits = "0123456789abcdef"

var escapeSeq = regexp.MustCompile(`\\[0-9a-fA-F]{2}`)

// Unescape reverses Escape.
func Unescape(s string) string {
	if !strings.Contains(s, `\`) {
		return s
	}
	return escapeSeq.ReplaceAllStringFunc(s, func(m string) string {
		return string([]byte{unhex(m[1])<<4 | unhex(m[2])})
	})
}

func unhex(c byte) byte {
	switch {
	case c >= '0' && c <= '9':
		return c - '0'
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10
	default:
		return c - 'A' + 10
	}
}

// Params holds values substituted into path templates.
type Params map[string]string

var placeholder = regexp.MustCompile(`:([A-Za-z_][A-Za-z0-9_]*)`)

// Path expands a template such as "reviews/:reviewKey" by substituting each
// :name with the escaped parameter value. A template naming a parameter that
// is not supplied is an error.
func Path(template string, params Params) (string, error) {
	var missing string
	out := placeholder.ReplaceAllStringFunc(template, func(m string) string {
		name := m[1:]
		v, ok := params[name]
		if !ok {
			if missing == "" {
				missing = name
			}
			return m
		}
		return Escape(v)
	})
	if missing != "" {
		return "", Error.New("path %q: missing parameter %q", template, missing)
	}
	return out, nil
}

// MustPath is Path for templates whose parameters are known to be present.
func MustPath(template string, params Params) string {
	p, err := Path(template, params)
	if err != nil {
		panic(err)
	}
	return p
}

// Join joins already escaped segments, skipping empty ones.
func Join(segments ...string) string {
	parts := segments[:0:0]
	for _, s := range segments {
		s = strings.Trim(s, "/")
		if s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, "/")
}

// Split returns the segments of a path, ignoring leading, trailing and
// doubled slashes.
func Split(path string) []string {
	fields := strings.Split(path, "/")
	out := fields[:0]
	for _, f := range fields {
		if f != "" {
			out = append(out, f)
		}
	}
	return out
}
