// Package rewrite replaces user identifiers embedded anywhere in a JSON
// tree: scalar strings, comma-joined lists, "a|b|github:N" composite keys and
// object keys.
package rewrite

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/ALT-F4-LLC/revmigrate/internal/tree"
)

// KeyMarker is appended to the path when a map key, rather than its value,
// is being rewritten.
const KeyMarker = "$key"

// MapFunc resolves one identifier found at a slash-delimited path.
type MapFunc func(id, path string) (string, error)

var (
	idPattern        = regexp.MustCompile(`^github:\d+$`)
	idListPattern    = regexp.MustCompile(`^github:\d+(,github:\d+)+$`)
	compositePattern = regexp.MustCompile(`^(.*\|)(github:\d+)$`)
)

// Rewrite walks v and maps every identifier through fn, each key and value
// exactly once. Objects are rebuilt rather than edited, so a key renamed to
// the name of a sibling never clobbers it. Any object left empty by the
// rewrite is removed from its parent; an empty top-level object is returned
// as-is so callers can decide whether to skip it.
func Rewrite(v tree.Value, path string, fn MapFunc) (tree.Value, error) {
	switch t := v.(type) {
	case tree.String:
		s, err := rewriteString(string(t), path, fn)
		if err != nil {
			return nil, err
		}
		return tree.String(s), nil
	case tree.List:
		out := make(tree.List, 0, len(t))
		for i, item := range t {
			nv, err := Rewrite(item, join(path, strconv.Itoa(i)), fn)
			if err != nil {
				return nil, err
			}
			if isEmptyObject(nv) {
				continue
			}
			out = append(out, nv)
		}
		return out, nil
	case *tree.Object:
		if t == nil {
			return nil, nil
		}
		out := tree.NewObject()
		for _, key := range t.Keys() {
			child, _ := t.Get(key)
			nv, err := Rewrite(child, join(path, key), fn)
			if err != nil {
				return nil, err
			}
			nk, err := rewriteString(key, join(path, KeyMarker), fn)
			if err != nil {
				return nil, err
			}
			if isEmptyObject(nv) {
				continue
			}
			out.Set(nk, nv)
		}
		return out, nil
	default:
		return v, nil
	}
}

func rewriteString(s, path string, fn MapFunc) (string, error) {
	switch {
	case idPattern.MatchString(s):
		return fn(s, path)
	case idListPattern.MatchString(s):
		parts := strings.Split(s, ",")
		seen := make(map[string]bool, len(parts))
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			id, err := fn(p, path)
			if err != nil {
				return "", err
			}
			if seen[id] {
				continue
			}
			seen[id] = true
			out = append(out, id)
		}
		return strings.Join(out, ","), nil
	case compositePattern.MatchString(s):
		m := compositePattern.FindStringSubmatch(s)
		id, err := fn(m[2], path)
		if err != nil {
			return "", err
		}
		return m[1] + id, nil
	default:
		return s, nil
	}
}

func isEmptyObject(v tree.Value) bool {
	o, ok := v.(*tree.Object)
	return ok && o.Len() == 0
}

func join(path, seg string) string {
	if path == "" {
		return seg
	}
	return path + "/" + seg
}
