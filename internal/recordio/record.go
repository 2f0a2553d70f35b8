// Package recordio reads and writes extraction record files.
//
// A record file is UTF-8 text with one JSON array per line: either
// [key, value] or [key, value, flags]. Lines are independent, so a file can
// be produced and consumed incrementally and resumed by line count.
package recordio

import (
	"github.com/zeebo/errs"

	"github.com/ALT-F4-LLC/revmigrate/internal/tree"
)

// ErrMalformed is returned for a line that is not a valid record.
var ErrMalformed = errs.Class("malformed record")

// Known flag names.
const (
	FlagPullRequest  = "pullRequest"
	FlagPlaceholders = "placeholders"
)

// Record is one line of a record file.
type Record struct {
	Key   string
	Value tree.Value
	Flags *tree.Object
}

// Flag returns the named flag, or nil.
func (r Record) Flag(name string) tree.Value {
	v, _ := r.Flags.Get(name)
	return v
}

// HasFlag reports whether the named flag is set to true.
func (r Record) HasFlag(name string) bool {
	b, ok := r.Flag(name).(tree.Bool)
	return ok && bool(b)
}

// SetFlag sets a flag, allocating the flags object on first use.
func (r *Record) SetFlag(name string, v tree.Value) {
	if r.Flags == nil {
		r.Flags = tree.NewObject()
	}
	r.Flags.Set(name, v)
}

// marshal encodes the record as a single line without the trailing newline.
func (r Record) marshal() ([]byte, error) {
	line := tree.List{tree.String(r.Key), r.Value}
	if r.Flags.Len() > 0 {
		line = append(line, r.Flags)
	}
	return tree.Marshal(line)
}

// unmarshal decodes one line.
func unmarshal(line []byte) (Record, error) {
	v, err := tree.Parse(line)
	if err != nil {
		return Record{}, err
	}
	list, ok := v.(tree.List)
	if !ok {
		return Record{}, errs.New("record is %T, want array", v)
	}
	if len(list) != 2 && len(list) != 3 {
		return Record{}, errs.New("record has %d elements, want 2 or 3", len(list))
	}
	key, ok := tree.AsString(list[0])
	if !ok || key == "" {
		return Record{}, errs.New("record key must be a non-empty string")
	}

	rec := Record{Key: key, Value: list[1]}
	if len(list) == 3 && list[2] != nil {
		flags, ok := tree.AsObject(list[2])
		if !ok {
			return Record{}, errs.New("record flags are %T, want object", list[2])
		}
		rec.Flags = flags
	}
	return rec, nil
}
