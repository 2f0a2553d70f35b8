// Package tree models the JSON documents held in the backing store.
//
// A Value is one of nil (JSON null), Bool, Number, String, List or *Object.
// Objects keep their keys in insertion order so records written by the
// extractor are stable across runs.
package tree

import "strings"

// Value is a JSON value. The nil Value is JSON null.
type Value interface {
	isValue()
}

// Bool is a JSON boolean.
type Bool bool

// Number is a JSON number kept as its literal text so large integers and
// decimals survive a round trip unchanged.
type Number string

// String is a JSON string.
type String string

// List is a JSON array.
type List []Value

// Object is a JSON object with ordered keys.
type Object struct {
	keys   []string
	fields map[string]Value
}

func (Bool) isValue()    {}
func (Number) isValue()  {}
func (String) isValue()  {}
func (List) isValue()    {}
func (*Object) isValue() {}

// NewObject returns an empty object.
func NewObject() *Object {
	return &Object{fields: make(map[string]Value)}
}

// Len returns the number of fields.
func (o *Object) Len() int {
	if o == nil {
		return 0
	}
	return len(o.keys)
}

// Keys returns a copy of the field names in order.
func (o *Object) Keys() []string {
	if o == nil {
		return nil
	}
	keys := make([]string, len(o.keys))
	copy(keys, o.keys)
	return keys
}

// Get returns the field named key.
func (o *Object) Get(key string) (Value, bool) {
	if o == nil {
		return nil, false
	}
	v, ok := o.fields[key]
	return v, ok
}

// Set stores v under key. New keys are appended; existing keys keep their
// position.
func (o *Object) Set(key string, v Value) {
	if o.fields == nil {
		o.fields = make(map[string]Value)
	}
	if _, ok := o.fields[key]; !ok {
		o.keys = append(o.keys, key)
	}
	o.fields[key] = v
}

// Delete removes key if present.
func (o *Object) Delete(key string) {
	if o == nil {
		return
	}
	if _, ok := o.fields[key]; !ok {
		return
	}
	delete(o.fields, key)
	for i, k := range o.keys {
		if k == key {
			o.keys = append(o.keys[:i], o.keys[i+1:]...)
			break
		}
	}
}

// AsObject returns v as an object.
func AsObject(v Value) (*Object, bool) {
	o, ok := v.(*Object)
	return o, ok && o != nil
}

// AsString returns v as a Go string.
func AsString(v Value) (string, bool) {
	s, ok := v.(String)
	return string(s), ok
}

// IsEmpty reports whether v is null or an object without fields. Such values
// are never written to a record file or the destination store.
func IsEmpty(v Value) bool {
	if v == nil {
		return true
	}
	if o, ok := v.(*Object); ok {
		return o.Len() == 0
	}
	return false
}

// Lookup walks nested objects along a slash-delimited path and returns the
// value found there, or nil.
func Lookup(v Value, path string) Value {
	for _, seg := range splitPath(path) {
		o, ok := AsObject(v)
		if !ok {
			return nil
		}
		v, _ = o.Get(seg)
	}
	return v
}

// DeletePath removes the value at a slash-delimited path below v. Parents
// left empty by the removal are not pruned; use Prune for that.
func DeletePath(v Value, path string) {
	segs := splitPath(path)
	if len(segs) == 0 {
		return
	}
	parent := Lookup(v, strings.Join(segs[:len(segs)-1], "/"))
	if o, ok := AsObject(parent); ok {
		o.Delete(segs[len(segs)-1])
	}
}

// Prune removes every object that is empty, recursively, and returns the
// pruned value. An empty result is returned as nil.
func Prune(v Value) Value {
	switch t := v.(type) {
	case *Object:
		if t == nil {
			return nil
		}
		for _, k := range t.Keys() {
			child, _ := t.Get(k)
			pruned := Prune(child)
			if pruned == nil {
				t.Delete(k)
				continue
			}
			t.Set(k, pruned)
		}
		if t.Len() == 0 {
			return nil
		}
		return t
	case List:
		out := t[:0]
		for _, item := range t {
			if item = Prune(item); item != nil {
				out = append(out, item)
			}
		}
		return out
	default:
		return v
	}
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}
