package filter

import (
	"regexp"
	"testing"

	"github.com/ALT-F4-LLC/revmigrate/internal/tree"
)

func TestRetainKeys(t *testing.T) {
	obj := tree.MustParse(`{"r1":1,"r2":2,"r3":3}`).(*tree.Object)
	removed := RetainKeys(obj, map[string]struct{}{"r1": {}, "r3": {}, "r9": {}})
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	if got := obj.Keys(); len(got) != 2 || got[0] != "r1" || got[1] != "r3" {
		t.Errorf("keys = %v, want [r1 r3]", got)
	}

	RetainKeys(obj, nil)
	if obj.Len() != 0 {
		t.Errorf("RetainKeys(nil) left %d keys", obj.Len())
	}
}

func TestDropMatchingKeys(t *testing.T) {
	obj := tree.MustParse(`{"gh-1":{},"c1":{},"gh-2":{}}`).(*tree.Object)
	if removed := DropMatchingKeys(obj, regexp.MustCompile(`^gh-`)); removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if _, ok := obj.Get("c1"); !ok || obj.Len() != 1 {
		t.Errorf("keys = %v, want [c1]", obj.Keys())
	}
}

func TestKeepIf(t *testing.T) {
	obj := tree.MustParse(`{"a":true,"b":false}`).(*tree.Object)
	KeepIf(obj, func(_ string, v tree.Value) bool { return v == tree.Bool(true) })
	_, hasA := obj.Get("a")
	_, hasB := obj.Get("b")
	if hasB || !hasA {
		t.Errorf("keys = %v, want [a]", obj.Keys())
	}
}
