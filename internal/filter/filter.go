package filter

import (
	"regexp"

	"github.com/ALT-F4-LLC/revmigrate/internal/tree"
)

// RetainKeys removes every field of obj whose key is not in keep and returns
// the number of fields removed. A nil keep set removes everything.
func RetainKeys(obj *tree.Object, keep map[string]struct{}) int {
	removed := 0
	for _, k := range obj.Keys() {
		if _, ok := keep[k]; !ok {
			obj.Delete(k)
			removed++
		}
	}
	return removed
}

// DropMatchingKeys removes every field of obj whose key matches re and
// returns the number of fields removed.
func DropMatchingKeys(obj *tree.Object, re *regexp.Regexp) int {
	removed := 0
	for _, k := range obj.Keys() {
		if re.MatchString(k) {
			obj.Delete(k)
			removed++
		}
	}
	return removed
}

// KeepIf removes every field of obj for which keep returns false.
func KeepIf(obj *tree.Object, keep func(key string, v tree.Value) bool) int {
	removed := 0
	for _, k := range obj.Keys() {
		v, _ := obj.Get(k)
		if !keep(k, v) {
			obj.Delete(k)
			removed++
		}
	}
	return removed
}
