// Package sanitize strips destination-local and internal fields from each
// entity kind before it is written to a record file.
//
// Every method takes ownership of the value it is given, edits it in place,
// and returns the pruned result. A nil result means nothing is left to write.
package sanitize

import (
	"strings"

	"github.com/zeebo/errs"

	"github.com/ALT-F4-LLC/revmigrate/internal/archive"
	"github.com/ALT-F4-LLC/revmigrate/internal/filter"
	"github.com/ALT-F4-LLC/revmigrate/internal/tree"
)

// Error is the class of sanitization failures.
var Error = errs.Class("sanitize")

// Sentinel values the system entity must hold.
const (
	StarSentinel = "*"
	BangSentinel = "!"
)

// SystemFields are the system fields carried across.
var SystemFields = []string{"oldestUsedClientVersion", "oldestUsedServerVersion"}

// IdentifierLookup reports whether an identifier has a mapping.
type IdentifierLookup interface {
	Lookup(id string) (string, bool)
}

// OrgMap renames organizations.
type OrgMap interface {
	Map(org string) string
	MapRepo(fullName string) string
}

// AttachmentSwapper replaces attachment URLs in comment bodies.
type AttachmentSwapper interface {
	Swap(body string) (string, bool)
}

// Sanitizer applies Rules to fetched entities.
type Sanitizer struct {
	rules   *Rules
	ids     IdentifierLookup
	orgs    OrgMap
	uploads AttachmentSwapper
}

// New returns a Sanitizer. swapper may be nil when no uploads URL is
// configured.
func New(rules *Rules, ids IdentifierLookup, orgs OrgMap, swapper AttachmentSwapper) *Sanitizer {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Sanitizer{rules: rules, ids: ids, orgs: orgs, uploads: swapper}
}

// System checks the sentinel fields and returns the carried fields by name.
func (s *Sanitizer) System(v tree.Value) (map[string]tree.Value, error) {
	obj, ok := tree.AsObject(v)
	if !ok {
		return nil, Error.New("system entity is missing")
	}
	if star, _ := tree.AsString(field(obj, "star")); star != StarSentinel {
		return nil, Error.New("system/star is %q, want %q: source store is misconfigured", star, StarSentinel)
	}
	if bang, _ := tree.AsString(field(obj, "bang")); bang != BangSentinel {
		return nil, Error.New("system/bang is %q, want %q: source store is misconfigured", bang, BangSentinel)
	}

	out := make(map[string]tree.Value, len(SystemFields))
	for _, name := range SystemFields {
		if fv := field(obj, name); fv != nil {
			out[name] = fv
		}
	}
	return out, nil
}

// Organization sanitizes an organization entity.
func (s *Sanitizer) Organization(v tree.Value) tree.Value {
	drop(v, s.rules.Organization.Drop)
	return tree.Prune(v)
}

// Repository sanitizes a repository entity.
func (s *Sanitizer) Repository(v tree.Value) tree.Value {
	drop(v, s.rules.Repository.Drop)
	return tree.Prune(v)
}

// Review sanitizes a live review. placeholders reports whether any comment
// body had attachment URLs swapped out.
func (s *Sanitizer) Review(v tree.Value) (out tree.Value, placeholders bool) {
	obj, ok := tree.AsObject(v)
	if !ok {
		return tree.Prune(v), false
	}
	r := s.rules.Review
	drop(obj, r.Drop)

	if owner, ok := tree.AsString(tree.Lookup(obj, "core/ownerName")); ok && s.orgs != nil {
		if core, ok := tree.AsObject(field(obj, "core")); ok {
			core.Set("ownerName", tree.String(s.orgs.Map(owner)))
		}
	}

	for _, container := range r.CommentContainers {
		discussions, ok := tree.AsObject(field(obj, container))
		if !ok {
			continue
		}
		for _, d := range discussions.Keys() {
			// Only discussions whose comments were all filtered out are dropped.
			comments, ok := tree.AsObject(tree.Lookup(discussions, d+"/comments"))
			if !ok {
				continue
			}
			filter.DropMatchingKeys(comments, r.integration)
			if comments.Len() == 0 {
				discussions.Delete(d)
				continue
			}
			if s.swapBodies(comments) {
				placeholders = true
			}
		}
		if discussions.Len() == 0 {
			obj.Delete(container)
		}
	}

	if participants, ok := tree.AsObject(tree.Lookup(obj, r.Participants)); ok {
		filter.KeepIf(participants, func(userID string, p tree.Value) bool {
			if !mentionOnly(p, r.MentionRole) {
				return true
			}
			if s.ids == nil {
				return false
			}
			_, mapped := s.ids.Lookup(userID)
			return mapped
		})
	}

	return tree.Prune(obj), placeholders
}

// swapBodies replaces attachment URLs in every comment body. A comment whose
// body changed loses its rendered HTML, which the loader rebuilds.
func (s *Sanitizer) swapBodies(comments *tree.Object) bool {
	if s.uploads == nil {
		return false
	}
	swapped := false
	for _, c := range comments.Keys() {
		comment, ok := tree.AsObject(field(comments, c))
		if !ok {
			continue
		}
		body, ok := tree.AsString(field(comment, "body"))
		if !ok {
			continue
		}
		if next, changed := s.uploads.Swap(body); changed {
			comment.Set("body", tree.String(next))
			comment.Delete("htmlBody")
			swapped = true
		}
	}
	return swapped
}

// mentionOnly reports whether a participant entry exists only because the
// user was mentioned.
func mentionOnly(p tree.Value, mentionRole string) bool {
	obj, ok := tree.AsObject(p)
	if !ok {
		return false
	}
	mentioned := false
	for _, k := range obj.Keys() {
		b, isBool := field(obj, k).(tree.Bool)
		if !isBool || !bool(b) {
			continue
		}
		if k != mentionRole {
			return false
		}
		mentioned = true
	}
	return mentioned
}

// User sanitizes a user entity. state is restricted to reviews, and extra
// mentions to the selected repositories. Both sets hold source names.
func (s *Sanitizer) User(v tree.Value, reviews, repos map[string]struct{}) tree.Value {
	obj, ok := tree.AsObject(v)
	if !ok {
		return tree.Prune(v)
	}
	r := s.rules.User
	drop(obj, r.Drop)

	if state, ok := tree.AsObject(tree.Lookup(obj, r.State)); ok {
		filter.RetainKeys(state, reviews)
	}

	if mentions, ok := tree.AsObject(tree.Lookup(obj, r.ExtraMentions)); ok {
		filter.KeepIf(mentions, func(_ string, m tree.Value) bool {
			repo, ok := tree.AsString(tree.Lookup(m, "repository"))
			if !ok {
				return false
			}
			if _, selected := repos[strings.ToLower(repo)]; !selected {
				return false
			}
			if s.orgs != nil {
				if mo, ok := tree.AsObject(m); ok {
					mo.Set("repository", tree.String(s.orgs.MapRepo(repo)))
				}
			}
			return true
		})
	}

	return tree.Prune(obj)
}

func drop(v tree.Value, paths []string) {
	for _, p := range paths {
		tree.DeletePath(v, p)
	}
}

func field(o *tree.Object, key string) tree.Value {
	v, _ := o.Get(key)
	return v
}

// ArchivedReview decodes an archived review, sanitizes it like a live one,
// passes it through then when non-nil, and encodes it again.
func (s *Sanitizer) ArchivedReview(v tree.Value, then func(tree.Value) (tree.Value, error)) (out tree.Value, placeholders bool, err error) {
	review, err := archive.Unwrap(v)
	if err != nil {
		return nil, false, err
	}
	review, placeholders = s.Review(review)
	if then != nil && review != nil {
		if review, err = then(review); err != nil {
			return nil, false, err
		}
	}
	out, err = archive.Wrap(review)
	if err != nil {
		return nil, false, err
	}
	return out, placeholders, nil
}
