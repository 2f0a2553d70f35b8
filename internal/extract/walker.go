// Package extract walks the source store outward from a list of seed
// repositories and writes every reachable entity to a record file.
//
// The walk runs in fixed phases. Each phase fans out over its items, and a
// phase starts only after the previous one has finished, because later
// phases read the review set gathered by earlier ones.
package extract

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ALT-F4-LLC/revmigrate/internal/fanout"
	"github.com/ALT-F4-LLC/revmigrate/internal/ident"
	"github.com/ALT-F4-LLC/revmigrate/internal/recordio"
	"github.com/ALT-F4-LLC/revmigrate/internal/rewrite"
	"github.com/ALT-F4-LLC/revmigrate/internal/sanitize"
	"github.com/ALT-F4-LLC/revmigrate/internal/store"
	"github.com/ALT-F4-LLC/revmigrate/internal/telemetry"
	"github.com/ALT-F4-LLC/revmigrate/internal/tree"
)

// Store path templates.
const (
	systemPath         = "system"
	organizationPath   = "organizations/:org"
	repositoryPath     = "repositories/:owner/:repo"
	rulePath           = "rules/:owner/:repo"
	reviewPath         = "reviews/:key"
	archivedReviewPath = "archivedReviews/:key"
	userPath           = "users/:id"
	requestPath        = "queues/requests/:id"
)

// Progress receives one Increment per finished item. A walker adds each
// phase's item count with AddTotal before starting it, except for users in
// identity mode, whose count grows as identifiers are discovered.
type Progress interface {
	Increment()
	AddTotal(n int64)
}

type noProgress struct{}

func (noProgress) Increment()     {}
func (noProgress) AddTotal(int64) {}

// Options configures a Walker.
type Options struct {
	// Repos are the seed repositories as lowercase "owner/repo" names.
	Repos []string
	// Concurrency caps in-flight store reads per phase.
	Concurrency int
	Progress    Progress
	Log         *zap.Logger
	// NewID names queue entries. Defaults to random UUIDs.
	NewID func() string
}

// Walker extracts the entities reachable from a set of repositories.
type Walker struct {
	src   store.Store
	out   *recordio.Writer
	ids   *ident.Mapper
	orgs  *ident.OrgMapper
	san   *sanitize.Sanitizer
	state *State

	repos    []string
	selected map[string]struct{}
	limit    int
	progress Progress
	log      *zap.Logger
	newID    func() string
}

// New returns a Walker reading from src and writing to out.
func New(src store.Store, out *recordio.Writer, ids *ident.Mapper, orgs *ident.OrgMapper, san *sanitize.Sanitizer, opts Options) *Walker {
	w := &Walker{
		src:      src,
		out:      out,
		ids:      ids,
		orgs:     orgs,
		san:      san,
		state:    NewState(),
		selected: make(map[string]struct{}, len(opts.Repos)),
		limit:    opts.Concurrency,
		progress: opts.Progress,
		log:      opts.Log,
		newID:    opts.NewID,
	}
	for _, r := range opts.Repos {
		r = strings.ToLower(strings.TrimSpace(r))
		if _, dup := w.selected[r]; dup || r == "" {
			continue
		}
		w.selected[r] = struct{}{}
		w.repos = append(w.repos, r)
	}
	if w.progress == nil {
		w.progress = noProgress{}
	}
	if w.log == nil {
		w.log = zap.NewNop()
	}
	w.log = w.log.Named("extract")
	if w.newID == nil {
		w.newID = uuid.NewString
	}
	return w
}

// State returns the walker's bookkeeping.
func (w *Walker) State() *State { return w.state }

// Run executes every phase in order and returns the report. The first
// fatal error stops the walk once in-flight reads finish; the report then
// covers what was written before it.
func (w *Walker) Run(ctx context.Context) (*Report, error) {
	start := time.Now()
	ctx, span := telemetry.Start(ctx, "extract", attribute.Int("extract.repos", len(w.repos)))

	phases := []struct {
		name string
		run  func(context.Context) error
	}{
		{"system", w.system},
		{"organizations", w.organizations},
		{"repositories", w.repositories},
		{"rules", w.rules},
		{"reviews", w.reviews},
		{"maps", w.maps},
		{"users", w.users},
	}
	for _, p := range phases {
		pctx, pspan := telemetry.Start(ctx, "extract."+p.name)
		w.log.Debug("phase started", zap.String("phase", p.name))
		err := p.run(pctx)
		telemetry.End(pspan, err)
		if err != nil {
			telemetry.End(span, err)
			return w.report(time.Since(start)), fmt.Errorf("extracting %s: %w", p.name, err)
		}
	}
	telemetry.End(span, nil)

	return w.report(time.Since(start)), nil
}

func (w *Walker) report(elapsed time.Duration) *Report {
	w.state.mu.Lock()
	counts := make(map[string]int64, len(w.state.counts))
	for k, n := range w.state.counts {
		counts[k] = n
	}
	missing := append([]MissingReview(nil), w.state.missing...)
	missingRepos := append([]string(nil), w.state.missingRepos...)
	reviews := len(w.state.reachable)
	w.state.mu.Unlock()

	sort.Slice(missing, func(i, j int) bool { return missing[i].Key < missing[j].Key })
	sort.Strings(missingRepos)

	return &Report{
		Counts:                counts,
		Records:               w.out.Written(),
		Reviews:               reviews,
		Ghosted:               w.ids.Ghosted(),
		MissingReviews:        missing,
		MissingRepositories:   missingRepos,
		UnmappedOrganizations: w.orgs.Unmapped(),
		Elapsed:               elapsed,
	}
}

func (w *Walker) system(ctx context.Context) error {
	v, err := w.src.Get(ctx, systemPath)
	if err != nil {
		return err
	}
	fields, err := w.san.System(v)
	if err != nil {
		return err
	}
	for _, name := range sanitize.SystemFields {
		if fv, ok := fields[name]; ok {
			if err := w.emit(KindSystem, store.Join(systemPath, name), fv, nil); err != nil {
				return err
			}
		}
	}
	return nil
}

func (w *Walker) organizations(ctx context.Context) error {
	var orgs []string
	seen := make(map[string]bool)
	for _, r := range w.repos {
		owner, _, _ := strings.Cut(r, "/")
		if !seen[owner] {
			seen[owner] = true
			orgs = append(orgs, owner)
		}
	}

	return run(ctx, w, orgs, func(ctx context.Context, org string) error {
		v, err := w.src.Get(ctx, store.MustPath(organizationPath, store.Params{"org": org}))
		if err != nil {
			return err
		}
		if v == nil {
			w.log.Warn("organization not found", zap.String("org", org))
			return nil
		}

		mapped := w.orgs.Map(org)
		if autoSync, _ := tree.Lookup(v, "core/autoSync").(tree.Bool); autoSync {
			job := tree.NewObject()
			job.Set("action", tree.String("syncOrganization"))
			job.Set("owner", tree.String(mapped))
			if err := w.emit(KindQueues, store.MustPath(requestPath, store.Params{"id": w.newID()}), job, nil); err != nil {
				return err
			}
		}
		return w.emit(KindOrganizations, store.MustPath(organizationPath, store.Params{"org": mapped}), w.san.Organization(v), nil)
	})
}

func (w *Walker) repositories(ctx context.Context) error {
	return run(ctx, w, w.repos, func(ctx context.Context, name string) error {
		v, err := w.src.Get(ctx, repoPath(repositoryPath, name))
		if err != nil {
			return err
		}
		if v == nil {
			w.log.Warn("repository not found", zap.String("repo", name))
			w.state.MissingRepository(name)
			return nil
		}

		mapped := w.orgs.MapRepo(name)
		for _, field := range []string{"pullRequests", "oldPullRequests"} {
			prs, ok := tree.AsObject(tree.Lookup(v, field))
			if !ok {
				continue
			}
			for _, number := range prs.Keys() {
				pv, _ := prs.Get(number)
				if key, ok := tree.AsString(pv); ok && key != "" {
					w.state.AddReview(key, mapped+"#"+number)
				}
			}
		}
		return w.emit(KindRepositories, repoPath(repositoryPath, mapped), w.san.Repository(v), nil)
	})
}

// rules writes a record for every seed repository, with a null value when
// the repository has no rule.
func (w *Walker) rules(ctx context.Context) error {
	return run(ctx, w, w.repos, func(ctx context.Context, name string) error {
		v, err := w.src.Get(ctx, repoPath(rulePath, name))
		if err != nil {
			return err
		}
		key := repoPath(rulePath, w.orgs.MapRepo(name))
		if v != nil {
			if v, err = rewrite.Rewrite(v, key, w.ids.Map); err != nil {
				return err
			}
		}
		if err := w.out.WriteMarker(recordio.Record{Key: key, Value: v}); err != nil {
			return fmt.Errorf("writing %s: %w", key, err)
		}
		w.state.count(KindRules)
		return nil
	})
}

func (w *Walker) reviews(ctx context.Context) error {
	keys := w.state.Dedupe()
	w.log.Info("reachable reviews", zap.Int("count", len(keys)))

	return run(ctx, w, keys, func(ctx context.Context, key string) error {
		flags := w.flags(key)
		path := store.MustPath(reviewPath, store.Params{"key": key})
		v, err := w.src.Get(ctx, path)
		if err != nil {
			return err
		}
		if v != nil {
			review, placeholders := w.san.Review(v)
			if placeholders {
				flags.Set(recordio.FlagPlaceholders, tree.Bool(true))
			}
			return w.emit(KindReviews, path, review, flags)
		}

		apath := store.MustPath(archivedReviewPath, store.Params{"key": key})
		v, err = w.src.Get(ctx, apath)
		if err != nil {
			return err
		}
		if v == nil {
			w.log.Warn("review not found", zap.String("key", key), zap.String("pull_request", w.state.PullRequest(key)))
			w.state.Missing(key)
			return nil
		}

		out, placeholders, err := w.san.ArchivedReview(v, func(review tree.Value) (tree.Value, error) {
			return rewrite.Rewrite(review, path, w.ids.Map)
		})
		if err != nil {
			return fmt.Errorf("archived review %s: %w", key, err)
		}
		if placeholders {
			flags.Set(recordio.FlagPlaceholders, tree.Bool(true))
		}
		return w.emit(KindArchivedReviews, apath, out, flags)
	})
}

type mapItem struct {
	kind string
	key  string
}

func (w *Walker) maps(ctx context.Context) error {
	var items []mapItem
	for key := range w.state.Reachable() {
		for _, kind := range []string{KindLinemaps, KindFilemaps, KindBasemaps} {
			items = append(items, mapItem{kind: kind, key: key})
		}
	}

	return run(ctx, w, items, func(ctx context.Context, it mapItem) error {
		path := store.Join(it.kind, store.Escape(it.key))
		v, err := w.src.Get(ctx, path)
		if err != nil || v == nil {
			return err
		}
		return w.emit(it.kind, path, v, nil)
	})
}

// users extracts every mapped user. In identity mode the set grows while
// users are rewritten, so it runs in rounds until a round discovers no new
// identifier.
func (w *Walker) users(ctx context.Context) error {
	reachable := w.state.Reachable()
	fetch := func(ctx context.Context, pair [2]string) error {
		v, err := w.src.Get(ctx, store.MustPath(userPath, store.Params{"id": pair[0]}))
		if err != nil || v == nil {
			return err
		}
		return w.emit(KindUsers, store.MustPath(userPath, store.Params{"id": pair[1]}), w.san.User(v, reachable, w.selected), nil)
	}

	if !w.ids.Identity() {
		return run(ctx, w, w.ids.Pairs(), fetch)
	}

	done := make(map[string]bool)
	for round := 1; ; round++ {
		var batch [][2]string
		for _, p := range w.ids.Pairs() {
			if !done[p[0]] {
				done[p[0]] = true
				batch = append(batch, p)
			}
		}
		if len(batch) == 0 {
			return nil
		}
		w.log.Debug("user round", zap.Int("round", round), zap.Int("users", len(batch)))
		err := fanout.Run(ctx, batch, w.limit, fetch, fanout.WithProgress(w.progress.Increment))
		if err != nil {
			return err
		}
	}
}

// run fans fn out over items, growing the progress total first.
func run[T any](ctx context.Context, w *Walker, items []T, fn func(context.Context, T) error) error {
	w.progress.AddTotal(int64(len(items)))
	return fanout.Run(ctx, items, w.limit, fn, fanout.WithProgress(w.progress.Increment))
}

// emit rewrites identifiers in v and writes it unless nothing is left.
func (w *Walker) emit(kind, key string, v tree.Value, flags *tree.Object) error {
	if v == nil {
		return nil
	}
	v, err := rewrite.Rewrite(v, key, w.ids.Map)
	if err != nil {
		return err
	}
	if flags.Len() == 0 {
		flags = nil
	}
	ok, err := w.out.Write(recordio.Record{Key: key, Value: v, Flags: flags})
	if err != nil {
		return fmt.Errorf("writing %s: %w", key, err)
	}
	if ok {
		w.state.count(kind)
		w.log.Debug("wrote record", zap.String("key", key))
	}
	return nil
}

func (w *Walker) flags(key string) *tree.Object {
	flags := tree.NewObject()
	if pr := w.state.PullRequest(key); pr != "" {
		flags.Set(recordio.FlagPullRequest, tree.String(pr))
	}
	return flags
}

func repoPath(template, name string) string {
	owner, repo, _ := strings.Cut(name, "/")
	return store.MustPath(template, store.Params{"owner": owner, "repo": repo})
}
