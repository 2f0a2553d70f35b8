// Package load replays a record file into a destination store.
package load

import (
	"context"
	"fmt"
	"io"
	"iter"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/errs"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/ALT-F4-LLC/revmigrate/internal/archive"
	"github.com/ALT-F4-LLC/revmigrate/internal/fanout"
	"github.com/ALT-F4-LLC/revmigrate/internal/ident"
	"github.com/ALT-F4-LLC/revmigrate/internal/recordio"
	"github.com/ALT-F4-LLC/revmigrate/internal/render"
	"github.com/ALT-F4-LLC/revmigrate/internal/rewrite"
	"github.com/ALT-F4-LLC/revmigrate/internal/sanitize"
	"github.com/ALT-F4-LLC/revmigrate/internal/store"
	"github.com/ALT-F4-LLC/revmigrate/internal/telemetry"
	"github.com/ALT-F4-LLC/revmigrate/internal/tree"
	"github.com/ALT-F4-LLC/revmigrate/internal/uploads"
)

// Error is the class of load failures that are not store or record errors.
var Error = errs.Class("load")

const (
	syncQueuePath    = "queues/githubPullRequestSync/:key"
	requestQueuePath = "queues/requests/:id"
	watermarkPrefix  = "system/oldestUsed"
	archivedPrefix   = "archivedReviews/"
)

// Progress receives AddTotal(1) for every record read and Increment once it
// has been applied.
type Progress interface {
	Increment()
	AddTotal(n int64)
}

type noProgress struct{}

func (noProgress) Increment()     {}
func (noProgress) AddTotal(int64) {}

// Options configures a Loader.
type Options struct {
	// Admin is the destination user that authors pull request sync jobs.
	Admin string
	// UploadsURL replaces attachment placeholders. Without it placeholders
	// are left in place.
	UploadsURL string
	// Rules supplies the comment containers searched for placeholders.
	Rules *sanitize.Rules
	HTML  render.HTMLRenderer

	DryRun      bool
	Skip        int
	Rate        int
	Concurrency int
	Progress    Progress
	Log         *zap.Logger
	NewID       func() string
}

// Loader writes records to a destination store.
type Loader struct {
	dst  store.Store
	ids  *ident.Mapper
	opts Options
	log  *zap.Logger

	warnUploads sync.Once

	mu     sync.Mutex
	counts map[string]int64
	syncs  int64
	fills  int64
	empty  int64
}

// New returns a Loader writing to dst. ids maps identifiers once more on the
// way in; identity mode leaves them as extracted.
func New(dst store.Store, ids *ident.Mapper, opts Options) *Loader {
	if opts.Rules == nil {
		opts.Rules = sanitize.DefaultRules()
	}
	if opts.HTML == nil {
		opts.HTML = render.NewHTMLRenderer()
	}
	if opts.Progress == nil {
		opts.Progress = noProgress{}
	}
	if opts.Log == nil {
		opts.Log = zap.NewNop()
	}
	if opts.NewID == nil {
		opts.NewID = uuid.NewString
	}
	return &Loader{
		dst:    dst,
		ids:    ids,
		opts:   opts,
		log:    opts.Log.Named("load"),
		counts: make(map[string]int64),
	}
}

type item struct {
	seq  int
	line int
	rec  recordio.Record
}

// Run applies every record read from r. The report is returned even when
// the load fails, so that Resume tells the operator where to pick up.
func (l *Loader) Run(ctx context.Context, r io.Reader) (*Report, error) {
	start := time.Now()
	if !ident.Pattern.MatchString(l.opts.Admin) {
		return nil, Error.New("admin user %q must look like github:<number>", l.opts.Admin)
	}

	ctx, span := telemetry.Start(ctx, "load", attribute.Bool("load.dry_run", l.opts.DryRun))

	rr := recordio.NewReader(recordio.NewThrottledReader(ctx, r, l.opts.Rate))
	skipped, err := rr.Skip(l.opts.Skip)
	if err != nil {
		telemetry.End(span, err)
		return nil, err
	}
	if skipped > 0 {
		l.log.Info("skipped records", zap.Int("count", skipped))
	}

	wm := newWatermark()
	var seq iter.Seq2[item, error] = func(yield func(item, error) bool) {
		i := 0
		for n, err := range rr.All() {
			if err != nil {
				yield(item{}, err)
				return
			}
			l.opts.Progress.AddTotal(1)
			if !yield(item{seq: i, line: n.Line, rec: n.Record}, nil) {
				return
			}
			i++
		}
	}

	err = fanout.Stream(ctx, seq, l.opts.Concurrency, func(ctx context.Context, it item) error {
		if err := l.apply(ctx, it.rec); err != nil {
			return fmt.Errorf("line %d (%s): %w", it.line, it.rec.Key, err)
		}
		wm.done(it.seq)
		return nil
	}, fanout.WithProgress(l.opts.Progress.Increment))
	telemetry.End(span, err)

	report := l.report(time.Since(start))
	report.Skipped = skipped
	report.Resume = skipped + wm.contiguous()
	return report, err
}

func (l *Loader) report(elapsed time.Duration) *Report {
	l.mu.Lock()
	defer l.mu.Unlock()
	counts := make(map[string]int64, len(l.counts))
	var applied int64
	for k, n := range l.counts {
		counts[k] = n
		applied += n
	}
	return &Report{
		Counts:      counts,
		Applied:     applied,
		Empty:       l.empty,
		SyncJobs:    l.syncs,
		ProfileJobs: l.fills,
		Ghosted:     l.ids.Ghosted(),
		DryRun:      l.opts.DryRun,
		Elapsed:     elapsed,
	}
}

// apply writes one record and fires the side effects its key calls for.
func (l *Loader) apply(ctx context.Context, rec recordio.Record) error {
	v := rec.Value
	if !tree.IsEmpty(v) {
		var err error
		if v, err = l.prepare(rec); err != nil {
			return err
		}
	}

	if err := l.write(ctx, rec.Key, v); err != nil {
		return err
	}

	switch {
	case strings.HasPrefix(rec.Key, "reviews/"):
		return l.enqueueSync(ctx, rec)
	case strings.HasPrefix(rec.Key, "users/"):
		return l.enqueueProfile(ctx, rec.Key)
	}
	return nil
}

// write picks the store primitive for a key. Objects are merged so that
// destination fields missing from the record survive.
func (l *Loader) write(ctx context.Context, key string, v tree.Value) error {
	kind, _, _ := strings.Cut(key, "/")
	if obj, ok := tree.AsObject(v); ok && obj.Len() == 0 {
		l.mu.Lock()
		l.empty++
		l.mu.Unlock()
		return nil
	}

	l.mu.Lock()
	l.counts[kind]++
	l.mu.Unlock()

	if l.opts.DryRun {
		l.log.Debug("dry run", zap.String("key", key))
		return nil
	}

	switch obj, isObj := tree.AsObject(v); {
	case strings.HasPrefix(key, watermarkPrefix) && v != nil:
		_, err := l.dst.Transaction(ctx, key, func(current tree.Value) (tree.Value, error) {
			return minNumber(current, v), nil
		})
		return err
	case isObj:
		return l.dst.Update(ctx, key, obj)
	default:
		return l.dst.Set(ctx, key, v)
	}
}

// minNumber keeps the smaller of two numbers. Anything that is not a number
// gives way to next.
func minNumber(current, next tree.Value) tree.Value {
	c, ok := current.(tree.Number)
	if !ok {
		return next
	}
	n, ok := next.(tree.Number)
	if !ok {
		return next
	}
	cf, err := strconv.ParseFloat(string(c), 64)
	if err != nil {
		return next
	}
	nf, err := strconv.ParseFloat(string(n), 64)
	if err != nil || cf <= nf {
		return current
	}
	return next
}

// prepare maps identifiers in the record value once more and restores
// attachment placeholders. Archived reviews are unwrapped so their payload
// is treated like a live review.
func (l *Loader) prepare(rec recordio.Record) (tree.Value, error) {
	placeholders := rec.HasFlag(recordio.FlagPlaceholders)
	if !strings.HasPrefix(rec.Key, archivedPrefix) {
		v, err := rewrite.Rewrite(rec.Value, rec.Key, l.ids.Map)
		if err != nil || !placeholders {
			return v, err
		}
		return v, l.restore(v)
	}

	review, err := archive.Unwrap(rec.Value)
	if err != nil {
		return nil, err
	}
	if review, err = rewrite.Rewrite(review, rec.Key, l.ids.Map); err != nil {
		return nil, err
	}
	if placeholders {
		if err := l.restore(review); err != nil {
			return nil, err
		}
	}
	return archive.Wrap(review)
}

// restore swaps attachment placeholders in review for the destination
// uploads URL and rebuilds the HTML of every comment that changed.
func (l *Loader) restore(review tree.Value) error {
	if l.opts.UploadsURL == "" {
		l.warnUploads.Do(func() {
			l.log.Warn("records contain attachment placeholders but no uploads URL is set; leaving them in place")
		})
		return nil
	}
	return l.restoreComments(review)
}

func (l *Loader) restoreComments(review tree.Value) error {
	for _, container := range l.opts.Rules.Review.CommentContainers {
		discussions, ok := tree.AsObject(tree.Lookup(review, container))
		if !ok {
			continue
		}
		for _, d := range discussions.Keys() {
			comments, ok := tree.AsObject(tree.Lookup(discussions, d+"/comments"))
			if !ok {
				continue
			}
			for _, c := range comments.Keys() {
				cv, _ := comments.Get(c)
				comment, ok := tree.AsObject(cv)
				if !ok {
					continue
				}
				body, ok := tree.AsString(tree.Lookup(comment, "body"))
				if !ok {
					continue
				}
				next, changed := uploads.Restore(body, l.opts.UploadsURL)
				if !changed {
					continue
				}
				html, err := l.opts.HTML.HTML(next)
				if err != nil {
					return fmt.Errorf("rendering comment %s/%s: %w", d, c, err)
				}
				comment.Set("body", tree.String(next))
				comment.Set("htmlBody", tree.String(html))
			}
		}
	}
	return nil
}

// enqueueSync asks the destination to resync the review's pull request.
func (l *Loader) enqueueSync(ctx context.Context, rec recordio.Record) error {
	owner, repo, number, ok := pullRequest(rec)
	if !ok {
		l.log.Warn("review has no pull request coordinates", zap.String("key", rec.Key))
		return nil
	}

	job := tree.NewObject()
	job.Set("owner", tree.String(owner))
	job.Set("repo", tree.String(repo))
	job.Set("pullRequestNumber", tree.Number(strconv.Itoa(number)))
	job.Set("userKey", tree.String(l.opts.Admin))
	job.Set("forceCommentSync", tree.Bool(true))
	job.Set("forceStatusSync", tree.Bool(true))
	job.Set("overrideBadge", tree.Bool(true))

	key := strings.Join([]string{owner, repo, strconv.Itoa(number), l.opts.Admin}, "|")
	path := store.MustPath(syncQueuePath, store.Params{"key": key})

	l.mu.Lock()
	l.syncs++
	l.mu.Unlock()
	if l.opts.DryRun {
		return nil
	}
	return l.dst.Set(ctx, path, job)
}

// pullRequest reads "owner/repo#number" from the record flags, falling back
// to the review's core fields.
func pullRequest(rec recordio.Record) (owner, repo string, number int, ok bool) {
	if pr, isStr := tree.AsString(rec.Flag(recordio.FlagPullRequest)); isStr {
		full, num, found := strings.Cut(pr, "#")
		owner, repo, hasRepo := strings.Cut(full, "/")
		n, err := strconv.Atoi(num)
		if found && hasRepo && err == nil {
			return owner, repo, n, true
		}
	}

	owner, _ = tree.AsString(tree.Lookup(rec.Value, "core/ownerName"))
	repo, _ = tree.AsString(tree.Lookup(rec.Value, "core/repoName"))
	num, isNum := tree.Lookup(rec.Value, "core/pullRequestId").(tree.Number)
	if owner == "" || repo == "" || !isNum {
		return "", "", 0, false
	}
	n, err := strconv.Atoi(string(num))
	if err != nil {
		return "", "", 0, false
	}
	return strings.ToLower(owner), strings.ToLower(repo), n, true
}

// enqueueProfile asks the destination to refresh a loaded user's profile.
func (l *Loader) enqueueProfile(ctx context.Context, key string) error {
	id := store.Unescape(strings.TrimPrefix(key, "users/"))
	num, found := strings.CutPrefix(id, "github:")
	n, err := strconv.Atoi(num)
	if !found || err != nil {
		l.log.Warn("user key is not a github identifier", zap.String("key", key))
		return nil
	}

	job := tree.NewObject()
	job.Set("action", tree.String("fillUserProfile"))
	job.Set("userId", tree.Number(strconv.Itoa(n)))

	l.mu.Lock()
	l.fills++
	l.mu.Unlock()
	if l.opts.DryRun {
		return nil
	}
	return l.dst.Set(ctx, store.MustPath(requestQueuePath, store.Params{"id": l.opts.NewID()}), job)
}
