package load

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ALT-F4-LLC/revmigrate/internal/archive"
	"github.com/ALT-F4-LLC/revmigrate/internal/ident"
	"github.com/ALT-F4-LLC/revmigrate/internal/recordio"
	"github.com/ALT-F4-LLC/revmigrate/internal/store/sqlitestore"
	"github.com/ALT-F4-LLC/revmigrate/internal/tree"
)

const admin = "github:9"

func openStore(t *testing.T, seed map[string]string) *sqlitestore.Store {
	t.Helper()
	s, err := sqlitestore.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	for path, doc := range seed {
		require.NoError(t, s.Set(context.Background(), path, tree.MustParse(doc)))
	}
	return s
}

func get(t *testing.T, s *sqlitestore.Store, path string) tree.Value {
	t.Helper()
	v, err := s.Get(context.Background(), path)
	require.NoError(t, err)
	return v
}

func requireTree(t *testing.T, want string, got tree.Value) {
	t.Helper()
	require.True(t, tree.Equal(tree.MustParse(want), got), "want %s, got %v", want, tree.ToGo(got))
}

func lines(ls ...string) *strings.Reader {
	return strings.NewReader(strings.Join(ls, "\n") + "\n")
}

func newLoader(s *sqlitestore.Store, ids *ident.Mapper, opts Options) *Loader {
	if opts.Admin == "" {
		opts.Admin = admin
	}
	opts.NewID = func() string { return "job1" }
	return New(s, ids, opts)
}

func TestLoadWritesByKind(t *testing.T) {
	s := openStore(t, map[string]string{
		"system":                    `{"oldestUsedClientVersion":1000,"oldestUsedServerVersion":5000}`,
		"rules/acme/widgets":        `{"x":1}`,
		"repositories/acme/widgets": `{"core":{"hookEnabled":true},"extra":1}`,
	})
	in := lines(
		`["system/oldestUsedClientVersion",1234]`,
		`["system/oldestUsedServerVersion",2000]`,
		`["rules/acme/widgets",null]`,
		`["repositories/acme/widgets",{"core":{"defaultBranch":"main"}}]`,
		``,
		`["reviews/r1",{"core":{"ownerName":"acme","repoName":"widgets","pullRequestId":1}},{"pullRequest":"acme/widgets#1"}]`,
		`["users/github:5",{"profile":{"name":"five"}}]`,
	)

	report, err := newLoader(s, ident.NewIdentity(), Options{Concurrency: 4}).Run(context.Background(), in)
	require.NoError(t, err)

	requireTree(t, `1000`, get(t, s, "system/oldestUsedClientVersion"))
	requireTree(t, `2000`, get(t, s, "system/oldestUsedServerVersion"))
	require.Nil(t, get(t, s, "rules/acme/widgets"))
	requireTree(t, `{"core":{"defaultBranch":"main"},"extra":1}`, get(t, s, "repositories/acme/widgets"))
	requireTree(t, `{"core":{"ownerName":"acme","repoName":"widgets","pullRequestId":1}}`, get(t, s, "reviews/r1"))

	requireTree(t, `{
		"owner":"acme","repo":"widgets","pullRequestNumber":1,"userKey":"github:9",
		"forceCommentSync":true,"forceStatusSync":true,"overrideBadge":true
	}`, get(t, s, "queues/githubPullRequestSync/acme|widgets|1|github:9"))
	requireTree(t, `{"action":"fillUserProfile","userId":5}`, get(t, s, "queues/requests/job1"))

	require.EqualValues(t, 6, report.Applied)
	require.EqualValues(t, 2, report.Counts["system"])
	require.EqualValues(t, 1, report.SyncJobs)
	require.EqualValues(t, 1, report.ProfileJobs)
	require.Equal(t, 6, report.Resume)
}

func TestLoadRemapsIdentifiers(t *testing.T) {
	s := openStore(t, nil)
	ids := ident.New(map[string]string{"github:5": "github:50"})
	in := lines(`["reviews/r1",{"tracker":{"participants":{"github:5":{"author":true},"github:6":{"author":true}}}},{"pullRequest":"acme/widgets#1"}]`)

	report, err := newLoader(s, ids, Options{}).Run(context.Background(), in)
	require.NoError(t, err)
	requireTree(t, `{"github:50":{"author":true},"github:1":{"author":true}}`, get(t, s, "reviews/r1/tracker/participants"))
	require.Len(t, report.Ghosted, 1)
	require.Equal(t, "github:6", report.Ghosted[0].ID)
}

func TestLoadRemapsArchivedIdentifiers(t *testing.T) {
	s := openStore(t, nil)
	ids := ident.New(map[string]string{"github:5": "github:50"})
	archivedReview, err := archive.Wrap(tree.MustParse(`{"core":{"ownerName":"acme"},"tracker":{"participants":{"github:5":{"author":true}}}}`))
	require.NoError(t, err)
	archivedLine, err := tree.Marshal(tree.List{tree.String("archivedReviews/r2"), archivedReview, tree.MustParse(`{"pullRequest":"acme/widgets#2"}`)})
	require.NoError(t, err)

	in := lines(
		`["reviews/r1",{"tracker":{"participants":{"github:5":{"author":true}}}},{"pullRequest":"acme/widgets#1"}]`,
		string(archivedLine),
	)
	_, err = newLoader(s, ids, Options{}).Run(context.Background(), in)
	require.NoError(t, err)

	requireTree(t, `{"github:50":{"author":true}}`, get(t, s, "reviews/r1/tracker/participants"))
	inner, err := archive.Unwrap(get(t, s, "archivedReviews/r2"))
	require.NoError(t, err)
	requireTree(t, `{"github:50":{"author":true}}`, tree.Lookup(inner, "tracker/participants"))
}

func TestLoadRestoresPlaceholders(t *testing.T) {
	s := openStore(t, nil)
	archivedReview, err := archive.Wrap(tree.MustParse(`{"discussions":{"d":{"comments":{"c":{"body":"old {{REVMIGRATE_UPLOADS}}/b.png"}}}}}`))
	require.NoError(t, err)
	archivedLine, err := tree.Marshal(tree.List{tree.String("archivedReviews/r2"), archivedReview, tree.MustParse(`{"placeholders":true}`)})
	require.NoError(t, err)

	in := lines(
		`["reviews/r1",{"discussions":{"d":{"comments":{"c":{"body":"see {{REVMIGRATE_UPLOADS}}/a.png"},"k":{"body":"plain"}}}}},{"pullRequest":"acme/widgets#1","placeholders":true}]`,
		string(archivedLine),
	)

	_, err = newLoader(s, ident.NewIdentity(), Options{UploadsURL: "https://files.example.com"}).Run(context.Background(), in)
	require.NoError(t, err)

	comment := get(t, s, "reviews/r1/discussions/d/comments/c")
	requireTree(t, `"see https://files.example.com/a.png"`, tree.Lookup(comment, "body"))
	html, _ := tree.AsString(tree.Lookup(comment, "htmlBody"))
	require.Contains(t, html, "<p>")
	require.Contains(t, html, "https://files.example.com/a.png")
	require.Nil(t, get(t, s, "reviews/r1/discussions/d/comments/k/htmlBody"))

	inner, err := archive.Unwrap(get(t, s, "archivedReviews/r2"))
	require.NoError(t, err)
	requireTree(t, `"old https://files.example.com/b.png"`, tree.Lookup(inner, "discussions/d/comments/c/body"))
}

func TestLoadLeavesPlaceholdersWithoutUploadsURL(t *testing.T) {
	s := openStore(t, nil)
	in := lines(`["reviews/r1",{"discussions":{"d":{"comments":{"c":{"body":"{{REVMIGRATE_UPLOADS}}/a.png"}}}}},{"placeholders":true}]`)

	_, err := newLoader(s, ident.NewIdentity(), Options{}).Run(context.Background(), in)
	require.NoError(t, err)
	requireTree(t, `"{{REVMIGRATE_UPLOADS}}/a.png"`, get(t, s, "reviews/r1/discussions/d/comments/c/body"))
}

func TestLoadDryRun(t *testing.T) {
	s := openStore(t, nil)
	in := lines(
		`["repositories/acme/widgets",{"core":{"defaultBranch":"main"}}]`,
		`["reviews/r1",{"core":{}},{"pullRequest":"acme/widgets#1"}]`,
	)

	report, err := newLoader(s, ident.NewIdentity(), Options{DryRun: true}).Run(context.Background(), in)
	require.NoError(t, err)
	require.True(t, report.DryRun)
	require.EqualValues(t, 1, report.Applied)
	require.EqualValues(t, 1, report.Empty)
	require.EqualValues(t, 1, report.SyncJobs)
	require.Nil(t, get(t, s, "repositories"))
	require.Nil(t, get(t, s, "queues"))
}

func TestLoadMalformedLineStops(t *testing.T) {
	s := openStore(t, nil)
	in := lines(
		`["repositories/a/b",{"x":1}]`,
		`["repositories/a/c",{"x":2}]`,
		`["repositories/a/d",`,
		`["repositories/a/e",{"x":3}]`,
	)

	report, err := newLoader(s, ident.NewIdentity(), Options{Concurrency: 1}).Run(context.Background(), in)
	require.Error(t, err)
	require.True(t, recordio.ErrMalformed.Has(err))
	require.Contains(t, err.Error(), "line 3")
	require.Equal(t, 2, report.Resume)
	require.Nil(t, get(t, s, "repositories/a/e"))
}

func TestLoadSkip(t *testing.T) {
	s := openStore(t, nil)
	in := lines(
		`["repositories/a/b",{"x":1}]`,
		`["repositories/a/c",{"x":2}]`,
		`["repositories/a/d",{"x":3}]`,
	)

	report, err := newLoader(s, ident.NewIdentity(), Options{Skip: 2}).Run(context.Background(), in)
	require.NoError(t, err)
	require.Equal(t, 2, report.Skipped)
	require.Equal(t, 3, report.Resume)
	require.Nil(t, get(t, s, "repositories/a/b"))
	requireTree(t, `{"x":3}`, get(t, s, "repositories/a/d"))
}

func TestLoadRequiresAdmin(t *testing.T) {
	s := openStore(t, nil)
	_, err := New(s, ident.NewIdentity(), Options{Admin: "root"}).Run(context.Background(), lines())
	require.Error(t, err)
	require.True(t, Error.Has(err))
}

func TestPullRequestFallsBackToCore(t *testing.T) {
	rec := recordio.Record{Key: "reviews/r1", Value: tree.MustParse(`{"core":{"ownerName":"Acme","repoName":"Widgets","pullRequestId":7}}`)}
	owner, repo, n, ok := pullRequest(rec)
	require.True(t, ok)
	require.Equal(t, "acme", owner)
	require.Equal(t, "widgets", repo)
	require.Equal(t, 7, n)

	_, _, _, ok = pullRequest(recordio.Record{Key: "reviews/r2", Value: tree.MustParse(`{"core":{}}`)})
	require.False(t, ok)
}

func TestMinNumber(t *testing.T) {
	tests := []struct {
		current, next tree.Value
		want          tree.Value
	}{
		{nil, tree.Number("5"), tree.Number("5")},
		{tree.Number("3"), tree.Number("5"), tree.Number("3")},
		{tree.Number("7"), tree.Number("5"), tree.Number("5")},
		{tree.String("x"), tree.Number("5"), tree.Number("5")},
	}
	for _, tt := range tests {
		if got := minNumber(tt.current, tt.next); got != tt.want {
			t.Errorf("minNumber(%v, %v) = %v, want %v", tt.current, tt.next, got, tt.want)
		}
	}
}

func TestWatermark(t *testing.T) {
	w := newWatermark()
	w.done(1)
	w.done(2)
	require.Equal(t, 0, w.contiguous())
	w.done(0)
	require.Equal(t, 3, w.contiguous())
	w.done(4)
	require.Equal(t, 3, w.contiguous())
}
