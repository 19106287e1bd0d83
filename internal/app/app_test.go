package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ibeckermayer/listen4me/internal/aggregate"
	"github.com/ibeckermayer/listen4me/internal/classifier"
	"github.com/ibeckermayer/listen4me/internal/config"
	"github.com/ibeckermayer/listen4me/internal/digest"
	"github.com/ibeckermayer/listen4me/internal/logging"
	"github.com/ibeckermayer/listen4me/internal/store"
	"github.com/ibeckermayer/listen4me/internal/types"
)

const sheet = `Platform,Post Date,Post Content,Post URL,Username,User URL
Reddit,Posted 10:00 1 Jan 2024,I keep crying at night,https://www.reddit.com/r/sad/comments/1/,u1,
Reddit,Posted 11:00 2 Jan 2024,work burnout is real,https://www.reddit.com/r/antiwork/comments/2/,u2,
YouTube,Posted 12:00 2 Jan 2024,crying again,https://www.youtube.com/watch?v=x,u3,https://www.youtube.com/@chan
Reddit,sometime last week,hello world,https://www.reddit.com/r/sad/comments/3/,u4,
`

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Categories = []config.CategoryConfig{
		{Name: "crying", Pattern: `\bcry(ing)?\b`},
		{Name: "burnout", Pattern: `burn(ed|t)? ?out`},
	}
	cfg.Report.OutputDir = filepath.Join(t.TempDir(), "reports")
	return cfg
}

func newTestApp(t *testing.T) *App {
	t.Helper()
	t.Setenv("XDG_CACHE_HOME", t.TempDir())
	t.Setenv("HOME", t.TempDir())

	st, err := store.New(filepath.Join(t.TempDir(), "posts.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	a, err := New(testConfig(t), st, logging.Discard())
	require.NoError(t, err)
	a.now = func() time.Time { return time.Date(2024, 1, 3, 8, 0, 0, 0, time.UTC) }
	return a
}

func writeSheet(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "feelings.csv")
	require.NoError(t, os.WriteFile(path, []byte(sheet), 0644))
	return path
}

func counts(cc []aggregate.CategoryCount) map[string]int {
	m := map[string]int{}
	for _, c := range cc {
		m[c.Category] = c.Count
	}
	return m
}

func TestNewRejectsBrokenPattern(t *testing.T) {
	cfg := config.Default()
	cfg.Categories = []config.CategoryConfig{{Name: "bad", Pattern: "("}}
	_, err := New(cfg, nil, logging.Discard())
	require.Error(t, err)
}

func TestIngest(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)

	res, err := a.Ingest(ctx, []string{writeSheet(t)}, IngestOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Files)
	assert.Equal(t, 4, res.Rows)
	assert.Equal(t, 1, res.Undated)
	assert.Equal(t, 4, res.Stored)
	assert.Equal(t, map[string]int{"crying": 2, "burnout": 1, classifier.Other: 1}, counts(res.Buckets))

	stored, err := a.store.ListPosts(ctx, store.Filter{Phrase: "feelings"})
	require.NoError(t, err)
	require.Len(t, stored, 4)
	assert.Equal(t, "sad", stored[0].Community)
	assert.Equal(t, types.OriginYouTube, stored[2].Origin)

	// re-ingesting the same export is idempotent
	res, err = a.Ingest(ctx, []string{writeSheet(t)}, IngestOptions{Phrase: "moods"})
	require.NoError(t, err)
	assert.Equal(t, 4, res.Stored)

	phrases, err := a.Phrases(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"moods"}, phrases, "re-ingest moves posts to the new phrase")
}

func TestIngestMissingFile(t *testing.T) {
	a := newTestApp(t)
	_, err := a.Ingest(context.Background(), []string{filepath.Join(t.TempDir(), "nope.csv")}, IngestOptions{})
	require.Error(t, err)
}

func TestReport(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)
	_, err := a.Ingest(ctx, []string{writeSheet(t)}, IngestOptions{})
	require.NoError(t, err)

	rep, err := a.Report(ctx, ReportRequest{Save: true})
	require.NoError(t, err)

	assert.Equal(t, 4, rep.Overview.Posts)
	assert.Equal(t, 3, rep.Result.Total)
	assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), rep.Result.Start)
	assert.Equal(t, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC), rep.Result.End)
	assert.Equal(t, map[string]int{"crying": 2, "burnout": 1, classifier.Other: 0}, rep.Result.CountsMap())
	require.Len(t, rep.Result.Pivot.Rows, 2)

	reddit := rep.Result.TopCommunities[types.OriginReddit]
	require.Len(t, reddit, 2)
	assert.Equal(t, "sad", reddit[0].Community)
	assert.Equal(t, "antiwork", reddit[1].Community)

	require.NotNil(t, rep.Digest)
	require.FileExists(t, rep.Digest.FilePath)
	assert.Contains(t, rep.Digest.HTMLBody, "crying")

	history, err := a.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 3, history[0].Total)
	assert.Equal(t, rep.Digest.FilePath, history[0].Path)

	last, path, err := a.LastReport()
	require.NoError(t, err)
	assert.FileExists(t, path)
	assert.Equal(t, 3, last.Result.Total)
	assert.Equal(t, rep.Result.CountsMap(), last.Result.CountsMap())
	assert.Equal(t, rep.Digest.FilePath, last.Digest.FilePath)
}

func TestReportCategorySelection(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)
	_, err := a.Ingest(ctx, []string{writeSheet(t)}, IngestOptions{})
	require.NoError(t, err)

	rep, err := a.Report(ctx, ReportRequest{Categories: []string{"burnout"}})
	require.NoError(t, err)
	assert.Equal(t, 1, rep.Result.Total)
	assert.Equal(t, []string{"burnout"}, rep.Result.Pivot.Categories)
	assert.Empty(t, rep.Digest.FilePath, "not saved unless requested")

	_, err = a.Report(ctx, ReportRequest{Categories: []string{"joy"}})
	require.Error(t, err)
}

func TestReportEmptySelection(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)
	_, err := a.Ingest(ctx, []string{writeSheet(t)}, IngestOptions{})
	require.NoError(t, err)

	// explicit bounds before any data
	rep, err := a.Report(ctx, ReportRequest{
		Start: time.Date(2023, 6, 1, 0, 0, 0, 0, time.UTC),
		End:   time.Date(2023, 6, 30, 0, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.True(t, rep.Result.Empty())
	assert.Nil(t, rep.Digest)
	assert.Empty(t, rep.Alerts)
}

func TestReportNoPosts(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)
	rep, err := a.Report(ctx, ReportRequest{Save: true})
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Result.Total)
	assert.Nil(t, rep.Digest)

	_, _, err = a.LastReport()
	require.ErrorIs(t, err, store.ErrNoStepOutput)

	history, err := a.History(ctx, 5)
	require.NoError(t, err)
	assert.Empty(t, history)

	changed, err := a.Reclassify(ctx)
	require.NoError(t, err)
	assert.Zero(t, changed)
}

func TestScheduledReportUsesLookback(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)
	_, err := a.Ingest(ctx, []string{writeSheet(t)}, IngestOptions{})
	require.NoError(t, err)

	require.NoError(t, a.ScheduledReport(ctx))

	path, err := digest.GetLatestDigest(a.Config().Report.OutputDir)
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestReportEmailRequiresRecipient(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)
	_, err := a.Ingest(ctx, []string{writeSheet(t)}, IngestOptions{})
	require.NoError(t, err)

	_, err = a.Report(ctx, ReportRequest{Email: true})
	require.ErrorContains(t, err, "to_address")
}

func TestApplyConfigAndReclassify(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)
	_, err := a.Ingest(ctx, []string{writeSheet(t)}, IngestOptions{})
	require.NoError(t, err)

	assert.Equal(t, "crying", a.Classify("still crying"))

	bad := testConfig(t)
	bad.Categories = []config.CategoryConfig{{Name: "x", Pattern: "[a-"}}
	require.Error(t, a.ApplyConfig(bad))
	assert.Equal(t, "crying", a.Classify("still crying"), "broken config is not applied")

	next := testConfig(t)
	next.Categories = append([]config.CategoryConfig{{Name: "greeting", Pattern: `\bhello\b`}}, next.Categories...)
	require.NoError(t, a.ApplyConfig(next))

	changed, err := a.Reclassify(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, changed)

	greeted, err := a.store.ListPosts(ctx, store.Filter{Bucket: "greeting"})
	require.NoError(t, err)
	require.Len(t, greeted, 1)
	assert.Equal(t, "hello world", greeted[0].Text)
}

func TestViewLastReport(t *testing.T) {
	ctx := context.Background()
	a := newTestApp(t)

	var opened string
	a.openFile = func(path string) error {
		opened = path
		return nil
	}
	require.Error(t, a.ViewLastReport())

	_, err := a.Ingest(ctx, []string{writeSheet(t)}, IngestOptions{})
	require.NoError(t, err)
	rep, err := a.Report(ctx, ReportRequest{Save: true})
	require.NoError(t, err)

	require.NoError(t, a.ViewLastReport())
	assert.Equal(t, rep.Digest.FilePath, opened)
}
