package app

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pkg/browser"
	"github.com/sirupsen/logrus"

	"github.com/ibeckermayer/listen4me/internal/aggregate"
	"github.com/ibeckermayer/listen4me/internal/analyzer"
	"github.com/ibeckermayer/listen4me/internal/classifier"
	"github.com/ibeckermayer/listen4me/internal/config"
	"github.com/ibeckermayer/listen4me/internal/dates"
	"github.com/ibeckermayer/listen4me/internal/digest"
	"github.com/ibeckermayer/listen4me/internal/ingest"
	"github.com/ibeckermayer/listen4me/internal/notifier"
	"github.com/ibeckermayer/listen4me/internal/source"
	"github.com/ibeckermayer/listen4me/internal/spikes"
	"github.com/ibeckermayer/listen4me/internal/store"
	"github.com/ibeckermayer/listen4me/internal/types"
)

// App holds the application state.
type App struct {
	mu    sync.RWMutex
	store *store.Store // immutable after creation
	log   *logrus.Entry

	// Mutable fields - use getSnapshot() for concurrent access.
	config     *config.Config
	classifier *classifier.Classifier
	detector   *spikes.Detector

	// openFile is browser.OpenFile outside tests.
	openFile func(path string) error
	now      func() time.Time
}

// snapshot holds fields that may be replaced by ReloadConfig.
// Use getSnapshot() to obtain a consistent, point-in-time copy.
type snapshot struct {
	config     *config.Config
	classifier *classifier.Classifier
	detector   *spikes.Detector
}

// getSnapshot returns a snapshot of mutable fields under read lock.
func (a *App) getSnapshot() snapshot {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return snapshot{
		config:     a.config,
		classifier: a.classifier,
		detector:   a.detector,
	}
}

// New creates a new App instance. Configuration errors (broken patterns,
// invalid spike parameters) are returned before anything is classified.
func New(cfg *config.Config, st *store.Store, logger *logrus.Logger) (*App, error) {
	cls, det, err := compile(cfg)
	if err != nil {
		return nil, err
	}
	return &App{
		store:      st,
		log:        logger.WithField("component", "app"),
		config:     cfg,
		classifier: cls,
		detector:   det,
		openFile:   browser.OpenFile,
		now:        time.Now,
	}, nil
}

func compile(cfg *config.Config) (*classifier.Classifier, *spikes.Detector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	cls, err := classifier.New(cfg.Categories)
	if err != nil {
		return nil, nil, err
	}
	det, err := spikes.NewDetector(cfg.Spikes.Window, cfg.Spikes.Sigma)
	if err != nil {
		return nil, nil, err
	}
	return cls, det, nil
}

// Config returns the active configuration.
func (a *App) Config() *config.Config {
	return a.getSnapshot().config
}

// Classify buckets a single text with the active categories.
func (a *App) Classify(text string) string {
	return a.getSnapshot().classifier.Classify(text)
}

// IngestOptions controls Ingest.
type IngestOptions struct {
	Kind   ingest.Kind
	Phrase string
	Origin types.Origin // hint for sheet rows without a Platform column
}

// IngestResult summarizes an ingest run.
type IngestResult struct {
	Files   int                       `json:"files"`
	Rows    int                       `json:"rows"`
	Skipped int                       `json:"skipped"`
	Undated int                       `json:"undated"`
	Stored  int                       `json:"stored"` // posts in the store after this run
	Buckets []aggregate.CategoryCount `json:"buckets"`
}

// Ingest performs the read -> normalize -> classify -> store flow.
func (a *App) Ingest(ctx context.Context, paths []string, opts IngestOptions) (*IngestResult, error) {
	s := a.getSnapshot()

	hint := opts.Origin
	if hint == "" {
		hint = types.ParseOrigin(s.config.Ingest.DefaultOrigin)
	}

	res := &IngestResult{}
	var posts []types.Post

	// Step 1: Read and normalize
	for _, path := range paths {
		records, stats, err := ingest.ReadFile(path, ingest.Options{
			Kind:      opts.Kind,
			HeaderRow: s.config.Ingest.HeaderRow,
			Phrase:    opts.Phrase,
		})
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
		a.log.WithFields(logrus.Fields{"file": path, "rows": stats.Rows, "skipped": stats.Skipped}).Info("Read input")

		res.Files++
		res.Rows += stats.Rows
		res.Skipped += stats.Skipped
		posts = append(posts, source.NormalizeAll(records, hint)...)
	}

	for _, p := range posts {
		if !p.HasTimestamp() {
			res.Undated++
		}
	}
	if res.Undated > 0 {
		a.log.WithField("undated", res.Undated).Warn("Some posts have no parseable date; they are kept but excluded from dated views")
	}

	if len(posts) == 0 {
		a.log.Info("No posts read - nothing to classify")
		res.Buckets = aggregate.CountBuckets(nil, s.classifier.Buckets())
		stored, err := a.store.CountPosts(ctx)
		if err != nil {
			return nil, fmt.Errorf("count posts: %w", err)
		}
		res.Stored = stored
		return res, nil
	}

	if path, err := store.SaveStepOutput(store.StepIngested, posts); err != nil {
		a.log.WithError(err).Warn("Failed to cache ingested posts")
	} else {
		a.log.WithField("path", path).Debug("Cached ingested posts")
	}

	// Step 2: Classify
	an := analyzer.New(s.classifier, s.config.Ingest.BatchSize)
	classified, err := an.ClassifyPosts(ctx, posts)
	if err != nil {
		return nil, fmt.Errorf("classify: %w", err)
	}

	// Step 3: Store
	if err := a.store.SavePosts(ctx, classified); err != nil {
		return nil, fmt.Errorf("save posts: %w", err)
	}

	res.Buckets = aggregate.CountBuckets(classified, s.classifier.Buckets())
	if res.Stored, err = a.store.CountPosts(ctx); err != nil {
		return nil, fmt.Errorf("count posts: %w", err)
	}
	a.log.WithFields(logrus.Fields{"posts": len(classified), "files": res.Files, "stored": res.Stored}).Info("Ingest complete")
	return res, nil
}

// Reclassify re-runs the active categories over every stored post.
func (a *App) Reclassify(ctx context.Context) (int, error) {
	s := a.getSnapshot()

	posts, err := a.store.LoadPosts(ctx, store.Filter{})
	if errors.Is(err, store.ErrNoPosts) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	for i := range posts {
		posts[i].Bucket = ""
	}
	classified, err := analyzer.New(s.classifier, s.config.Ingest.BatchSize).ClassifyPosts(ctx, posts)
	if err != nil {
		return 0, err
	}

	changed, err := a.store.UpdateBuckets(ctx, classified)
	if err != nil {
		return 0, err
	}

	if _, err := store.SaveStepOutput(store.StepClassified, aggregate.CountBuckets(classified, s.classifier.Buckets())); err != nil {
		a.log.WithError(err).Warn("Failed to cache bucket counts")
	}
	a.log.WithFields(logrus.Fields{"posts": len(classified), "changed": changed}).Info("Reclassified stored posts")
	return changed, nil
}

// ReportRequest selects what a report covers. Zero bounds fall back to the
// last LookbackDays days, or to the span of the data when that is zero too.
type ReportRequest struct {
	Start        time.Time
	End          time.Time
	LookbackDays int
	Categories   []string
	Phrase       string
	Keyword      string // content sample filter
	Email        bool
	Save         bool
}

// Report is the outcome of one report run.
type Report struct {
	Overview      aggregate.Overview `json:"overview"`
	Result        *aggregate.Result  `json:"result"`
	Alerts        []spikes.Alert     `json:"alerts"`
	OverallAlerts []spikes.Alert     `json:"overall_alerts"`
	Digest        *digest.Digest     `json:"digest,omitempty"`
}

// Report performs the load -> aggregate -> detect spikes -> render flow.
// An empty selection is not an error: the report comes back with an empty
// result and no digest.
func (a *App) Report(ctx context.Context, req ReportRequest) (*Report, error) {
	s := a.getSnapshot()

	categories, err := a.resolveCategories(s, req.Categories)
	if err != nil {
		return nil, err
	}

	posts, err := a.store.ListPosts(ctx, store.Filter{Phrase: req.Phrase})
	if err != nil {
		return nil, fmt.Errorf("load posts: %w", err)
	}

	start, end := req.Start, req.End
	if start.IsZero() && end.IsZero() && req.LookbackDays > 0 {
		start, end = aggregate.DayRange(a.now(), req.LookbackDays)
	}

	res := aggregate.Aggregate(posts, aggregate.Query{
		Start:      start,
		End:        end,
		Categories: categories,
		TopN:       s.config.Report.TopN,
	})

	rep := &Report{
		Overview: aggregate.Summarize(posts),
		Result:   res,
	}
	for _, c := range res.Pivot.Categories {
		rep.Alerts = append(rep.Alerts, s.detector.Alerts(c, res.Pivot.Series(c))...)
	}
	rep.OverallAlerts = s.detector.Alerts(digest.TotalCategory, res.Pivot.Totals())

	a.log.WithFields(logrus.Fields{
		"posts":  res.Total,
		"start":  res.Start.Format("2006-01-02"),
		"end":    res.End.Format("2006-01-02"),
		"spikes": len(rep.Alerts) + len(rep.OverallAlerts),
		"window": s.detector.Window(),
		"sigma":  s.detector.Sigma(),
	}).Info("Aggregated posts")

	if res.Empty() {
		a.log.Info("No posts in selection - no report generated")
		return rep, nil
	}

	sample := aggregate.Sample(inSelection(posts, res), req.Keyword, s.config.Report.SampleLimit)

	builder, err := digest.New()
	if err != nil {
		return nil, err
	}
	title := "Social listening report"
	if req.Phrase != "" {
		title = fmt.Sprintf("Social listening: %s", req.Phrase)
	}
	d, err := builder.Build(digest.Input{
		Title:         title,
		Overview:      rep.Overview,
		Result:        res,
		Alerts:        rep.Alerts,
		OverallAlerts: rep.OverallAlerts,
		Sample:        sample,
		GeneratedAt:   a.now(),
	})
	if err != nil {
		return nil, err
	}
	rep.Digest = d

	if req.Save {
		if err := a.saveReport(ctx, s, rep); err != nil {
			return nil, err
		}
	}

	if req.Email || s.config.Report.EmailReport {
		if err := a.emailReport(s, d); err != nil {
			return nil, err
		}
	}

	return rep, nil
}

// ScheduledReport renders, saves and (when configured) emails the report
// for the configured lookback window.
func (a *App) ScheduledReport(ctx context.Context) error {
	cfg := a.getSnapshot().config
	_, err := a.Report(ctx, ReportRequest{
		LookbackDays: cfg.Report.LookbackDays,
		Save:         true,
	})
	return err
}

func (a *App) saveReport(ctx context.Context, s snapshot, rep *Report) error {
	dir, err := s.config.ReportDir()
	if err != nil {
		return err
	}
	path, err := rep.Digest.Save(dir)
	if err != nil {
		return fmt.Errorf("save report: %w", err)
	}
	a.log.WithField("path", path).Info("Report saved")

	if _, err := store.SaveStepOutput(store.StepReport, rep); err != nil {
		a.log.WithError(err).Warn("Failed to cache report data")
	}

	_, err = a.store.RecordReport(ctx, store.ReportEntry{
		CreatedAt: rep.Digest.CreatedAt,
		Start:     rep.Result.Start,
		End:       rep.Result.End,
		Total:     rep.Result.Total,
		Spikes:    rep.Digest.Spikes,
		Path:      path,
	})
	return err
}

func (a *App) emailReport(s snapshot, d *digest.Digest) error {
	if s.config.Email.ToAddr == "" {
		return errors.New("email requested but email.to_address is not set")
	}
	n, err := notifier.NewFromConfig(s.config.Email)
	if err != nil {
		return err
	}
	if err := n.SendDigest(d, s.config.Email.ToAddr); err != nil {
		return err
	}
	a.log.WithField("to", s.config.Email.ToAddr).Info("Report emailed")
	return nil
}

// resolveCategories applies the request, then config, then every category.
// Unknown names are a caller error.
func (a *App) resolveCategories(s snapshot, requested []string) ([]string, error) {
	if len(requested) == 0 {
		requested = s.config.Report.Categories
	}
	if len(requested) == 0 {
		return s.classifier.Buckets(), nil
	}
	for _, c := range requested {
		if !s.classifier.Has(c) {
			return nil, fmt.Errorf("unknown category %q", c)
		}
	}
	return requested, nil
}

// inSelection keeps the posts that were counted in res.
func inSelection(posts []types.Post, res *aggregate.Result) []types.Post {
	selected := make(map[string]bool, len(res.Pivot.Categories))
	for _, c := range res.Pivot.Categories {
		selected[c] = true
	}
	var out []types.Post
	for _, p := range posts {
		if !p.HasTimestamp() || !selected[p.Bucket] {
			continue
		}
		day := dates.Day(p.Timestamp)
		if day.Before(res.Start) || day.After(res.End) {
			continue
		}
		out = append(out, p)
	}
	return out
}

// LastReport returns the most recently saved report data and the cache
// file it was read from, without recomputing anything.
func (a *App) LastReport() (*Report, string, error) {
	rep, path, err := store.LoadLatestStepOutput[*Report](store.StepReport)
	if err != nil {
		return nil, "", err
	}
	return rep, path, nil
}

// History lists saved reports, newest first.
func (a *App) History(ctx context.Context, limit int) ([]store.ReportEntry, error) {
	if limit <= 0 {
		limit = 10
	}
	return a.store.RecentReports(ctx, limit)
}

// Phrases lists the search phrases posts were ingested under.
func (a *App) Phrases(ctx context.Context) ([]string, error) {
	return a.store.Phrases(ctx)
}

// ViewLastReport opens the most recent report file.
func (a *App) ViewLastReport() error {
	s := a.getSnapshot()

	dir, err := s.config.ReportDir()
	if err != nil {
		return err
	}
	path, err := digest.GetLatestDigest(dir)
	if err != nil {
		a.log.WithError(err).Warn("No report found")
		return err
	}

	a.log.WithField("path", path).Info("Opening report")
	return a.openFile(path)
}

// ReloadConfig reloads the configuration from disk. A config whose
// categories do not compile is rejected and the running set is kept.
func (a *App) ReloadConfig() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	return a.ApplyConfig(cfg)
}

// ApplyConfig swaps in cfg after compiling it.
func (a *App) ApplyConfig(cfg *config.Config) error {
	cls, det, err := compile(cfg)
	if err != nil {
		return err
	}

	a.mu.Lock()
	a.config = cfg
	a.classifier = cls
	a.detector = det
	a.mu.Unlock()

	a.log.WithField("categories", len(cfg.Categories)).Info("Configuration reloaded")
	return nil
}
