package digest

import (
	"bytes"
	"errors"
	"fmt"
	"html/template"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/ibeckermayer/listen4me/internal/aggregate"
	"github.com/ibeckermayer/listen4me/internal/spikes"
	"github.com/ibeckermayer/listen4me/internal/types"
)

// ErrEmptyReport is returned by Build when the aggregation matched no posts.
var ErrEmptyReport = errors.New("no posts for this selection")

// Builder renders aggregation results into a report
type Builder struct {
	template *template.Template
}

// New creates a new report builder
func New() (*Builder, error) {
	tmpl, err := template.New("report").Funcs(template.FuncMap{
		"day": func(t time.Time) string { return t.Format("Mon 2 Jan 2006") },
	}).Parse(defaultTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template: %w", err)
	}

	return &Builder{template: tmpl}, nil
}

// Input is everything a report shows
type Input struct {
	Title         string
	Overview      aggregate.Overview
	Result        *aggregate.Result
	Alerts        []spikes.Alert // per-category spikes
	OverallAlerts []spikes.Alert // spikes in the daily total
	Sample        []types.Post
	GeneratedAt   time.Time
}

// Digest represents a compiled report ready for saving or sending
type Digest struct {
	Subject   string    `json:"subject"`
	HTMLBody  string    `json:"-"`
	PlainBody string    `json:"plain_body"`
	Spikes    int       `json:"spikes"`
	CreatedAt time.Time `json:"created_at"`
	FilePath  string    `json:"file_path,omitempty"`
}

// ReportData is the template data structure
type ReportData struct {
	Title       string
	Range       string
	Overview    aggregate.Overview
	Counts      []aggregate.CategoryCount
	Categories  []string
	Rows        []aggregate.PivotRow
	Communities []CommunityTable
	Alerts      []spikes.Alert
	Sample      []SampleData
	Total       int
}

// CommunityTable is one platform's top-community list
type CommunityTable struct {
	Platform string
	Entries  []aggregate.CommunityCount
}

// SampleData represents a post in the content sample
type SampleData struct {
	Date      string
	Origin    string
	Community string
	Bucket    string
	Content   string
	URL       string
}

// Build renders a report. An empty result is reported as ErrEmptyReport so
// callers can show "no data" instead of an empty table.
func (b *Builder) Build(in Input) (*Digest, error) {
	if in.Result == nil || in.Result.Empty() {
		return nil, ErrEmptyReport
	}
	if in.GeneratedAt.IsZero() {
		in.GeneratedAt = time.Now()
	}
	if in.Title == "" {
		in.Title = "Social listening report"
	}

	alerts := append(append([]spikes.Alert(nil), in.Alerts...), in.OverallAlerts...)
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].Date.Before(alerts[j].Date)
	})

	data := ReportData{
		Title:      in.Title,
		Range:      fmt.Sprintf("%s – %s", in.Result.Start.Format("2 Jan 2006"), in.Result.End.Format("2 Jan 2006")),
		Overview:   in.Overview,
		Counts:     in.Result.Counts,
		Categories: in.Result.Pivot.Categories,
		Rows:       in.Result.Pivot.Rows,
		Alerts:     alerts,
		Total:      in.Result.Total,
	}

	for _, origin := range []types.Origin{types.OriginReddit, types.OriginYouTube} {
		if entries := in.Result.TopCommunities[origin]; len(entries) > 0 {
			data.Communities = append(data.Communities, CommunityTable{Platform: platformLabel(origin), Entries: entries})
		}
	}

	for _, p := range in.Sample {
		date := "n/a"
		if p.HasTimestamp() {
			date = p.Timestamp.Format("2006-01-02 15:04")
		}
		data.Sample = append(data.Sample, SampleData{
			Date:      date,
			Origin:    platformLabel(p.Origin),
			Community: p.Community,
			Bucket:    p.Bucket,
			Content:   truncate(p.Text, 280),
			URL:       p.Permalink,
		})
	}

	// Render HTML
	var htmlBuf bytes.Buffer
	if err := b.template.Execute(&htmlBuf, data); err != nil {
		return nil, fmt.Errorf("failed to render template: %w", err)
	}

	subject := fmt.Sprintf("%s - %s", in.Title, in.Result.End.Format("Jan 2"))
	if len(alerts) > 0 {
		subject = fmt.Sprintf("%s (%d spikes)", subject, len(alerts))
	}

	return &Digest{
		Subject:   subject,
		HTMLBody:  htmlBuf.String(),
		PlainBody: buildPlainText(data),
		Spikes:    len(alerts),
		CreatedAt: in.GeneratedAt,
	}, nil
}

// Save writes the HTML body to a new file in dir and records the path on d.
// An existing report is never overwritten; a clash gets a numbered suffix,
// which still sorts after the unsuffixed name.
func (d *Digest) Save(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	stamp := "report-" + d.CreatedAt.UTC().Format("2006-01-02T15-04-05.000000000")

	for n := 0; n < maxSaveAttempts; n++ {
		name := stamp + ".html"
		if n > 0 {
			name = fmt.Sprintf("%s_%03d.html", stamp, n)
		}
		path := filepath.Join(dir, name)

		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		if _, err := f.WriteString(d.HTMLBody); err != nil {
			f.Close()
			return "", err
		}
		if err := f.Close(); err != nil {
			return "", err
		}
		d.FilePath = path
		return path, nil
	}
	return "", fmt.Errorf("too many reports named %s in %s", stamp, dir)
}

const maxSaveAttempts = 1000

// GetLatestDigest returns the newest report file in dir.
func GetLatestDigest(dir string) (string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var latest string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "report-") || !strings.HasSuffix(name, ".html") {
			continue
		}
		if name > latest {
			latest = name
		}
	}
	if latest == "" {
		return "", fmt.Errorf("no report in %s", dir)
	}
	return filepath.Join(dir, latest), nil
}

func platformLabel(o types.Origin) string {
	switch o {
	case types.OriginReddit:
		return "Reddit"
	case types.OriginYouTube:
		return "YouTube"
	default:
		return "Other"
	}
}

func truncate(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}

func buildPlainText(data ReportData) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "%s\n%s\n\n", data.Title, data.Range)

	fmt.Fprintf(&buf, "Posts in selection: %d\n", data.Total)
	for _, c := range data.Counts {
		fmt.Fprintf(&buf, "  %-20s %d\n", c.Category, c.Count)
	}

	if len(data.Alerts) > 0 {
		buf.WriteString("\nSpikes:\n")
		for _, a := range data.Alerts {
			fmt.Fprintf(&buf, "  %s  %-20s %d\n", a.Date.Format("2006-01-02"), alertLabel(a.Category), a.Count)
		}
	}

	for _, table := range data.Communities {
		fmt.Fprintf(&buf, "\nTop %s communities:\n", table.Platform)
		for i, e := range table.Entries {
			fmt.Fprintf(&buf, "  %2d. %s (%d)\n", i+1, e.Community, e.Count)
		}
	}

	return buf.String()
}

// TotalCategory labels alerts raised on the daily total series.
const TotalCategory = "all"

func alertLabel(category string) string {
	if category == TotalCategory {
		return "(all posts)"
	}
	return category
}

const defaultTemplate = `<!DOCTYPE html>
<html>
<head>
    <meta charset="utf-8">
    <meta name="viewport" content="width=device-width, initial-scale=1">
    <title>{{.Title}}</title>
    <style>
        body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; max-width: 900px; margin: 0 auto; padding: 20px; background: #f5f5f5; }
        .container { background: white; border-radius: 8px; padding: 20px; }
        h1 { color: #4a6fa5; margin-bottom: 5px; }
        h2 { color: #333; border-bottom: 1px solid #eee; padding-bottom: 4px; }
        .range { color: #666; margin-bottom: 20px; }
        .metrics span { display: inline-block; margin-right: 24px; }
        table { border-collapse: collapse; font-size: 13px; }
        td, th { padding: 3px 8px; border-bottom: 1px solid #eee; text-align: right; }
        td:first-child, th:first-child { text-align: left; }
        .spike { color: #b00020; font-weight: bold; }
        .content { max-width: 480px; text-align: left; }
        .footer { margin-top: 20px; padding-top: 15px; border-top: 1px solid #eee; color: #999; font-size: 12px; text-align: center; }
    </style>
</head>
<body>
    <div class="container">
        <h1>{{.Title}}</h1>
        <div class="range">{{.Range}}</div>

        <div class="metrics">
            <span>Posts scraped: <b>{{.Overview.Posts}}</b></span>
            <span>% Reddit: <b>{{printf "%.1f" .Overview.RedditShare}}%</b></span>
            <span>Timespan: <b>{{if .Overview.HasTimespan}}{{.Overview.TimespanDays}} days{{else}}n/a{{end}}</b></span>
        </div>

        <h2>Buckets</h2>
        <table>
            {{range .Counts}}<tr><td>{{.Category}}</td><td>{{.Count}}</td></tr>{{end}}
        </table>

        {{if .Alerts}}
        <h2 class="spike">Spikes detected</h2>
        <table>
            <tr><th>Date</th><th>Bucket</th><th>Count</th></tr>
            {{range .Alerts}}<tr><td>{{day .Date}}</td><td>{{.Category}}</td><td>{{.Count}}</td></tr>{{end}}
        </table>
        {{end}}

        <h2>Daily posts</h2>
        <table>
            <tr><th>Date</th>{{range .Categories}}<th>{{.}}</th>{{end}}</tr>
            {{range .Rows}}<tr><td>{{day .Date}}</td>{{range .Counts}}<td>{{.}}</td>{{end}}</tr>{{end}}
        </table>

        {{range .Communities}}
        <h2>Top {{.Platform}} communities</h2>
        <table>
            {{range .Entries}}<tr><td>{{.Community}}</td><td>{{.Count}}</td></tr>{{end}}
        </table>
        {{end}}

        {{if .Sample}}
        <h2>Content sample</h2>
        <table>
            <tr><th>Date</th><th>Platform</th><th>Community</th><th>Bucket</th><th>Post</th></tr>
            {{range .Sample}}<tr><td>{{.Date}}</td><td>{{.Origin}}</td><td>{{.Community}}</td><td>{{.Bucket}}</td><td class="content">{{if .URL}}<a href="{{.URL}}">{{.Content}}</a>{{else}}{{.Content}}{{end}}</td></tr>{{end}}
        </table>
        {{end}}

        <div class="footer">
            {{.Total}} posts in selection · Generated by listen4me
        </div>
    </div>
</body>
</html>`
