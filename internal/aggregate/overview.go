package aggregate

import (
	"strings"
	"time"

	"github.com/ibeckermayer/listen4me/internal/dates"
	"github.com/ibeckermayer/listen4me/internal/types"
)

// DefaultSampleLimit caps the quick content sample.
const DefaultSampleLimit = 200

// Overview is the headline numbers for a whole dataset, before any filter.
type Overview struct {
	Posts        int       `json:"posts"`
	DatedPosts   int       `json:"dated_posts"`
	RedditShare  float64   `json:"reddit_share"` // percent of all posts
	First        time.Time `json:"first,omitempty"`
	Last         time.Time `json:"last,omitempty"`
	TimespanDays int       `json:"timespan_days"`
}

// HasTimespan reports whether any post carried a date.
func (o Overview) HasTimespan() bool {
	return o.DatedPosts > 0
}

// Summarize computes the overview of posts.
func Summarize(posts []types.Post) Overview {
	var o Overview
	o.Posts = len(posts)
	if o.Posts == 0 {
		return o
	}

	reddit := 0
	for _, p := range posts {
		if p.Origin == types.OriginReddit {
			reddit++
		}
		if !p.HasTimestamp() {
			continue
		}
		o.DatedPosts++
		if o.First.IsZero() || p.Timestamp.Before(o.First) {
			o.First = p.Timestamp
		}
		if o.Last.IsZero() || p.Timestamp.After(o.Last) {
			o.Last = p.Timestamp
		}
	}

	o.RedditShare = float64(reddit) / float64(o.Posts) * 100
	if o.DatedPosts > 0 {
		o.TimespanDays = int(o.Last.Sub(o.First).Hours() / 24)
	}
	return o
}

// Sample returns up to limit posts whose text contains keyword, ignoring
// case, in input order. An empty keyword matches everything.
func Sample(posts []types.Post, keyword string, limit int) []types.Post {
	if limit <= 0 {
		limit = DefaultSampleLimit
	}
	needle := strings.ToLower(strings.TrimSpace(keyword))

	out := make([]types.Post, 0, min(limit, len(posts)))
	for _, p := range posts {
		if len(out) == limit {
			break
		}
		if needle == "" || strings.Contains(strings.ToLower(p.Text), needle) {
			out = append(out, p)
		}
	}
	return out
}

// CountBuckets tallies posts per bucket over the whole input, ignoring dates.
// Buckets are returned in the order given; unknown buckets are appended in
// first-seen order.
func CountBuckets(posts []types.Post, order []string) []CategoryCount {
	counts := map[string]int{}
	seen := append([]string(nil), order...)
	known := make(map[string]bool, len(order))
	for _, name := range order {
		known[name] = true
	}
	for _, p := range posts {
		if p.Bucket == "" {
			continue
		}
		if !known[p.Bucket] {
			known[p.Bucket] = true
			seen = append(seen, p.Bucket)
		}
		counts[p.Bucket]++
	}

	out := make([]CategoryCount, len(seen))
	for i, name := range seen {
		out[i] = CategoryCount{Category: name, Count: counts[name]}
	}
	return out
}

// DayRange returns the inclusive range ending on the day of end and spanning
// days calendar days.
func DayRange(end time.Time, days int) (time.Time, time.Time) {
	last := dates.Day(end)
	if days < 1 {
		days = 1
	}
	return last.AddDate(0, 0, -(days - 1)), last
}
