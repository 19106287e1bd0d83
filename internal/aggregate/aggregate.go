// Package aggregate rolls classified posts into the tables an analyst reads:
// per-bucket counts, a zero-filled daily pivot and top-community rankings.
// Every function here is pure; inputs are never modified.
package aggregate

import (
	"sort"
	"time"

	"github.com/ibeckermayer/listen4me/internal/dates"
	"github.com/ibeckermayer/listen4me/internal/spikes"
	"github.com/ibeckermayer/listen4me/internal/types"
)

// DefaultTopN is the length of each community ranking.
const DefaultTopN = 10

// Query selects the posts to aggregate. Start and End are inclusive calendar
// days; a zero bound defaults to the earliest/latest dated post in the input.
type Query struct {
	Start      time.Time
	End        time.Time
	Categories []string
	TopN       int
}

// CategoryCount is one entry of the frequency table.
type CategoryCount struct {
	Category string `json:"category"`
	Count    int    `json:"count"`
}

// CommunityCount is one entry of a community ranking.
type CommunityCount struct {
	Community string `json:"community"`
	Count     int    `json:"count"`
}

// PivotRow holds one day's counts, aligned with Pivot.Categories.
type PivotRow struct {
	Date   time.Time `json:"date"`
	Counts []int     `json:"counts"`
}

// Pivot is a contiguous date x category table.
type Pivot struct {
	Categories []string   `json:"categories"`
	Rows       []PivotRow `json:"rows"`
}

// Result is the output of Aggregate.
type Result struct {
	Start          time.Time                         `json:"start"`
	End            time.Time                         `json:"end"`
	Total          int                               `json:"total"`
	Counts         []CategoryCount                   `json:"counts"`
	Pivot          Pivot                             `json:"pivot"`
	TopCommunities map[types.Origin][]CommunityCount `json:"top_communities"`
}

// Empty reports whether no post survived the filters.
func (r *Result) Empty() bool {
	return r.Total == 0
}

// CountsMap returns the frequency table keyed by category.
func (r *Result) CountsMap() map[string]int {
	m := make(map[string]int, len(r.Counts))
	for _, c := range r.Counts {
		m[c.Category] = c.Count
	}
	return m
}

// Aggregate filters posts by date and bucket and builds the summary tables.
func Aggregate(posts []types.Post, q Query) *Result {
	categories := dedupe(q.Categories)
	topN := q.TopN
	if topN <= 0 {
		topN = DefaultTopN
	}

	start, end := bounds(posts, q)
	res := &Result{
		Start:          start,
		End:            end,
		Counts:         []CategoryCount{},
		Pivot:          Pivot{Categories: []string{}, Rows: []PivotRow{}},
		TopCommunities: map[types.Origin][]CommunityCount{},
	}
	if len(categories) == 0 || start.IsZero() || end.Before(start) {
		return res
	}

	col := make(map[string]int, len(categories))
	for i, c := range categories {
		col[c] = i
	}

	numDays := daysBetween(start, end) + 1
	rows := make([]PivotRow, numDays)
	for i := range rows {
		rows[i] = PivotRow{Date: start.AddDate(0, 0, i), Counts: make([]int, len(categories))}
	}
	totals := make([]int, len(categories))
	rank := map[types.Origin]*ranking{
		types.OriginReddit:  newRanking(),
		types.OriginYouTube: newRanking(),
	}

	for _, p := range posts {
		if !p.HasTimestamp() {
			continue
		}
		day := dates.Day(p.Timestamp)
		if day.Before(start) || day.After(end) {
			continue
		}
		c, ok := col[p.Bucket]
		if !ok {
			continue
		}

		res.Total++
		totals[c]++
		rows[daysBetween(start, day)].Counts[c]++
		if r, ok := rank[p.Origin]; ok && p.Community != types.UnknownCommunity && p.Community != "" {
			r.add(p.Community)
		}
	}

	res.Pivot = Pivot{Categories: categories, Rows: rows}
	res.Counts = make([]CategoryCount, len(categories))
	for i, c := range categories {
		res.Counts[i] = CategoryCount{Category: c, Count: totals[i]}
	}
	for origin, r := range rank {
		if top := r.top(topN); len(top) > 0 {
			res.TopCommunities[origin] = top
		}
	}
	return res
}

// Series returns the daily series for one category, or nil if it was not selected.
func (p Pivot) Series(category string) []spikes.Point {
	c := -1
	for i, name := range p.Categories {
		if name == category {
			c = i
			break
		}
	}
	if c < 0 {
		return nil
	}
	out := make([]spikes.Point, len(p.Rows))
	for i, row := range p.Rows {
		out[i] = spikes.Point{Date: row.Date, Count: row.Counts[c]}
	}
	return out
}

// Totals returns the daily series summed over all selected categories.
func (p Pivot) Totals() []spikes.Point {
	out := make([]spikes.Point, len(p.Rows))
	for i, row := range p.Rows {
		sum := 0
		for _, n := range row.Counts {
			sum += n
		}
		out[i] = spikes.Point{Date: row.Date, Count: sum}
	}
	return out
}

// bounds resolves the query's day range, filling zero bounds from the data.
func bounds(posts []types.Post, q Query) (time.Time, time.Time) {
	var start, end time.Time
	if !q.Start.IsZero() {
		start = dates.Day(q.Start)
	}
	if !q.End.IsZero() {
		end = dates.Day(q.End)
	}
	if !start.IsZero() && !end.IsZero() {
		return start, end
	}

	var lo, hi time.Time
	for _, p := range posts {
		if !p.HasTimestamp() {
			continue
		}
		d := dates.Day(p.Timestamp)
		if lo.IsZero() || d.Before(lo) {
			lo = d
		}
		if hi.IsZero() || d.After(hi) {
			hi = d
		}
	}
	if start.IsZero() {
		start = lo
	}
	if end.IsZero() {
		end = hi
	}
	return start, end
}

// daysBetween counts whole calendar days from a to b. It works on Unix
// seconds since time.Duration saturates after about 292 years.
func daysBetween(a, b time.Time) int {
	return int((dates.Day(b).Unix() - dates.Day(a).Unix()) / secondsPerDay)
}

const secondsPerDay = 24 * 60 * 60

func dedupe(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok || s == "" {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

// ranking counts communities while remembering first-seen order for ties.
type ranking struct {
	counts map[string]int
	order  []string
}

func newRanking() *ranking {
	return &ranking{counts: map[string]int{}}
}

func (r *ranking) add(name string) {
	if _, ok := r.counts[name]; !ok {
		r.order = append(r.order, name)
	}
	r.counts[name]++
}

func (r *ranking) top(n int) []CommunityCount {
	list := make([]CommunityCount, len(r.order))
	for i, name := range r.order {
		list[i] = CommunityCount{Community: name, Count: r.counts[name]}
	}
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Count > list[j].Count
	})
	if len(list) > n {
		list = list[:n]
	}
	return list
}
