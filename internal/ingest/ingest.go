// Package ingest reads exported post files into source records.
package ingest

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/ibeckermayer/listen4me/internal/source"
)

// Kind identifies the shape of an input file.
type Kind string

const (
	KindSheet   Kind = "sheet"
	KindReddit  Kind = "reddit"
	KindYouTube Kind = "youtube"
)

// ParseKind validates a user-supplied kind. "" means infer from the file.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case "", KindSheet, KindReddit, KindYouTube:
		return k, nil
	default:
		return "", fmt.Errorf("unknown input kind %q (want sheet, reddit or youtube)", s)
	}
}

// Stats describes what a read produced.
type Stats struct {
	Rows    int `json:"rows"`
	Skipped int `json:"skipped"` // blank or malformed lines
}

// Options controls ReadFile.
type Options struct {
	Kind      Kind
	HeaderRow int    // lines before the CSV header row
	Phrase    string // search phrase to tag rows with; defaults to the file name
}

// ReadFile reads path according to opts.Kind. With no kind, .csv files are
// read as sheets and .ndjson/.jsonl files are sniffed per line.
func ReadFile(path string, opts Options) ([]source.Record, Stats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, Stats{}, err
	}
	defer f.Close()

	if opts.Phrase == "" {
		opts.Phrase = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	kind := opts.Kind
	if kind == "" && strings.EqualFold(filepath.Ext(path), ".csv") {
		kind = KindSheet
	}

	switch kind {
	case KindSheet:
		return ReadSheet(f, opts.HeaderRow, opts.Phrase)
	default:
		return ReadNDJSON(f, kind, opts.Phrase)
	}
}

// sheet column headers, compared case-insensitively
const (
	colPlatform = "platform"
	colDate     = "post date"
	colContent  = "post content"
	colPostURL  = "post url"
	colUsername = "username"
	colUserURL  = "user url"
)

// ReadSheet reads a CSV export. headerRow lines are skipped before the header.
// Missing columns leave the corresponding field empty.
func ReadSheet(r io.Reader, headerRow int, phrase string) ([]source.Record, Stats, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, Stats{}, fmt.Errorf("read csv: %w", err)
	}
	if len(rows) <= headerRow {
		return nil, Stats{}, errors.New("empty csv")
	}

	cols := map[string]int{}
	for i, h := range rows[headerRow] {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		if _, dup := cols[key]; !dup {
			cols[key] = i
		}
	}
	if _, ok := cols[colContent]; !ok {
		return nil, Stats{}, fmt.Errorf("csv must contain a %q header column", "Post Content")
	}

	get := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var stats Stats
	var out []source.Record
	for _, row := range rows[headerRow+1:] {
		if blank(row) {
			stats.Skipped++
			continue
		}
		out = append(out, source.SheetRow{
			Platform:    get(row, colPlatform),
			PostDate:    get(row, colDate),
			PostContent: get(row, colContent),
			PostURL:     get(row, colPostURL),
			Username:    get(row, colUsername),
			UserURL:     get(row, colUserURL),
			Phrase:      phrase,
		})
		stats.Rows++
	}
	return out, stats, nil
}

// ReadNDJSON reads one JSON object per line. With KindReddit or KindYouTube
// every line is decoded as that shape; otherwise each line is sniffed.
// Malformed lines are counted and skipped.
func ReadNDJSON(r io.Reader, kind Kind, phrase string) ([]source.Record, Stats, error) {
	var stats Stats
	var out []source.Record

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			stats.Skipped++
			continue
		}
		rec, err := decodeLine([]byte(line), kind, phrase)
		if err != nil {
			stats.Skipped++
			continue
		}
		out = append(out, rec)
		stats.Rows++
	}
	if err := sc.Err(); err != nil {
		return nil, stats, fmt.Errorf("read ndjson: %w", err)
	}
	return out, stats, nil
}

func decodeLine(line []byte, kind Kind, phrase string) (source.Record, error) {
	if kind == "" {
		kind = sniff(line)
	}
	switch kind {
	case KindReddit:
		var rec source.RedditSubmission
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, err
		}
		if rec.Phrase == "" {
			rec.Phrase = phrase
		}
		return rec, nil
	case KindYouTube:
		var rec source.YouTubeComment
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, err
		}
		if rec.Phrase == "" {
			rec.Phrase = phrase
		}
		return rec, nil
	default:
		var rec source.SheetRow
		if err := json.Unmarshal(line, &rec); err != nil {
			return nil, err
		}
		if rec.Phrase == "" {
			rec.Phrase = phrase
		}
		return rec, nil
	}
}

// sniff guesses the record shape from the keys present on the line.
func sniff(line []byte) Kind {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal(line, &keys); err != nil {
		return KindSheet
	}
	if _, ok := keys["subreddit"]; ok {
		return KindReddit
	}
	if _, ok := keys["created_utc"]; ok {
		return KindReddit
	}
	if _, ok := keys["textOriginal"]; ok {
		return KindYouTube
	}
	if _, ok := keys["videoId"]; ok {
		return KindYouTube
	}
	return KindSheet
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
