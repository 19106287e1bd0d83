package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/ibeckermayer/listen4me/internal/types"
)

// ErrNoPosts is returned by LoadPosts when the filter matches nothing.
var ErrNoPosts = errors.New("no posts stored")

// Store handles all database operations
type Store struct {
	db *sql.DB
}

// Filter narrows ListPosts. Zero values match everything.
type Filter struct {
	Phrase string
	Origin types.Origin
	Bucket string
}

// ReportEntry records a rendered report
type ReportEntry struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Start     time.Time `json:"start"`
	End       time.Time `json:"end"`
	Total     int       `json:"total"`
	Spikes    int       `json:"spikes"`
	Path      string    `json:"path"`
}

// New creates a new Store with SQLite backend
func New(dbPath string) (*Store, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer; serialize through a single connection.
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}

	return s, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema
func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS posts (
		id TEXT PRIMARY KEY,
		text TEXT NOT NULL,
		posted_at INTEGER,
		raw_date TEXT,
		origin TEXT NOT NULL,
		community TEXT NOT NULL,
		author TEXT,
		permalink TEXT,
		phrase TEXT,
		bucket TEXT NOT NULL,
		ingested_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS report_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		created_at TEXT NOT NULL,
		range_start TEXT NOT NULL,
		range_end TEXT NOT NULL,
		total INTEGER NOT NULL,
		spikes INTEGER NOT NULL,
		path TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_posts_posted_at ON posts(posted_at);
	CREATE INDEX IF NOT EXISTS idx_posts_bucket ON posts(bucket);
	CREATE INDEX IF NOT EXISTS idx_posts_phrase ON posts(phrase);
	`

	_, err := s.db.Exec(schema)
	return err
}

// SavePosts inserts or updates classified posts in one transaction.
// Re-ingesting a post overwrites every stored field (including the phrase it
// was collected under) but keeps its position.
func (s *Store) SavePosts(ctx context.Context, posts []types.Post) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO posts (id, text, posted_at, raw_date, origin, community,
			author, permalink, phrase, bucket)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			text = excluded.text,
			posted_at = excluded.posted_at,
			raw_date = excluded.raw_date,
			origin = excluded.origin,
			community = excluded.community,
			author = excluded.author,
			permalink = excluded.permalink,
			phrase = excluded.phrase,
			bucket = excluded.bucket
	`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, p := range posts {
		if !p.Classified() {
			return fmt.Errorf("post %s has no bucket", p.ID)
		}
		_, err := stmt.ExecContext(ctx, p.ID, p.Text, unixOrNull(p.Timestamp), p.RawDate,
			string(p.Origin), p.Community, p.Author, p.Permalink, p.Phrase, p.Bucket)
		if err != nil {
			return fmt.Errorf("save post %s: %w", p.ID, err)
		}
	}

	return tx.Commit()
}

// UpdateBuckets rewrites the bucket of each post after reclassification
func (s *Store) UpdateBuckets(ctx context.Context, posts []types.Post) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `UPDATE posts SET bucket = ? WHERE id = ? AND bucket <> ?`)
	if err != nil {
		return 0, err
	}
	defer stmt.Close()

	changed := 0
	for _, p := range posts {
		res, err := stmt.ExecContext(ctx, p.Bucket, p.ID, p.Bucket)
		if err != nil {
			return 0, fmt.Errorf("update post %s: %w", p.ID, err)
		}
		n, _ := res.RowsAffected()
		changed += int(n)
	}

	return changed, tx.Commit()
}

// ListPosts returns stored posts in ingestion order
func (s *Store) ListPosts(ctx context.Context, f Filter) ([]types.Post, error) {
	var where []string
	var args []any
	if f.Phrase != "" {
		where = append(where, "phrase = ?")
		args = append(args, f.Phrase)
	}
	if f.Origin != "" {
		where = append(where, "origin = ?")
		args = append(args, string(f.Origin))
	}
	if f.Bucket != "" {
		where = append(where, "bucket = ?")
		args = append(args, f.Bucket)
	}

	query := `
		SELECT id, text, posted_at, raw_date, origin, community,
			author, permalink, phrase, bucket
		FROM posts`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " ORDER BY rowid"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	return scanPosts(rows)
}

// LoadPosts is ListPosts but reports ErrNoPosts on an empty result.
func (s *Store) LoadPosts(ctx context.Context, f Filter) ([]types.Post, error) {
	posts, err := s.ListPosts(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, ErrNoPosts
	}
	return posts, nil
}

// CountPosts returns the number of stored posts
func (s *Store) CountPosts(ctx context.Context) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM posts`).Scan(&n)
	return n, err
}

// Phrases lists the distinct search phrases stored
func (s *Store) Phrases(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT phrase FROM posts
		WHERE phrase IS NOT NULL AND phrase <> ''
		GROUP BY phrase
		ORDER BY MIN(rowid)
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// RecordReport stores a report in the history table
func (s *Store) RecordReport(ctx context.Context, e ReportEntry) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO report_history (created_at, range_start, range_end, total, spikes, path)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.CreatedAt.UTC().Format(time.RFC3339), e.Start.Format(dayLayout), e.End.Format(dayLayout), e.Total, e.Spikes, e.Path)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

// RecentReports returns the newest report entries first
func (s *Store) RecentReports(ctx context.Context, limit int) ([]ReportEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, created_at, range_start, range_end, total, spikes, path
		FROM report_history
		ORDER BY id DESC
		LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ReportEntry
	for rows.Next() {
		var e ReportEntry
		var created, start, end string
		var path sql.NullString
		if err := rows.Scan(&e.ID, &created, &start, &end, &e.Total, &e.Spikes, &path); err != nil {
			return nil, err
		}
		e.CreatedAt, _ = time.Parse(time.RFC3339, created)
		e.Start, _ = time.Parse(dayLayout, start)
		e.End, _ = time.Parse(dayLayout, end)
		e.Path = path.String
		out = append(out, e)
	}
	return out, rows.Err()
}

const dayLayout = "2006-01-02"

func unixOrNull(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t.Unix()
}

func scanPosts(rows *sql.Rows) ([]types.Post, error) {
	var posts []types.Post
	for rows.Next() {
		var p types.Post
		var postedAt sql.NullInt64
		var rawDate, author, permalink, phrase sql.NullString
		var origin string

		err := rows.Scan(
			&p.ID, &p.Text, &postedAt, &rawDate, &origin, &p.Community,
			&author, &permalink, &phrase, &p.Bucket,
		)
		if err != nil {
			return nil, err
		}

		if postedAt.Valid {
			p.Timestamp = time.Unix(postedAt.Int64, 0).UTC()
		}
		p.Origin = types.Origin(origin)
		p.RawDate = rawDate.String
		p.Author = author.String
		p.Permalink = permalink.String
		p.Phrase = phrase.String
		posts = append(posts, p)
	}
	return posts, rows.Err()
}
