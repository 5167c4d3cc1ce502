// Package history keeps a SQLite record of finished runs for the dashboard.
package history

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/qepting91/reddit-media-dl/internal/domain"
)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
	run_id      TEXT PRIMARY KEY,
	started_at  TEXT NOT NULL,
	finished_at TEXT NOT NULL,
	label       TEXT NOT NULL,
	subreddits  TEXT NOT NULL,
	fetched     INTEGER NOT NULL,
	eligible    INTEGER NOT NULL,
	attempted   INTEGER NOT NULL,
	succeeded   INTEGER NOT NULL,
	failed      INTEGER NOT NULL,
	skipped     INTEGER NOT NULL,
	bytes       INTEGER NOT NULL,
	notes       TEXT
);
CREATE TABLE IF NOT EXISTS artifacts (
	run_id       TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	post_id      TEXT NOT NULL,
	subreddit    TEXT NOT NULL,
	title        TEXT,
	kind         TEXT NOT NULL,
	strategy     TEXT,
	resolved_url TEXT,
	path         TEXT NOT NULL,
	size_bytes   INTEGER NOT NULL,
	saved_at     TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS failures (
	run_id    TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
	post_id   TEXT,
	subreddit TEXT,
	stage     TEXT NOT NULL,
	reason    TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_runs_started ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_artifacts_subreddit ON artifacts(subreddit);
`

// Store is the run history database.
type Store struct {
	db *sql.DB
}

// Run is one row of the runs table.
type Run struct {
	ID         string        `json:"run_id"`
	StartedAt  time.Time     `json:"started_at"`
	Duration   time.Duration `json:"duration_ns"`
	Label      string        `json:"label"`
	Subreddits []string      `json:"subreddits"`
	Fetched    int           `json:"fetched"`
	Eligible   int           `json:"eligible"`
	Succeeded  int           `json:"succeeded"`
	Failed     int           `json:"failed"`
	Skipped    int           `json:"skipped"`
	Bytes      int64         `json:"bytes"`
}

// Total aggregates saved artifacts under one key.
type Total struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
	Bytes int64  `json:"bytes"`
}

// Open opens or creates the database at path.
func Open(path string) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	// One writer keeps SQLite happy and makes :memory: behave as one database.
	db.SetMaxOpenConns(1)

	for _, p := range []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 10000",
		"PRAGMA synchronous = NORMAL",
	} {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", p, err)
		}
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun stores a finished run with its artifacts and failures.
func (s *Store) RecordRun(ctx context.Context, sum domain.RunSummary) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO runs (run_id, started_at, finished_at, label, subreddits, fetched, eligible,
			attempted, succeeded, failed, skipped, bytes, notes)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.RunID, formatTime(sum.StartedAt), formatTime(sum.FinishedAt), sum.Request.Label(),
		strings.Join(sum.Request.Subreddits, ","), sum.Fetched, sum.Eligible, sum.Attempted,
		sum.Succeeded, sum.Failed, sum.Skipped, sum.TotalBytes(), strings.Join(sum.Notes, "\n"),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	for _, a := range sum.Artifacts {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO artifacts (run_id, post_id, subreddit, title, kind, strategy, resolved_url,
				path, size_bytes, saved_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			sum.RunID, a.Post.ID, strings.ToLower(a.Post.Subreddit), a.Post.Title, string(a.Media.Kind),
			a.Media.Strategy, a.Media.URL, a.Path, a.Size, formatTime(a.SavedAt),
		)
		if err != nil {
			return fmt.Errorf("insert artifact %s: %w", a.Post.ID, err)
		}
	}

	for _, f := range sum.Failures {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO failures (run_id, post_id, subreddit, stage, reason) VALUES (?, ?, ?, ?, ?)`,
			sum.RunID, f.PostID, f.Subreddit, string(f.Stage), f.Reason,
		)
		if err != nil {
			return fmt.Errorf("insert failure: %w", err)
		}
	}

	return tx.Commit()
}

// RecentRuns returns up to n runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, n int) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, started_at, finished_at, label, subreddits, fetched, eligible,
			succeeded, failed, skipped, bytes
		FROM runs ORDER BY started_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r                 Run
			started, finished string
			subs              string
		)
		if err := rows.Scan(&r.ID, &started, &finished, &r.Label, &subs, &r.Fetched, &r.Eligible,
			&r.Succeeded, &r.Failed, &r.Skipped, &r.Bytes); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = parseTime(started)
		if end := parseTime(finished); !end.IsZero() {
			r.Duration = end.Sub(r.StartedAt)
		}
		if subs != "" {
			r.Subreddits = strings.Split(subs, ",")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// SubredditTotals counts saved artifacts per subreddit, largest first.
func (s *Store) SubredditTotals(ctx context.Context) ([]Total, error) {
	return s.totals(ctx, "subreddit")
}

// KindTotals counts saved artifacts per media kind.
func (s *Store) KindTotals(ctx context.Context) ([]Total, error) {
	return s.totals(ctx, "kind")
}

func (s *Store) totals(ctx context.Context, column string) ([]Total, error) {
	// column is one of two constants above, never user input.
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+column+`, COUNT(*), COALESCE(SUM(size_bytes), 0)
		FROM artifacts GROUP BY `+column+` ORDER BY COUNT(*) DESC, `+column)
	if err != nil {
		return nil, fmt.Errorf("query totals by %s: %w", column, err)
	}
	defer rows.Close()

	var out []Total
	for rows.Next() {
		var t Total
		if err := rows.Scan(&t.Key, &t.Count, &t.Bytes); err != nil {
			return nil, fmt.Errorf("scan total: %w", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// timeLayout has a fixed width so stored times sort as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}
	}
	return t
}
