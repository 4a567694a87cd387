package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	_ "modernc.org/sqlite" // SQLite driver registration.

	"hntldr/internal/model"
	"hntldr/migrations"
)

const timeLayout = "2006-01-02T15:04:05Z"

const recordColumns = `story_id, chat_id, message_id, title, url, hook,
	score, comments, first_posted_at, last_refreshed_at`

// SQLite implements Storage backed by a SQLite database.
// All operations are serialised by a single mutex.
type SQLite struct {
	mu    sync.Mutex
	db    *sql.DB
	clock clockwork.Clock
}

// NewSQLite opens a SQLite database at dsn and runs pending migrations.
func NewSQLite(dsn string) (*SQLite, error) {
	return NewSQLiteWithClock(dsn, clockwork.NewRealClock())
}

// NewSQLiteWithClock is like NewSQLite but reads the current time from clock.
func NewSQLiteWithClock(dsn string, clock clockwork.Clock) (*SQLite, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One connection keeps ":memory:" databases intact and matches the
	// store-wide lock below.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA synchronous=FULL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %q: %w", pragma, err)
		}
	}

	if err := migrations.Run(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	return &SQLite{db: db, clock: clock}, nil
}

// Close closes the underlying database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

// Exists reports whether a post record for storyID is present.
func (s *SQLite) Exists(ctx context.Context, storyID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM post_records WHERE story_id = ?`, storyID,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check exists: %w", err)
	}
	return count > 0, nil
}

// Record creates the post record for a freshly published story.
// LastRefreshedAt defaults to FirstPostedAt when unset.
func (s *SQLite) Record(ctx context.Context, rec model.PostRecord) error {
	if rec.StoryID == "" {
		return fmt.Errorf("record: empty story id")
	}
	if rec.FirstPostedAt.IsZero() {
		rec.FirstPostedAt = s.clock.Now()
	}
	if rec.LastRefreshedAt.IsZero() {
		rec.LastRefreshedAt = rec.FirstPostedAt
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO post_records (`+recordColumns+`)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT (story_id) DO NOTHING`,
		rec.StoryID, rec.Handle.ChatID, rec.Handle.MessageID, rec.Title, rec.URL, rec.Hook,
		rec.Score, rec.Comments, formatTime(rec.FirstPostedAt), formatTime(rec.LastRefreshedAt),
	)
	if err != nil {
		return fmt.Errorf("insert post record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("record %s: %w", rec.StoryID, ErrAlreadyExists)
	}
	return nil
}

// Touch stores refreshed counters for an existing record.
func (s *SQLite) Touch(ctx context.Context, storyID string, score, comments int, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE post_records SET score = ?, comments = ?, last_refreshed_at = ?
		 WHERE story_id = ?`,
		score, comments, formatTime(now), storyID,
	)
	if err != nil {
		return fmt.Errorf("update post record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("touch %s: %w", storyID, ErrNotFound)
	}
	return nil
}

// Get returns the post record for storyID.
func (s *SQLite) Get(ctx context.Context, storyID string) (*model.PostRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM post_records WHERE story_id = ?`, storyID,
	)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("get %s: %w", storyID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// RecentlyPosted returns the records first posted within window of now.
func (s *SQLite) RecentlyPosted(ctx context.Context, window time.Duration) ([]model.PostRecord, error) {
	cutoff := formatTime(s.clock.Now().Add(-window))

	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM post_records
		 WHERE first_posted_at >= ?
		 ORDER BY first_posted_at`, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("query recent records: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var recs []model.PostRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

// Prune deletes records first posted before olderThan and returns how many
// were removed.
func (s *SQLite) Prune(ctx context.Context, olderThan time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM post_records WHERE first_posted_at < ?`, formatTime(olderThan),
	)
	if err != nil {
		return 0, fmt.Errorf("prune post records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanRecord(row scannable) (model.PostRecord, error) {
	var rec model.PostRecord
	var firstPosted, lastRefreshed string
	err := row.Scan(
		&rec.StoryID, &rec.Handle.ChatID, &rec.Handle.MessageID, &rec.Title, &rec.URL, &rec.Hook,
		&rec.Score, &rec.Comments, &firstPosted, &lastRefreshed,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return rec, err
	}
	if err != nil {
		return rec, fmt.Errorf("scan post record: %w", err)
	}
	if rec.FirstPostedAt, err = time.Parse(timeLayout, firstPosted); err != nil {
		return rec, fmt.Errorf("scan post record %s: first_posted_at: %w", rec.StoryID, err)
	}
	if rec.LastRefreshedAt, err = time.Parse(timeLayout, lastRefreshed); err != nil {
		return rec, fmt.Errorf("scan post record %s: last_refreshed_at: %w", rec.StoryID, err)
	}
	return rec, nil
}
