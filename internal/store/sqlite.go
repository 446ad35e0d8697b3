package store

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/timeviewer/backend/internal/session"

	_ "modernc.org/sqlite"
)

// SQLiteStore persists segments in a single SQLite table. Times are stored
// as Unix nanoseconds so ordering and cutoff comparisons are numeric.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (creating if needed) the database at dbPath and ensures the
// schema exists.
func Open(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create db dir: %w", err)
		}
	}
	dsn := dbPath + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite allows one writer; a single connection serialises callers
	// instead of surfacing SQLITE_BUSY to them.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) ensureSchema(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS segments (
  starttime INTEGER PRIMARY KEY,
  endtime INTEGER,
  app TEXT NOT NULL,
  title TEXT,
  url TEXT
);
`
	if _, err := s.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create segments table: %w", err)
	}
	const idx = `CREATE INDEX IF NOT EXISTS segments_endtime ON segments(endtime);`
	if _, err := s.db.ExecContext(ctx, idx); err != nil {
		return fmt.Errorf("create segments index: %w", err)
	}
	return nil
}

// InsertOpen records a new open segment for activity starting at start.
func (s *SQLiteStore) InsertOpen(ctx context.Context, activity session.Activity, start time.Time) (session.Segment, error) {
	const stmt = `INSERT INTO segments (starttime, endtime, app, title, url) VALUES (?, NULL, ?, ?, ?)`

	title := activity.Title
	seg := session.Segment{
		Start: start,
		Title: &title,
		URL:   activity.URL,
		App:   activity.App,
	}
	_, err := s.db.ExecContext(ctx, stmt, start.UnixNano(), seg.App, nullString(seg.Title), nullString(seg.URL))
	if err != nil {
		return session.Segment{}, session.StorageError("insert segment", err)
	}
	return seg, nil
}

// Close sets the end of the open segment starting at start. Closing a
// segment that is missing or already closed changes nothing.
func (s *SQLiteStore) Close(ctx context.Context, start, end time.Time) error {
	const stmt = `UPDATE segments SET endtime = ? WHERE starttime = ? AND endtime IS NULL`
	if _, err := s.db.ExecContext(ctx, stmt, end.UnixNano(), start.UnixNano()); err != nil {
		return session.StorageError("close segment", err)
	}
	return nil
}

// QueryRecent returns every segment that is still open or ended after
// cutoff, ordered by start time.
func (s *SQLiteStore) QueryRecent(ctx context.Context, cutoff time.Time) ([]session.Segment, error) {
	const q = `
SELECT starttime, endtime, app, title, url FROM segments
WHERE endtime IS NULL OR endtime > ?
ORDER BY starttime`

	rows, err := s.db.QueryContext(ctx, q, cutoff.UnixNano())
	if err != nil {
		return nil, session.StorageError("query recent segments", err)
	}
	defer rows.Close()

	segments := make([]session.Segment, 0)
	for rows.Next() {
		seg, err := scanSegment(rows)
		if err != nil {
			return nil, session.StorageError("scan segment", err)
		}
		segments = append(segments, seg)
	}
	if err := rows.Err(); err != nil {
		return nil, session.StorageError("query recent segments", err)
	}
	return segments, nil
}

// LatestOpen returns the newest segment without an end, if any.
func (s *SQLiteStore) LatestOpen(ctx context.Context) (session.Segment, bool, error) {
	const q = `
SELECT starttime, endtime, app, title, url FROM segments
WHERE endtime IS NULL
ORDER BY starttime DESC LIMIT 1`

	seg, err := scanSegment(s.db.QueryRowContext(ctx, q))
	if err == sql.ErrNoRows {
		return session.Segment{}, false, nil
	}
	if err != nil {
		return session.Segment{}, false, session.StorageError("query open segment", err)
	}
	return seg, true, nil
}

func (s *SQLiteStore) Shutdown() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSegment(row scanner) (session.Segment, error) {
	var (
		start      int64
		end        sql.NullInt64
		app        string
		title, url sql.NullString
	)
	if err := row.Scan(&start, &end, &app, &title, &url); err != nil {
		return session.Segment{}, err
	}

	seg := session.Segment{
		Start: time.Unix(0, start).UTC(),
		App:   app,
	}
	if end.Valid {
		t := time.Unix(0, end.Int64).UTC()
		seg.End = &t
	}
	if title.Valid {
		seg.Title = &title.String
	}
	if url.Valid {
		seg.URL = &url.String
	}
	return seg, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
