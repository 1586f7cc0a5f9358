// Package meetings persists the final transcription artifact. The queue
// core never touches this store directly; the processing pipeline does.
package meetings

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when no meeting row exists for an id.
var ErrNotFound = errors.New("meeting not found")

type Meeting struct {
	ID              int64
	Filename        string
	ObjectKey       string
	Transcript      string
	Summary         string
	Language        string
	DurationSeconds float64
	Keywords        []string
	CreatedAt       time.Time
}

type Store struct {
	DB *sql.DB
}

func NewStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// WAL so the API reader and the worker writer do not block each other.
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return nil, fmt.Errorf("enable WAL: %w", err)
	}

	if err := migrate(db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Store{DB: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
CREATE TABLE IF NOT EXISTS meetings (
  id INTEGER PRIMARY KEY AUTOINCREMENT,
  filename TEXT NOT NULL,
  object_key TEXT NOT NULL,
  transcript TEXT,
  summary TEXT,
  language TEXT,
  duration_seconds REAL,
  keywords TEXT,
  created_at TEXT NOT NULL
);
`
	_, err := db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.DB.Close()
}

// Create inserts a new meeting row for an uploaded recording and returns
// its id.
func (s *Store) Create(ctx context.Context, filename, objectKey string) (int64, error) {
	res, err := s.DB.ExecContext(ctx, `
INSERT INTO meetings (filename, object_key, created_at)
VALUES (?, ?, ?)
`, filename, objectKey, time.Now().UTC().Format(time.RFC3339Nano))
	if err != nil {
		return 0, fmt.Errorf("insert meeting: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("meeting id: %w", err)
	}
	return id, nil
}

// ApplyResults writes the processing outputs onto an existing meeting row.
// A missing row is an error so the caller can fail (and retry) the job.
func (s *Store) ApplyResults(ctx context.Context, id int64, transcript, summary, language string, durationSeconds float64, keywords []string) error {
	res, err := s.DB.ExecContext(ctx, `
UPDATE meetings
SET transcript=?, summary=?, language=?, duration_seconds=?, keywords=?
WHERE id=?
`, transcript, summary, language, durationSeconds, strings.Join(keywords, ","), id)
	if err != nil {
		return fmt.Errorf("update meeting %d: %w", id, err)
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update meeting %d: %w", id, err)
	}
	if rows == 0 {
		return fmt.Errorf("meeting %d: %w", id, ErrNotFound)
	}
	return nil
}

// Get returns a single meeting or ErrNotFound.
func (s *Store) Get(ctx context.Context, id int64) (*Meeting, error) {
	row := s.DB.QueryRowContext(ctx, `
SELECT id, filename, object_key, transcript, summary, language, duration_seconds, keywords, created_at
FROM meetings WHERE id=?
`, id)
	m, err := scanMeeting(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

// List returns meetings newest first.
func (s *Store) List(ctx context.Context) ([]*Meeting, error) {
	rows, err := s.DB.QueryContext(ctx, `
SELECT id, filename, object_key, transcript, summary, language, duration_seconds, keywords, created_at
FROM meetings ORDER BY id DESC
`)
	if err != nil {
		return nil, fmt.Errorf("list meetings: %w", err)
	}
	defer rows.Close()

	var out []*Meeting
	for rows.Next() {
		m, err := scanMeeting(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMeeting(row scanner) (*Meeting, error) {
	var m Meeting
	var transcript, summary, language, keywords sql.NullString
	var duration sql.NullFloat64
	var createdAt string
	if err := row.Scan(&m.ID, &m.Filename, &m.ObjectKey, &transcript, &summary, &language, &duration, &keywords, &createdAt); err != nil {
		return nil, err
	}
	m.Transcript = transcript.String
	m.Summary = summary.String
	m.Language = language.String
	m.DurationSeconds = duration.Float64
	if keywords.String != "" {
		m.Keywords = strings.Split(keywords.String, ",")
	}
	m.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &m, nil
}
