// Package sqlitecal is a local calendar backend kept in a SQLite database.
package sqlitecal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"calsync/internal/gateway"
	"calsync/internal/log"
	"calsync/internal/model"
	"calsync/internal/tag"
)

const schema = `
CREATE TABLE IF NOT EXISTS entries (
	id               TEXT PRIMARY KEY,
	subject          TEXT NOT NULL,
	start_at         TEXT NOT NULL,
	duration_minutes INTEGER NOT NULL,
	body             TEXT NOT NULL,
	categories       TEXT NOT NULL DEFAULT '',
	created_at       TEXT NOT NULL,
	updated_at       TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS entries_created ON entries (created_at, id);
`

// startLayout stores local wall time without a zone.
const startLayout = "2006-01-02 15:04:05"

// Store is a SQLite-backed calendar.
type Store struct {
	db  *sql.DB
	log *log.Logger
	now func() time.Time
}

var _ gateway.Gateway = (*Store)(nil)

// Open opens (or creates) the database at path and applies the schema.
func Open(path string, l *log.Logger) (*Store, error) {
	if l == nil {
		l = log.Nop()
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// Serial access only.
	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("connect sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}
	return &Store{db: db, log: l, now: time.Now}, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// FindByTag searches bodies in SQL and falls back to scanning every row in
// Go if the query fails. Duplicates resolve to the earliest created entry.
func (s *Store) FindByTag(ctx context.Context, reference string) (*model.CalendarEntry, error) {
	want := tag.Encode(reference)

	row := s.db.QueryRowContext(ctx, `
		SELECT id, subject, start_at, duration_minutes, body, categories
		FROM entries
		WHERE instr(body, ?) > 0
		ORDER BY created_at, id
		LIMIT 1`, want)
	e, err := scanEntry(row)
	switch {
	case err == nil:
		return e, nil
	case errors.Is(err, sql.ErrNoRows):
		return nil, nil
	}

	s.log.Warn("tag query failed, falling back to full scan", "reference", reference, "err", err)
	e, scanErr := s.scanAll(ctx, want)
	if scanErr != nil {
		return nil, gateway.ReadError(reference, scanErr)
	}
	return e, nil
}

func (s *Store) scanAll(ctx context.Context, want string) (*model.CalendarEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, subject, start_at, duration_minutes, body, categories
		FROM entries ORDER BY created_at, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		if strings.Contains(e.Body, want) {
			return e, nil
		}
	}
	return nil, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(sc scanner) (*model.CalendarEntry, error) {
	var (
		e     model.CalendarEntry
		start string
	)
	if err := sc.Scan(&e.Handle, &e.Subject, &start, &e.DurationMinutes, &e.Body, &e.Categories); err != nil {
		return nil, err
	}
	// An unparseable start stays zero and reads as changed.
	if t, err := time.ParseInLocation(startLayout, start, time.Local); err == nil {
		e.Start = t
	}
	return &e, nil
}

func (s *Store) Create(ctx context.Context, d model.EntryDraft) (string, error) {
	id := uuid.NewString()
	ts := s.now().UTC().Format(time.RFC3339Nano)
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO entries (id, subject, start_at, duration_minutes, body, categories, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		id, d.Subject, d.Start.In(time.Local).Format(startLayout), d.DurationMinutes, d.Body,
		strings.TrimSpace(d.Category), ts, ts)
	if err != nil {
		return "", gateway.WriteError(gateway.OpCreate, "", err)
	}
	return id, nil
}

func (s *Store) Update(ctx context.Context, handle string, d model.EntryDraft) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE entries SET
			subject = ?,
			start_at = ?,
			duration_minutes = ?,
			body = ?,
			categories = CASE WHEN ? = '' THEN categories ELSE ? END,
			updated_at = ?
		WHERE id = ?`,
		d.Subject, d.Start.In(time.Local).Format(startLayout), d.DurationMinutes, d.Body,
		strings.TrimSpace(d.Category), strings.TrimSpace(d.Category),
		s.now().UTC().Format(time.RFC3339Nano), handle)
	if err != nil {
		return gateway.WriteError(gateway.OpUpdate, handle, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return gateway.WriteError(gateway.OpUpdate, handle, err)
	}
	if n == 0 {
		return gateway.WriteError(gateway.OpUpdate, handle, gateway.ErrNotFound)
	}
	return nil
}
