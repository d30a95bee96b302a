// Package sqlite persists turn records in a local SQLite database file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/MrWong99/voxdesk/internal/turnlog"
)

const ddl = `
CREATE TABLE IF NOT EXISTS turn_records (
    id           TEXT     PRIMARY KEY,
    started_at   INTEGER  NOT NULL,
    user_text    TEXT     NOT NULL DEFAULT '',
    intent       TEXT     NOT NULL DEFAULT '',
    tool_output  TEXT     NOT NULL DEFAULT '',
    reply        TEXT     NOT NULL DEFAULT '',
    refused      INTEGER  NOT NULL DEFAULT 0,
    duration_ns  INTEGER  NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_turn_records_started_at ON turn_records (started_at DESC);
`

// Store is a SQLite-backed [turnlog.Store].
type Store struct {
	db *sql.DB
}

var _ turnlog.Store = (*Store)(nil)

// New opens (creating if needed) the database at path. Use ":memory:" for a
// throwaway database.
func New(ctx context.Context, path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("turnlog sqlite: open: %w", err)
	}
	// SQLite serialises writers; one connection also keeps ":memory:" alive.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, ddl); err != nil {
		db.Close()
		return nil, fmt.Errorf("turnlog sqlite: migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Append implements [turnlog.Store].
func (s *Store) Append(ctx context.Context, r turnlog.Record) error {
	if r.ID == "" {
		return turnlog.ErrMissingID
	}
	const q = `
		INSERT INTO turn_records
		    (id, started_at, user_text, intent, tool_output, reply, refused, duration_ns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err := s.db.ExecContext(ctx, q,
		r.ID,
		r.StartedAt.UnixNano(),
		r.UserText,
		r.Intent,
		r.ToolOutput,
		r.Reply,
		r.Refused,
		r.Duration.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("turnlog sqlite: append: %w", err)
	}
	return nil
}

const selectColumns = `SELECT id, started_at, user_text, intent, tool_output, reply, refused, duration_ns FROM turn_records`

// Get implements [turnlog.Store].
func (s *Store) Get(ctx context.Context, id string) (turnlog.Record, error) {
	r, err := scanRecord(s.db.QueryRowContext(ctx, selectColumns+` WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return turnlog.Record{}, turnlog.ErrNotFound
	}
	if err != nil {
		return turnlog.Record{}, fmt.Errorf("turnlog sqlite: get: %w", err)
	}
	return r, nil
}

// Recent implements [turnlog.Store].
func (s *Store) Recent(ctx context.Context, limit int) ([]turnlog.Record, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, selectColumns+` ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("turnlog sqlite: recent: %w", err)
	}
	defer rows.Close()

	var out []turnlog.Record
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("turnlog sqlite: recent: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("turnlog sqlite: recent: %w", err)
	}
	return out, nil
}

// Ping implements [turnlog.Store].
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close implements [turnlog.Store].
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (turnlog.Record, error) {
	var (
		r          turnlog.Record
		startedNS  int64
		durationNS int64
	)
	if err := row.Scan(&r.ID, &startedNS, &r.UserText, &r.Intent, &r.ToolOutput, &r.Reply, &r.Refused, &durationNS); err != nil {
		return turnlog.Record{}, err
	}
	r.StartedAt = time.Unix(0, startedNS).UTC()
	r.Duration = time.Duration(durationNS)
	return r, nil
}
