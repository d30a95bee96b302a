// Package postgres persists turn records in a PostgreSQL turn_records table.
//
// Usage:
//
//	store, err := postgres.New(ctx, "postgres://localhost/voxdesk")
//	if err != nil { … }
//	defer store.Close()
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/voxdesk/internal/turnlog"
)

const ddl = `
CREATE TABLE IF NOT EXISTS turn_records (
    id           TEXT         PRIMARY KEY,
    started_at   TIMESTAMPTZ  NOT NULL,
    user_text    TEXT         NOT NULL DEFAULT '',
    intent       TEXT         NOT NULL DEFAULT '',
    tool_output  TEXT         NOT NULL DEFAULT '',
    reply        TEXT         NOT NULL DEFAULT '',
    refused      BOOLEAN      NOT NULL DEFAULT false,
    duration_ns  BIGINT       NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_turn_records_started_at
    ON turn_records (started_at DESC);
`

// Store is a PostgreSQL-backed [turnlog.Store]. All methods are safe for
// concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

var _ turnlog.Store = (*Store)(nil)

// New connects to dsn, verifies the connection and creates the schema.
func New(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("turnlog postgres: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("turnlog postgres: ping: %w", err)
	}
	if _, err := pool.Exec(ctx, ddl); err != nil {
		pool.Close()
		return nil, fmt.Errorf("turnlog postgres: migrate: %w", err)
	}
	return &Store{pool: pool}, nil
}

// Append implements [turnlog.Store].
func (s *Store) Append(ctx context.Context, r turnlog.Record) error {
	if r.ID == "" {
		return turnlog.ErrMissingID
	}
	const q = `
		INSERT INTO turn_records
		    (id, started_at, user_text, intent, tool_output, reply, refused, duration_ns)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, q,
		r.ID,
		r.StartedAt,
		r.UserText,
		r.Intent,
		r.ToolOutput,
		r.Reply,
		r.Refused,
		r.Duration.Nanoseconds(),
	)
	if err != nil {
		return fmt.Errorf("turnlog postgres: append: %w", err)
	}
	return nil
}

const selectColumns = `SELECT id, started_at, user_text, intent, tool_output, reply, refused, duration_ns FROM turn_records`

// Get implements [turnlog.Store].
func (s *Store) Get(ctx context.Context, id string) (turnlog.Record, error) {
	rows, err := s.pool.Query(ctx, selectColumns+` WHERE id = $1`, id)
	if err != nil {
		return turnlog.Record{}, fmt.Errorf("turnlog postgres: get: %w", err)
	}
	r, err := pgx.CollectExactlyOneRow(rows, scanRecord)
	if errors.Is(err, pgx.ErrNoRows) {
		return turnlog.Record{}, turnlog.ErrNotFound
	}
	if err != nil {
		return turnlog.Record{}, fmt.Errorf("turnlog postgres: get: %w", err)
	}
	return r, nil
}

// Recent implements [turnlog.Store].
func (s *Store) Recent(ctx context.Context, limit int) ([]turnlog.Record, error) {
	q := selectColumns + ` ORDER BY started_at DESC`
	var args []any
	if limit > 0 {
		q += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.pool.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("turnlog postgres: recent: %w", err)
	}
	records, err := pgx.CollectRows(rows, scanRecord)
	if err != nil {
		return nil, fmt.Errorf("turnlog postgres: recent: %w", err)
	}
	return records, nil
}

// Ping implements [turnlog.Store].
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close implements [turnlog.Store].
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanRecord(row pgx.CollectableRow) (turnlog.Record, error) {
	var (
		r          turnlog.Record
		durationNS int64
	)
	if err := row.Scan(
		&r.ID,
		&r.StartedAt,
		&r.UserText,
		&r.Intent,
		&r.ToolOutput,
		&r.Reply,
		&r.Refused,
		&durationNS,
	); err != nil {
		return turnlog.Record{}, err
	}
	r.Duration = time.Duration(durationNS)
	return r, nil
}
