// Package turnlog journals completed assistant turns.
//
// Every turn the orchestrator finishes becomes one [Record]: what the user
// said, how it was routed, what the tool answered and what was spoken back.
// Backends implement [Store]; [Memory] is the in-process default and the
// postgres and sqlite sub-packages persist across restarts.
package turnlog

import (
	"context"
	"errors"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by [Store.Get] when no record has the given ID.
var ErrNotFound = errors.New("turnlog: record not found")

// Record is one completed turn.
type Record struct {
	// ID uniquely identifies the turn. It doubles as the turn_id log and
	// trace attribute.
	ID string

	StartedAt time.Time

	// UserText is the transcript or the text submitted directly.
	UserText string

	// Intent is the routed category: weather, calendar or chat.
	Intent string

	// ToolOutput is the raw tool answer. Empty for chat turns.
	ToolOutput string

	// Reply is the text that was synthesised.
	Reply string

	// Refused reports that the model declined to read the tool output and
	// the raw data was spoken instead.
	Refused bool

	Duration time.Duration
}

// NewID returns a fresh random turn ID.
func NewID() string { return uuid.NewString() }

// Store persists turn records. Implementations must be safe for concurrent
// use.
type Store interface {
	// Append stores r. r.ID must be set.
	Append(ctx context.Context, r Record) error

	// Get returns the record with the given ID or [ErrNotFound].
	Get(ctx context.Context, id string) (Record, error)

	// Recent returns up to limit records, newest first.
	Recent(ctx context.Context, limit int) ([]Record, error)

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}

// ErrMissingID is returned by Append when the record has no ID.
var ErrMissingID = errors.New("turnlog: record id must not be empty")

// Memory is an in-process [Store] bounded to the most recent turns.
type Memory struct {
	mu      sync.RWMutex
	records []Record
	limit   int
}

var _ Store = (*Memory)(nil)

// DefaultMemoryLimit bounds a Memory created with a non-positive limit.
const DefaultMemoryLimit = 1000

// NewMemory returns a Memory keeping at most limit records.
func NewMemory(limit int) *Memory {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	return &Memory{limit: limit}
}

// Append implements [Store]. The oldest record is dropped once the limit is
// reached.
func (m *Memory) Append(_ context.Context, r Record) error {
	if r.ID == "" {
		return ErrMissingID
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, r)
	if over := len(m.records) - m.limit; over > 0 {
		m.records = slices.Delete(m.records, 0, over)
	}
	return nil
}

// Get implements [Store].
func (m *Memory) Get(_ context.Context, id string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.records {
		if r.ID == id {
			return r, nil
		}
	}
	return Record{}, ErrNotFound
}

// Recent implements [Store].
func (m *Memory) Recent(_ context.Context, limit int) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := len(m.records)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]Record, 0, n)
	for i := len(m.records) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, m.records[i])
	}
	return out, nil
}

// Ping implements [Store]. It always succeeds.
func (m *Memory) Ping(context.Context) error { return nil }

// Close implements [Store].
func (m *Memory) Close() error { return nil }
