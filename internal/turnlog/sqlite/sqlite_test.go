package sqlite_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/MrWong99/voxdesk/internal/turnlog"
	"github.com/MrWong99/voxdesk/internal/turnlog/sqlite"
)

func newStore(t *testing.T, path string) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(context.Background(), path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestStore_RoundTrip(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t, ":memory:")

	base := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	recs := []turnlog.Record{
		{ID: "a", StartedAt: base, UserText: "hello", Intent: "chat", Reply: "Hi!", Duration: time.Second},
		{ID: "b", StartedAt: base.Add(time.Minute), UserText: "list", Intent: "calendar", Refused: true},
		{ID: "c", StartedAt: base.Add(2 * time.Minute), UserText: "rain?", Intent: "weather", ToolOutput: "dry"},
	}
	for _, r := range recs {
		if err := s.Append(ctx, r); err != nil {
			t.Fatalf("Append(%s): %v", r.ID, err)
		}
	}

	got, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != "a" || got.UserText != "hello" || got.Reply != "Hi!" || got.Duration != time.Second || !got.StartedAt.Equal(base) {
		t.Errorf("Get = %+v, want %+v", got, recs[0])
	}

	recent, err := s.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 2 || recent[0].ID != "c" || recent[1].ID != "b" || !recent[1].Refused {
		t.Errorf("Recent = %+v", recent)
	}
	all, _ := s.Recent(ctx, 0)
	if len(all) != 3 {
		t.Errorf("Recent(0) = %d records, want 3", len(all))
	}
}

func TestStore_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := newStore(t, ":memory:")

	if _, err := s.Get(ctx, "nope"); !errors.Is(err, turnlog.ErrNotFound) {
		t.Errorf("Get err = %v, want ErrNotFound", err)
	}
	if err := s.Append(ctx, turnlog.Record{}); !errors.Is(err, turnlog.ErrMissingID) {
		t.Errorf("Append err = %v, want ErrMissingID", err)
	}
	if err := s.Append(ctx, turnlog.Record{ID: "x"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Append(ctx, turnlog.Record{ID: "x"}); err == nil {
		t.Error("duplicate id accepted")
	}
}

func TestStore_PersistsToFile(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "turns.db")

	s, err := sqlite.New(ctx, path)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := s.Append(ctx, turnlog.Record{ID: "kept", StartedAt: time.Unix(5, 0).UTC()}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	reopened := newStore(t, path)
	if _, err := reopened.Get(ctx, "kept"); err != nil {
		t.Errorf("record lost across reopen: %v", err)
	}
	if err := reopened.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
