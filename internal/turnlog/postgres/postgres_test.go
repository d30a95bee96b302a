package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/voxdesk/internal/turnlog"
	"github.com/MrWong99/voxdesk/internal/turnlog/postgres"
)

// testDSN returns the test database DSN from the environment, or skips the
// test if VOXDESK_TEST_POSTGRES_DSN is not set.
func testDSN(t *testing.T) string {
	t.Helper()
	dsn := os.Getenv("VOXDESK_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("VOXDESK_TEST_POSTGRES_DSN not set, skipping PostgreSQL integration tests")
	}
	return dsn
}

func newTestStore(t *testing.T) *postgres.Store {
	t.Helper()
	dsn := testDSN(t)
	ctx := context.Background()

	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if _, err := pool.Exec(ctx, "DROP TABLE IF EXISTS turn_records"); err != nil {
		t.Fatalf("drop: %v", err)
	}
	pool.Close()

	store, err := postgres.New(ctx, dsn)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStore_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 10, 14, 9, 0, 0, 0, time.UTC)
	first := turnlog.Record{
		ID: turnlog.NewID(), StartedAt: base, UserText: "weather in marburg",
		Intent: "weather", ToolOutput: "The weather in Marburg ...", Reply: "Cloudy.",
		Duration: 1500 * time.Millisecond,
	}
	second := turnlog.Record{
		ID: turnlog.NewID(), StartedAt: base.Add(time.Minute), UserText: "list appointments",
		Intent: "calendar", Reply: "Here is the information: ID 4", Refused: true,
	}
	for _, r := range []turnlog.Record{first, second} {
		if err := store.Append(ctx, r); err != nil {
			t.Fatalf("Append: %v", err)
		}
	}

	got, err := store.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.UserText != first.UserText || got.Duration != first.Duration || !got.StartedAt.Equal(base) {
		t.Errorf("Get = %+v, want %+v", got, first)
	}

	recent, err := store.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("Recent: %v", err)
	}
	if len(recent) != 1 || recent[0].ID != second.ID || !recent[0].Refused {
		t.Errorf("Recent = %+v", recent)
	}

	if _, err := store.Get(ctx, "missing"); !errors.Is(err, turnlog.ErrNotFound) {
		t.Errorf("Get(missing) err = %v, want ErrNotFound", err)
	}
	if err := store.Ping(ctx); err != nil {
		t.Errorf("Ping: %v", err)
	}
}
