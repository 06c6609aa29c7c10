package clientstate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prettytickets/api/internal/domain"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()

	session := domain.NewViewSession("sess-1", time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC))
	session.TicketID = "tkt_01ABC"
	session.Editor = domain.EditorShowingResult

	if err := store.Put(ctx, session); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got != session {
		t.Fatalf("unexpected session %+v, want %+v", got, session)
	}
}

func TestMemoryStoreMissingSession(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	if _, err := store.Get(context.Background(), "absent"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	now := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	store := NewMemoryStore(time.Minute, WithMemoryClock(func() time.Time { return now }))
	ctx := context.Background()

	if err := store.Put(ctx, domain.NewViewSession("sess-1", now)); err != nil {
		t.Fatalf("Put: %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := store.Get(ctx, "sess-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected expired session, got %v", err)
	}
}

func TestMemoryStoreDelete(t *testing.T) {
	store := NewMemoryStore(time.Hour)
	ctx := context.Background()
	now := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)

	if err := store.Put(ctx, domain.NewViewSession("sess-1", now)); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := store.Delete(ctx, "sess-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, err := store.Get(ctx, "sess-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if err := store.Delete(ctx, "sess-1"); err != nil {
		t.Fatalf("deleting absent session should not error, got %v", err)
	}
}

func TestMemoryStorePurge(t *testing.T) {
	now := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	store := NewMemoryStore(time.Minute, WithMemoryClock(func() time.Time { return now }))
	ctx := context.Background()

	_ = store.Put(ctx, domain.NewViewSession("sess-1", now))
	_ = store.Put(ctx, domain.NewViewSession("sess-2", now))

	now = now.Add(2 * time.Minute)
	if removed := store.Purge(); removed != 2 {
		t.Fatalf("expected 2 purged sessions, got %d", removed)
	}
}
