package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/prettytickets/api/internal/domain"
	"github.com/prettytickets/api/internal/platform/clientstate"
)

func newViewService(t *testing.T) (ViewService, *clientstate.MemoryStore) {
	t.Helper()
	store := clientstate.NewMemoryStore(time.Hour)
	svc, err := NewViewService(ViewServiceDeps{
		Sessions: store,
		Clock:    func() time.Time { return time.Date(2026, 3, 14, 19, 0, 0, 0, time.UTC) },
	})
	if err != nil {
		t.Fatalf("new view service: %v", err)
	}
	return svc, store
}

func TestViewServiceSubmitFlow(t *testing.T) {
	svc, _ := newViewService(t)
	ctx := context.Background()

	session, err := svc.ApplyEvent(ctx, "sess-1", domain.ViewEvent{Kind: domain.ViewEventOpen})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if session.Screen != domain.ViewScreenEditor || session.Editor != domain.EditorShowingForm {
		t.Fatalf("after open: %+v", session)
	}

	session, err = svc.ApplyEvent(ctx, "sess-1", domain.ViewEvent{Kind: domain.ViewEventSubmit})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if session.Editor != domain.EditorLoading {
		t.Fatalf("after submit: %+v", session)
	}

	session, err = svc.ApplyEvent(ctx, "sess-1", domain.ViewEvent{Kind: domain.ViewEventResult, TicketID: "tkt_1"})
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	if session.Editor != domain.EditorShowingResult || session.TicketID != "tkt_1" {
		t.Fatalf("after result: %+v", session)
	}

	// State survives the round trip through the store.
	loaded, err := svc.GetSession(ctx, "sess-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if loaded.Editor != domain.EditorShowingResult || loaded.TicketID != "tkt_1" {
		t.Fatalf("loaded: %+v", loaded)
	}
}

func TestViewServiceSharedLinkNotFound(t *testing.T) {
	svc, _ := newViewService(t)
	ctx := context.Background()

	session, err := svc.ApplyEvent(ctx, "sess-2", domain.ViewEvent{Kind: domain.ViewEventOpen, TicketID: "tkt_missing"})
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if session.Editor != domain.EditorLoading {
		t.Fatalf("after open with id: %+v", session)
	}

	session, err = svc.ApplyEvent(ctx, "sess-2", domain.ViewEvent{Kind: domain.ViewEventLoadNotFound})
	if err != nil {
		t.Fatalf("load not found: %v", err)
	}
	if session.Editor != domain.EditorShowingForm || session.TicketID != "" {
		t.Fatalf("after not found: %+v", session)
	}
	if session.LastError == "" {
		t.Fatal("expected user facing error message")
	}
}

func TestViewServiceIllegalTransition(t *testing.T) {
	svc, _ := newViewService(t)
	ctx := context.Background()

	if _, err := svc.ApplyEvent(ctx, "sess-3", domain.ViewEvent{Kind: domain.ViewEventOpen}); err != nil {
		t.Fatalf("open: %v", err)
	}
	_, err := svc.ApplyEvent(ctx, "sess-3", domain.ViewEvent{Kind: domain.ViewEventResult, TicketID: "tkt_1"})
	if !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestViewServiceGetUnknownSession(t *testing.T) {
	svc, _ := newViewService(t)
	if _, err := svc.GetSession(context.Background(), "sess-none"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("err = %v, want ErrSessionNotFound", err)
	}
}

func TestViewServiceResetClearsTicket(t *testing.T) {
	svc, store := newViewService(t)
	ctx := context.Background()

	session := domain.NewViewSession("sess-4", time.Now())
	session.Editor = domain.EditorShowingResult
	session.TicketID = "tkt_1"
	session.PendingUnlockID = "tkt_1"
	if err := store.Put(ctx, session); err != nil {
		t.Fatalf("seed session: %v", err)
	}

	next, err := svc.ApplyEvent(ctx, "sess-4", domain.ViewEvent{Kind: domain.ViewEventReset})
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if next.TicketID != "" || next.Editor != domain.EditorShowingForm {
		t.Fatalf("after reset: %+v", next)
	}
	if next.PendingUnlockID != "tkt_1" {
		t.Fatal("reset must not disturb the unlock flow's pending id")
	}
}
