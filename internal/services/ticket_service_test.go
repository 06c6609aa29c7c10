package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/prettytickets/api/internal/domain"
)

func TestTicketServiceGetTicket(t *testing.T) {
	repo := newMemTicketRepo()
	ticket := seedTicket(t, repo)

	svc, err := NewTicketService(TicketServiceDeps{
		Tickets:      repo,
		ShareBaseURL: "https://prettytickets.example/",
		GalleryLimit: 10,
	})
	if err != nil {
		t.Fatalf("new ticket service: %v", err)
	}

	view, err := svc.GetTicket(context.Background(), ticket.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if view.ShareURL != "https://prettytickets.example/t/"+ticket.ID {
		t.Fatalf("share url = %q", view.ShareURL)
	}
	if view.Unlock != domain.UnlockLocked {
		t.Fatalf("unlock = %s", view.Unlock)
	}

	if _, err := repo.MarkPaid(context.Background(), ticket.ID, time.Now()); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	view, err = svc.GetTicket(context.Background(), ticket.ID)
	if err != nil {
		t.Fatalf("get paid: %v", err)
	}
	if view.Unlock != domain.UnlockUnlocked {
		t.Fatalf("unlock after payment = %s", view.Unlock)
	}
}

func TestTicketServiceGetTicketNotFound(t *testing.T) {
	svc, err := NewTicketService(TicketServiceDeps{Tickets: newMemTicketRepo()})
	if err != nil {
		t.Fatalf("new ticket service: %v", err)
	}
	if _, err := svc.GetTicket(context.Background(), "tkt_missing"); !errors.Is(err, ErrTicketNotFound) {
		t.Fatalf("err = %v, want ErrTicketNotFound", err)
	}
	if _, err := svc.GetTicket(context.Background(), "  "); !errors.Is(err, ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestTicketServiceListRecentClampsLimit(t *testing.T) {
	repo := newMemTicketRepo()
	for i := 0; i < 5; i++ {
		seedTicket(t, repo)
	}
	svc, err := NewTicketService(TicketServiceDeps{Tickets: repo, GalleryLimit: 3})
	if err != nil {
		t.Fatalf("new ticket service: %v", err)
	}

	views, err := svc.ListRecent(context.Background(), 1000)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(views) != 3 {
		t.Fatalf("views = %d, want gallery limit 3", len(views))
	}
}
