package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/prettytickets/api/internal/domain"
	"github.com/prettytickets/api/internal/repositories"
)

// TicketServiceDeps bundles collaborators required to construct a TicketService.
type TicketServiceDeps struct {
	Tickets repositories.TicketRepository
	// ShareBaseURL is the public origin shared links are built on. Empty
	// leaves ShareURL blank.
	ShareBaseURL string
	GalleryLimit int
}

type ticketService struct {
	tickets      repositories.TicketRepository
	shareBaseURL string
	galleryLimit int
}

var _ TicketService = (*ticketService)(nil)

// NewTicketService wires dependencies into a concrete TicketService.
func NewTicketService(deps TicketServiceDeps) (TicketService, error) {
	if deps.Tickets == nil {
		return nil, errors.New("ticket service: ticket repository is required")
	}
	limit := deps.GalleryLimit
	if limit <= 0 {
		limit = 50
	}
	return &ticketService{
		tickets:      deps.Tickets,
		shareBaseURL: strings.TrimRight(strings.TrimSpace(deps.ShareBaseURL), "/"),
		galleryLimit: limit,
	}, nil
}

func (s *ticketService) GetTicket(ctx context.Context, ticketID string) (TicketView, error) {
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return TicketView{}, fmt.Errorf("%w: ticket id is required", ErrInvalidInput)
	}
	ticket, err := s.tickets.FindByID(ctx, ticketID)
	if err != nil {
		return TicketView{}, mapRepositoryError(err)
	}
	return s.view(ticket), nil
}

func (s *ticketService) ListRecent(ctx context.Context, limit int) ([]TicketView, error) {
	if limit <= 0 || limit > s.galleryLimit {
		limit = s.galleryLimit
	}
	tickets, err := s.tickets.ListRecent(ctx, limit)
	if err != nil {
		return nil, mapRepositoryError(err)
	}
	views := make([]TicketView, 0, len(tickets))
	for _, ticket := range tickets {
		views = append(views, s.view(ticket))
	}
	return views, nil
}

func (s *ticketService) view(ticket TicketRecord) TicketView {
	view := TicketView{Ticket: ticket, Unlock: domain.UnlockLocked}
	if ticket.IsPaid {
		view.Unlock = domain.UnlockUnlocked
	}
	if s.shareBaseURL != "" && ticket.ID != "" {
		view.ShareURL = s.shareBaseURL + "/t/" + ticket.ID
	}
	return view
}
