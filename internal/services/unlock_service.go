package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	domain "github.com/prettytickets/api/internal/domain"
	"github.com/prettytickets/api/internal/payments"
	"github.com/prettytickets/api/internal/platform/clientstate"
	"github.com/prettytickets/api/internal/platform/jobs"
	"github.com/prettytickets/api/internal/platform/storage"
	"github.com/prettytickets/api/internal/repositories"
)

const defaultPrintExpiry = 15 * time.Minute

// PrintURLSigner issues signed download URLs for stored assets.
type PrintURLSigner interface {
	SignedURL(ctx context.Context, bucket, object string, opts storage.SignedURLOptions) (storage.SignedURLResult, error)
}

// UnlockServiceDeps bundles collaborators required to construct an UnlockService.
type UnlockServiceDeps struct {
	Tickets     repositories.TicketRepository
	Payments    payments.Provider
	Sessions    clientstate.Store
	Signer      PrintURLSigner
	Events      jobs.EventPublisher
	Logger      *zap.Logger
	Clock       func() time.Time
	Bucket      string
	PrintExpiry time.Duration

	// Checkout parameters for the fixed-price unlock product.
	Amount      int64
	Currency    string
	ProductName string
	SuccessURL  string
	CancelURL   string
}

type unlockService struct {
	tickets     repositories.TicketRepository
	payments    payments.Provider
	sessions    clientstate.Store
	signer      PrintURLSigner
	events      jobs.EventPublisher
	logger      *zap.Logger
	clock       func() time.Time
	bucket      string
	printExpiry time.Duration

	amount      int64
	currency    string
	productName string
	successURL  string
	cancelURL   string
}

var _ UnlockService = (*unlockService)(nil)

// NewUnlockService wires dependencies into a concrete UnlockService.
func NewUnlockService(deps UnlockServiceDeps) (UnlockService, error) {
	if deps.Tickets == nil {
		return nil, errors.New("unlock service: ticket repository is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("unlock service: payment provider is required")
	}
	if deps.Amount <= 0 {
		return nil, errors.New("unlock service: unlock amount must be positive")
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	expiry := deps.PrintExpiry
	if expiry <= 0 {
		expiry = defaultPrintExpiry
	}
	currency := strings.ToLower(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = "usd"
	}
	productName := strings.TrimSpace(deps.ProductName)
	if productName == "" {
		productName = "PrettyTickets keepsake print"
	}

	return &unlockService{
		tickets:     deps.Tickets,
		payments:    deps.Payments,
		sessions:    deps.Sessions,
		signer:      deps.Signer,
		events:      deps.Events,
		logger:      logger.Named("unlock"),
		clock:       func() time.Time { return clock().UTC() },
		bucket:      strings.TrimSpace(deps.Bucket),
		printExpiry: expiry,
		amount:      deps.Amount,
		currency:    currency,
		productName: productName,
		successURL:  strings.TrimSpace(deps.SuccessURL),
		cancelURL:   strings.TrimSpace(deps.CancelURL),
	}, nil
}

func (s *unlockService) StartUnlock(ctx context.Context, cmd StartUnlockCommand) (UnlockCheckout, error) {
	ticketID := strings.TrimSpace(cmd.TicketID)
	if ticketID == "" {
		return UnlockCheckout{}, fmt.Errorf("%w: ticket id is required", ErrInvalidInput)
	}

	ticket, err := s.tickets.FindByID(ctx, ticketID)
	if err != nil {
		return UnlockCheckout{}, mapRepositoryError(err)
	}
	if ticket.IsPaid {
		return UnlockCheckout{State: domain.UnlockUnlocked, TicketID: ticketID}, nil
	}

	session, err := s.payments.CreateCheckoutSession(ctx, payments.CheckoutSessionRequest{
		TicketID:       ticketID,
		Amount:         s.amount,
		Currency:       s.currency,
		ProductName:    s.productName,
		SuccessURL:     s.successURL,
		CancelURL:      s.cancelURL,
		IdempotencyKey: checkoutIdempotencyKey(cmd.SessionID, ticketID),
	})
	if err != nil {
		return UnlockCheckout{}, fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	s.rememberPendingID(ctx, cmd.SessionID, ticketID)

	return UnlockCheckout{
		State:             domain.UnlockLocked,
		TicketID:          ticketID,
		CheckoutSessionID: session.ID,
		RedirectURL:       session.RedirectURL,
		ExpiresAt:         session.ExpiresAt,
	}, nil
}

func (s *unlockService) VerifyReturn(ctx context.Context, cmd VerifyReturnCommand) (UnlockStatus, error) {
	token := strings.TrimSpace(cmd.SessionToken)
	if token == "" {
		return UnlockStatus{}, fmt.Errorf("%w: session token is required", ErrInvalidInput)
	}

	ticketID := strings.TrimSpace(cmd.TicketID)
	if ticketID == "" {
		ticketID = s.pendingID(ctx, cmd.SessionID)
	}
	if ticketID == "" {
		// A payment return we cannot attribute to any ticket: skip
		// verification rather than guessing.
		return UnlockStatus{State: domain.UnlockLocked, Skipped: true, Reason: "no ticket to verify"}, nil
	}

	details, err := s.payments.LookupCheckoutSession(ctx, token)
	if err != nil {
		if errors.Is(err, payments.ErrSessionNotFound) {
			return UnlockStatus{State: domain.UnlockVerificationFailed, TicketID: ticketID},
				fmt.Errorf("%w: unknown checkout session", ErrVerificationFailed)
		}
		return UnlockStatus{State: domain.UnlockVerificationFailed, TicketID: ticketID},
			fmt.Errorf("%w: %v", ErrVerificationFailed, err)
	}

	// Sessions created here always carry the ticket id in their metadata,
	// so only that binding decides what a paid session unlocks. A session
	// without it never unlocks a client-supplied id.
	if details.TicketID == "" {
		return UnlockStatus{State: domain.UnlockVerificationFailed, TicketID: ticketID},
			fmt.Errorf("%w: checkout session names no ticket", ErrVerificationFailed)
	}
	if details.TicketID != ticketID {
		return UnlockStatus{State: domain.UnlockVerificationFailed, TicketID: ticketID},
			fmt.Errorf("%w: checkout session belongs to another ticket", ErrVerificationFailed)
	}
	if details.Status != payments.StatusPaid {
		return UnlockStatus{State: domain.UnlockVerificationFailed, TicketID: ticketID},
			fmt.Errorf("%w: checkout status is %s", ErrVerificationFailed, details.Status)
	}

	paidAt := s.clock()
	if details.PaidAt != nil {
		paidAt = details.PaidAt.UTC()
	}
	ticket, err := s.ConfirmPayment(ctx, ticketID, paidAt)
	if err != nil {
		return UnlockStatus{State: domain.UnlockVerificationFailed, TicketID: ticketID}, err
	}

	s.clearPendingID(ctx, cmd.SessionID, ticketID)

	return UnlockStatus{State: domain.UnlockUnlocked, TicketID: ticketID, PaidAt: ticket.PaidAt}, nil
}

// ConfirmPayment flips the stored payment flag. It is shared by the
// payment-return path and the Stripe webhook.
func (s *unlockService) ConfirmPayment(ctx context.Context, ticketID string, paidAt time.Time) (TicketRecord, error) {
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return TicketRecord{}, fmt.Errorf("%w: ticket id is required", ErrInvalidInput)
	}
	ticket, err := s.tickets.MarkPaid(ctx, ticketID, paidAt)
	if err != nil {
		return TicketRecord{}, mapRepositoryError(err)
	}

	if s.events != nil {
		if _, err := s.events.PublishTicketEvent(ctx, jobs.TicketEvent{
			Kind:       jobs.EventTicketUnlocked,
			TicketID:   ticket.ID,
			OccurredAt: s.clock(),
		}); err != nil {
			s.logger.Warn("unlock event publish failed", zap.String("ticket_id", ticket.ID), zap.Error(err))
		}
	}
	return ticket, nil
}

func (s *unlockService) IssuePrintURL(ctx context.Context, ticketID string) (PrintGrant, error) {
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return PrintGrant{}, fmt.Errorf("%w: ticket id is required", ErrInvalidInput)
	}
	if s.signer == nil || s.bucket == "" {
		return PrintGrant{}, errors.New("unlock service: print signing is not configured")
	}

	ticket, err := s.tickets.FindByID(ctx, ticketID)
	if err != nil {
		return PrintGrant{}, mapRepositoryError(err)
	}
	if !ticket.IsPaid {
		return PrintGrant{}, fmt.Errorf("%w: print requires an unlocked ticket", ErrTicketLocked)
	}

	object, err := storage.BuildObjectPath(storage.PurposeHiResPrint, storage.PathParams{TicketID: ticketID})
	if err != nil {
		return PrintGrant{}, err
	}
	result, err := s.signer.SignedURL(ctx, s.bucket, object, storage.SignedURLOptions{
		Download: &storage.DownloadOptions{
			Method:      http.MethodGet,
			ExpiresIn:   s.printExpiry,
			Disposition: fmt.Sprintf("attachment; filename=%q", ticketID+"-print.png"),
		},
	})
	if err != nil {
		return PrintGrant{}, err
	}
	return PrintGrant{TicketID: ticketID, URL: result.URL, ExpiresAt: result.ExpiresAt}, nil
}

func (s *unlockService) rememberPendingID(ctx context.Context, sessionID, ticketID string) {
	sessionID = strings.TrimSpace(sessionID)
	if s.sessions == nil || sessionID == "" {
		return
	}
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, clientstate.ErrNotFound) {
			s.logger.Warn("pending unlock load failed", zap.String("session_id", sessionID), zap.Error(err))
			return
		}
		session = domain.NewViewSession(sessionID, s.clock())
	}
	session.PendingUnlockID = ticketID
	if err := s.sessions.Put(ctx, session); err != nil {
		s.logger.Warn("pending unlock save failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func (s *unlockService) pendingID(ctx context.Context, sessionID string) string {
	sessionID = strings.TrimSpace(sessionID)
	if s.sessions == nil || sessionID == "" {
		return ""
	}
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(session.PendingUnlockID)
}

func (s *unlockService) clearPendingID(ctx context.Context, sessionID, ticketID string) {
	sessionID = strings.TrimSpace(sessionID)
	if s.sessions == nil || sessionID == "" {
		return
	}
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil || session.PendingUnlockID != ticketID {
		return
	}
	session.PendingUnlockID = ""
	if err := s.sessions.Put(ctx, session); err != nil {
		s.logger.Warn("pending unlock clear failed", zap.String("session_id", sessionID), zap.Error(err))
	}
}

func checkoutIdempotencyKey(sessionID, ticketID string) string {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return "unlock-" + ticketID
	}
	return "unlock-" + sessionID + "-" + ticketID
}
