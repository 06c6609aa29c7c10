package payments

import (
	"context"
	"errors"
	"time"
)

// Status enumerates the normalised checkout states shared across providers.
type Status string

const (
	// StatusPending indicates the checkout is awaiting customer action or PSP confirmation.
	StatusPending Status = "pending"
	// StatusPaid indicates the PSP reports the checkout as successfully paid.
	StatusPaid Status = "paid"
	// StatusFailed indicates the checkout expired or was abandoned.
	StatusFailed Status = "failed"
)

// ErrSessionNotFound is returned when the PSP does not know the session token.
var ErrSessionNotFound = errors.New("payments: checkout session not found")

// CheckoutSessionRequest captures the payload required to create an unlock
// checkout session for a single ticket.
type CheckoutSessionRequest struct {
	TicketID       string
	Amount         int64
	Currency       string
	ProductName    string
	SuccessURL     string
	CancelURL      string
	Locale         string
	IdempotencyKey string
	Metadata       map[string]string
}

// CheckoutSession represents the PSP session handed back to the client for redirect.
type CheckoutSession struct {
	ID          string
	Provider    string
	RedirectURL string
	IntentID    string
	ExpiresAt   time.Time
}

// CheckoutDetails normalises the PSP's view of a session for verification.
type CheckoutDetails struct {
	ID       string
	Provider string
	Status   Status
	TicketID string
	IntentID string
	Amount   int64
	Currency string
	PaidAt   *time.Time
}

// Provider defines the contract PSP adapters implement for the unlock flow.
type Provider interface {
	// CreateCheckoutSession opens a hosted checkout for the given ticket.
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	// LookupCheckoutSession retrieves the session so the caller can verify
	// payment server-side. The ticket id is read from session metadata, never
	// from client input.
	LookupCheckoutSession(ctx context.Context, sessionID string) (CheckoutDetails, error)
}
