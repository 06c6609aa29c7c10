// Package services implements the application flows on top of the repository,
// generation, payment, and storage collaborators.
package services

import (
	"context"
	"time"

	domain "github.com/prettytickets/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	EventDetails       = domain.EventDetails
	VisualTheme        = domain.VisualTheme
	AIPrompts          = domain.AIPrompts
	GiftCopy           = domain.GiftCopy
	LayoutGuide        = domain.LayoutGuide
	TicketRecord       = domain.TicketRecord
	PipelineState      = domain.PipelineState
	UnlockState        = domain.UnlockState
	ViewSession        = domain.ViewSession
	ViewEvent          = domain.ViewEvent
	SystemHealthReport = domain.SystemHealthReport
)

// InlineUpload carries raw image bytes attached to a generation request.
type InlineUpload struct {
	MIMEType string
	Data     []byte
}

// GenerateTicketCommand starts one pipeline run.
type GenerateTicketCommand struct {
	SessionID string
	// TicketID names the record this run replaces. Empty for a first run.
	TicketID         string
	Details          EventDetails
	Screenshot       *InlineUpload
	CustomBackground *InlineUpload
}

// RemixTicketCommand regenerates only the background of an existing ticket.
type RemixTicketCommand struct {
	SessionID string
	TicketID  string
	Mood      string
}

// GenerationResult reports a finished run. Saved is false when persistence
// failed or the run was superseded; the generated content is still returned.
type GenerationResult struct {
	RunID      string
	State      PipelineState
	Ticket     TicketRecord
	Saved      bool
	Superseded bool
}

// GenerationService drives the strictly sequential generation pipeline.
type GenerationService interface {
	Generate(ctx context.Context, cmd GenerateTicketCommand) (GenerationResult, error)
	Remix(ctx context.Context, cmd RemixTicketCommand) (GenerationResult, error)
}

// TicketView is a ticket record enriched with sharing and unlock state.
type TicketView struct {
	Ticket   TicketRecord
	ShareURL string
	Unlock   UnlockState
}

// TicketService answers read queries over stored tickets.
type TicketService interface {
	GetTicket(ctx context.Context, ticketID string) (TicketView, error)
	ListRecent(ctx context.Context, limit int) ([]TicketView, error)
}

// StartUnlockCommand initiates a checkout for a ticket.
type StartUnlockCommand struct {
	SessionID string
	TicketID  string
}

// UnlockCheckout is the handoff to the payment page. RedirectURL is empty when
// the ticket is already unlocked.
type UnlockCheckout struct {
	State             UnlockState
	TicketID          string
	CheckoutSessionID string
	RedirectURL       string
	ExpiresAt         time.Time
}

// VerifyReturnCommand is the payment-return callback input. TicketID may be
// empty, in which case the session's remembered pending id is used.
type VerifyReturnCommand struct {
	SessionID    string
	SessionToken string
	TicketID     string
}

// UnlockStatus reports where a ticket sits in the unlock flow.
type UnlockStatus struct {
	State    UnlockState
	TicketID string
	PaidAt   *time.Time
	// Skipped is set when verification could not run because no target
	// ticket id was resolvable.
	Skipped bool
	Reason  string
}

// PrintGrant carries a short-lived signed URL for the high-resolution asset.
type PrintGrant struct {
	TicketID  string
	URL       string
	ExpiresAt time.Time
}

// UnlockService owns the payment-gated unlock flow.
type UnlockService interface {
	StartUnlock(ctx context.Context, cmd StartUnlockCommand) (UnlockCheckout, error)
	VerifyReturn(ctx context.Context, cmd VerifyReturnCommand) (UnlockStatus, error)
	ConfirmPayment(ctx context.Context, ticketID string, paidAt time.Time) (TicketRecord, error)
	IssuePrintURL(ctx context.Context, ticketID string) (PrintGrant, error)
}

// ViewService persists and advances per-session view state.
type ViewService interface {
	GetSession(ctx context.Context, sessionID string) (ViewSession, error)
	ApplyEvent(ctx context.Context, sessionID string, event ViewEvent) (ViewSession, error)
}

// SystemService aggregates utility endpoints (health checks, build metadata).
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}
