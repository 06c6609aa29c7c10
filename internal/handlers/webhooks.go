package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	stripe "github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/webhook"
	"go.uber.org/zap"

	"github.com/prettytickets/api/internal/platform/httpx"
	"github.com/prettytickets/api/internal/platform/requestctx"
	"github.com/prettytickets/api/internal/services"
)

// Stripe caps event payloads at 64KiB; anything larger is not a Stripe event.
const maxWebhookBody = int64(64 * 1024)

const stripeSignatureHeader = "Stripe-Signature"

// WebhookHandlers receives payment-provider callbacks. The webhook is the
// authoritative unlock path; the browser return flow only accelerates it.
type WebhookHandlers struct {
	unlock        services.UnlockService
	signingSecret string
	clock         func() time.Time
}

// WebhookOption customises the webhook handler set.
type WebhookOption func(*WebhookHandlers)

// WithWebhookClock overrides the time source, primarily for tests.
func WithWebhookClock(clock func() time.Time) WebhookOption {
	return func(h *WebhookHandlers) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// NewWebhookHandlers constructs the webhook handler set. signingSecret is the
// Stripe endpoint secret used to verify the Stripe-Signature header.
func NewWebhookHandlers(unlock services.UnlockService, signingSecret string, opts ...WebhookOption) *WebhookHandlers {
	h := &WebhookHandlers{
		unlock:        unlock,
		signingSecret: strings.TrimSpace(signingSecret),
		clock:         time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes registers the webhook endpoints beneath /webhooks.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	r.Post("/stripe", h.stripeEvent)
}

func (h *WebhookHandlers) stripeEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := requestctx.Logger(ctx).Named("webhooks.stripe")

	if h.unlock == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "unlock service not available", http.StatusServiceUnavailable))
		return
	}
	if h.signingSecret == "" {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "webhook signing secret not configured", http.StatusServiceUnavailable))
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody+1))
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "failed to read request body", http.StatusBadRequest))
		return
	}
	if int64(len(payload)) > maxWebhookBody {
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
		return
	}

	event, err := webhook.ConstructEvent(payload, r.Header.Get(stripeSignatureHeader), h.signingSecret)
	if err != nil {
		logger.Warn("webhook signature verification failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
		return
	}

	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		logger.Debug("ignoring webhook event", zap.String("type", string(event.Type)))
		httpx.WriteJSON(ctx, w, http.StatusOK, map[string]any{"received": true, "handled": false})
		return
	}

	var session stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &session); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "malformed checkout session payload", http.StatusBadRequest))
		return
	}

	ticketID := strings.TrimSpace(session.Metadata["ticketId"])
	if ticketID == "" {
		ticketID = strings.TrimSpace(session.ClientReferenceID)
	}
	if ticketID == "" {
		logger.Warn("checkout session carries no ticket id", zap.String("checkoutSessionId", session.ID))
		httpx.WriteJSON(ctx, w, http.StatusOK, map[string]any{"received": true, "handled": false})
		return
	}

	paidAt := h.clock().UTC()
	if event.Created > 0 {
		paidAt = time.Unix(event.Created, 0).UTC()
	}

	if _, err := h.unlock.ConfirmPayment(ctx, ticketID, paidAt); err != nil {
		// Non-2xx makes Stripe retry, which is what we want for transient
		// persistence failures. An unknown ticket id will never succeed, so
		// acknowledge it instead of retrying forever.
		if errors.Is(err, services.ErrTicketNotFound) {
			logger.Warn("payment confirmed for unknown ticket", zap.String("ticketId", ticketID), zap.Error(err))
			httpx.WriteJSON(ctx, w, http.StatusOK, map[string]any{"received": true, "handled": false, "ticketId": ticketID})
			return
		}
		logger.Error("failed to mark ticket paid", zap.String("ticketId", ticketID), zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("persistence_unavailable", "could not record payment", http.StatusServiceUnavailable))
		return
	}

	httpx.WriteJSON(ctx, w, http.StatusOK, map[string]any{"received": true, "handled": true, "ticketId": ticketID})
}
