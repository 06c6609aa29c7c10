package handlers

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/prettytickets/api/internal/platform/httpx"
	"github.com/prettytickets/api/internal/platform/requestctx"
	"github.com/prettytickets/api/internal/services"
)

// Inline screenshots and custom backgrounds arrive base64-encoded in the JSON
// body, so the generate limit has to accommodate a full-size image.
const (
	maxGenerateRequestBody = int64(12 * 1024 * 1024)
	maxTicketRequestBody   = int64(16 * 1024)
)

// TicketHandlers exposes the generation pipeline, ticket reads, and the
// payment-gated unlock flow.
type TicketHandlers struct {
	generation services.GenerationService
	tickets    services.TicketService
	unlock     services.UnlockService
}

// NewTicketHandlers constructs the ticket handler set.
func NewTicketHandlers(generation services.GenerationService, tickets services.TicketService, unlock services.UnlockService) *TicketHandlers {
	return &TicketHandlers{
		generation: generation,
		tickets:    tickets,
		unlock:     unlock,
	}
}

// Routes registers the ticket endpoints. Literal suffixes (":generate") are
// part of the path segment, so these register directly on the API router.
func (h *TicketHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	r.Post("/tickets:generate", h.generate)
	r.Post("/tickets/{ticketId}:remix", h.remix)
	r.Get("/tickets/{ticketId}", h.getTicket)
	r.Get("/tickets", h.listRecent)
	r.Post("/tickets/{ticketId}:unlock", h.startUnlock)
	r.Post("/tickets/verify", h.verifyReturn)
	r.Post("/tickets/{ticketId}:print", h.issuePrint)
}

type inlineUploadRequest struct {
	MIMEType string `json:"mimeType"`
	Data     string `json:"data"`
}

func (u *inlineUploadRequest) decode(field string) (*services.InlineUpload, error) {
	if u == nil {
		return nil, nil
	}
	if strings.TrimSpace(u.Data) == "" {
		return nil, fmt.Errorf("%s data is required", field)
	}
	raw, err := base64.StdEncoding.DecodeString(u.Data)
	if err != nil {
		return nil, fmt.Errorf("%s data is not valid base64", field)
	}
	mime := strings.TrimSpace(u.MIMEType)
	if mime == "" {
		mime = "image/png"
	}
	return &services.InlineUpload{MIMEType: mime, Data: raw}, nil
}

type generateTicketRequest struct {
	TicketID         string               `json:"ticketId"`
	Details          eventDetailsPayload  `json:"details"`
	Screenshot       *inlineUploadRequest `json:"screenshot"`
	CustomBackground *inlineUploadRequest `json:"customBackground"`
}

type generationResponse struct {
	RunID      string        `json:"runId"`
	State      string        `json:"state"`
	Saved      bool          `json:"saved"`
	Superseded bool          `json:"superseded"`
	Ticket     ticketPayload `json:"ticket"`
}

func (h *TicketHandlers) generate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.generation == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "generation service not available", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxGenerateRequestBody)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req generateTicketRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	screenshot, err := req.Screenshot.decode("screenshot")
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}
	background, err := req.CustomBackground.decode("customBackground")
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	cmd := services.GenerateTicketCommand{
		SessionID: requestctx.SessionID(ctx),
		TicketID:  strings.TrimSpace(req.TicketID),
		Details: services.EventDetails{
			ArtistOrEvent: req.Details.ArtistOrEvent,
			Venue:         req.Details.Venue,
			DateText:      req.Details.DateText,
			SeatText:      req.Details.SeatText,
			Message:       req.Details.Message,
		},
		Screenshot:       screenshot,
		CustomBackground: background,
	}

	result, err := h.generation.Generate(ctx, cmd)
	if err != nil {
		writeTicketError(ctx, w, err)
		return
	}

	httpx.WriteJSON(ctx, w, http.StatusOK, buildGenerationResponse(result))
}

type remixTicketRequest struct {
	Mood string `json:"mood"`
}

func (h *TicketHandlers) remix(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.generation == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "generation service not available", http.StatusServiceUnavailable))
		return
	}

	ticketID := strings.TrimSpace(chi.URLParam(r, "ticketId"))
	if ticketID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "ticket id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxTicketRequestBody)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req remixTicketRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	result, err := h.generation.Remix(ctx, services.RemixTicketCommand{
		SessionID: requestctx.SessionID(ctx),
		TicketID:  ticketID,
		Mood:      req.Mood,
	})
	if err != nil {
		writeTicketError(ctx, w, err)
		return
	}

	httpx.WriteJSON(ctx, w, http.StatusOK, buildGenerationResponse(result))
}

type ticketViewResponse struct {
	Ticket   ticketPayload `json:"ticket"`
	ShareURL string        `json:"shareUrl,omitempty"`
	Unlock   string        `json:"unlock"`
}

func (h *TicketHandlers) getTicket(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.tickets == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "ticket service not available", http.StatusServiceUnavailable))
		return
	}

	view, err := h.tickets.GetTicket(ctx, chi.URLParam(r, "ticketId"))
	if err != nil {
		writeTicketError(ctx, w, err)
		return
	}

	httpx.WriteJSON(ctx, w, http.StatusOK, buildTicketViewResponse(view))
}

type ticketListResponse struct {
	Tickets []ticketViewResponse `json:"tickets"`
	Count   int                  `json:"count"`
}

func (h *TicketHandlers) listRecent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.tickets == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "ticket service not available", http.StatusServiceUnavailable))
		return
	}

	limit := 0
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "limit must be a non-negative integer", http.StatusBadRequest))
			return
		}
		limit = parsed
	}

	views, err := h.tickets.ListRecent(ctx, limit)
	if err != nil {
		writeTicketError(ctx, w, err)
		return
	}

	payload := ticketListResponse{Tickets: make([]ticketViewResponse, 0, len(views))}
	for _, view := range views {
		payload.Tickets = append(payload.Tickets, buildTicketViewResponse(view))
	}
	payload.Count = len(payload.Tickets)

	httpx.WriteJSON(ctx, w, http.StatusOK, payload)
}

type unlockCheckoutResponse struct {
	State             string `json:"state"`
	TicketID          string `json:"ticketId"`
	CheckoutSessionID string `json:"checkoutSessionId,omitempty"`
	RedirectURL       string `json:"redirectUrl,omitempty"`
	ExpiresAt         string `json:"expiresAt,omitempty"`
}

func (h *TicketHandlers) startUnlock(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.unlock == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "unlock service not available", http.StatusServiceUnavailable))
		return
	}

	checkout, err := h.unlock.StartUnlock(ctx, services.StartUnlockCommand{
		SessionID: requestctx.SessionID(ctx),
		TicketID:  chi.URLParam(r, "ticketId"),
	})
	if err != nil {
		writeTicketError(ctx, w, err)
		return
	}

	httpx.WriteJSON(ctx, w, http.StatusOK, unlockCheckoutResponse{
		State:             string(checkout.State),
		TicketID:          checkout.TicketID,
		CheckoutSessionID: checkout.CheckoutSessionID,
		RedirectURL:       checkout.RedirectURL,
		ExpiresAt:         formatTime(checkout.ExpiresAt),
	})
}

type verifyReturnRequest struct {
	SessionToken string `json:"sessionToken"`
	TicketID     string `json:"ticketId"`
}

type unlockStatusResponse struct {
	State    string `json:"state"`
	TicketID string `json:"ticketId,omitempty"`
	PaidAt   string `json:"paidAt,omitempty"`
	Skipped  bool   `json:"skipped,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func (h *TicketHandlers) verifyReturn(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.unlock == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "unlock service not available", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxTicketRequestBody)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req verifyReturnRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	status, err := h.unlock.VerifyReturn(ctx, services.VerifyReturnCommand{
		SessionID:    requestctx.SessionID(ctx),
		SessionToken: req.SessionToken,
		TicketID:     req.TicketID,
	})
	if err != nil {
		writeTicketError(ctx, w, err)
		return
	}

	httpx.WriteJSON(ctx, w, http.StatusOK, unlockStatusResponse{
		State:    string(status.State),
		TicketID: status.TicketID,
		PaidAt:   formatTimePointer(status.PaidAt),
		Skipped:  status.Skipped,
		Reason:   status.Reason,
	})
}

type printGrantResponse struct {
	TicketID  string `json:"ticketId"`
	URL       string `json:"url"`
	ExpiresAt string `json:"expiresAt"`
}

func (h *TicketHandlers) issuePrint(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.unlock == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "unlock service not available", http.StatusServiceUnavailable))
		return
	}

	grant, err := h.unlock.IssuePrintURL(ctx, chi.URLParam(r, "ticketId"))
	if err != nil {
		writeTicketError(ctx, w, err)
		return
	}

	httpx.WriteJSON(ctx, w, http.StatusOK, printGrantResponse{
		TicketID:  grant.TicketID,
		URL:       grant.URL,
		ExpiresAt: formatTime(grant.ExpiresAt),
	})
}

func buildGenerationResponse(result services.GenerationResult) generationResponse {
	return generationResponse{
		RunID:      result.RunID,
		State:      string(result.State),
		Saved:      result.Saved,
		Superseded: result.Superseded,
		Ticket:     buildTicketPayload(result.Ticket),
	}
}

func buildTicketViewResponse(view services.TicketView) ticketViewResponse {
	return ticketViewResponse{
		Ticket:   buildTicketPayload(view.Ticket),
		ShareURL: view.ShareURL,
		Unlock:   string(view.Unlock),
	}
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	case errors.Is(err, errEmptyBody):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body is required", http.StatusBadRequest))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func writeTicketError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, services.ErrInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrTicketNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("ticket_not_found", "ticket not found", http.StatusNotFound))
	case errors.Is(err, services.ErrTicketLocked):
		httpx.WriteError(ctx, w, httpx.NewError("ticket_locked", "ticket must be unlocked first", http.StatusPaymentRequired))
	case errors.Is(err, services.ErrVerificationFailed):
		httpx.WriteError(ctx, w, httpx.NewError("verification_failed", "payment could not be verified", http.StatusConflict))
	case errors.Is(err, services.ErrGenerationFailed):
		httpx.WriteError(ctx, w, httpx.NewError("generation_failed", "generation failed, please try again", http.StatusBadGateway))
	case errors.Is(err, services.ErrPersistenceUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("persistence_unavailable", "storage is temporarily unavailable", http.StatusServiceUnavailable))
	case errors.Is(err, services.ErrSessionNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("session_not_found", "session not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("internal_error", "unexpected error", http.StatusInternalServerError))
	}
}
