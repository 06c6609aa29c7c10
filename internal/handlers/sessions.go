package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/prettytickets/api/internal/domain"
	"github.com/prettytickets/api/internal/platform/httpx"
	"github.com/prettytickets/api/internal/services"
)

const maxSessionRequestBody = int64(16 * 1024)

// SessionHandlers exposes the per-browser view-state machine.
type SessionHandlers struct {
	views services.ViewService
}

// NewSessionHandlers constructs the session handler set.
func NewSessionHandlers(views services.ViewService) *SessionHandlers {
	return &SessionHandlers{views: views}
}

// Routes registers the view session endpoints beneath /sessions.
func (h *SessionHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}

	r.Get("/{sessionId}", h.getSession)
	r.Post("/{sessionId}/events", h.applyEvent)
}

type viewSessionResponse struct {
	ID        string `json:"id"`
	Screen    string `json:"screen"`
	Editor    string `json:"editor"`
	TicketID  string `json:"ticketId,omitempty"`
	LastError string `json:"lastError,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

func (h *SessionHandlers) getSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.views == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "view service not available", http.StatusServiceUnavailable))
		return
	}

	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionId"))
	if sessionID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "session id is required", http.StatusBadRequest))
		return
	}

	sess, err := h.views.GetSession(ctx, sessionID)
	if err != nil {
		writeTicketError(ctx, w, err)
		return
	}

	httpx.WriteJSON(ctx, w, http.StatusOK, buildViewSessionResponse(sess))
}

type viewEventRequest struct {
	Kind     string `json:"kind"`
	TicketID string `json:"ticketId"`
	Message  string `json:"message"`
}

func (h *SessionHandlers) applyEvent(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.views == nil {
		httpx.WriteError(ctx, w, httpx.NewError("service_unavailable", "view service not available", http.StatusServiceUnavailable))
		return
	}

	sessionID := strings.TrimSpace(chi.URLParam(r, "sessionId"))
	if sessionID == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "session id is required", http.StatusBadRequest))
		return
	}

	body, err := readLimitedBody(r, maxSessionRequestBody)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req viewEventRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.Kind) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "event kind is required", http.StatusBadRequest))
		return
	}

	next, err := h.views.ApplyEvent(ctx, sessionID, services.ViewEvent{
		Kind:     domain.ViewEventKind(strings.TrimSpace(req.Kind)),
		TicketID: req.TicketID,
		Message:  req.Message,
	})
	if err != nil {
		writeTicketError(ctx, w, err)
		return
	}

	httpx.WriteJSON(ctx, w, http.StatusOK, buildViewSessionResponse(next))
}

func buildViewSessionResponse(sess services.ViewSession) viewSessionResponse {
	return viewSessionResponse{
		ID:        sess.ID,
		Screen:    string(sess.Screen),
		Editor:    string(sess.Editor),
		TicketID:  sess.TicketID,
		LastError: sess.LastError,
		UpdatedAt: formatTime(sess.UpdatedAt),
	}
}
