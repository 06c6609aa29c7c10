package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	domain "github.com/prettytickets/api/internal/domain"
	"github.com/prettytickets/api/internal/platform/requestctx"
	"github.com/prettytickets/api/internal/services"
)

func TestNewRouter_DefaultMounts(t *testing.T) {
	now := time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC)
	healthHandlers := NewHealthHandlers(
		WithHealthSystemService(&stubSystemService{
			report: services.SystemHealthReport{
				Status:      domain.HealthStatusOK,
				Uptime:      5 * time.Second,
				GeneratedAt: now,
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusOK},
				},
			},
		}),
		WithHealthClock(func() time.Time { return now }),
	)

	router := NewRouter(WithHealthHandlers(healthHandlers))

	t.Run("healthz", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
			t.Fatalf("expected content-type application/json, got %s", ct)
		}
	})

	t.Run("readyz", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("default not implemented tickets", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/tickets:generate", nil)
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusNotImplemented {
			t.Fatalf("expected status 501, got %d", rr.Code)
		}

		var body map[string]any
		if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
			t.Fatalf("expected JSON body: %v", err)
		}
		if body["error"] != "not_implemented" {
			t.Fatalf("expected not_implemented error, got %v", body["error"])
		}
	})

	t.Run("unknown route", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/nope", nil)
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusNotFound {
			t.Fatalf("expected status 404, got %d", rr.Code)
		}
		if code := decodeErrorCode(t, rr); code != errorNotFoundCode {
			t.Fatalf("expected %s, got %q", errorNotFoundCode, code)
		}
	})
}

func TestNewRouter_WithRegistrars(t *testing.T) {
	ticketRegistrar := func(r chi.Router) {
		r.Get("/tickets", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	}
	sessionRegistrar := func(r chi.Router) {
		r.Get("/{sessionId}", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	}

	router := NewRouter(
		WithTicketRoutes(ticketRegistrar),
		WithSessionRoutes(sessionRegistrar),
	)

	for _, path := range []string{"/api/v1/tickets", "/api/v1/sessions/sess-1"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rr := httptest.NewRecorder()

		router.ServeHTTP(rr, req)

		if rr.Code != http.StatusNoContent {
			t.Fatalf("expected status 204 for %s, got %d", path, rr.Code)
		}
	}
}

func TestNewRouter_TicketMiddlewares(t *testing.T) {
	marker := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Ticket-Group", "1")
			next.ServeHTTP(w, r)
		})
	}
	registrar := func(r chi.Router) {
		r.Get("/tickets", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	}

	router := NewRouter(
		WithTicketRoutes(registrar),
		WithTicketMiddlewares(marker),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/tickets", nil)
	rr := httptest.NewRecorder()

	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
	if rr.Header().Get("X-Ticket-Group") != "1" {
		t.Fatalf("expected ticket middleware to run")
	}
}

func TestSessionIDMiddleware(t *testing.T) {
	var captured string
	handler := SessionIDMiddleware()(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = requestctx.SessionID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("header present", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(SessionIDHeader, " sess-42 ")
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		if captured != "sess-42" {
			t.Fatalf("expected trimmed session id sess-42, got %q", captured)
		}
	})

	t.Run("header absent", func(t *testing.T) {
		captured = "sentinel"
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		rr := httptest.NewRecorder()

		handler.ServeHTTP(rr, req)

		if captured != "" {
			t.Fatalf("expected empty session id, got %q", captured)
		}
	})
}
