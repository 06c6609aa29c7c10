package handlers

import (
	"net/http"
	"strings"

	"github.com/prettytickets/api/internal/platform/requestctx"
)

// SessionIDHeader names the header browsers send to identify their view session.
const SessionIDHeader = "X-Session-ID"

// SessionIDMiddleware copies the caller's session id from the request header
// into the context so handlers and the idempotency layer can scope work to it.
// Requests without the header pass through unchanged.
func SessionIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if id := strings.TrimSpace(r.Header.Get(SessionIDHeader)); id != "" {
				r = r.WithContext(requestctx.WithSessionID(r.Context(), id))
			}
			next.ServeHTTP(w, r)
		})
	}
}
