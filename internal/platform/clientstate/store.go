// Package clientstate persists view sessions so a browser can resume exactly
// where it left off.
package clientstate

import (
	"context"
	"errors"
	"time"

	"github.com/prettytickets/api/internal/domain"
)

// ErrNotFound is returned when no session exists for the given id.
var ErrNotFound = errors.New("clientstate: session not found")

// Store persists view sessions keyed by session id.
type Store interface {
	// Get returns the stored session or ErrNotFound.
	Get(ctx context.Context, sessionID string) (domain.ViewSession, error)
	// Put stores the session, refreshing its TTL.
	Put(ctx context.Context, session domain.ViewSession) error
	// Delete removes the session. Deleting an absent session is not an error.
	Delete(ctx context.Context, sessionID string) error
}

// sessionRecord is the serialised form shared by the store backends.
type sessionRecord struct {
	ID              string    `json:"id"`
	Screen          string    `json:"screen"`
	Editor          string    `json:"editor"`
	TicketID        string    `json:"ticketId,omitempty"`
	LastError       string    `json:"lastError,omitempty"`
	PendingUnlockID string    `json:"pendingUnlockId,omitempty"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

func toRecord(session domain.ViewSession) sessionRecord {
	return sessionRecord{
		ID:              session.ID,
		Screen:          string(session.Screen),
		Editor:          string(session.Editor),
		TicketID:        session.TicketID,
		LastError:       session.LastError,
		PendingUnlockID: session.PendingUnlockID,
		UpdatedAt:       session.UpdatedAt,
	}
}

func fromRecord(record sessionRecord) domain.ViewSession {
	return domain.ViewSession{
		ID:              record.ID,
		Screen:          domain.ViewScreen(record.Screen),
		Editor:          domain.EditorState(record.Editor),
		TicketID:        record.TicketID,
		LastError:       record.LastError,
		PendingUnlockID: record.PendingUnlockID,
		UpdatedAt:       record.UpdatedAt,
	}
}
