package clientstate

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/prettytickets/api/internal/domain"
)

// MemoryStore keeps sessions in process memory. Suitable for tests and
// single-instance local runs.
type MemoryStore struct {
	ttl   time.Duration
	clock func() time.Time

	mu       sync.RWMutex
	sessions map[string]memoryEntry
}

type memoryEntry struct {
	session   domain.ViewSession
	expiresAt time.Time
}

// MemoryOption customises MemoryStore construction.
type MemoryOption func(*MemoryStore)

// WithMemoryClock injects a custom clock (useful for tests).
func WithMemoryClock(clock func() time.Time) MemoryOption {
	return func(s *MemoryStore) {
		if clock != nil {
			s.clock = clock
		}
	}
}

// NewMemoryStore constructs a MemoryStore with the given session TTL.
func NewMemoryStore(ttl time.Duration, opts ...MemoryOption) *MemoryStore {
	store := &MemoryStore{
		ttl:      ttl,
		clock:    time.Now,
		sessions: make(map[string]memoryEntry),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	return store
}

// Get returns the stored session or ErrNotFound.
func (s *MemoryStore) Get(_ context.Context, sessionID string) (domain.ViewSession, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.ViewSession{}, errors.New("clientstate: session id is required")
	}

	s.mu.RLock()
	entry, ok := s.sessions[sessionID]
	s.mu.RUnlock()

	if !ok {
		return domain.ViewSession{}, ErrNotFound
	}
	if !entry.expiresAt.IsZero() && s.clock().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.sessions, sessionID)
		s.mu.Unlock()
		return domain.ViewSession{}, ErrNotFound
	}
	return entry.session, nil
}

// Put stores the session, refreshing its TTL.
func (s *MemoryStore) Put(_ context.Context, session domain.ViewSession) error {
	id := strings.TrimSpace(session.ID)
	if id == "" {
		return errors.New("clientstate: session id is required")
	}

	var expiresAt time.Time
	if s.ttl > 0 {
		expiresAt = s.clock().Add(s.ttl)
	}

	s.mu.Lock()
	s.sessions[id] = memoryEntry{session: session, expiresAt: expiresAt}
	s.mu.Unlock()
	return nil
}

// Delete removes the session.
func (s *MemoryStore) Delete(_ context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return errors.New("clientstate: session id is required")
	}
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
	return nil
}

// Purge evicts expired sessions and reports how many were removed.
func (s *MemoryStore) Purge() int {
	now := s.clock()
	removed := 0

	s.mu.Lock()
	for id, entry := range s.sessions {
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			delete(s.sessions, id)
			removed++
		}
	}
	s.mu.Unlock()
	return removed
}
