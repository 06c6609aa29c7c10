package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	domain "github.com/prettytickets/api/internal/domain"
	"github.com/prettytickets/api/internal/platform/clientstate"
)

// ViewServiceDeps bundles collaborators required to construct a ViewService.
type ViewServiceDeps struct {
	Sessions clientstate.Store
	Logger   *zap.Logger
	Clock    func() time.Time
}

type viewService struct {
	sessions clientstate.Store
	logger   *zap.Logger
	clock    func() time.Time
}

var _ ViewService = (*viewService)(nil)

// NewViewService wires dependencies into a concrete ViewService.
func NewViewService(deps ViewServiceDeps) (ViewService, error) {
	if deps.Sessions == nil {
		return nil, errors.New("view service: session store is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &viewService{
		sessions: deps.Sessions,
		logger:   logger.Named("view"),
		clock:    func() time.Time { return clock().UTC() },
	}, nil
}

func (s *viewService) GetSession(ctx context.Context, sessionID string) (ViewSession, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ViewSession{}, fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if errors.Is(err, clientstate.ErrNotFound) {
			return ViewSession{}, fmt.Errorf("%w: %s", ErrSessionNotFound, sessionID)
		}
		return ViewSession{}, err
	}
	return session, nil
}

// ApplyEvent advances the session machine by one event and persists the
// result. Unknown sessions start fresh, so the first event of a new browser
// needs no separate create call.
func (s *viewService) ApplyEvent(ctx context.Context, sessionID string, event ViewEvent) (ViewSession, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return ViewSession{}, fmt.Errorf("%w: session id is required", ErrInvalidInput)
	}

	now := s.clock()
	session, err := s.sessions.Get(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, clientstate.ErrNotFound) {
			return ViewSession{}, err
		}
		session = domain.NewViewSession(sessionID, now)
	}

	next, err := domain.ApplyViewEvent(session, event, now)
	if err != nil {
		return session, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	if err := s.sessions.Put(ctx, next); err != nil {
		return ViewSession{}, err
	}
	return next, nil
}
