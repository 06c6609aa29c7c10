package clientstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prettytickets/api/internal/domain"
)

const redisKeyPrefix = "pt:session:"

// RedisStore persists sessions in Redis so any API instance can serve a
// returning browser.
type RedisStore struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// NewRedisStore constructs a RedisStore with the given session TTL.
func NewRedisStore(client redis.UniversalClient, ttl time.Duration) (*RedisStore, error) {
	if client == nil {
		return nil, errors.New("clientstate: redis client is required")
	}
	return &RedisStore{client: client, ttl: ttl}, nil
}

// Get returns the stored session or ErrNotFound.
func (s *RedisStore) Get(ctx context.Context, sessionID string) (domain.ViewSession, error) {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return domain.ViewSession{}, errors.New("clientstate: session id is required")
	}

	data, err := s.client.Get(ctx, redisKeyPrefix+sessionID).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.ViewSession{}, ErrNotFound
	}
	if err != nil {
		return domain.ViewSession{}, fmt.Errorf("clientstate: redis get: %w", err)
	}

	var record sessionRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return domain.ViewSession{}, fmt.Errorf("clientstate: decode session %s: %w", sessionID, err)
	}
	return fromRecord(record), nil
}

// Put stores the session, refreshing its TTL.
func (s *RedisStore) Put(ctx context.Context, session domain.ViewSession) error {
	id := strings.TrimSpace(session.ID)
	if id == "" {
		return errors.New("clientstate: session id is required")
	}

	data, err := json.Marshal(toRecord(session))
	if err != nil {
		return fmt.Errorf("clientstate: encode session %s: %w", id, err)
	}
	if err := s.client.Set(ctx, redisKeyPrefix+id, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("clientstate: redis set: %w", err)
	}
	return nil
}

// Delete removes the session.
func (s *RedisStore) Delete(ctx context.Context, sessionID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if sessionID == "" {
		return errors.New("clientstate: session id is required")
	}
	if err := s.client.Del(ctx, redisKeyPrefix+sessionID).Err(); err != nil {
		return fmt.Errorf("clientstate: redis del: %w", err)
	}
	return nil
}
