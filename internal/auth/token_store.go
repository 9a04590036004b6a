package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrSessionRevoked is returned for a session whose upstream token is gone,
// after logout or once it expired
var ErrSessionRevoked = errors.New("session is no longer active")

// UpstreamTokenStore keeps the remote API token of each session on the server,
// keyed by session ID. The session token handed to the browser never carries it.
type UpstreamTokenStore interface {
	Put(ctx context.Context, sessionID, token string, ttl time.Duration) error
	Get(ctx context.Context, sessionID string) (string, error)
	Delete(ctx context.Context, sessionID string) error
}

type storedToken struct {
	token     string
	expiresAt time.Time
}

// MemoryTokenStore is a process-local UpstreamTokenStore
type MemoryTokenStore struct {
	mu     sync.Mutex
	tokens map[string]storedToken
	now    func() time.Time
}

// NewMemoryTokenStore creates an empty in-memory token store
func NewMemoryTokenStore() *MemoryTokenStore {
	return &MemoryTokenStore{tokens: make(map[string]storedToken), now: time.Now}
}

// SetClock replaces the time source, for tests
func (s *MemoryTokenStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryTokenStore) Put(_ context.Context, sessionID, token string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tokens[sessionID] = storedToken{token: token, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryTokenStore) Get(_ context.Context, sessionID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.tokens[sessionID]
	if !ok {
		return "", ErrSessionRevoked
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.tokens, sessionID)
		return "", ErrSessionRevoked
	}
	return entry.token, nil
}

func (s *MemoryTokenStore) Delete(_ context.Context, sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, sessionID)
	return nil
}

// RedisKV is the part of the Redis client the stores use; *redis.Client satisfies it
type RedisKV interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	Get(ctx context.Context, key string) *redis.StringCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisTokenStore keeps upstream tokens in Redis with the session TTL
type RedisTokenStore struct {
	client RedisKV
	prefix string
}

// NewRedisTokenStore creates a token store using keys under prefix
func NewRedisTokenStore(client RedisKV, prefix string) *RedisTokenStore {
	return &RedisTokenStore{client: client, prefix: prefix}
}

func (s *RedisTokenStore) key(sessionID string) string {
	return s.prefix + "session-token:" + sessionID
}

func (s *RedisTokenStore) Put(ctx context.Context, sessionID, token string, ttl time.Duration) error {
	if sessionID == "" {
		return fmt.Errorf("session ID cannot be empty")
	}
	if err := s.client.Set(ctx, s.key(sessionID), token, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session token: %w", err)
	}
	return nil
}

func (s *RedisTokenStore) Get(ctx context.Context, sessionID string) (string, error) {
	token, err := s.client.Get(ctx, s.key(sessionID)).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrSessionRevoked
		}
		return "", fmt.Errorf("failed to get session token: %w", err)
	}
	return token, nil
}

func (s *RedisTokenStore) Delete(ctx context.Context, sessionID string) error {
	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return fmt.Errorf("failed to delete session token: %w", err)
	}
	return nil
}
