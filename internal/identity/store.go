package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/straye-as/finance-dashboard/internal/auth"
)

// FlowStore keeps flows until they complete or expire
type FlowStore interface {
	Save(ctx context.Context, flow *Flow, ttl time.Duration) error
	Get(ctx context.Context, id string) (*Flow, error)
	Delete(ctx context.Context, id string) error
}

type memoryEntry struct {
	flow      Flow
	expiresAt time.Time
}

// MemoryStore is a process-local FlowStore for development and single instances
type MemoryStore struct {
	mu    sync.Mutex
	flows map[string]memoryEntry
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{flows: make(map[string]memoryEntry), now: time.Now}
}

// SetClock replaces the time source, for tests
func (s *MemoryStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryStore) Save(_ context.Context, flow *Flow, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.flows[flow.ID] = memoryEntry{flow: *flow, expiresAt: s.now().Add(ttl)}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Flow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.flows[id]
	if !ok {
		return nil, ErrFlowNotFound
	}
	if !s.now().Before(entry.expiresAt) {
		delete(s.flows, id)
		return nil, ErrFlowNotFound
	}
	flow := entry.flow
	return &flow, nil
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.flows, id)
	return nil
}

// RedisStore keeps flows in Redis as JSON values with a TTL
type RedisStore struct {
	client auth.RedisKV
	prefix string
}

// NewRedisStore creates a store using keys under prefix
func NewRedisStore(client auth.RedisKV, prefix string) *RedisStore {
	return &RedisStore{client: client, prefix: prefix}
}

func (s *RedisStore) key(id string) string {
	return s.prefix + "identity-flow:" + id
}

func (s *RedisStore) Save(ctx context.Context, flow *Flow, ttl time.Duration) error {
	if flow.ID == "" {
		return fmt.Errorf("flow ID cannot be empty")
	}
	data, err := json.Marshal(flow)
	if err != nil {
		return fmt.Errorf("failed to marshal flow: %w", err)
	}
	if err := s.client.Set(ctx, s.key(flow.ID), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store flow: %w", err)
	}
	return nil
}

func (s *RedisStore) Get(ctx context.Context, id string) (*Flow, error) {
	data, err := s.client.Get(ctx, s.key(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrFlowNotFound
		}
		return nil, fmt.Errorf("failed to get flow: %w", err)
	}
	var flow Flow
	if err := json.Unmarshal(data, &flow); err != nil {
		return nil, fmt.Errorf("failed to unmarshal flow: %w", err)
	}
	return &flow, nil
}

func (s *RedisStore) Delete(ctx context.Context, id string) error {
	if err := s.client.Del(ctx, s.key(id)).Err(); err != nil {
		return fmt.Errorf("failed to delete flow: %w", err)
	}
	return nil
}
