package testutil

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

type redisEntry struct {
	value     string
	expiresAt time.Time
}

// FakeRedis answers the SET/GET/DEL subset of the Redis client in memory,
// with key expiry driven by a settable clock
type FakeRedis struct {
	mu   sync.Mutex
	data map[string]redisEntry
	ttls map[string]time.Duration
	now  func() time.Time
	err  error
}

// NewFakeRedis creates an empty fake
func NewFakeRedis() *FakeRedis {
	return &FakeRedis{
		data: make(map[string]redisEntry),
		ttls: make(map[string]time.Duration),
		now:  time.Now,
	}
}

// SetClock replaces the time source used for expiry
func (f *FakeRedis) SetClock(now func() time.Time) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.now = now
}

// FailWith makes every following command return err; nil restores normal answers
func (f *FakeRedis) FailWith(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Keys returns the live keys in sorted order
func (f *FakeRedis) Keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.data))
	for k := range f.data {
		if f.liveLocked(k) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// TTL returns the expiration the key was last set with
func (f *FakeRedis) TTL(key string) time.Duration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ttls[key]
}

func (f *FakeRedis) Set(_ context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStatusResult("", f.err)
	}

	var s string
	switch v := value.(type) {
	case string:
		s = v
	case []byte:
		s = string(v)
	default:
		s = fmt.Sprint(v)
	}

	entry := redisEntry{value: s}
	if expiration > 0 {
		entry.expiresAt = f.now().Add(expiration)
	}
	f.data[key] = entry
	f.ttls[key] = expiration
	return redis.NewStatusResult("OK", nil)
}

func (f *FakeRedis) Get(_ context.Context, key string) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewStringResult("", f.err)
	}
	if !f.liveLocked(key) {
		return redis.NewStringResult("", redis.Nil)
	}
	return redis.NewStringResult(f.data[key].value, nil)
}

func (f *FakeRedis) Del(_ context.Context, keys ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return redis.NewIntResult(0, f.err)
	}
	var n int64
	for _, k := range keys {
		if f.liveLocked(k) {
			n++
		}
		delete(f.data, k)
		delete(f.ttls, k)
	}
	return redis.NewIntResult(n, nil)
}

// liveLocked reports whether key exists and has not expired, dropping it if it has
func (f *FakeRedis) liveLocked(key string) bool {
	entry, ok := f.data[key]
	if !ok {
		return false
	}
	if !entry.expiresAt.IsZero() && !f.now().Before(entry.expiresAt) {
		delete(f.data, key)
		delete(f.ttls, key)
		return false
	}
	return true
}
