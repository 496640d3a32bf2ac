package connectors

import (
	"context"
	"errors"
	"sync"
	"time"
)

var errNotFound = errors.New("fake redis: key not found")

// FakeRedisConnector is an in-memory stand-in for RedisConnector, used by
// store-layer tests that need TTL semantics without a live Redis instance.
// It has no real *redis.Client behind it.
type FakeRedisConnector struct {
	mu      sync.Mutex
	values  map[string]string
	expires map[string]time.Time
	now     func() time.Time
}

// NewFakeRedisConnector builds a FakeRedisConnector. nowFn lets tests pin
// expiry checks to a controllable clock; pass time.Now if not needed.
func NewFakeRedisConnector(nowFn func() time.Time) *FakeRedisConnector {
	return &FakeRedisConnector{
		values:  make(map[string]string),
		expires: make(map[string]time.Time),
		now:     nowFn,
	}
}

func (f *FakeRedisConnector) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[key] = value
	f.expires[key] = f.now().Add(ttl)
	return nil
}

func (f *FakeRedisConnector) Get(ctx context.Context, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	exp, ok := f.expires[key]
	if !ok || f.now().After(exp) {
		delete(f.values, key)
		delete(f.expires, key)
		return "", errNotFound
	}
	return f.values[key], nil
}

func (f *FakeRedisConnector) Del(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, key)
	delete(f.expires, key)
	return nil
}

func (f *FakeRedisConnector) Ping(ctx context.Context) error { return nil }
