package marketapi

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bricksync/backend/internal/domain/marketplace"
)

// responseCache is the in-process idempotent response cache consulted by the
// executor before any network call. It is scoped to one execution context
// (one call tree); durable cross-process dedupe belongs to IdempotencyStore.
type responseCache struct {
	mu      sync.RWMutex
	entries map[string]cachedResponse
	ttl     time.Duration
}

type cachedResponse struct {
	response  *Response
	expiresAt time.Time
}

func newResponseCache(ttl time.Duration) *responseCache {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &responseCache{
		entries: make(map[string]cachedResponse),
		ttl:     ttl,
	}
}

func (c *responseCache) get(key string) (*Response, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		return nil, false
	}
	return e.response, true
}

func (c *responseCache) put(key string, resp *Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = cachedResponse{
		response:  resp,
		expiresAt: time.Now().Add(c.ttl),
	}
}

// MemoryIdempotencyStore implements marketplace.IdempotencyStore with an
// in-memory map. Suitable for single-instance deployments and testing; a
// background goroutine evicts expired entries.
type MemoryIdempotencyStore struct {
	mu        sync.RWMutex
	entries   map[string]time.Time
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewMemoryIdempotencyStore creates the store and starts its cleanup loop.
func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	store := &MemoryIdempotencyStore{
		entries:  make(map[string]time.Time),
		stopChan: make(chan struct{}),
	}
	store.wg.Add(1)
	go store.cleanupLoop()
	return store
}

// MarkProcessed implements marketplace.IdempotencyStore.
func (s *MemoryIdempotencyStore) MarkProcessed(_ context.Context, key string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if expiresAt, exists := s.entries[key]; exists && time.Now().Before(expiresAt) {
		return false, nil
	}
	s.entries[key] = time.Now().Add(ttl)
	return true, nil
}

// IsProcessed implements marketplace.IdempotencyStore.
func (s *MemoryIdempotencyStore) IsProcessed(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	expiresAt, exists := s.entries[key]
	if !exists || time.Now().After(expiresAt) {
		return false, nil
	}
	return true, nil
}

// Close stops the cleanup goroutine. Safe to call multiple times.
func (s *MemoryIdempotencyStore) Close() error {
	s.closeOnce.Do(func() {
		close(s.stopChan)
		s.wg.Wait()
	})
	return nil
}

func (s *MemoryIdempotencyStore) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *MemoryIdempotencyStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for key, expiresAt := range s.entries {
		if now.After(expiresAt) {
			delete(s.entries, key)
		}
	}
}

// RedisIdempotencyStore implements marketplace.IdempotencyStore on Redis,
// for distributed deployments where repeated bulk invocations may land on
// different instances. SetNX with TTL makes the mark atomic.
type RedisIdempotencyStore struct {
	client    *redis.Client
	keyPrefix string
}

// NewRedisIdempotencyStore creates a store on an existing client. An empty
// prefix defaults to "marketapi:idempotency:".
func NewRedisIdempotencyStore(client *redis.Client, keyPrefix string) *RedisIdempotencyStore {
	if keyPrefix == "" {
		keyPrefix = "marketapi:idempotency:"
	}
	return &RedisIdempotencyStore{client: client, keyPrefix: keyPrefix}
}

// MarkProcessed implements marketplace.IdempotencyStore.
func (s *RedisIdempotencyStore) MarkProcessed(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	ok, err := s.client.SetNX(ctx, s.keyPrefix+key, "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("mark processed: %w", err)
	}
	return ok, nil
}

// IsProcessed implements marketplace.IdempotencyStore.
func (s *RedisIdempotencyStore) IsProcessed(ctx context.Context, key string) (bool, error) {
	n, err := s.client.Exists(ctx, s.keyPrefix+key).Result()
	if err != nil {
		return false, fmt.Errorf("check processed: %w", err)
	}
	return n > 0, nil
}

// Close implements marketplace.IdempotencyStore. The client is shared and
// owned by the caller, so nothing is closed here.
func (s *RedisIdempotencyStore) Close() error {
	return nil
}

var (
	_ marketplace.IdempotencyStore = (*MemoryIdempotencyStore)(nil)
	_ marketplace.IdempotencyStore = (*RedisIdempotencyStore)(nil)
)
