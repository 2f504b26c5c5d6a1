package gist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"idoracle/pkg/domain"
)

// Cache stores successfully fetched gist content for a short time, so that a
// pending request is not re-fetched on every block.
type Cache interface {
	Get(ctx context.Context, id domain.ResourceID) ([]byte, bool, error)
	Set(ctx context.Context, id domain.ResourceID, raw []byte, ttl time.Duration) error
	Delete(ctx context.Context, id domain.ResourceID) error
}

// CachingFetcher serves fetches from cache when it can. Failed fetches are
// never cached, and cache errors fall through to the wrapped fetcher.
type CachingFetcher struct {
	next    Fetcher
	cache   Cache
	ttl     time.Duration
	logger  *slog.Logger
	metrics *Metrics
}

func NewCachingFetcher(next Fetcher, cache Cache, ttl time.Duration, logger *slog.Logger, m *Metrics) *CachingFetcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &CachingFetcher{next: next, cache: cache, ttl: ttl, logger: logger, metrics: m}
}

func (c *CachingFetcher) Fetch(ctx context.Context, id domain.ResourceID) ([]byte, error) {
	raw, ok, err := c.cache.Get(ctx, id)
	switch {
	case err != nil:
		c.metrics.recordCache("error")
		c.logger.WarnContext(ctx, "gist cache read failed", "resource_id", id, "error", err)
	case ok:
		c.metrics.recordCache("hit")
		return raw, nil
	default:
		c.metrics.recordCache("miss")
	}

	raw, err = c.next.Fetch(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := c.cache.Set(ctx, id, raw, c.ttl); err != nil {
		c.logger.WarnContext(ctx, "gist cache write failed", "resource_id", id, "error", err)
	}
	return raw, nil
}

// Invalidate drops the cached content for id. The worker calls it when cached
// content fails the proof or parse step, so the next round sees the owner's
// edits instead of the stale copy.
func (c *CachingFetcher) Invalidate(ctx context.Context, id domain.ResourceID) error {
	if err := c.cache.Delete(ctx, id); err != nil {
		return fmt.Errorf("invalidate gist %s: %w", id, err)
	}
	return nil
}

type memoryEntry struct {
	raw       []byte
	expiresAt time.Time
}

// MemoryCache is a process-local Cache.
type MemoryCache struct {
	mu      sync.Mutex
	entries map[domain.ResourceID]memoryEntry
	now     func() time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{entries: make(map[domain.ResourceID]memoryEntry), now: time.Now}
}

func (m *MemoryCache) Get(_ context.Context, id domain.ResourceID) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[id]
	if !ok {
		return nil, false, nil
	}
	if !m.now().Before(e.expiresAt) {
		delete(m.entries, id)
		return nil, false, nil
	}
	return e.raw, true, nil
}

func (m *MemoryCache) Set(_ context.Context, id domain.ResourceID, raw []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[id] = memoryEntry{raw: raw, expiresAt: m.now().Add(ttl)}
	return nil
}

func (m *MemoryCache) Delete(_ context.Context, id domain.ResourceID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, id)
	return nil
}

const redisKeyPrefix = "idoracle:gist:"

// RedisCache shares fetched content between nodes. Entries expire through
// the key TTL.
type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (r *RedisCache) Get(ctx context.Context, id domain.ResourceID) ([]byte, bool, error) {
	raw, err := r.client.Get(ctx, redisKeyPrefix+id.String()).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (r *RedisCache) Set(ctx context.Context, id domain.ResourceID, raw []byte, ttl time.Duration) error {
	return r.client.Set(ctx, redisKeyPrefix+id.String(), raw, ttl).Err()
}

func (r *RedisCache) Delete(ctx context.Context, id domain.ResourceID) error {
	return r.client.Del(ctx, redisKeyPrefix+id.String()).Err()
}
