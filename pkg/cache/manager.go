package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Config holds cache manager configuration.
type Config struct {
	// MemorySize is the capacity of the in-process layer. 0 disables it
	// unless there is no Redis client.
	MemorySize int

	// MemoryTTL caps how long an entry stays in the in-process layer.
	MemoryTTL time.Duration
}

// DefaultConfig returns a small in-process layer in front of Redis.
func DefaultConfig() Config {
	return Config{
		MemorySize: 1024,
		MemoryTTL:  10 * time.Minute,
	}
}

// Manager handles caching operations with an in-process LRU and an optional
// Redis backend.
type Manager struct {
	redis  *redis.Client
	memory *expirable.LRU[string, *Entry]
}

// NewManager creates a new cache manager. A nil Redis client yields a
// memory-only cache.
func NewManager(redisClient *redis.Client, cfg Config) *Manager {
	if redisClient == nil && cfg.MemorySize <= 0 {
		cfg.MemorySize = DefaultConfig().MemorySize
	}
	if cfg.MemoryTTL <= 0 {
		cfg.MemoryTTL = DefaultConfig().MemoryTTL
	}

	m := &Manager{redis: redisClient}
	if cfg.MemorySize > 0 {
		m.memory = expirable.NewLRU[string, *Entry](cfg.MemorySize, nil, cfg.MemoryTTL)
	}
	return m
}

// Get retrieves a cache entry by key.
// Returns ErrCacheMiss if the key doesn't exist or entry is expired.
func (m *Manager) Get(ctx context.Context, key Key) (*Entry, error) {
	cacheKey := key.String()

	if m.memory != nil {
		if entry, ok := m.memory.Get(cacheKey); ok {
			if !entry.IsExpired() {
				CacheHits.WithLabelValues("memory").Inc()
				return entry, nil
			}
			m.memory.Remove(cacheKey)
		}
	}

	if m.redis == nil {
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	data, err := m.redis.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if err == redis.Nil {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		_ = m.Delete(ctx, key)
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.WithLabelValues("redis").Inc()
	if m.memory != nil {
		m.memory.Add(cacheKey, &entry)
	}
	return &entry, nil
}

// Set stores a cache entry on every layer. Redis drops it when it expires.
func (m *Manager) Set(ctx context.Context, key Key, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := entry.TTL()
	if ttl <= 0 {
		// Already expired, don't cache
		return nil
	}

	cacheKey := key.String()

	if m.memory != nil {
		m.memory.Add(cacheKey, entry)
		CacheWrites.WithLabelValues("memory").Inc()
	}

	if m.redis == nil {
		return nil
	}

	data, err := json.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	if err := m.redis.Set(ctx, cacheKey, data, ttl).Err(); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}
	CacheWrites.WithLabelValues("redis").Inc()

	return nil
}

// Delete removes a cache entry from every layer.
func (m *Manager) Delete(ctx context.Context, key Key) error {
	cacheKey := key.String()

	if m.memory != nil {
		m.memory.Remove(cacheKey)
	}
	if m.redis == nil {
		return nil
	}

	if err := m.redis.Del(ctx, cacheKey).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}

	return nil
}

// GetJSON decodes the cached value for key into v.
func (m *Manager) GetJSON(ctx context.Context, key Key, v any) error {
	entry, err := m.Get(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(entry.Data, v); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}
	return nil
}

// SetJSON stores v under key for ttl.
func (m *Manager) SetJSON(ctx context.Context, key Key, v any, ttl time.Duration) error {
	data, err := json.Marshal(v)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache value: %w", err)
	}
	return m.Set(ctx, key, NewEntry(data, ttl))
}
