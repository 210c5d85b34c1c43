package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/gilkh/livret/internal/logging"
)

// Loader loads the bytes of an image source.
type Loader interface {
	Load(ctx context.Context, src string) ([]byte, error)
}

// Tier is one level of the image cache.
type Tier interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, data []byte, ttl time.Duration) error
}

type cacheEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryTier is a bounded in-process map. When full, expired entries are
// dropped first, then the whole map is reset.
type MemoryTier struct {
	mu         sync.RWMutex
	entries    map[string]cacheEntry
	maxEntries int
}

func NewMemoryTier(maxEntries int) *MemoryTier {
	if maxEntries <= 0 {
		maxEntries = 512
	}
	return &MemoryTier{entries: make(map[string]cacheEntry), maxEntries: maxEntries}
}

func (m *MemoryTier) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.RLock()
	entry, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false, nil
	}
	return entry.data, true, nil
}

func (m *MemoryTier) Set(_ context.Context, key string, data []byte, ttl time.Duration) error {
	entry := cacheEntry{data: data}
	if ttl > 0 {
		entry.expiresAt = time.Now().Add(ttl)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.entries) >= m.maxEntries {
		now := time.Now()
		for k, e := range m.entries {
			if !e.expiresAt.IsZero() && now.After(e.expiresAt) {
				delete(m.entries, k)
			}
		}
		if len(m.entries) >= m.maxEntries {
			m.entries = make(map[string]cacheEntry)
		}
	}
	m.entries[key] = entry
	return nil
}

func (m *MemoryTier) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

// RedisTier shares fetched images between instances.
type RedisTier struct {
	client *redis.Client
}

// NewRedisTier connects to REDIS_URL and pings it.
func NewRedisTier(ctx context.Context, url string) (*RedisTier, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisTier{client: client}, nil
}

func (r *RedisTier) Get(ctx context.Context, key string) ([]byte, bool, error) {
	data, err := r.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return data, true, nil
}

func (r *RedisTier) Set(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	return r.client.Set(ctx, key, data, ttl).Err()
}

// Ping checks the Redis connection.
func (r *RedisTier) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisTier) Close() error {
	return r.client.Close()
}

// ImageCache memoises a Loader across renders. Concurrent loads of the same
// source share one fetch.
type ImageCache struct {
	next  Loader
	tiers []Tier
	ttl   time.Duration
	group singleflight.Group
}

func NewImageCache(next Loader, ttl time.Duration, tiers ...Tier) *ImageCache {
	return &ImageCache{next: next, tiers: tiers, ttl: ttl}
}

func cacheKey(src string) string {
	sum := sha256.Sum256([]byte(src))
	return "livret:img:" + hex.EncodeToString(sum[:])
}

// Load returns src from the first tier holding it, else loads and stores it
// in every tier. Inline data URIs bypass the cache.
func (c *ImageCache) Load(ctx context.Context, src string) ([]byte, error) {
	if strings.HasPrefix(src, "data:") {
		return c.next.Load(ctx, src)
	}
	key := cacheKey(src)

	for i, tier := range c.tiers {
		data, ok, err := tier.Get(ctx, key)
		if err != nil {
			logging.DebugWithComponent(logging.ComponentAssets, "Image cache tier read failed", "tier", i, "error", err)
			continue
		}
		if ok {
			c.backfill(ctx, key, data, i)
			return data, nil
		}
	}

	ch := c.group.DoChan(key, func() (interface{}, error) {
		// Shared fetches outlive any single caller's cancellation
		data, err := c.next.Load(context.WithoutCancel(ctx), src)
		if err != nil {
			return nil, err
		}
		c.backfill(context.WithoutCancel(ctx), key, data, len(c.tiers))
		return data, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

// backfill stores data in the tiers above the one it was found in.
func (c *ImageCache) backfill(ctx context.Context, key string, data []byte, upTo int) {
	for i := 0; i < upTo && i < len(c.tiers); i++ {
		if err := c.tiers[i].Set(ctx, key, data, c.ttl); err != nil {
			logging.DebugWithComponent(logging.ComponentAssets, "Image cache tier write failed", "tier", i, "error", err)
		}
	}
}
