package rest

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"webinyframework/src/infra/redis"
)

// Cache stores rendered responses. Entries carry tags so a change to a class can
// drop every response built from it.
type Cache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error
	InvalidateTags(ctx context.Context, tags ...string) error
}

// CacheKey identifies a response by its route, params and query string.
func CacheKey(match *Match, query url.Values) string {
	names := make([]string, 0, len(match.Params))
	for name := range match.Params {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	fmt.Fprintf(&b, "%s|%s|%s|%s", match.API, match.Version, match.Service.Name, match.Method.Name)
	for _, name := range names {
		fmt.Fprintf(&b, "|%s=%v", name, match.Params[name])
	}
	b.WriteString("|" + query.Encode())

	sum := md5.Sum([]byte(b.String()))
	return "rest:" + hex.EncodeToString(sum[:])
}

func tagRegistryKey(tag string) string {
	return "registry:tag:" + tag
}

type RedisCache struct {
	client *redis.RedisClient
}

func NewRedisCache(client *redis.RedisClient) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	value, found, err := c.client.GetKey(ctx, key)
	if err != nil {
		return nil, false, fmt.Errorf("RedisCache.Get - %w", err)
	}
	if !found {
		return nil, false, nil
	}
	return []byte(value), true, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration, tags []string) error {
	registries := make([]string, len(tags))
	for i, tag := range tags {
		registries[i] = tagRegistryKey(tag)
	}

	if err := c.client.SetWithRegistry(ctx, key, string(value), ttl, registries); err != nil {
		return fmt.Errorf("RedisCache.Set - %w", err)
	}
	return nil
}

func (c *RedisCache) InvalidateTags(ctx context.Context, tags ...string) error {
	registries := make([]string, len(tags))
	for i, tag := range tags {
		registries[i] = tagRegistryKey(tag)
	}

	if _, err := c.client.InvalidateRegistry(ctx, registries...); err != nil {
		return fmt.Errorf("RedisCache.InvalidateTags - %w", err)
	}
	return nil
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

// sweepInterval bounds how often the in-process stores scan for expired entries.
const sweepInterval = time.Minute

// MemoryCache keeps responses in process. Expired entries are dropped on read and
// swept from entries and tags on write.
type MemoryCache struct {
	mu        sync.Mutex
	entries   map[string]memoryEntry
	tags      map[string]map[string]struct{}
	now       func() time.Time
	nextSweep time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries: make(map[string]memoryEntry),
		tags:    make(map[string]map[string]struct{}),
		now:     time.Now,
	}
}

// WithClock replaces the time source.
func (c *MemoryCache) WithClock(now func() time.Time) *MemoryCache {
	c.now = now
	return c
}

func (c *MemoryCache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !c.now().Before(entry.expires) {
		delete(c.entries, key)
		return nil, false, nil
	}
	return entry.value, true, nil
}

func (c *MemoryCache) Set(_ context.Context, key string, value []byte, ttl time.Duration, tags []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	c.sweep(now)

	c.entries[key] = memoryEntry{value: value, expires: now.Add(ttl)}
	for _, tag := range tags {
		if c.tags[tag] == nil {
			c.tags[tag] = make(map[string]struct{})
		}
		c.tags[tag][key] = struct{}{}
	}
	return nil
}

func (c *MemoryCache) sweep(now time.Time) {
	if now.Before(c.nextSweep) {
		return
	}
	c.nextSweep = now.Add(sweepInterval)

	for key, entry := range c.entries {
		if !now.Before(entry.expires) {
			delete(c.entries, key)
		}
	}
	for tag, keys := range c.tags {
		for key := range keys {
			if _, ok := c.entries[key]; !ok {
				delete(keys, key)
			}
		}
		if len(keys) == 0 {
			delete(c.tags, tag)
		}
	}
}

func (c *MemoryCache) InvalidateTags(_ context.Context, tags ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, tag := range tags {
		for key := range c.tags[tag] {
			delete(c.entries, key)
		}
		delete(c.tags, tag)
	}
	return nil
}

func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
