package rest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"webinyframework/src/infra/redis"
)

// RateLimit is the state of a client's window after a hit.
type RateLimit struct {
	Allowed   bool
	Limit     int
	Remaining int
	Reset     time.Duration
}

type RateLimiter interface {
	Allow(ctx context.Context, client string) (RateLimit, error)
}

func rateLimit(count int64, limit int, reset time.Duration) RateLimit {
	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}
	return RateLimit{
		Allowed:   count <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		Reset:     reset,
	}
}

// RedisRateLimiter counts hits in fixed windows shared by every instance.
type RedisRateLimiter struct {
	client *redis.RedisClient
	limit  int
	window time.Duration
}

func NewRedisRateLimiter(client *redis.RedisClient, limit int, window time.Duration) *RedisRateLimiter {
	return &RedisRateLimiter{client: client, limit: limit, window: window}
}

func (l *RedisRateLimiter) Allow(ctx context.Context, client string) (RateLimit, error) {
	count, reset, err := l.client.IncrementWindow(ctx, "ratelimit:"+client, l.window)
	if err != nil {
		return RateLimit{}, fmt.Errorf("RedisRateLimiter.Allow - %w", err)
	}
	return rateLimit(count, l.limit, reset), nil
}

type window struct {
	count   int64
	expires time.Time
}

// MemoryRateLimiter counts hits in fixed windows per process.
type MemoryRateLimiter struct {
	limit  int
	window time.Duration

	mu        sync.Mutex
	clients   map[string]*window
	now       func() time.Time
	nextSweep time.Time
}

func NewMemoryRateLimiter(limit int, windowSize time.Duration) *MemoryRateLimiter {
	return &MemoryRateLimiter{
		limit:   limit,
		window:  windowSize,
		clients: make(map[string]*window),
		now:     time.Now,
	}
}

func (l *MemoryRateLimiter) WithClock(now func() time.Time) *MemoryRateLimiter {
	l.now = now
	return l
}

func (l *MemoryRateLimiter) Allow(_ context.Context, client string) (RateLimit, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.sweep(now)

	current, ok := l.clients[client]
	if !ok || !now.Before(current.expires) {
		current = &window{expires: now.Add(l.window)}
		l.clients[client] = current
	}
	current.count++

	return rateLimit(current.count, l.limit, current.expires.Sub(now)), nil
}

// sweep drops the windows that have ended.
func (l *MemoryRateLimiter) sweep(now time.Time) {
	if now.Before(l.nextSweep) {
		return
	}
	l.nextSweep = now.Add(sweepInterval)

	for client, current := range l.clients {
		if !now.Before(current.expires) {
			delete(l.clients, client)
		}
	}
}
