package redis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClient wraps a single node or cluster client. Cached values are stored as hashes
// and registry sets map invalidation tags to the cache keys filled under them.
type RedisClient struct {
	client     redis.UniversalClient
	defaultTTL time.Duration
}

// NewRedisClient connects to a single node, or to a cluster when addrs lists several nodes.
func NewRedisClient(addrs string, poolSize int, defaultTTL time.Duration) *RedisClient {
	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs: strings.Split(addrs, ","),

		PoolSize:     poolSize,
		MinIdleConns: 10,
		MaxRedirects: 3,

		DialTimeout:  5 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,

		MaxRetries:      3,
		MinRetryBackoff: 50 * time.Millisecond,
		MaxRetryBackoff: 500 * time.Millisecond,
	})

	return NewRedisClientFrom(client, defaultTTL)
}

func NewRedisClientFrom(client redis.UniversalClient, defaultTTL time.Duration) *RedisClient {
	return &RedisClient{client: client, defaultTTL: defaultTTL}
}

func (rc *RedisClient) ttl(ttl time.Duration) time.Duration {
	if ttl <= 0 {
		return rc.defaultTTL
	}
	return ttl
}

func (rc *RedisClient) GetKey(ctx context.Context, key string) (string, bool, error) {
	result := rc.client.HGet(ctx, key, "data")

	if errors.Is(result.Err(), redis.Nil) {
		return "", false, nil
	}
	if result.Err() != nil {
		return "", false, result.Err()
	}
	return result.Val(), true, nil
}

// SetWithRegistry stores the value and records the key in every registry set.
// Registry sets outlive the value so a later invalidation still finds it.
func (rc *RedisClient) SetWithRegistry(ctx context.Context, key, value string, ttl time.Duration, registryKeys []string) error {
	ttl = rc.ttl(ttl)
	pipe := rc.client.Pipeline()

	pipe.HSet(ctx, key, map[string]any{
		"data":      value,
		"cached_at": time.Now().Unix(),
	})
	pipe.Expire(ctx, key, ttl)

	for _, registryKey := range registryKeys {
		pipe.SAdd(ctx, registryKey, key)
		pipe.Expire(ctx, registryKey, 2*ttl)
	}

	_, err := pipe.Exec(ctx)
	return err
}

// GetMultipleSetMembers returns the union of the given sets without duplicates.
func (rc *RedisClient) GetMultipleSetMembers(ctx context.Context, setKeys []string) ([]string, error) {
	if len(setKeys) == 0 {
		return []string{}, nil
	}

	pipe := rc.client.Pipeline()
	commands := make([]*redis.StringSliceCmd, len(setKeys))
	for i, setKey := range setKeys {
		commands[i] = pipe.SMembers(ctx, setKey)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}

	seen := make(map[string]struct{})
	members := make([]string, 0)
	for _, command := range commands {
		for _, member := range command.Val() {
			if _, ok := seen[member]; ok {
				continue
			}
			seen[member] = struct{}{}
			members = append(members, member)
		}
	}
	return members, nil
}

// InvalidateRegistry deletes every key recorded in the registries, then the registries.
// Keys are deleted one by one since they may live in different cluster slots.
func (rc *RedisClient) InvalidateRegistry(ctx context.Context, registryKeys ...string) (int, error) {
	keys, err := rc.GetMultipleSetMembers(ctx, registryKeys)
	if err != nil {
		return 0, err
	}

	var failures []string
	for _, key := range append(keys, registryKeys...) {
		if err := rc.client.Del(ctx, key).Err(); err != nil {
			failures = append(failures, fmt.Sprintf("key %s: %v", key, err))
		}
	}

	if len(failures) > 0 {
		return 0, fmt.Errorf("invalidation errors: %s", strings.Join(failures, "; "))
	}
	return len(keys), nil
}

// IncrementWindow counts a hit in a fixed window and returns the count with the time left.
func (rc *RedisClient) IncrementWindow(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error) {
	count, err := rc.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	if count == 1 {
		if err := rc.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, err
		}
		return count, window, nil
	}

	left, err := rc.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, 0, err
	}
	if left < 0 {
		// the expire of the first hit was lost
		if err := rc.client.Expire(ctx, key, window).Err(); err != nil {
			return 0, 0, err
		}
		left = window
	}
	return count, left, nil
}

func (rc *RedisClient) HealthCheck(ctx context.Context) error {
	return rc.client.Ping(ctx).Err()
}

func (rc *RedisClient) Close() error {
	return rc.client.Close()
}
