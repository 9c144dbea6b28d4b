// internal/database/redis.go
package database

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Redis manages the cache connection. It satisfies Manager and exposes
// the small get/set/delete surface the host application consumes.
type Redis struct {
	url    string
	client *redis.Client
	failed atomic.Int64
}

// NewRedis creates a Redis manager from a URL (redis://host:6379/0).
// Connect must be called before use.
func NewRedis(url string) *Redis {
	return &Redis{url: url}
}

// Name implements Manager.
func (r *Redis) Name() string { return "redis" }

// Connect parses the URL, opens the client and verifies it.
func (r *Redis) Connect(ctx context.Context) error {
	opts, err := redis.ParseURL(r.url)
	if err != nil {
		return fmt.Errorf("parse redis URL: %w", err)
	}
	opts.DialTimeout = 5 * time.Second

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		r.failed.Add(1)
		return fmt.Errorf("ping redis: %w", err)
	}

	r.client = client
	return nil
}

// Ping verifies the connection.
func (r *Redis) Ping(ctx context.Context) error {
	if r.client == nil {
		return fmt.Errorf("redis not connected")
	}
	if err := r.client.Ping(ctx).Err(); err != nil {
		r.failed.Add(1)
		return fmt.Errorf("redis probe: %w", err)
	}
	return nil
}

// IsAvailable reports whether redis answers a probe.
func (r *Redis) IsAvailable(ctx context.Context) bool {
	return r.Ping(ctx) == nil
}

// ConnectionInfo implements Manager from the client's pool stats.
func (r *Redis) ConnectionInfo(ctx context.Context) (ConnectionInfo, error) {
	if r.client == nil {
		return ConnectionInfo{}, fmt.Errorf("redis not connected")
	}
	stats := r.client.PoolStats()
	total := int(stats.TotalConns)
	idle := int(stats.IdleConns)
	return ConnectionInfo{
		Total:  total,
		Active: total - idle,
		Idle:   idle,
		Failed: int(r.failed.Load()),
	}, nil
}

// Close closes the client.
func (r *Redis) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

// Get fetches a key. Missing keys return an empty string, no error.
func (r *Redis) Get(ctx context.Context, key string) (string, error) {
	val, err := r.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", nil
	}
	return val, err
}

// Set stores a key with a TTL.
func (r *Redis) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return r.client.Set(ctx, key, value, ttl).Err()
}

// Delete removes a key.
func (r *Redis) Delete(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}
