package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const keyPrefix = "relay:principal:"

// CachedPrincipal is the verified outcome of one access token. The token
// itself is never stored; entries are keyed by its SHA-256.
type CachedPrincipal struct {
	Subject     string         `json:"subject"`
	Claims      map[string]any `json:"claims"`
	Authorities []string       `json:"authorities"`
}

type PrincipalCache interface {
	// Get returns nil, nil on a miss.
	Get(ctx context.Context, tokenHash string) (*CachedPrincipal, error)
	Set(ctx context.Context, tokenHash string, value *CachedPrincipal, ttl time.Duration) error
}

type redisCache struct {
	client *redis.Client
}

func NewRedisClient(ctx context.Context, url string, poolSize int) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("failed to parse redis URL: %w", err)
	}

	if poolSize > 0 {
		opt.PoolSize = poolSize
	}

	client := redis.NewClient(opt)

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	return client, nil
}

func NewPrincipalCache(client *redis.Client) PrincipalCache {
	return &redisCache{client: client}
}

func key(tokenHash string) string {
	return keyPrefix + tokenHash
}

func (r *redisCache) Get(ctx context.Context, tokenHash string) (*CachedPrincipal, error) {
	val, err := r.client.Get(ctx, key(tokenHash)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var p CachedPrincipal
	if err := json.Unmarshal(val, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached principal: %w", err)
	}

	return &p, nil
}

// Set stores value for ttl. A non-positive ttl, e.g. for a token that is
// about to expire, is a no-op.
func (r *redisCache) Set(ctx context.Context, tokenHash string, value *CachedPrincipal, ttl time.Duration) error {
	if ttl <= 0 || value == nil {
		return nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal cached principal: %w", err)
	}

	if err := r.client.Set(ctx, key(tokenHash), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to set redis cache: %w", err)
	}

	return nil
}
