package cache

import (
	"context"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRedisClient_InvalidURL(t *testing.T) {
	_, err := NewRedisClient(context.Background(), "not a url", 4)
	assert.ErrorContains(t, err, "failed to parse redis URL")
}

func TestKey(t *testing.T) {
	assert.Equal(t, "relay:principal:abc", key("abc"))
}

func TestSet_NonPositiveTTLSkipsWrite(t *testing.T) {
	// Nothing listens on this address; a write attempt would fail.
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", MaxRetries: -1})
	defer func() { _ = client.Close() }()

	c := NewPrincipalCache(client)
	err := c.Set(context.Background(), "abc", &CachedPrincipal{Subject: "user-123"}, 0)
	require.NoError(t, err)

	err = c.Set(context.Background(), "abc", &CachedPrincipal{Subject: "user-123"}, time.Minute)
	assert.ErrorContains(t, err, "failed to set redis cache")
}
