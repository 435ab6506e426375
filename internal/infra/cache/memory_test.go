package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryPrincipalCache(t *testing.T) {
	c, err := NewMemoryPrincipalCache(2)
	require.NoError(t, err)
	mc := c.(*memoryCache)

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	mc.now = func() time.Time { return now }
	ctx := context.Background()

	got, err := c.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	p := &CachedPrincipal{Subject: "user-123", Authorities: []string{"ROLE_admin"}}
	require.NoError(t, c.Set(ctx, "h1", p, time.Minute))

	got, err = c.Get(ctx, "h1")
	require.NoError(t, err)
	assert.Equal(t, p, got)

	now = now.Add(time.Minute)
	got, err = c.Get(ctx, "h1")
	require.NoError(t, err)
	assert.Nil(t, got, "entry should expire with its ttl")
}

func TestMemoryPrincipalCache_NonPositiveTTL(t *testing.T) {
	c, err := NewMemoryPrincipalCache(2)
	require.NoError(t, err)

	require.NoError(t, c.Set(context.Background(), "h1", &CachedPrincipal{Subject: "x"}, 0))
	got, err := c.Get(context.Background(), "h1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestMemoryPrincipalCache_Evicts(t *testing.T) {
	c, err := NewMemoryPrincipalCache(1)
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "h1", &CachedPrincipal{Subject: "a"}, time.Hour))
	require.NoError(t, c.Set(ctx, "h2", &CachedPrincipal{Subject: "b"}, time.Hour))

	got, _ := c.Get(ctx, "h1")
	assert.Nil(t, got)
	got, _ = c.Get(ctx, "h2")
	require.NotNil(t, got)
	assert.Equal(t, "b", got.Subject)
}
