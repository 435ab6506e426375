package cache

import (
	"context"
	"fmt"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

type memoryEntry struct {
	value     *CachedPrincipal
	expiresAt time.Time
}

type memoryCache struct {
	entries *lru.Cache[string, memoryEntry]
	now     func() time.Time
}

// NewMemoryPrincipalCache keeps up to size principals in process. It backs
// the authenticator when redis is disabled.
func NewMemoryPrincipalCache(size int) (PrincipalCache, error) {
	entries, err := lru.New[string, memoryEntry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru cache: %w", err)
	}
	return &memoryCache{entries: entries, now: time.Now}, nil
}

func (m *memoryCache) Get(_ context.Context, tokenHash string) (*CachedPrincipal, error) {
	e, ok := m.entries.Get(tokenHash)
	if !ok {
		return nil, nil
	}
	if !m.now().Before(e.expiresAt) {
		m.entries.Remove(tokenHash)
		return nil, nil
	}
	return e.value, nil
}

func (m *memoryCache) Set(_ context.Context, tokenHash string, value *CachedPrincipal, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	m.entries.Add(tokenHash, memoryEntry{value: value, expiresAt: m.now().Add(ttl)})
	return nil
}
