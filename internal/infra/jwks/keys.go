package jwks

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	httpclient "github.com/astro-web3/token-relay/pkg/http"
	"github.com/go-jose/go-jose/v4"
)

const defaultMinRefreshInterval = 30 * time.Second

var ErrKeySetUnavailable = errors.New("jwks: key set unavailable")

// KeySource supplies verification keys. Refresh is called when a token names
// a key id the current set does not contain.
type KeySource interface {
	Keys(ctx context.Context) (*jose.JSONWebKeySet, error)
	Refresh(ctx context.Context) (*jose.JSONWebKeySet, error)
}

// StaticKeys is a fixed key set, used for tests and offline deployments.
type StaticKeys struct {
	Set *jose.JSONWebKeySet
}

func (s StaticKeys) Keys(context.Context) (*jose.JSONWebKeySet, error) {
	if s.Set == nil {
		return nil, ErrKeySetUnavailable
	}
	return s.Set, nil
}

func (s StaticKeys) Refresh(ctx context.Context) (*jose.JSONWebKeySet, error) {
	return s.Keys(ctx)
}

// RemoteKeys fetches the issuer's JWKS document over the shared HTTP client
// and caches it until a refresh is requested.
type RemoteKeys struct {
	url                string
	minRefreshInterval time.Duration
	now                func() time.Time

	// sem is a one-slot lock over the fields below; acquiring it honors ctx.
	sem       chan struct{}
	set       *jose.JSONWebKeySet
	fetchedAt time.Time
	failedAt  time.Time
	lastErr   error
}

type RemoteOption func(*RemoteKeys)

// WithMinRefreshInterval bounds how often an unknown key id or a failed
// fetch may trigger another request to the issuer. Zero disables the limit.
func WithMinRefreshInterval(d time.Duration) RemoteOption {
	return func(r *RemoteKeys) {
		r.minRefreshInterval = d
	}
}

func NewRemoteKeys(url string, opts ...RemoteOption) *RemoteKeys {
	r := &RemoteKeys{
		url:                url,
		minRefreshInterval: defaultMinRefreshInterval,
		now:                time.Now,
		sem:                make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func (r *RemoteKeys) Keys(ctx context.Context) (*jose.JSONWebKeySet, error) {
	if err := r.lock(ctx); err != nil {
		return nil, err
	}
	defer r.unlock()

	if r.set != nil {
		return r.set, nil
	}
	return r.fetchLocked(ctx)
}

// Refresh refetches the document, at most once per minRefreshInterval.
func (r *RemoteKeys) Refresh(ctx context.Context) (*jose.JSONWebKeySet, error) {
	if err := r.lock(ctx); err != nil {
		return nil, err
	}
	defer r.unlock()

	if r.set != nil && r.now().Sub(r.fetchedAt) < r.minRefreshInterval {
		return r.set, nil
	}
	return r.fetchLocked(ctx)
}

func (r *RemoteKeys) lock(ctx context.Context) error {
	select {
	case r.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrKeySetUnavailable, ctx.Err())
	}
}

func (r *RemoteKeys) unlock() {
	<-r.sem
}

// fetchLocked reuses a recent failure instead of calling the issuer again
// within minRefreshInterval.
func (r *RemoteKeys) fetchLocked(ctx context.Context) (*jose.JSONWebKeySet, error) {
	if r.lastErr != nil && r.now().Sub(r.failedAt) < r.minRefreshInterval {
		return nil, r.lastErr
	}

	set, err := r.fetch(ctx)
	if err != nil {
		if ctx.Err() == nil {
			r.lastErr = err
			r.failedAt = r.now()
		}
		return nil, err
	}

	r.set = set
	r.fetchedAt = r.now()
	r.lastErr = nil
	return r.set, nil
}

func (r *RemoteKeys) fetch(ctx context.Context) (*jose.JSONWebKeySet, error) {
	var set jose.JSONWebKeySet
	resp, err := httpclient.Get(ctx, r.url, httpclient.WithResult(&set))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeySetUnavailable, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", ErrKeySetUnavailable, resp.StatusCode())
	}
	return &set, nil
}
