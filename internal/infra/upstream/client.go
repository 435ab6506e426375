// Package upstream sends relayed calls to the internal services named in config.
package upstream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/astro-web3/token-relay/internal/config"
	"github.com/astro-web3/token-relay/internal/domain/relay"
	httpclient "github.com/astro-web3/token-relay/pkg/http"
	"github.com/astro-web3/token-relay/pkg/security"
	"github.com/go-resty/resty/v2"
)

// Inbound headers that must not reach an upstream. Authorization is rebuilt
// from the security context instead of being copied.
var droppedHeaders = []string{
	"Authorization",
	"Cookie",
	"Connection",
	"Keep-Alive",
	"Proxy-Authorization",
	"Te",
	"Trailer",
	"Transfer-Encoding",
	"Upgrade",
	"Host",
	"Content-Length",
}

type Registry struct {
	clients map[string]*resty.Client
}

func NewRegistry(upstreams map[string]config.Upstream) *Registry {
	clients := make(map[string]*resty.Client, len(upstreams))
	for name, u := range upstreams {
		clients[name] = httpclient.NewClient(httpclient.Options{
			BaseURL: strings.TrimSuffix(u.BaseURL, "/"),
			Timeout: u.Timeout,
			Retry:   u.Retry,
		})
	}
	return &Registry{clients: clients}
}

func (r *Registry) Forward(ctx context.Context, sc *security.Context, call relay.Call) (*relay.Result, error) {
	c, ok := r.clients[call.Upstream]
	if !ok {
		return nil, fmt.Errorf("%w: %s", relay.ErrUnknownUpstream, call.Upstream)
	}

	header := call.Header.Clone()
	if header == nil {
		header = http.Header{}
	}
	for _, h := range droppedHeaders {
		header.Del(h)
	}

	path := "/" + strings.TrimPrefix(call.Path, "/")
	opts := []httpclient.RequestOption{
		httpclient.WithHeaders(header),
		httpclient.WithQuery(call.Query),
		httpclient.WithSecurityContext(sc),
	}
	if len(call.Body) > 0 {
		opts = append(opts, httpclient.WithBody(call.Body))
	}

	_, relayed := sc.Token()

	resp, err := httpclient.Do(ctx, c, call.Method, path, opts...)
	if err != nil {
		if errors.Is(err, security.ErrContextUnavailable) || errors.Is(err, security.ErrCorruptedContext) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %s: %w", relay.ErrUpstreamUnavailable, call.Upstream, err)
	}

	return &relay.Result{
		Status:  resp.StatusCode(),
		Header:  resp.Header(),
		Body:    resp.Body(),
		Relayed: relayed,
	}, nil
}

// Names lists the configured upstreams in sorted order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.clients))
	for n := range r.clients {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}
