package relay

import (
	"context"
	"net/http"

	"connectrpc.com/connect"
	"github.com/astro-web3/token-relay/pkg/security"
)

// Transport wraps next so that every outbound request carries the bearer
// token of the security context bound to the request's context.
func Transport(next http.RoundTripper) http.RoundTripper {
	if next == nil {
		next = http.DefaultTransport
	}
	return &roundTripper{next: next}
}

type roundTripper struct {
	next http.RoundTripper
}

func (rt *roundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	sc, err := security.FromContext(req.Context())
	if err != nil {
		return nil, err
	}

	// RoundTrippers must not modify the caller's request.
	out := req.Clone(req.Context())
	if err := Apply(out.Header, sc); err != nil {
		return nil, err
	}
	return rt.next.RoundTrip(out)
}

// UnaryClientInterceptor relays the bearer token on outbound connect calls.
// Server-side invocations pass through untouched.
func UnaryClientInterceptor() connect.UnaryInterceptorFunc {
	return func(next connect.UnaryFunc) connect.UnaryFunc {
		return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
			if !req.Spec().IsClient {
				return next(ctx, req)
			}

			sc, err := security.FromContext(ctx)
			if err != nil {
				return nil, connect.NewError(connect.CodeInternal, err)
			}
			if err := Apply(req.Header(), sc); err != nil {
				return nil, connect.NewError(connect.CodeInternal, err)
			}
			return next(ctx, req)
		}
	}
}
