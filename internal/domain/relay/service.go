package relay

import (
	"context"
	"fmt"

	"github.com/astro-web3/token-relay/pkg/security"
)

// Forwarder sends a call to an upstream, relaying the bearer token held by sc.
type Forwarder interface {
	Forward(ctx context.Context, sc *security.Context, call Call) (*Result, error)
}

type Service interface {
	Forward(ctx context.Context, sc *security.Context, call Call) (*Result, error)
}

type service struct {
	forwarder Forwarder
	// required maps an upstream to the authority a caller must hold.
	required map[string]string
}

func NewService(forwarder Forwarder, required map[string]string) Service {
	r := make(map[string]string, len(required))
	for k, v := range required {
		if v != "" {
			r[k] = v
		}
	}
	return &service{forwarder: forwarder, required: r}
}

func (s *service) Forward(ctx context.Context, sc *security.Context, call Call) (*Result, error) {
	if want, ok := s.required[call.Upstream]; ok && !sc.HasAuthority(want) {
		return nil, fmt.Errorf("%w: %s requires %s", ErrForbidden, call.Upstream, want)
	}
	return s.forwarder.Forward(ctx, sc, call)
}
