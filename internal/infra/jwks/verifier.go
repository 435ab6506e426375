// Package jwks verifies signed JWTs against the issuer's JSON Web Key Set.
package jwks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/astro-web3/token-relay/pkg/authority"
	"github.com/go-jose/go-jose/v4"
	"github.com/go-jose/go-jose/v4/jwt"
)

var (
	ErrMalformedToken = errors.New("jwks: malformed token")
	ErrUnknownKey     = errors.New("jwks: no matching verification key")
	ErrInvalidClaims  = errors.New("jwks: invalid claims")
)

// VerifiedToken is a token whose signature and registered claims checked out.
type VerifiedToken struct {
	Subject string
	Expiry  time.Time
	Claims  authority.Claims
}

type Verifier interface {
	Verify(ctx context.Context, raw string) (*VerifiedToken, error)
}

type Options struct {
	Issuer     string
	Audience   []string
	Algorithms []string
	Leeway     time.Duration
	Now        func() time.Time
}

type verifier struct {
	keys       KeySource
	expected   jwt.Expected
	algorithms []jose.SignatureAlgorithm
	leeway     time.Duration
	now        func() time.Time
}

func NewVerifier(keys KeySource, opts Options) Verifier {
	algs := make([]jose.SignatureAlgorithm, 0, len(opts.Algorithms))
	for _, a := range opts.Algorithms {
		algs = append(algs, jose.SignatureAlgorithm(a))
	}
	if len(algs) == 0 {
		algs = []jose.SignatureAlgorithm{jose.RS256}
	}

	now := opts.Now
	if now == nil {
		now = time.Now
	}

	return &verifier{
		keys: keys,
		expected: jwt.Expected{
			Issuer:      opts.Issuer,
			AnyAudience: jwt.Audience(opts.Audience),
		},
		algorithms: algs,
		leeway:     opts.Leeway,
		now:        now,
	}
}

func (v *verifier) Verify(ctx context.Context, raw string) (*VerifiedToken, error) {
	tok, err := jwt.ParseSigned(raw, v.algorithms)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
	if len(tok.Headers) == 0 {
		return nil, ErrMalformedToken
	}
	kid := tok.Headers[0].KeyID

	set, err := v.keys.Keys(ctx)
	if err != nil {
		return nil, err
	}

	candidates := candidateKeys(set, kid)
	if len(candidates) == 0 {
		if set, err = v.keys.Refresh(ctx); err != nil {
			return nil, err
		}
		candidates = candidateKeys(set, kid)
	}
	if len(candidates) == 0 {
		return nil, ErrUnknownKey
	}

	var (
		registered jwt.Claims
		claims     map[string]any
		verifyErr  error
	)
	for _, key := range candidates {
		if verifyErr = tok.Claims(key.Key, &registered, &claims); verifyErr == nil {
			break
		}
	}
	if verifyErr != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnknownKey, verifyErr)
	}

	expected := v.expected
	expected.Time = v.now()
	if err := registered.ValidateWithLeeway(expected, v.leeway); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidClaims, err)
	}

	out := &VerifiedToken{
		Subject: registered.Subject,
		Claims:  authority.Claims(claims),
	}
	if registered.Expiry != nil {
		out.Expiry = registered.Expiry.Time()
	}
	return out, nil
}

func candidateKeys(set *jose.JSONWebKeySet, kid string) []jose.JSONWebKey {
	if set == nil {
		return nil
	}
	if kid != "" {
		return set.Key(kid)
	}
	return set.Keys
}
