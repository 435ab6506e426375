package authn

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/astro-web3/token-relay/internal/infra/cache"
	"github.com/astro-web3/token-relay/internal/infra/jwks"
	"github.com/astro-web3/token-relay/pkg/authority"
	"github.com/astro-web3/token-relay/pkg/logger"
	"github.com/astro-web3/token-relay/pkg/security"
)

const bearerScheme = "bearer "

// Service turns an inbound Authorization header into a security context.
type Service interface {
	Authenticate(ctx context.Context, authorizationHeader string) (*security.Context, error)
}

type service struct {
	verifier jwks.Verifier
	extract  authority.Extractor
	cache    cache.PrincipalCache
	cacheTTL time.Duration
	now      func() time.Time
}

func NewService(verifier jwks.Verifier, extract authority.Extractor) Service {
	if extract == nil {
		extract = authority.ExtractAuthorityFromClaims
	}
	return &service{
		verifier: verifier,
		extract:  extract,
		now:      time.Now,
	}
}

// NewServiceWithCache remembers verified principals for up to cacheTTL,
// never beyond the token's own expiry.
func NewServiceWithCache(
	verifier jwks.Verifier,
	extract authority.Extractor,
	principalCache cache.PrincipalCache,
	cacheTTL time.Duration,
) Service {
	s := NewService(verifier, extract).(*service)
	s.cache = principalCache
	s.cacheTTL = cacheTTL
	return s
}

func (s *service) Authenticate(ctx context.Context, authorizationHeader string) (*security.Context, error) {
	header := strings.TrimSpace(authorizationHeader)
	if header == "" {
		return security.Anonymous(), nil
	}

	if len(header) < len(bearerScheme) || !strings.EqualFold(header[:len(bearerScheme)], bearerScheme) {
		return nil, ErrUnsupportedScheme
	}

	token := strings.TrimSpace(header[len(bearerScheme):])
	if token == "" {
		return nil, ErrInvalidToken
	}

	tokenHash := hashToken(token)

	if s.cache != nil {
		cached, err := s.cache.Get(ctx, tokenHash)
		if err != nil {
			logger.WarnContext(ctx, "failed to get from cache, will verify token", slog.String("error", err.Error()))
		}
		if err == nil && cached != nil {
			return security.New(principalFromCache(token, cached)), nil
		}
	}

	verified, err := s.verifier.Verify(ctx, token)
	if err != nil {
		if errors.Is(err, jwks.ErrKeySetUnavailable) {
			return nil, fmt.Errorf("failed to verify token: %w", err)
		}
		logger.DebugContext(ctx, "token rejected",
			slog.String("token", logger.MaskToken(token)),
			slog.String("error", err.Error()),
		)
		return nil, fmt.Errorf("%w: %w", ErrInvalidToken, err)
	}

	principal := &security.Principal{
		Subject:     verified.Subject,
		Credential:  security.BearerCredential{Token: token},
		Claims:      verified.Claims,
		Authorities: s.extract(verified.Claims),
	}

	if s.cache != nil {
		if setErr := s.cache.Set(ctx, tokenHash, toCache(principal), s.ttlFor(verified)); setErr != nil {
			logger.WarnContext(ctx, "failed to set cache", slog.String("error", setErr.Error()))
		}
	}

	return security.New(principal), nil
}

func (s *service) ttlFor(verified *jwks.VerifiedToken) time.Duration {
	ttl := s.cacheTTL
	if verified.Expiry.IsZero() {
		return ttl
	}
	if remaining := verified.Expiry.Sub(s.now()); remaining < ttl {
		return remaining
	}
	return ttl
}

func toCache(p *security.Principal) *cache.CachedPrincipal {
	return &cache.CachedPrincipal{
		Subject:     p.Subject,
		Claims:      p.Claims,
		Authorities: p.Authorities.Slice(),
	}
}

func principalFromCache(token string, cached *cache.CachedPrincipal) *security.Principal {
	return &security.Principal{
		Subject:     cached.Subject,
		Credential:  security.BearerCredential{Token: token},
		Claims:      cached.Claims,
		Authorities: authority.NewSet(cached.Authorities...),
	}
}

func hashToken(token string) string {
	hash := sha256.Sum256([]byte(token))
	return hex.EncodeToString(hash[:])
}
