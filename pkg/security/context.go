// Package security carries the authenticated caller of one inbound request.
package security

import (
	"context"
	"errors"

	"github.com/astro-web3/token-relay/pkg/authority"
)

var (
	ErrContextUnavailable = errors.New("security context unavailable")
	ErrCorruptedContext   = errors.New("security context corrupted")
)

const (
	CredentialTypeBearer = "bearer"
	CredentialTypeAPIKey = "api_key"
)

// Credential is the material a principal authenticated with.
type Credential interface {
	Type() string
}

// BearerCredential is an OAuth2 access token presented by the caller.
type BearerCredential struct {
	Token string
}

func (BearerCredential) Type() string { return CredentialTypeBearer }

// APIKeyCredential identifies a caller by key id only; it carries no token
// that could be relayed.
type APIKeyCredential struct {
	KeyID string
}

func (APIKeyCredential) Type() string { return CredentialTypeAPIKey }

type Principal struct {
	Subject     string
	Credential  Credential
	Claims      authority.Claims
	Authorities authority.Set
}

// Context is scoped to one inbound request and never shared across requests.
type Context struct {
	Principal *Principal
}

func Anonymous() *Context {
	return &Context{}
}

func New(p *Principal) *Context {
	return &Context{Principal: p}
}

func (c *Context) Authenticated() bool {
	return c != nil && c.Principal != nil
}

// Token returns the bearer token held by the principal, if any.
func (c *Context) Token() (string, bool) {
	if !c.Authenticated() {
		return "", false
	}
	switch cred := c.Principal.Credential.(type) {
	case BearerCredential:
		return cred.Token, cred.Token != ""
	case *BearerCredential:
		if cred == nil {
			return "", false
		}
		return cred.Token, cred.Token != ""
	default:
		return "", false
	}
}

func (c *Context) HasAuthority(token string) bool {
	if !c.Authenticated() || c.Principal.Authorities == nil {
		return false
	}
	return c.Principal.Authorities.Has(token)
}

func (c *Context) Subject() string {
	if !c.Authenticated() {
		return ""
	}
	return c.Principal.Subject
}

type contextKey struct{}

// WithContext binds sc to ctx for the lifetime of the inbound request.
func WithContext(ctx context.Context, sc *Context) context.Context {
	return context.WithValue(ctx, contextKey{}, sc)
}

// FromContext returns the security context bound to ctx. An unbound ctx
// yields an anonymous context.
func FromContext(ctx context.Context) (*Context, error) {
	if ctx == nil {
		return nil, ErrContextUnavailable
	}
	v := ctx.Value(contextKey{})
	if v == nil {
		return Anonymous(), nil
	}
	sc, ok := v.(*Context)
	if !ok || sc == nil {
		return nil, ErrCorruptedContext
	}
	return sc, nil
}
