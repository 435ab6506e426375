// Package relay propagates the caller's bearer token onto outbound requests
// made while serving an inbound request.
package relay

import (
	"net/http"

	"github.com/astro-web3/token-relay/pkg/security"
)

const (
	HeaderAuthorization = "Authorization"
	BearerPrefix        = "Bearer "
)

// ContextReader produces the outbound Authorization header value for a
// security context. ok is false when there is nothing to relay.
type ContextReader func(sc *security.Context) (value string, ok bool, err error)

// Augmenter mutates the header mapping of an outbound request template in
// place. It must run strictly before the request is sent.
type Augmenter func(header http.Header) error

// ReadAuthorizationHeader formats the principal's token as a bearer value.
// A missing principal, a non-token credential and an empty token are all
// reported as absent, never as an error.
func ReadAuthorizationHeader(sc *security.Context) (string, bool, error) {
	if sc == nil {
		return "", false, security.ErrContextUnavailable
	}
	token, ok := sc.Token()
	if !ok {
		return "", false, nil
	}
	return BearerPrefix + token, true, nil
}

// NewAugmenter binds a reader to one security context. A nil reader uses
// ReadAuthorizationHeader.
func NewAugmenter(sc *security.Context, read ContextReader) Augmenter {
	if read == nil {
		read = ReadAuthorizationHeader
	}
	return func(header http.Header) error {
		value, ok, err := read(sc)
		if err != nil {
			return err
		}
		if !ok || value == "" {
			return nil
		}
		header.Set(HeaderAuthorization, value)
		return nil
	}
}

// Apply augments header with the bearer token held by sc.
func Apply(header http.Header, sc *security.Context) error {
	return NewAugmenter(sc, nil)(header)
}
