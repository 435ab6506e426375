package http

import (
	"errors"
	"net/http"

	"github.com/astro-web3/token-relay/internal/domain/authn"
	"github.com/astro-web3/token-relay/internal/domain/relay"
	"github.com/gin-contrib/requestid"
	"github.com/gin-gonic/gin"
)

// ErrorResponse is the JSON body of every non-2xx response produced here.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code"`
	RequestID string `json:"request_id,omitempty"`
}

const (
	codeUnauthorized       = "unauthorized"
	codeForbidden          = "forbidden"
	codeUnknownUpstream    = "unknown_upstream"
	codeBadGateway         = "bad_gateway"
	codeBadRequest         = "bad_request"
	codeRequestTooLarge    = "request_too_large"
	codeInternal           = "internal"
	wwwAuthenticateInvalid = `Bearer realm="token-relay", error="invalid_token"`
)

func abortWithError(c *gin.Context, status int, code, msg string) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     msg,
		Code:      code,
		RequestID: requestid.Get(c),
	})
}

// statusFor maps domain errors onto HTTP responses.
func statusFor(err error) (int, string, string) {
	switch {
	case errors.Is(err, authn.ErrInvalidToken):
		return http.StatusUnauthorized, codeUnauthorized, "invalid bearer token"
	case errors.Is(err, authn.ErrUnsupportedScheme):
		return http.StatusUnauthorized, codeUnauthorized, "unsupported authorization scheme"
	case errors.Is(err, relay.ErrForbidden):
		return http.StatusForbidden, codeForbidden, "missing required authority"
	case errors.Is(err, relay.ErrUnknownUpstream):
		return http.StatusNotFound, codeUnknownUpstream, "unknown upstream"
	case errors.Is(err, relay.ErrUpstreamUnavailable):
		return http.StatusBadGateway, codeBadGateway, "upstream unavailable"
	default:
		return http.StatusInternalServerError, codeInternal, "internal server error"
	}
}
