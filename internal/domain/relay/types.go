package relay

import (
	"errors"
	"net/http"
)

var (
	ErrUnknownUpstream     = errors.New("unknown upstream")
	ErrForbidden           = errors.New("missing required authority")
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)

// Call is one outbound request made on behalf of the inbound caller.
type Call struct {
	Upstream string
	Method   string
	Path     string
	Query    string
	Header   http.Header
	Body     []byte
}

type Result struct {
	Status  int
	Header  http.Header
	Body    []byte
	Relayed bool
}
