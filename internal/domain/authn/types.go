package authn

import "errors"

var (
	ErrInvalidToken      = errors.New("invalid bearer token")
	ErrUnsupportedScheme = errors.New("unsupported authorization scheme")
)

// Result labels one authentication outcome for metrics.
type Result string

const (
	ResultAnonymous     Result = "anonymous"
	ResultAuthenticated Result = "authenticated"
	ResultRejected      Result = "rejected"
	ResultError         Result = "error"
)
