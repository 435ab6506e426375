package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/astro-web3/token-relay/pkg/relay"
	"github.com/astro-web3/token-relay/pkg/security"
	"github.com/astro-web3/token-relay/pkg/tracer"
	"github.com/go-resty/resty/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	DefaultTimeout = 60 * time.Second
	DefaultRetry   = 2
)

var (
	//nolint:gochecknoglobals // Global HTTP client is intentional for application-wide requests
	client *resty.Client
	//nolint:gochecknoglobals // Global once is intentional for thread-safe initialization
	once sync.Once
)

// Options configures a dedicated client for one upstream service.
type Options struct {
	BaseURL string
	Timeout time.Duration
	Retry   int
	// Relay installs RelayMiddleware so every request carries the caller's
	// bearer token taken from the request context.
	Relay bool
}

// getClient returns the shared client. It never relays tokens.
func getClient() *resty.Client {
	once.Do(func() {
		client = NewClient(Options{Retry: DefaultRetry})
	})
	return client
}

func NewClient(opts Options) *resty.Client {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.Retry < 0 {
		opts.Retry = 0
	}

	c := resty.New().
		SetTimeout(opts.Timeout).
		SetRetryCount(opts.Retry).
		SetHeader("Accept", "application/json")
	if opts.BaseURL != "" {
		c.SetBaseURL(opts.BaseURL)
	}
	if opts.Relay {
		c.OnBeforeRequest(RelayMiddleware())
	}
	return c
}

// RelayMiddleware augments each request with the bearer token of the
// security context bound to the request context. Anonymous callers are sent
// as is.
func RelayMiddleware() resty.RequestMiddleware {
	return func(_ *resty.Client, r *resty.Request) error {
		sc, err := security.FromContext(r.Context())
		if err != nil {
			return err
		}
		return relay.Apply(r.Header, sc)
	}
}

type RequestOption func(*resty.Request)

// WithSecurityContext relays the bearer token held by sc onto the request.
// A reader failure is surfaced when the request is executed.
func WithSecurityContext(sc *security.Context) RequestOption {
	return func(r *resty.Request) {
		if err := relay.Apply(r.Header, sc); err != nil {
			r.SetContext(withRequestError(r.Context(), err))
		}
	}
}

func WithAuthToken(token string) RequestOption {
	return func(r *resty.Request) {
		r.SetAuthToken(token)
	}
}

func WithBody(body any) RequestOption {
	return func(r *resty.Request) {
		r.SetBody(body)
	}
}

func WithResult(result any) RequestOption {
	return func(r *resty.Request) {
		if result != nil {
			r.SetResult(result).SetError(result)
		}
	}
}

func WithHeader(key, value string) RequestOption {
	return func(r *resty.Request) {
		r.SetHeader(key, value)
	}
}

func WithHeaders(header http.Header) RequestOption {
	return func(r *resty.Request) {
		for k, vs := range header {
			r.Header.Del(k)
			for _, v := range vs {
				r.Header.Add(k, v)
			}
		}
	}
}

func WithQuery(query string) RequestOption {
	return func(r *resty.Request) {
		if query != "" {
			r.SetQueryString(query)
		}
	}
}

// Request sends a request on the shared client.
func Request(ctx context.Context, method, url string, opts ...RequestOption) (*resty.Response, error) {
	return Do(ctx, getClient(), method, url, opts...)
}

// Do sends a request on c with client tracing and trace-context propagation.
func Do(ctx context.Context, c *resty.Client, method, url string, opts ...RequestOption) (*resty.Response, error) {
	ctx, span := startClientSpan(ctx, "http.Request", method, url)
	defer span.End()

	request := c.R().SetContext(ctx)

	for _, opt := range opts {
		opt(request)
	}

	if err := requestError(request.Context()); err != nil {
		recordSpan(span, nil, err)
		return nil, err
	}

	injectTracingHeaders(ctx, request)

	resp, err := request.Execute(method, url)

	recordSpan(span, resp, err)
	return resp, err
}

func Get(ctx context.Context, url string, opts ...RequestOption) (*resty.Response, error) {
	return Request(ctx, http.MethodGet, url, opts...)
}

type requestErrorKey struct{}

func withRequestError(ctx context.Context, err error) context.Context {
	return context.WithValue(ctx, requestErrorKey{}, err)
}

func requestError(ctx context.Context) error {
	err, _ := ctx.Value(requestErrorKey{}).(error)
	return err
}

func startClientSpan(
	ctx context.Context,
	spanName string,
	method string,
	url string,
) (context.Context, trace.Span) {
	if ctx == nil {
		ctx = context.Background()
	}
	return tracer.Start(ctx, spanName, trace.WithAttributes(
		attribute.String("http.method", method),
		attribute.String("http.url", url),
	))
}

func recordSpan(span trace.Span, resp *resty.Response, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return
	}
	if resp == nil {
		return
	}
	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode()))
	if resp.IsError() {
		span.SetStatus(codes.Error, resp.Status())
		return
	}
	span.SetStatus(codes.Ok, "")
}
