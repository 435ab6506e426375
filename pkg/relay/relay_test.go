package relay_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"connectrpc.com/connect"
	"github.com/astro-web3/token-relay/pkg/relay"
	"github.com/astro-web3/token-relay/pkg/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/types/known/structpb"
)

func withToken(token string) *security.Context {
	return security.New(&security.Principal{
		Subject:    "user-123",
		Credential: security.BearerCredential{Token: token},
	})
}

func TestReadAuthorizationHeader(t *testing.T) {
	value, ok, err := relay.ReadAuthorizationHeader(withToken("abc123"))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Bearer abc123", value)
}

func TestReadAuthorizationHeader_Absent(t *testing.T) {
	for name, sc := range map[string]*security.Context{
		"anonymous":   security.Anonymous(),
		"api key":     security.New(&security.Principal{Subject: "svc", Credential: security.APIKeyCredential{KeyID: "k"}}),
		"empty token": withToken(""),
	} {
		t.Run(name, func(t *testing.T) {
			value, ok, err := relay.ReadAuthorizationHeader(sc)
			require.NoError(t, err)
			assert.False(t, ok)
			assert.Empty(t, value)
		})
	}
}

func TestReadAuthorizationHeader_NilContext(t *testing.T) {
	_, _, err := relay.ReadAuthorizationHeader(nil)
	assert.ErrorIs(t, err, security.ErrContextUnavailable)
}

func TestApply(t *testing.T) {
	t.Run("sets header", func(t *testing.T) {
		header := http.Header{}
		require.NoError(t, relay.Apply(header, withToken("abc123")))
		assert.Equal(t, []string{"Bearer abc123"}, header.Values("Authorization"))
	})

	t.Run("overwrites prior value", func(t *testing.T) {
		header := http.Header{"Authorization": []string{"Basic bad:stuff"}}
		require.NoError(t, relay.Apply(header, withToken("abc123")))
		assert.Equal(t, []string{"Bearer abc123"}, header.Values("Authorization"))
	})

	t.Run("no token leaves header untouched", func(t *testing.T) {
		header := http.Header{"Accept": []string{"application/json"}}
		require.NoError(t, relay.Apply(header, security.Anonymous()))
		assert.Equal(t, http.Header{"Accept": []string{"application/json"}}, header)
		_, present := header["Authorization"]
		assert.False(t, present)
	})

	t.Run("idempotent", func(t *testing.T) {
		header := http.Header{}
		sc := withToken("abc123")
		require.NoError(t, relay.Apply(header, sc))
		require.NoError(t, relay.Apply(header, sc))
		assert.Equal(t, []string{"Bearer abc123"}, header.Values("Authorization"))
	})
}

func TestNewAugmenter_CustomReader(t *testing.T) {
	errBroken := errors.New("broken")

	augment := relay.NewAugmenter(security.Anonymous(), func(*security.Context) (string, bool, error) {
		return "", false, errBroken
	})
	assert.ErrorIs(t, augment(http.Header{}), errBroken)

	augment = relay.NewAugmenter(security.Anonymous(), func(*security.Context) (string, bool, error) {
		return "Bearer static", true, nil
	})
	header := http.Header{}
	require.NoError(t, augment(header))
	assert.Equal(t, "Bearer static", header.Get("Authorization"))
}

type dummyRoundTripper struct{ *http.Request }

func (d *dummyRoundTripper) RoundTrip(r *http.Request) (*http.Response, error) {
	d.Request = r
	return &http.Response{StatusCode: http.StatusOK, Body: http.NoBody}, nil
}

func TestTransport(t *testing.T) {
	tests := []struct {
		name string
		sc   *security.Context
		out  string
		want string
	}{
		{name: "relays token", sc: withToken("my-token"), want: "Bearer my-token"},
		{name: "anonymous", sc: security.Anonymous(), want: ""},
		{name: "overrides outbound", sc: withToken("my-token"), out: "Basic bad:stuff", want: "Bearer my-token"},
		{name: "anonymous keeps outbound", sc: security.Anonymous(), out: "Basic bad:stuff", want: "Basic bad:stuff"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			drt := &dummyRoundTripper{}
			rt := relay.Transport(drt)

			ctx := security.WithContext(context.Background(), tt.sc)
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://upstream/", nil)
			require.NoError(t, err)
			if tt.out != "" {
				req.Header.Set("Authorization", tt.out)
			}

			resp, err := rt.RoundTrip(req)
			require.NoError(t, err)
			_ = resp.Body.Close()

			assert.Equal(t, tt.want, drt.Header.Get("Authorization"))
			assert.Equal(t, tt.out, req.Header.Get("Authorization"), "caller request must not be modified")
		})
	}
}

func TestTransport_CorruptedContext(t *testing.T) {
	rt := relay.Transport(&dummyRoundTripper{})

	ctx := security.WithContext(context.Background(), nil)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://upstream/", nil)
	require.NoError(t, err)

	_, err = rt.RoundTrip(req)
	assert.ErrorIs(t, err, security.ErrCorruptedContext)
}

func TestUnaryClientInterceptor(t *testing.T) {
	const procedure = "/echo.v1.EchoService/Echo"

	mux := http.NewServeMux()
	mux.Handle(procedure, connect.NewUnaryHandler(procedure,
		func(_ context.Context, req *connect.Request[structpb.Struct]) (*connect.Response[structpb.Struct], error) {
			msg, err := structpb.NewStruct(map[string]any{
				"authorization": req.Header().Get("Authorization"),
			})
			if err != nil {
				return nil, err
			}
			return connect.NewResponse(msg), nil
		},
	))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := connect.NewClient[structpb.Struct, structpb.Struct](
		srv.Client(),
		srv.URL+procedure,
		connect.WithInterceptors(relay.UnaryClientInterceptor()),
	)

	t.Run("relays token", func(t *testing.T) {
		ctx := security.WithContext(context.Background(), withToken("abc123"))
		resp, err := client.CallUnary(ctx, connect.NewRequest(&structpb.Struct{}))
		require.NoError(t, err)
		assert.Equal(t, "Bearer abc123", resp.Msg.GetFields()["authorization"].GetStringValue())
	})

	t.Run("anonymous", func(t *testing.T) {
		resp, err := client.CallUnary(context.Background(), connect.NewRequest(&structpb.Struct{}))
		require.NoError(t, err)
		assert.Empty(t, resp.Msg.GetFields()["authorization"].GetStringValue())
	})
}
