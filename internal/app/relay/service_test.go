package relay_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/astro-web3/token-relay/internal/app/audit"
	apprelay "github.com/astro-web3/token-relay/internal/app/relay"
	relaydomain "github.com/astro-web3/token-relay/internal/domain/relay"
	"github.com/astro-web3/token-relay/pkg/authority"
	"github.com/astro-web3/token-relay/pkg/security"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockDomainService struct {
	forwardFunc func(ctx context.Context, sc *security.Context, call relaydomain.Call) (*relaydomain.Result, error)
}

func (m *mockDomainService) Forward(
	ctx context.Context,
	sc *security.Context,
	call relaydomain.Call,
) (*relaydomain.Result, error) {
	return m.forwardFunc(ctx, sc, call)
}

type mockMetrics struct {
	outbound []string
}

func (m *mockMetrics) RecordAuthentication(context.Context, string) {}

func (m *mockMetrics) RecordOutbound(_ context.Context, upstream string, _ bool, _ int, _ time.Duration) {
	m.outbound = append(m.outbound, upstream)
}

func principal() *security.Context {
	return security.New(&security.Principal{
		Subject:     "user-123",
		Credential:  security.BearerCredential{Token: "abc123"},
		Claims:      authority.Claims{"sub": "user-123"},
		Authorities: authority.NewSet("ROLE_editor", "ROLE_admin"),
	})
}

func TestService_WhoAmI(t *testing.T) {
	svc := apprelay.NewService(nil, nil, nil)

	id := svc.WhoAmI(context.Background(), principal())
	assert.True(t, id.Authenticated)
	assert.Equal(t, "user-123", id.Subject)
	assert.Equal(t, []string{"ROLE_admin", "ROLE_editor"}, id.Authorities)

	anon := svc.WhoAmI(context.Background(), security.Anonymous())
	assert.False(t, anon.Authenticated)
	assert.Empty(t, anon.Subject)
	assert.Equal(t, []string{}, anon.Authorities)
}

func TestService_Forward_RecordsAudit(t *testing.T) {
	domain := &mockDomainService{
		forwardFunc: func(context.Context, *security.Context, relaydomain.Call) (*relaydomain.Result, error) {
			return &relaydomain.Result{Status: http.StatusOK, Relayed: true}, nil
		},
	}
	m := &mockMetrics{}
	var events []audit.Event
	recorder := audit.RecorderFunc(func(_ context.Context, e audit.Event) {
		events = append(events, e)
	})

	svc := apprelay.NewService(domain, m, recorder)
	res, err := svc.Forward(context.Background(), principal(), relaydomain.Call{
		Upstream: "orders",
		Method:   http.MethodGet,
		Path:     "/v1/orders",
	})
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, res.Status)
	assert.Equal(t, []string{"orders"}, m.outbound)
	require.Len(t, events, 1)
	assert.Equal(t, "user-123", events[0].Subject)
	assert.True(t, events[0].Relayed)
	assert.NoError(t, events[0].Err)
}

func TestService_Forward_ErrorWithoutAuditor(t *testing.T) {
	wantErr := errors.New("boom")
	domain := &mockDomainService{
		forwardFunc: func(context.Context, *security.Context, relaydomain.Call) (*relaydomain.Result, error) {
			return nil, wantErr
		},
	}

	svc := apprelay.NewService(domain, nil, nil)
	_, err := svc.Forward(context.Background(), security.Anonymous(), relaydomain.Call{Upstream: "orders"})
	assert.ErrorIs(t, err, wantErr)
}
