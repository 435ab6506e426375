package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, p *Provider) string {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	p.Handler().ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)
	return w.Body.String()
}

func TestRelayMetrics_Export(t *testing.T) {
	provider, err := NewProvider()
	require.NoError(t, err)
	defer func() { _ = provider.Shutdown(context.Background()) }()

	m, err := NewRelayMetrics(provider.MeterProvider(), "token_relay")
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordAuthentication(ctx, "authenticated")
	m.RecordAuthentication(ctx, "authenticated")
	m.RecordOutbound(ctx, "orders", true, http.StatusOK, 25*time.Millisecond)

	out := scrape(t, provider)
	assert.Regexp(t, `token_relay_authentications_total\{[^}]*result="authenticated"[^}]*\} 2`, out)
	assert.Regexp(t, `token_relay_outbound_requests_total\{[^}]*upstream="orders"[^}]*\} 1`, out)
	assert.Contains(t, out, "token_relay_outbound_request_duration_seconds")
}

func TestNoOpRelayMetrics(t *testing.T) {
	m := NewNoOpRelayMetrics()
	assert.NotPanics(t, func() {
		m.RecordAuthentication(context.Background(), "anonymous")
		m.RecordOutbound(context.Background(), "orders", false, http.StatusBadGateway, time.Second)
	})
}
