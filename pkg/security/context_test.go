package security

import (
	"context"
	"testing"

	"github.com/astro-web3/token-relay/pkg/authority"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContext_Token(t *testing.T) {
	tests := []struct {
		name   string
		sc     *Context
		want   string
		wantOK bool
	}{
		{name: "nil context", sc: nil},
		{name: "anonymous", sc: Anonymous()},
		{name: "no credential", sc: New(&Principal{Subject: "user-123"})},
		{name: "api key", sc: New(&Principal{Subject: "svc", Credential: APIKeyCredential{KeyID: "k1"}})},
		{name: "empty token", sc: New(&Principal{Subject: "user-123", Credential: BearerCredential{}})},
		{name: "nil pointer credential", sc: New(&Principal{Subject: "user-123", Credential: (*BearerCredential)(nil)})},
		{
			name:   "bearer",
			sc:     New(&Principal{Subject: "user-123", Credential: BearerCredential{Token: "abc123"}}),
			want:   "abc123",
			wantOK: true,
		},
		{
			name:   "bearer pointer",
			sc:     New(&Principal{Subject: "user-123", Credential: &BearerCredential{Token: "abc123"}}),
			want:   "abc123",
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := tt.sc.Token()
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestContext_HasAuthority(t *testing.T) {
	sc := New(&Principal{Subject: "user-123", Authorities: authority.NewSet("ROLE_admin")})

	assert.True(t, sc.HasAuthority("ROLE_admin"))
	assert.False(t, sc.HasAuthority("ROLE_editor"))
	assert.False(t, Anonymous().HasAuthority("ROLE_admin"))
	assert.Equal(t, "user-123", sc.Subject())
	assert.Equal(t, "", Anonymous().Subject())
}

func TestFromContext(t *testing.T) {
	t.Run("unbound is anonymous", func(t *testing.T) {
		sc, err := FromContext(context.Background())
		require.NoError(t, err)
		assert.False(t, sc.Authenticated())
	})

	t.Run("bound", func(t *testing.T) {
		want := New(&Principal{Subject: "user-123"})
		sc, err := FromContext(WithContext(context.Background(), want))
		require.NoError(t, err)
		assert.Same(t, want, sc)
	})

	t.Run("wrong type", func(t *testing.T) {
		ctx := context.WithValue(context.Background(), contextKey{}, "garbage")
		_, err := FromContext(ctx)
		assert.ErrorIs(t, err, ErrCorruptedContext)
	})

	t.Run("typed nil", func(t *testing.T) {
		_, err := FromContext(WithContext(context.Background(), nil))
		assert.ErrorIs(t, err, ErrCorruptedContext)
	})
}
