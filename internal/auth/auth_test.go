package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokensRoundTrip(t *testing.T) {
	tokens := NewTokens("test-secret-key-at-least-32-chars", "pos-ledger")
	want := Principal{UserID: "u1", Username: "alice", Role: RoleCashier}

	raw, err := tokens.Issue(want, time.Hour)
	require.NoError(t, err)

	got, err := tokens.Verify(raw)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.False(t, got.IsAdmin())
}

func TestTokensReject(t *testing.T) {
	tokens := NewTokens("test-secret-key-at-least-32-chars", "pos-ledger")
	p := Principal{UserID: "u1", Role: RoleAdmin}

	t.Run("expired", func(t *testing.T) {
		raw, err := tokens.Issue(p, -time.Minute)
		require.NoError(t, err)
		_, err = tokens.Verify(raw)
		assert.ErrorIs(t, err, ErrExpiredToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		raw, err := NewTokens("another-secret-key-also-32-chars!", "pos-ledger").Issue(p, time.Hour)
		require.NoError(t, err)
		_, err = tokens.Verify(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong issuer", func(t *testing.T) {
		raw, err := NewTokens("test-secret-key-at-least-32-chars", "elsewhere").Issue(p, time.Hour)
		require.NoError(t, err)
		_, err = tokens.Verify(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unknown role", func(t *testing.T) {
		raw, err := tokens.Issue(Principal{UserID: "u1", Role: "root"}, time.Hour)
		require.NoError(t, err)
		_, err = tokens.Verify(raw)
		assert.ErrorIs(t, err, ErrInvalidRole)
	})

	t.Run("none algorithm", func(t *testing.T) {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{UserID: "u1", Role: RoleAdmin}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = tokens.Verify(raw)
		assert.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := tokens.Verify("not.a.token")
		assert.ErrorIs(t, err, ErrInvalidToken)
	})
}

func TestPrincipalContext(t *testing.T) {
	_, ok := FromContext(context.Background())
	assert.False(t, ok)

	ctx := WithPrincipal(context.Background(), Principal{UserID: "u9", Role: RoleAdmin})
	p, ok := FromContext(ctx)
	require.True(t, ok)
	assert.Equal(t, "u9", p.UserID)
}

func TestParseDirectory(t *testing.T) {
	d, err := ParseDirectory([]string{"u2:Bob:cashier", "u1:Alice:admin"})
	require.NoError(t, err)
	users := d.List()
	require.Len(t, users, 2)
	assert.Equal(t, "Alice", users[0].Name)
	assert.Equal(t, RoleAdmin, users[0].Role)

	_, err = ParseDirectory([]string{"u1:Alice"})
	assert.Error(t, err)
	_, err = ParseDirectory([]string{"u1:Alice:owner"})
	assert.Error(t, err)
	_, err = ParseDirectory([]string{"u1:A:admin", "u1:B:cashier"})
	assert.Error(t, err)
}
