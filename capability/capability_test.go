package capability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func mustHash(t *testing.T, tok string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(tok), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestTokensCheck(t *testing.T) {
	checker, err := NewTokens(map[Permission][]string{
		Dump:           {mustHash(t, "ops-secret")},
		CoarseLocation: {mustHash(t, "loc-a"), mustHash(t, "loc-b")},
	})
	require.NoError(t, err)

	ctx := context.Background()

	assert.NoError(t, checker.Check(WithToken(ctx, "ops-secret"), Dump))
	assert.NoError(t, checker.Check(WithToken(ctx, "loc-b"), CoarseLocation))

	assert.ErrorIs(t, checker.Check(WithToken(ctx, "loc-a"), Dump), ErrDenied)
	assert.ErrorIs(t, checker.Check(WithToken(ctx, "wrong"), CoarseLocation), ErrDenied)
	assert.ErrorIs(t, checker.Check(ctx, Dump), ErrDenied)
}

func TestNewTokensRejectsBadHash(t *testing.T) {
	_, err := NewTokens(map[Permission][]string{Dump: {"plaintext"}})
	assert.Error(t, err)
}

func TestHashTokenRoundTrip(t *testing.T) {
	h, err := HashToken("s3cret")
	require.NoError(t, err)

	checker, err := NewTokens(map[Permission][]string{Dump: {h}})
	require.NoError(t, err)
	assert.NoError(t, checker.Check(WithToken(context.Background(), "s3cret"), Dump))
}

func TestAllowDenyAll(t *testing.T) {
	ctx := context.Background()
	assert.NoError(t, AllowAll.Check(ctx, Dump))
	assert.ErrorIs(t, DenyAll.Check(ctx, CoarseLocation), ErrDenied)
}

func TestTokenFromContextEmpty(t *testing.T) {
	_, ok := TokenFromContext(WithToken(context.Background(), ""))
	assert.False(t, ok)
}
