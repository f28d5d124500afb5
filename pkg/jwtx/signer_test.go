package jwtx_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/learnhub/pkg/cryptox"
	"github.com/aussiebroadwan/learnhub/pkg/jwtx"
	"github.com/stretchr/testify/require"
)

func newSigner(t *testing.T, kid string) *jwtx.EdDSASigner {
	t.Helper()
	pemKey, err := cryptox.GenerateEd25519Key()
	require.NoError(t, err)
	s, err := jwtx.NewSignerEdDSA(kid, pemKey)
	require.NoError(t, err)
	return s
}

func TestEdDSASignAndVerify(t *testing.T) {
	t.Parallel()

	signer := newSigner(t, "dev-1")
	require.Equal(t, "EdDSA", signer.Alg())
	require.Equal(t, "dev-1", signer.KID())

	claims := jwtx.NewAccessClaims("user-1", "ada@example.com", "ROLE_ADMIN", "learnhub", time.Minute, time.Now())
	tok, err := signer.Sign(claims)
	require.NoError(t, err)

	t.Run("verifies", func(t *testing.T) {
		got, err := signer.Verifier("learnhub").Verify(tok)
		require.NoError(t, err)
		require.Equal(t, "user-1", got.Subject)
		require.Equal(t, "ada@example.com", got.Email)
		require.Equal(t, []string{"ROLE_ADMIN"}, got.RoleNames())
	})

	t.Run("codec reads the same payload", func(t *testing.T) {
		got := jwtx.Decode(tok)
		require.NotNil(t, got)
		require.Equal(t, claims.ID, got.ID)
	})

	t.Run("issuer mismatch", func(t *testing.T) {
		_, err := signer.Verifier("someone-else").Verify(tok)
		require.ErrorIs(t, err, jwtx.ErrIssuer)
	})

	t.Run("other key", func(t *testing.T) {
		_, err := newSigner(t, "dev-1").Verifier("learnhub").Verify(tok)
		require.ErrorIs(t, err, jwtx.ErrInvalidSig)
	})

	t.Run("other kid", func(t *testing.T) {
		_, err := newSigner(t, "dev-2").Verifier("").Verify(tok)
		require.ErrorIs(t, err, jwtx.ErrInvalidSig)
	})

	t.Run("malformed", func(t *testing.T) {
		_, err := signer.Verifier("").Verify("not-a-jwt")
		require.ErrorIs(t, err, jwtx.ErrMalformed)
	})
}

func TestEdDSAVerifyExpired(t *testing.T) {
	t.Parallel()

	signer := newSigner(t, "dev-1")
	claims := jwtx.NewAccessClaims("user-1", "", "ROLE_STUDENT", "", time.Minute, time.Now().Add(-time.Hour))
	tok, err := signer.Sign(claims)
	require.NoError(t, err)

	_, err = signer.Verifier("").Verify(tok)
	require.ErrorIs(t, err, jwtx.ErrExpired)
}

func TestNewSignerEdDSARejectsBadPEM(t *testing.T) {
	t.Parallel()

	_, err := jwtx.NewSignerEdDSA("k", []byte("nope"))
	require.Error(t, err)
}
