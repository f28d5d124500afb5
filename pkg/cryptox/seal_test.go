package cryptox_test

import (
	"testing"

	"github.com/aussiebroadwan/learnhub/pkg/cryptox"
	"github.com/stretchr/testify/require"
)

func TestSealer(t *testing.T) {
	t.Parallel()

	s, err := cryptox.NewSealer([]byte("correct horse battery staple"))
	require.NoError(t, err)

	t.Run("round trip", func(t *testing.T) {
		sealed, err := s.SealString("eyJhbGciOi.payload.sig")
		require.NoError(t, err)
		require.NotContains(t, sealed, "payload")

		plain, err := s.OpenString(sealed)
		require.NoError(t, err)
		require.Equal(t, "eyJhbGciOi.payload.sig", plain)
	})

	t.Run("fresh nonce per seal", func(t *testing.T) {
		a, err := s.SealString("same")
		require.NoError(t, err)
		b, err := s.SealString("same")
		require.NoError(t, err)
		require.NotEqual(t, a, b)
	})

	t.Run("wrong key", func(t *testing.T) {
		sealed, err := s.SealString("secret")
		require.NoError(t, err)

		other, err := cryptox.NewSealer([]byte("another key"))
		require.NoError(t, err)
		_, err = other.OpenString(sealed)
		require.Error(t, err)
	})

	t.Run("tampered", func(t *testing.T) {
		sealed, err := s.Seal([]byte("secret"))
		require.NoError(t, err)
		sealed[len(sealed)-1] ^= 0xff
		_, err = s.Open(sealed)
		require.Error(t, err)
	})

	t.Run("too short", func(t *testing.T) {
		_, err := s.Open([]byte{1, 2, 3})
		require.Error(t, err)
	})

	t.Run("bad encoding", func(t *testing.T) {
		_, err := s.OpenString("%%%")
		require.Error(t, err)
	})
}

func TestNewSealerEmptyKey(t *testing.T) {
	t.Parallel()

	_, err := cryptox.NewSealer(nil)
	require.ErrorIs(t, err, cryptox.ErrEmptyKey)
}
