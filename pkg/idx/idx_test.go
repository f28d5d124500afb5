package idx_test

import (
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/learnhub/pkg/idx"
	"github.com/stretchr/testify/require"
)

func TestNewIsSortable(t *testing.T) {
	t.Parallel()

	a := idx.New()
	b := idx.New()
	require.Less(t, a.String(), b.String())
}

func TestNewAtEmbedsTime(t *testing.T) {
	t.Parallel()

	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	id := idx.NewAt(at)
	require.True(t, id.Time().Equal(at))
}

func TestParse(t *testing.T) {
	t.Parallel()

	t.Run("valid", func(t *testing.T) {
		id := idx.New()
		parsed, err := idx.Parse(" " + id.String() + " ")
		require.NoError(t, err)
		require.Equal(t, id, parsed)
	})

	t.Run("empty", func(t *testing.T) {
		_, err := idx.Parse("")
		require.ErrorIs(t, err, idx.ErrInvalid)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := idx.Parse("not-a-ulid")
		require.ErrorIs(t, err, idx.ErrInvalid)
	})
}

func TestNewRequestID(t *testing.T) {
	t.Parallel()

	id := idx.NewRequestID()
	require.True(t, strings.HasPrefix(id, idx.RequestPrefix))

	_, err := idx.Parse(strings.TrimPrefix(id, idx.RequestPrefix))
	require.NoError(t, err)
}

func TestZero(t *testing.T) {
	t.Parallel()

	require.True(t, idx.Zero.IsZero())
	require.True(t, idx.Zero.Time().IsZero())
}
