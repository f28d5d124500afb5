package session_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/aussiebroadwan/learnhub/pkg/jwtx"
	"github.com/aussiebroadwan/learnhub/pkg/session"
	"github.com/stretchr/testify/require"
)

func TestNormalizeRole(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"ADMIN", "ROLE_ADMIN"},
		{"ROLE_ADMIN", "ROLE_ADMIN"},
		{"instructor", "ROLE_INSTRUCTOR"},
		{"role_student", "ROLE_STUDENT"},
		{"  admin ", "ROLE_ADMIN"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			require.Equal(t, tt.want, session.NormalizeRole(tt.in))
		})
	}

	require.Equal(t, []string{"ROLE_ADMIN", "ROLE_STUDENT"}, session.NormalizeRoles("ADMIN", "ROLE_ADMIN", "", "student"))
}

func TestIdentityFromClaims(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	t.Run("single role claim", func(t *testing.T) {
		claims := jwtx.NewAccessClaims("u1", "ada@learnhub.test", "INSTRUCTOR", "iss", time.Hour, now)
		id := session.IdentityFromClaims(&claims)

		require.Equal(t, "u1", id.Subject)
		require.Equal(t, "ada@learnhub.test", id.Email)
		require.Equal(t, []string{"ROLE_INSTRUCTOR"}, id.Roles)
		require.NotNil(t, id.ExpiresAt)
		require.True(t, id.ExpiresAt.Equal(now.Add(time.Hour)))
	})

	t.Run("roles list", func(t *testing.T) {
		claims := &jwtx.Claims{Roles: []string{"ADMIN", "ROLE_STUDENT"}}
		id := session.IdentityFromClaims(claims)
		require.Equal(t, []string{"ROLE_ADMIN", "ROLE_STUDENT"}, id.Roles)
		require.Nil(t, id.ExpiresAt)
		require.Empty(t, id.Email)
	})

	t.Run("nil claims", func(t *testing.T) {
		require.Nil(t, session.IdentityFromClaims(nil))
	})
}

func TestMerge(t *testing.T) {
	t.Parallel()

	base := &session.Identity{Subject: "u1", Email: "token@learnhub.test", Roles: []string{"ROLE_STUDENT"}}

	t.Run("singular profile role is normalized", func(t *testing.T) {
		id := base.Merge(&session.Profile{Role: "ADMIN"})
		require.Equal(t, []string{"ROLE_ADMIN"}, id.Roles)
		require.True(t, session.HasRole(id, "ROLE_ADMIN"))
	})

	t.Run("prefixed profile role is not double prefixed", func(t *testing.T) {
		a := base.Merge(&session.Profile{Role: "ADMIN"})
		b := base.Merge(&session.Profile{Role: "ROLE_ADMIN"})
		require.Equal(t, a, b)
	})

	t.Run("profile roles list beats singular role", func(t *testing.T) {
		id := base.Merge(&session.Profile{Role: "ADMIN", Roles: []string{"instructor"}})
		require.Equal(t, []string{"ROLE_INSTRUCTOR"}, id.Roles)
	})

	t.Run("profile fields override token fields", func(t *testing.T) {
		id := base.Merge(&session.Profile{Email: "profile@learnhub.test", FullName: "Ada"})
		require.Equal(t, "profile@learnhub.test", id.Email)
		require.Equal(t, "Ada", id.FullName)
		require.Equal(t, "u1", id.Subject)
		require.Equal(t, []string{"ROLE_STUDENT"}, id.Roles, "token roles kept without profile roles")
	})

	t.Run("merge does not mutate the receiver", func(t *testing.T) {
		_ = base.Merge(&session.Profile{Role: "ADMIN", Email: "x@y.z"})
		require.Equal(t, []string{"ROLE_STUDENT"}, base.Roles)
		require.Equal(t, "token@learnhub.test", base.Email)
	})
}

func TestHasRole(t *testing.T) {
	t.Parallel()

	id := &session.Identity{Roles: []string{"ROLE_ADMIN"}}
	require.True(t, session.HasRole(id, "ROLE_ADMIN"))
	require.False(t, session.HasRole(id, "role_admin"), "comparison is case sensitive")
	require.False(t, session.HasRole(id, "ADMIN"))
	require.False(t, session.HasRole(nil, "ROLE_ADMIN"))
}

func TestOptionalString(t *testing.T) {
	t.Parallel()

	decode := func(t *testing.T, body string) session.OptionalString {
		t.Helper()
		var v struct {
			RefreshToken session.OptionalString `json:"refreshToken"`
		}
		require.NoError(t, json.Unmarshal([]byte(body), &v))
		return v.RefreshToken
	}

	require.Equal(t, session.OptionalString{}, decode(t, `{}`))
	require.Equal(t, session.OptionalString{Set: true}, decode(t, `{"refreshToken":null}`))
	require.Equal(t, session.OptionalString{Set: true}, decode(t, `{"refreshToken":""}`))
	require.Equal(t, session.OptionalString{Value: "r1", Set: true}, decode(t, `{"refreshToken":"r1"}`))
}
