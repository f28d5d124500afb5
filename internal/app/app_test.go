package app

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/aussiebroadwan/learnhub/internal/devbackend"
	"github.com/aussiebroadwan/learnhub/pkg/session"
	"github.com/aussiebroadwan/learnhub/pkg/slogx"
)

func newBackend(t *testing.T) string {
	t.Helper()

	cfg := defaultConfig()
	cfg.Backend.Seeds = []devbackend.SeedUser{
		{Email: "ada@learnhub.test", Password: "secret1", FullName: "Ada Lovelace", Role: "student"},
	}
	srv, err := NewBackend(cfg, slogx.Discard())
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return ts.URL
}

func TestApplicationStores(t *testing.T) {
	ctx := context.Background()
	baseURL := newBackend(t)

	tests := []struct {
		name   string
		mutate func(t *testing.T, c *Config)
	}{
		{"file", func(t *testing.T, c *Config) {
			c.Store = StoreFile
			c.StorePath = filepath.Join(t.TempDir(), "creds.json")
		}},
		{"sqlite", func(t *testing.T, c *Config) {
			c.Store = StoreSQLite
			c.StorePath = filepath.Join(t.TempDir(), "nested", "creds.db")
		}},
		{"sealed file", func(t *testing.T, c *Config) {
			c.Store = StoreFile
			c.StorePath = filepath.Join(t.TempDir(), "creds.json")
			c.StoreKey = "correct horse battery staple"
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			cfg.APIURL = baseURL
			tt.mutate(t, &cfg)
			require.NoError(t, cfg.Validate())

			first, err := New(ctx, cfg, slogx.Discard())
			require.NoError(t, err)
			require.Equal(t, session.PhaseAnonymous, first.Start(ctx).Phase)

			_, err = first.Session.Login(ctx, "ada@learnhub.test", "secret1")
			require.NoError(t, err)
			require.NoError(t, first.Close())

			// A second process restores the session from the same store.
			second, err := New(ctx, cfg, slogx.Discard())
			require.NoError(t, err)
			t.Cleanup(func() { _ = second.Close() })

			state := second.Start(ctx)
			require.Equal(t, session.PhaseAuthenticated, state.Phase)
			require.Equal(t, "ada@learnhub.test", state.User.Email)
			require.True(t, second.Session.HasRole("ROLE_STUDENT"))

			var me devbackend.Profile
			require.NoError(t, second.Client.Get(ctx, "/users/me", &me))
			require.Equal(t, state.User.Subject, me.ID)
		})
	}
}

func TestApplicationMetrics(t *testing.T) {
	ctx := context.Background()

	cfg := defaultConfig()
	cfg.APIURL = newBackend(t)
	cfg.Store = StoreMemory
	cfg.RateLimit = 50

	app, err := New(ctx, cfg, slogx.Discard())
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })
	app.Start(ctx)

	_, err = app.Session.Login(ctx, "ada@learnhub.test", "wrong")
	require.Error(t, err)

	count, err := testutil.GatherAndCount(app.Registry,
		"learnhub_apiclient_requests_total",
		"learnhub_session_authentications_total",
	)
	require.NoError(t, err)
	require.Positive(t, count)
}

func TestApplicationRejectsUnknownStore(t *testing.T) {
	cfg := defaultConfig()
	cfg.Store = "etcd"

	_, err := New(context.Background(), cfg, slogx.Discard())
	require.ErrorContains(t, err, "unknown credential store")
}
