package httpx_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aussiebroadwan/learnhub/pkg/httpx"
	"github.com/aussiebroadwan/learnhub/pkg/jwtx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var okHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
})

func fromIP(method, target, ip string, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, target, body)
	req.RemoteAddr = ip + ":12345"
	return req
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestClientIP(t *testing.T) {
	t.Run("uses RemoteAddr", func(t *testing.T) {
		require.Equal(t, "192.168.1.1", httpx.ClientIP(fromIP(http.MethodGet, "/", "192.168.1.1", nil)))
	})

	t.Run("prefers first X-Forwarded-For hop", func(t *testing.T) {
		req := fromIP(http.MethodGet, "/", "10.0.0.1", nil)
		req.Header.Set("X-Forwarded-For", "203.0.113.1, 70.41.3.18")
		req.Header.Set("X-Real-IP", "203.0.113.2")
		require.Equal(t, "203.0.113.1", httpx.ClientIP(req))
	})

	t.Run("falls back to X-Real-IP", func(t *testing.T) {
		req := fromIP(http.MethodGet, "/", "10.0.0.1", nil)
		req.Header.Set("X-Real-IP", "203.0.113.2")
		require.Equal(t, "203.0.113.2", httpx.ClientIP(req))
	})
}

func TestRateLimitByIP(t *testing.T) {
	t.Run("rejects requests over the burst", func(t *testing.T) {
		h := httpx.RateLimitByIP(httpx.Limit{Requests: 3, Window: time.Minute, Burst: 3})(okHandler)

		for i := range 3 {
			rec := serve(h, fromIP(http.MethodGet, "/", "192.168.1.1", nil))
			require.Equal(t, http.StatusOK, rec.Code, "request %d should succeed", i+1)
		}

		rec := serve(h, fromIP(http.MethodGet, "/", "192.168.1.1", nil))
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		require.Equal(t, "20", rec.Header().Get("Retry-After"))
		require.Equal(t, "3", rec.Header().Get("X-RateLimit-Limit"))
		require.Equal(t, "1m0s", rec.Header().Get("X-RateLimit-Window"))

		var env httpx.Envelope
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
		require.Equal(t, http.StatusTooManyRequests, env.Code)
		require.NotEmpty(t, env.Message)
	})

	t.Run("tracks addresses separately", func(t *testing.T) {
		h := httpx.RateLimitByIP(httpx.Limit{Requests: 1, Window: time.Minute, Burst: 1})(okHandler)

		require.Equal(t, http.StatusOK, serve(h, fromIP(http.MethodGet, "/", "192.168.1.1", nil)).Code)
		require.Equal(t, http.StatusTooManyRequests, serve(h, fromIP(http.MethodGet, "/", "192.168.1.1", nil)).Code)
		require.Equal(t, http.StatusOK, serve(h, fromIP(http.MethodGet, "/", "192.168.1.2", nil)).Code)
	})

	t.Run("passes requests without a key", func(t *testing.T) {
		h := httpx.RateLimitByIP(httpx.Limit{Requests: 1, Window: time.Minute, Burst: 1})(okHandler)

		for range 3 {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = ""
			require.Equal(t, http.StatusOK, serve(h, req).Code)
		}
	})
}

func TestRateLimitByUser(t *testing.T) {
	h := httpx.RateLimitByUser(httpx.Limit{Requests: 1, Window: time.Minute, Burst: 1})(okHandler)

	as := func(subject string) *http.Request {
		req := fromIP(http.MethodGet, "/users/me", "192.168.1.1", nil)
		return req.WithContext(httpx.ContextWithClaims(req.Context(), &jwtx.Claims{
			RegisteredClaims: jwt.RegisteredClaims{Subject: subject},
		}))
	}

	require.Equal(t, http.StatusOK, serve(h, as("u1")).Code)
	require.Equal(t, http.StatusTooManyRequests, serve(h, as("u1")).Code)
	require.Equal(t, http.StatusOK, serve(h, as("u2")).Code, "same address, other user")
	require.Equal(t, http.StatusOK, serve(h, fromIP(http.MethodGet, "/", "192.168.1.1", nil)).Code, "anonymous uses the address")
}

func TestRateLimitByIPAndJSONField(t *testing.T) {
	h := httpx.RateLimitByIPAndJSONField(httpx.Limit{Requests: 2, Window: time.Minute, Burst: 2}, "email")(okHandler)

	login := func(body string) *httptest.ResponseRecorder {
		return serve(h, fromIP(http.MethodPost, "/auth/login", "192.168.1.1", strings.NewReader(body)))
	}

	require.Equal(t, http.StatusOK, login(`{"email":"alice@x.io"}`).Code)
	require.Equal(t, http.StatusOK, login(`{"email":" Alice@X.io "}`).Code)
	require.Equal(t, http.StatusTooManyRequests, login(`{"email":"alice@x.io"}`).Code)
	require.Equal(t, http.StatusOK, login(`{"email":"bob@x.io"}`).Code)

	t.Run("handler still reads the body", func(t *testing.T) {
		var got map[string]string
		h := httpx.RateLimitByIPAndJSONField(httpx.StrictLimit, "email")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		}))
		serve(h, fromIP(http.MethodPost, "/auth/login", "10.0.0.9", strings.NewReader(`{"email":"a@x.io","password":"pw"}`)))
		require.Equal(t, "pw", got["password"])
	})

	t.Run("missing or non-string field limits by address", func(t *testing.T) {
		h := httpx.RateLimitByIPAndJSONField(httpx.Limit{Requests: 1, Window: time.Minute, Burst: 1}, "email")(okHandler)
		require.Equal(t, http.StatusOK, serve(h, fromIP(http.MethodPost, "/", "10.0.0.2", strings.NewReader(`{}`))).Code)
		require.Equal(t, http.StatusTooManyRequests, serve(h, fromIP(http.MethodPost, "/", "10.0.0.2", strings.NewReader(`{"email":42}`))).Code)
		require.Equal(t, http.StatusTooManyRequests, serve(h, fromIP(http.MethodPost, "/", "10.0.0.2", strings.NewReader(`nope`))).Code)
	})
}

func TestRateLimitProfiles(t *testing.T) {
	for name, l := range map[string]httpx.Limit{
		"strict":   httpx.StrictLimit,
		"moderate": httpx.ModerateLimit,
	} {
		t.Run(name, func(t *testing.T) {
			require.Positive(t, l.Requests)
			require.Positive(t, l.Window)
			require.Positive(t, l.Burst)
		})
	}

	require.Less(t, httpx.StrictLimit.Requests, httpx.ModerateLimit.Requests)
}

func TestLimitFromEnv(t *testing.T) {
	def := httpx.Limit{Requests: 10, Window: time.Minute, Burst: 10}

	t.Run("no env vars keeps defaults", func(t *testing.T) {
		require.Equal(t, def, httpx.LimitFromEnv("TEST", def))
	})

	t.Run("overrides all fields", func(t *testing.T) {
		t.Setenv("RATELIMIT_TEST_REQUESTS", "200")
		t.Setenv("RATELIMIT_TEST_WINDOW_SEC", "30")
		t.Setenv("RATELIMIT_TEST_BURST", "250")

		require.Equal(t, httpx.Limit{Requests: 200, Window: 30 * time.Second, Burst: 250}, httpx.LimitFromEnv("TEST", def))
	})

	t.Run("ignores invalid and non-positive values", func(t *testing.T) {
		t.Setenv("RATELIMIT_TEST_REQUESTS", "invalid")
		t.Setenv("RATELIMIT_TEST_WINDOW_SEC", "-10")
		t.Setenv("RATELIMIT_TEST_BURST", "0")

		require.Equal(t, def, httpx.LimitFromEnv("TEST", def))
	})
}

func BenchmarkRateLimitByIP(b *testing.B) {
	h := httpx.RateLimitByIP(httpx.Limit{Requests: 1000000, Window: time.Minute, Burst: 1000})(okHandler)
	req := fromIP(http.MethodGet, "/", "192.168.1.1", nil)

	for b.Loop() {
		h.ServeHTTP(httptest.NewRecorder(), req)
	}
}
