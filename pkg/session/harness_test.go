package session_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/learnhub/pkg/apiclient"
	"github.com/aussiebroadwan/learnhub/pkg/credstore"
	"github.com/aussiebroadwan/learnhub/pkg/jwtx"
	"github.com/aussiebroadwan/learnhub/pkg/session"
	"github.com/aussiebroadwan/learnhub/pkg/slogx"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// clock is a settable time source shared by the fake backend and the controller.
type clock struct {
	mu  sync.Mutex
	now time.Time
}

func newClock() *clock {
	return &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// mint issues an HS256 token; the codec never checks signatures.
func mint(t *testing.T, claims jwtx.Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-key"))
	require.NoError(t, err)
	return token
}

// backend is a scriptable stand-in for the learnhub auth API.
type backend struct {
	t     *testing.T
	srv   *httptest.Server
	clock *clock

	mu            sync.Mutex
	calls         map[string]int
	refreshTokens map[string]bool
	validAccess   map[string]bool
	rotations     int
	logoutBodies  []string
	lastAuth      string

	// Rotate makes /auth/refresh hand out a new refresh token.
	Rotate bool
	// OmitRefresh drops the refreshToken field from refresh responses.
	OmitRefresh bool
	// LoginResponse, when set, replaces the login payload.
	LoginResponse func() map[string]any
	// AlwaysUnauthorized makes /data answer 401 regardless of token.
	AlwaysUnauthorized bool
	// LogoutStatus overrides the /auth/logout status.
	LogoutStatus int
	// RefreshGate, when non-nil, blocks /auth/refresh until closed.
	RefreshGate chan struct{}
}

func newBackend(t *testing.T, clk *clock) *backend {
	t.Helper()

	b := &backend{
		t:             t,
		clock:         clk,
		calls:         map[string]int{},
		refreshTokens: map[string]bool{},
		validAccess:   map[string]bool{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST "+session.PathLogin, b.login)
	mux.HandleFunc("POST "+session.PathRegister, b.register)
	mux.HandleFunc("POST "+session.PathRefresh, b.refresh)
	mux.HandleFunc("POST "+session.PathLogout, b.logout)
	mux.HandleFunc("GET /data", b.data)

	b.srv = httptest.NewServer(mux)
	t.Cleanup(b.srv.Close)
	return b
}

func (b *backend) count(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.calls[name]
}

func (b *backend) hit(name string) {
	b.mu.Lock()
	b.calls[name]++
	b.mu.Unlock()
}

// AccessToken mints and registers a valid access token.
func (b *backend) AccessToken(role string, ttl time.Duration) string {
	token := mint(b.t, jwtx.NewAccessClaims("u1", "ada@learnhub.test", role, "learnhub-test", ttl, b.clock.Now()))
	b.mu.Lock()
	b.validAccess[token] = true
	b.mu.Unlock()
	return token
}

// RefreshToken registers a refresh token the backend will accept.
func (b *backend) RefreshToken(token string) string {
	b.mu.Lock()
	b.refreshTokens[token] = true
	b.mu.Unlock()
	return token
}

func (b *backend) Revoke(token string) {
	b.mu.Lock()
	delete(b.refreshTokens, token)
	b.mu.Unlock()
}

func (b *backend) LastAuthorization() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastAuth
}

func envelope(w http.ResponseWriter, status int, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"code":    status,
		"message": message,
		"data":    data,
	})
}

func (b *backend) login(w http.ResponseWriter, r *http.Request) {
	b.hit("login")
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	if body.Password != "secret" {
		envelope(w, http.StatusUnauthorized, "invalid email or password", nil)
		return
	}
	if b.LoginResponse != nil {
		envelope(w, http.StatusOK, "ok", b.LoginResponse())
		return
	}
	envelope(w, http.StatusOK, "ok", map[string]any{
		"accessToken":  b.AccessToken("STUDENT", 15*time.Minute),
		"refreshToken": b.RefreshToken("r-login"),
		"user": map[string]any{
			"id":       "u1",
			"email":    body.Email,
			"fullName": "Ada Lovelace",
			"role":     "ADMIN",
		},
	})
}

func (b *backend) register(w http.ResponseWriter, r *http.Request) {
	b.hit("register")
	var body struct {
		Email    string `json:"email"`
		FullName string `json:"fullName"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	if body.Email == "taken@learnhub.test" {
		envelope(w, http.StatusConflict, "email already registered", nil)
		return
	}
	envelope(w, http.StatusCreated, "created", map[string]any{
		"accessToken":  b.AccessToken("STUDENT", 15*time.Minute),
		"refreshToken": b.RefreshToken("r-register"),
		"user":         map[string]any{"email": body.Email, "fullName": body.FullName},
	})
}

func (b *backend) refresh(w http.ResponseWriter, r *http.Request) {
	b.hit("refresh")
	if b.RefreshGate != nil {
		<-b.RefreshGate
	}

	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	b.mu.Lock()
	ok := b.refreshTokens[body.RefreshToken]
	b.mu.Unlock()
	if !ok {
		envelope(w, http.StatusUnauthorized, "refresh token revoked", nil)
		return
	}

	data := map[string]any{"accessToken": b.AccessToken("STUDENT", 15*time.Minute)}
	switch {
	case b.OmitRefresh:
	case b.Rotate:
		b.mu.Lock()
		b.rotations++
		next := fmt.Sprintf("r-rotated-%d", b.rotations)
		delete(b.refreshTokens, body.RefreshToken)
		b.refreshTokens[next] = true
		b.mu.Unlock()
		data["refreshToken"] = next
	default:
		data["refreshToken"] = body.RefreshToken
	}
	envelope(w, http.StatusOK, "ok", data)
}

func (b *backend) logout(w http.ResponseWriter, r *http.Request) {
	b.hit("logout")
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	_ = json.NewDecoder(r.Body).Decode(&body)

	b.mu.Lock()
	b.logoutBodies = append(b.logoutBodies, body.RefreshToken)
	b.mu.Unlock()

	if b.LogoutStatus != 0 {
		envelope(w, b.LogoutStatus, "logout unavailable", nil)
		return
	}
	envelope(w, http.StatusOK, "ok", nil)
}

func (b *backend) data(w http.ResponseWriter, r *http.Request) {
	b.hit("data")
	token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")

	b.mu.Lock()
	b.lastAuth = r.Header.Get("Authorization")
	ok := b.validAccess[token]
	b.mu.Unlock()

	claims := jwtx.Decode(token)
	expired := claims == nil || claims.ExpiresAt == nil || !b.clock.Now().Before(claims.ExpiresAt.Time)

	if b.AlwaysUnauthorized || !ok || expired {
		envelope(w, http.StatusUnauthorized, "token expired", nil)
		return
	}
	envelope(w, http.StatusOK, "ok", map[string]string{"course": "go-101"})
}

type fixture struct {
	backend *backend
	clock   *clock
	client  *apiclient.Client
	store   *credstore.Store
	raw     *credstore.Memory
	ctrl    *session.Controller
}

func newFixture(t *testing.T, opts ...session.Option) *fixture {
	t.Helper()

	clk := newClock()
	b := newBackend(t, clk)
	raw := credstore.NewMemory()
	store := credstore.New(raw)
	client := apiclient.New(b.srv.URL, apiclient.WithLogger(slogx.Discard()))

	base := []session.Option{
		session.WithLogger(slogx.Discard()),
		session.WithNow(clk.Now),
	}
	ctrl := session.New(client, store, append(base, opts...)...)
	require.True(t, session.Bind(client, ctrl))

	return &fixture{
		backend: b,
		clock:   clk,
		client:  client,
		store:   store,
		raw:     raw,
		ctrl:    ctrl,
	}
}

// stored returns both persisted tokens.
func (f *fixture) stored(t *testing.T) (string, string) {
	t.Helper()
	ctx := t.Context()
	access, err := f.store.AccessToken(ctx)
	require.NoError(t, err)
	refresh, err := f.store.RefreshToken(ctx)
	require.NoError(t, err)
	return access, refresh
}

// requireConsistent asserts that a user is present exactly when an
// unexpired access token is held.
func (f *fixture) requireConsistent(t *testing.T) {
	t.Helper()
	token := f.ctrl.AccessToken()
	valid := token != "" && !(jwtx.Codec{Now: f.clock.Now}).IsExpired(token)
	require.Equal(t, valid, f.ctrl.User() != nil)
}
