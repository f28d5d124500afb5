package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/aussiebroadwan/learnhub/pkg/apiclient"
	"github.com/aussiebroadwan/learnhub/pkg/credstore"
	"github.com/aussiebroadwan/learnhub/pkg/jwtx"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"
)

// detachedTimeout bounds work that outlives the caller's context: a shared
// refresh and writes that keep the store consistent with memory.
const detachedTimeout = 30 * time.Second

func detach(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), detachedTimeout)
}

// Controller owns the one authoritative session of an application.
//
// It holds the token pair and the derived identity in memory, mirrors the
// tokens into a credstore.Store, and exposes the session as an observable
// State. A Controller is safe for concurrent use; network calls never run
// under its lock.
type Controller struct {
	client  *apiclient.Client
	store   *credstore.Store
	codec   jwtx.Codec
	logger  *slog.Logger
	metrics *Metrics
	tracer  trace.Tracer
	auth    *AuthInterceptor

	coalesce bool
	flight   singleflight.Group

	mu           sync.RWMutex
	accessToken  string
	refreshToken string
	user         *Identity
	initializing bool
	refreshing   int

	bootOnce sync.Once
	ready    chan struct{}

	subs subscribers
}

// Option configures a Controller.
type Option func(*Controller)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithCodec replaces the token codec, e.g. to require an exp claim.
func WithCodec(codec jwtx.Codec) Option {
	return func(c *Controller) {
		c.codec = codec
	}
}

// WithNow sets the clock used for expiry checks.
func WithNow(now func() time.Time) Option {
	return func(c *Controller) {
		c.codec.Now = now
	}
}

func WithMetrics(m *Metrics) Option {
	return func(c *Controller) {
		c.metrics = m
	}
}

// WithTracerProvider sets the provider spans are created from. The global
// provider is used by default.
func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(c *Controller) {
		if tp != nil {
			c.tracer = tp.Tracer(tracerName)
		}
	}
}

// WithCoalescedRefresh controls whether concurrent refreshes of the same
// refresh token share one backend call. Enabled by default.
func WithCoalescedRefresh(enabled bool) Option {
	return func(c *Controller) {
		c.coalesce = enabled
	}
}

// New creates a controller. Call Bootstrap once to restore a stored session
// and Bind to attach the auth interceptor to client.
func New(client *apiclient.Client, store *credstore.Store, opts ...Option) *Controller {
	c := &Controller{
		client:       client,
		store:        store,
		logger:       slog.Default(),
		tracer:       otel.Tracer(tracerName),
		coalesce:     true,
		initializing: true,
		ready:        make(chan struct{}),
	}
	c.auth = &AuthInterceptor{ctrl: c}

	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ============================================================================
// Bootstrap
// ============================================================================

// Bootstrap restores the stored session. It runs at most once per
// Controller; later and concurrent calls wait for the first and return the
// resulting state. Initializing is false once it returns, even if every
// step failed.
func (c *Controller) Bootstrap(ctx context.Context) State {
	c.bootOnce.Do(func() {
		c.bootstrap(ctx)
	})
	return c.State()
}

// Ready is closed when bootstrap has finished.
func (c *Controller) Ready() <-chan struct{} {
	return c.ready
}

// Initializing reports whether bootstrap is still pending.
func (c *Controller) Initializing() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.initializing
}

func (c *Controller) bootstrap(ctx context.Context) {
	ctx, span := c.startSpan(ctx, "Bootstrap")
	defer span.End()
	defer c.finishBootstrap(ctx)

	access, err := c.store.AccessToken(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to read stored access token", slog.Any("error", err))
	}
	refresh, err := c.store.RefreshToken(ctx)
	if err != nil {
		c.logger.WarnContext(ctx, "failed to read stored refresh token", slog.Any("error", err))
	}

	if access != "" && !c.codec.IsExpired(access) {
		if identity := c.identityFor(access); identity != nil {
			c.mu.Lock()
			c.accessToken = access
			c.refreshToken = refresh
			c.user = identity
			c.mu.Unlock()

			span.SetAttributes(attribute.String("session.restored", "access_token"))
			c.logger.InfoContext(ctx, "session restored", slog.String("subject", identity.Subject))
			return
		}
		c.logger.WarnContext(ctx, "stored access token is not decodable, discarding")
	}

	if refresh != "" {
		c.mu.Lock()
		c.refreshToken = refresh
		c.mu.Unlock()

		_, err := c.Refresh(ctx, refresh)
		if err == nil {
			span.SetAttributes(attribute.String("session.restored", "refresh_token"))
			c.logger.InfoContext(ctx, "session restored by refresh")
			return
		}
		c.logger.InfoContext(ctx, "stored session could not be refreshed", slog.Any("error", err))
	}

	span.SetAttributes(attribute.String("session.restored", "none"))
	c.clear(ctx)
}

func (c *Controller) finishBootstrap(ctx context.Context) {
	c.mu.Lock()
	c.initializing = false
	c.mu.Unlock()

	close(c.ready)
	c.publish()
	c.logger.DebugContext(ctx, "session bootstrap finished", slog.String("phase", c.State().Phase.String()))
}

// ============================================================================
// Login / Register
// ============================================================================

// Login authenticates with email and password and adopts the returned tokens.
// On failure the session is left untouched and the error carries the
// backend's message (see apiclient.Message).
func (c *Controller) Login(ctx context.Context, email, password string) (*Identity, error) {
	return c.authenticate(ctx, "login", PathLogin, loginRequest{
		Email:    email,
		Password: password,
	})
}

// Register creates an account and adopts the returned tokens, exactly like Login.
func (c *Controller) Register(ctx context.Context, email, password, fullName string) (*Identity, error) {
	return c.authenticate(ctx, "register", PathRegister, registerRequest{
		Email:    email,
		Password: password,
		FullName: fullName,
	})
}

func (c *Controller) authenticate(ctx context.Context, op, path string, body any) (identity *Identity, err error) {
	ctx, span := c.startSpan(ctx, op)
	defer func() {
		c.metrics.authentication(op, err)
		endSpan(span, err)
	}()

	var resp authResponse
	req := apiclient.NewRequest(http.MethodPost, path, body, apiclient.SkipAuthRefresh())
	if err := c.client.Do(ctx, req, &resp); err != nil {
		c.logger.InfoContext(ctx, op+" rejected", slog.String("reason", apiclient.Message(err)))
		return nil, err
	}

	identity = c.identityFor(resp.AccessToken)
	if identity == nil {
		return nil, ErrInvalidToken
	}
	identity = identity.Merge(resp.User)

	if err := c.persist(ctx, resp.AccessToken, resp.RefreshToken); err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.accessToken = resp.AccessToken
	if resp.RefreshToken.Set {
		c.refreshToken = resp.RefreshToken.Value
	}
	c.user = identity
	c.mu.Unlock()
	c.publish()

	span.SetAttributes(attribute.String("session.subject", identity.Subject))
	c.logger.InfoContext(ctx, "session authenticated",
		slog.String("operation", op),
		slog.String("subject", identity.Subject),
	)
	return identity.Clone(), nil
}

// ============================================================================
// Refresh
// ============================================================================

// Refresh exchanges a refresh token for a new access token and returns it.
//
// The refresh token is manual if non-empty, else the in-memory one, else the
// stored one. Without any, ErrNoRefreshToken is returned and no call is
// made. Failures are returned as is; the session is not cleared.
//
// A coalesced refresh runs detached from every caller, so a caller whose
// context ends only stops waiting; the refresh still completes for the others.
func (c *Controller) Refresh(ctx context.Context, manual string) (string, error) {
	token, err := c.resolveRefreshToken(ctx, manual)
	if err != nil {
		return "", err
	}

	if !c.coalesce {
		return c.refresh(ctx, token)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	ch := c.flight.DoChan(token, func() (any, error) {
		sctx, cancel := detach(ctx)
		defer cancel()
		return c.refresh(sctx, token)
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Shared {
			c.metrics.refreshShared()
		}
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (c *Controller) resolveRefreshToken(ctx context.Context, manual string) (string, error) {
	if manual != "" {
		return manual, nil
	}

	c.mu.RLock()
	token := c.refreshToken
	c.mu.RUnlock()
	if token != "" {
		return token, nil
	}

	token, err := c.store.RefreshToken(ctx)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", ErrNoRefreshToken
	}
	return token, nil
}

func (c *Controller) refresh(ctx context.Context, token string) (access string, err error) {
	ctx, span := c.startSpan(ctx, "Refresh")
	defer func() {
		c.metrics.refresh(err)
		endSpan(span, err)
	}()

	c.setRefreshing(1)
	defer c.setRefreshing(-1)

	var resp authResponse
	req := apiclient.NewRequest(http.MethodPost, PathRefresh, refreshRequest{RefreshToken: token}, apiclient.SkipAuthRefresh())
	if err := c.client.Do(ctx, req, &resp); err != nil {
		return "", err
	}

	identity := c.identityFor(resp.AccessToken)
	if identity == nil {
		return "", ErrInvalidToken
	}

	next := resp.RefreshToken
	if !next.Set {
		next = OptionalString{Value: token, Set: true}
	}

	if err := c.persist(ctx, resp.AccessToken, next); err != nil {
		return "", err
	}

	c.mu.Lock()
	c.accessToken = resp.AccessToken
	c.refreshToken = next.Value
	c.user = identity
	c.mu.Unlock()

	c.logger.DebugContext(ctx, "access token refreshed",
		slog.String("subject", identity.Subject),
		slog.Bool("rotated", resp.RefreshToken.Set && resp.RefreshToken.Value != token),
	)
	return resp.AccessToken, nil
}

func (c *Controller) setRefreshing(delta int) {
	c.mu.Lock()
	c.refreshing += delta
	c.mu.Unlock()
	c.publish()
}

// ============================================================================
// Logout
// ============================================================================

// Logout notifies the backend on a best-effort basis and then clears the
// stored and in-memory session. It never fails and is safe to repeat.
func (c *Controller) Logout(ctx context.Context) {
	ctx, span := c.startSpan(ctx, "Logout")
	defer span.End()

	c.mu.RLock()
	token := c.refreshToken
	c.mu.RUnlock()
	if token == "" {
		rctx, cancel := detach(ctx)
		stored, err := c.store.RefreshToken(rctx)
		cancel()
		if err != nil {
			c.logger.WarnContext(ctx, "failed to read stored refresh token", slog.Any("error", err))
		}
		token = stored
	}

	req := apiclient.NewRequest(http.MethodPost, PathLogout, logoutRequest{RefreshToken: token}, apiclient.SkipAuthRefresh())
	if err := c.client.Do(ctx, req, nil); err != nil {
		span.RecordError(err)
		c.logger.WarnContext(ctx, "logout notification failed", slog.Any("error", err))
	}

	c.clear(ctx)
	c.logger.InfoContext(ctx, "session logged out")
}

// forceLogout ends the session after an unrecoverable auth failure.
func (c *Controller) forceLogout(ctx context.Context, reason string) {
	c.metrics.forcedLogout(reason)
	c.logger.WarnContext(ctx, "forcing logout", slog.String("reason", reason))
	c.Logout(ctx)
}

// clear wipes the store and the in-memory session. The store is cleared even
// when ctx has already ended.
func (c *Controller) clear(ctx context.Context) {
	sctx, cancel := detach(ctx)
	defer cancel()
	if err := c.store.ClearAll(sctx); err != nil {
		c.logger.WarnContext(ctx, "failed to clear stored tokens", slog.Any("error", err))
	}

	c.mu.Lock()
	c.accessToken = ""
	c.refreshToken = ""
	c.user = nil
	c.mu.Unlock()
	c.publish()
}

// ============================================================================
// Read surface
// ============================================================================

// User returns a copy of the current identity, or nil when anonymous.
// An identity whose access token has expired is dropped on read.
func (c *Controller) User() *Identity {
	c.mu.RLock()
	user, token := c.user, c.accessToken
	c.mu.RUnlock()

	if user == nil {
		return nil
	}
	if !c.codec.IsExpired(token) {
		return user.Clone()
	}

	c.mu.Lock()
	dropped := c.user == user
	if dropped {
		c.user = nil
	}
	c.mu.Unlock()
	if dropped {
		c.publish()
	}
	return nil
}

// HasRole reports whether the current identity has role. Role names are
// compared exactly, e.g. "ROLE_ADMIN".
func (c *Controller) HasRole(role string) bool {
	return HasRole(c.User(), role)
}

func (c *Controller) IsAuthenticated() bool {
	return c.User() != nil
}

// AccessToken returns the in-memory access token, expired or not.
func (c *Controller) AccessToken() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.accessToken
}

// State returns a snapshot of the session.
func (c *Controller) State() State {
	c.User()
	return c.snapshot()
}

// Subscribe registers fn to receive a snapshot after every state change.
// fn runs on the goroutine that made the change and must not block.
// The returned function unsubscribes.
func (c *Controller) Subscribe(fn func(State)) func() {
	return c.subs.add(fn)
}

// Interceptor returns the controller's auth interceptor.
func (c *Controller) Interceptor() *AuthInterceptor {
	return c.auth
}

func (c *Controller) snapshot() State {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := State{
		Initializing: c.initializing,
		Refreshing:   c.refreshing > 0,
		User:         c.user.Clone(),
	}
	switch {
	case c.initializing:
		s.Phase = PhaseBootstrapping
	case c.user != nil:
		s.Phase = PhaseAuthenticated
	default:
		s.Phase = PhaseAnonymous
	}
	return s
}

func (c *Controller) publish() {
	s := c.snapshot()
	c.metrics.authenticated(s.User != nil)
	c.subs.publish(s)
}

// ============================================================================
// Helpers
// ============================================================================

// identityFor decodes token into an identity. It returns nil if the token is
// not decodable or already expired.
func (c *Controller) identityFor(token string) *Identity {
	claims := c.codec.Decode(token)
	if claims == nil || c.codec.ClaimsExpired(claims) {
		return nil
	}
	return IdentityFromClaims(claims)
}

// persist writes the token pair. refresh is written only when Set; an
// explicit empty value clears the slot. If the refresh slot cannot be
// written, the access slot is put back to the in-memory token so the store
// never holds half of a new pair.
func (c *Controller) persist(ctx context.Context, access string, refresh OptionalString) error {
	c.mu.RLock()
	prior := c.accessToken
	c.mu.RUnlock()

	if err := c.store.SetAccessToken(ctx, access); err != nil {
		return fmt.Errorf("session: persist tokens: %w", err)
	}
	if !refresh.Set {
		return nil
	}
	if err := c.store.SetRefreshToken(ctx, refresh.Value); err != nil {
		rctx, cancel := detach(ctx)
		defer cancel()
		if rerr := c.store.SetAccessToken(rctx, prior); rerr != nil {
			c.logger.WarnContext(ctx, "failed to restore stored access token", slog.Any("error", rerr))
		}
		return fmt.Errorf("session: persist tokens: %w", err)
	}
	return nil
}

// IsNoRefreshToken reports whether err means there was no session to refresh.
func IsNoRefreshToken(err error) bool {
	return errors.Is(err, ErrNoRefreshToken)
}
