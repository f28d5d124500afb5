package devbackend

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aussiebroadwan/learnhub/pkg/httpx"
	"github.com/aussiebroadwan/learnhub/pkg/jwtx"
	"github.com/aussiebroadwan/learnhub/pkg/slogx"
)

// Router wires the development backend's endpoints onto a chi mux.
type Router struct {
	Mux *chi.Mux

	verifier     jwtx.Verifier
	buildVersion string
	startTime    time.Time
	logger       *slog.Logger

	AuthService *AuthService

	// Gatherer, when set, is exposed on GET /metrics.
	Gatherer prometheus.Gatherer
}

func NewRouter(verifier jwtx.Verifier, buildVersion string, logger *slog.Logger) *Router {
	r := &Router{
		Mux:          chi.NewRouter(),
		verifier:     verifier,
		buildVersion: buildVersion,
		startTime:    time.Now(),
		logger:       logger,
	}
	r.Mux.Use(slogx.HTTPMiddleware(r.logger))
	r.Mux.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteError(w, http.StatusNotFound, "")
	})
	r.Mux.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		httpx.WriteError(w, http.StatusMethodNotAllowed, "")
	})
	return r
}

func (r *Router) ApplyRoutes() {
	r.registerAuth()
	r.registerUsers()
	r.registerSystem()
}

func (r *Router) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	r.Mux.ServeHTTP(w, req)
}

func (r *Router) registerAuth() {
	h := &AuthHandler{Service: r.AuthService}

	r.Mux.Route("/auth", func(m chi.Router) {
		// Credential endpoints are limited per IP and email.
		m.With(httpx.RateLimitByIPAndJSONField(httpx.StrictLimit, "email")).
			Post("/login", h.HandleLogin)
		m.With(httpx.RateLimitByIPAndJSONField(httpx.StrictLimit, "email")).
			Post("/register", h.HandleRegister)

		m.With(httpx.RateLimitByIP(httpx.ModerateLimit)).Post("/refresh", h.HandleRefresh)
		m.With(httpx.RateLimitByIP(httpx.ModerateLimit)).Post("/logout", h.HandleLogout)
	})
}

func (r *Router) registerUsers() {
	h := &UserHandler{Service: r.AuthService}

	r.Mux.With(
		httpx.AuthnMiddleware(r.verifier),
		httpx.RateLimitByUser(httpx.ModerateLimit),
	).Get("/users/me", h.HandleMe)

	r.Mux.With(
		httpx.AuthnMiddleware(r.verifier),
		httpx.RequireAnyRole(RoleAdmin),
		httpx.RateLimitByUser(httpx.ModerateLimit),
	).Get("/admin/users", h.HandleList)
}

func (r *Router) registerSystem() {
	r.Mux.Get("/livez", LivezHandler(r.startTime, r.buildVersion))
	if r.Gatherer != nil {
		r.Mux.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(r.Gatherer, promhttp.HandlerOpts{}))
	}
}
