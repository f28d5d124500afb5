package devbackend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/aussiebroadwan/learnhub/pkg/cryptox"
	"github.com/aussiebroadwan/learnhub/pkg/jwtx"
)

const BuildVersion = "v0.1.0"

// Config holds the development backend settings. internal/app fills it from
// the environment.
type Config struct {
	Port       int
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration

	// KeyFile is an Ed25519 PEM, generated when missing. Empty keeps the
	// key in memory.
	KeyFile string
	Pepper  string

	// SweepInterval is how often dead refresh-token families are pruned.
	SweepInterval       time.Duration
	ShutdownGracePeriod time.Duration

	// Users created at startup.
	Seeds []SeedUser
}

type SeedUser struct {
	Email    string `yaml:"email"`
	Password string `yaml:"password"`
	FullName string `yaml:"fullName"`
	Role     string `yaml:"role"`
}

// Server is the development backend: store, services and HTTP server.
type Server struct {
	cfg    Config
	logger *slog.Logger

	store   *Store
	auth    *AuthService
	sweeper *FamilySweeper
	router  *Router
	server  *http.Server

	stopSweep context.CancelFunc
	sweepDone chan struct{}
}

// NewServer builds the backend. reg may be nil, in which case /metrics is
// not served.
func NewServer(cfg Config, logger *slog.Logger, reg *prometheus.Registry) (*Server, error) {
	if cfg.AccessTTL <= 0 {
		cfg.AccessTTL = jwtx.DefaultAccessTokenTTL
	}
	if cfg.RefreshTTL <= 0 {
		cfg.RefreshTTL = jwtx.DefaultRefreshTokenTTL
	}
	if cfg.ShutdownGracePeriod <= 0 {
		cfg.ShutdownGracePeriod = 10 * time.Second
	}

	pemKey, err := cryptox.LoadOrGenerateEd25519Key(cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load signing key: %w", err)
	}
	signer, err := jwtx.NewSignerEdDSA("dev-1", pemKey)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize signer: %w", err)
	}

	s := &Server{
		cfg:    cfg,
		logger: logger,
		store:  NewStore(),
	}
	s.auth = &AuthService{
		Store:      s.store,
		Signer:     signer,
		Hasher:     cryptox.PasswordHasher{Pepper: cfg.Pepper},
		Issuer:     cfg.Issuer,
		AccessTTL:  cfg.AccessTTL,
		RefreshTTL: cfg.RefreshTTL,
	}

	for _, seed := range cfg.Seeds {
		p, err := s.auth.Seed(seed.Email, seed.Password, seed.FullName, seed.Role)
		if err != nil {
			return nil, fmt.Errorf("failed to seed %s: %w", seed.Email, err)
		}
		logger.Info("seeded user", "user_id", p.ID, "email", p.Email, "role", p.Role)
	}

	s.sweeper = &FamilySweeper{
		Store:    s.store,
		Logger:   logger,
		Interval: cfg.SweepInterval,
	}

	s.router = NewRouter(signer.Verifier(cfg.Issuer), BuildVersion, logger)
	s.router.AuthService = s.auth
	if reg != nil {
		s.router.Gatherer = reg
	}
	s.router.ApplyRoutes()

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 3 * time.Second,
	}
	return s, nil
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler { return s.router }

func (s *Server) Auth() *AuthService { return s.auth }

// Run serves until SIGINT/SIGTERM and then shuts down gracefully.
func (s *Server) Run() error {
	s.startSweeper()

	s.logger.Info("devbackend starting", "port", s.cfg.Port, "version", BuildVersion)

	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- s.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(shutdown)

	select {
	case err := <-serverErrors:
		s.stopSweeper()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		s.logger.Info("shutdown signal received", "signal", sig)
		if err := s.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}
	return nil
}

func (s *Server) Shutdown() error {
	s.logger.Info("shutting down devbackend...")

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		s.logger.Error("graceful server shutdown failed", "error", err)
		if err := s.server.Close(); err != nil {
			s.logger.Error("error closing server", "error", err)
		}
	}

	s.stopSweeper()

	s.logger.Info("devbackend stopped")
	return nil
}

func (s *Server) startSweeper() {
	ctx, cancel := context.WithCancel(context.Background())
	s.stopSweep = cancel
	s.sweepDone = make(chan struct{})
	go func() {
		defer close(s.sweepDone)
		s.sweeper.Run(ctx)
	}()
}

// stopSweeper waits for a running sweep to finish. It is a no-op if the
// sweeper was never started.
func (s *Server) stopSweeper() {
	if s.stopSweep == nil {
		return
	}
	s.stopSweep()
	<-s.sweepDone
	s.stopSweep = nil
}
