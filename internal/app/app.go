package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"github.com/aussiebroadwan/learnhub/internal/devbackend"
	"github.com/aussiebroadwan/learnhub/pkg/apiclient"
	"github.com/aussiebroadwan/learnhub/pkg/credstore"
	"github.com/aussiebroadwan/learnhub/pkg/cryptox"
	"github.com/aussiebroadwan/learnhub/pkg/session"
	"github.com/aussiebroadwan/learnhub/pkg/slogx"
)

// BuildVersion should be set at build time via ldflags.
const BuildVersion = "v0.1.0"

// Application is the client side of learnhub: a credential store, an API
// client and the session controller bound to it.
type Application struct {
	cfg    Config
	logger *slog.Logger

	Registry *prometheus.Registry
	Store    *credstore.Store
	Client   *apiclient.Client
	Session  *session.Controller

	closers []func() error
}

// NewLogger builds the process logger for service from cfg.
func NewLogger(cfg Config, service string) *slog.Logger {
	return slogx.New(slogx.Config{
		Service: service,
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
	})
}

// New opens the credential store and wires client and session. The session
// is not bootstrapped; call Start. logger may be nil.
func New(ctx context.Context, cfg Config, logger *slog.Logger) (*Application, error) {
	if logger == nil {
		logger = NewLogger(cfg, "learnhub")
	}

	app := &Application{
		cfg:      cfg,
		logger:   logger,
		Registry: prometheus.NewRegistry(),
	}

	backend, err := app.openBackend(ctx)
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Store = credstore.New(backend)

	app.initClient()
	app.initSession()

	return app, nil
}

// Start restores any stored session and returns the resulting state.
func (app *Application) Start(ctx context.Context) session.State {
	state := app.Session.Bootstrap(ctx)
	app.logger.Debug("session restored", "phase", state.Phase.String())
	return state
}

// Close releases store connections. It is safe to call more than once.
func (app *Application) Close() error {
	var errs []error
	for i := len(app.closers) - 1; i >= 0; i-- {
		if err := app.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	app.closers = nil
	return errors.Join(errs...)
}

func (app *Application) openBackend(ctx context.Context) (credstore.Backend, error) {
	var backend credstore.Backend

	switch app.cfg.Store {
	case StoreMemory:
		backend = credstore.NewMemory()

	case StoreFile:
		backend = credstore.NewFile(app.cfg.StorePath)

	case StoreSQLite:
		if err := os.MkdirAll(filepath.Dir(app.cfg.StorePath), 0o700); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
		dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", app.cfg.StorePath)
		db, err := credstore.NewSQLite(dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to open credential database: %w", err)
		}
		app.closers = append(app.closers, db.Close)

		if err := db.ApplyMigrations(); err != nil {
			return nil, fmt.Errorf("failed to apply credential store migrations: %w", err)
		}
		backend = db

	case StoreRedis:
		client, err := credstore.DialRedis(ctx, app.cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to credential redis: %w", err)
		}
		app.closers = append(app.closers, client.Close)
		backend = credstore.NewRedis(client, app.cfg.RedisPrefix)

	default:
		return nil, fmt.Errorf("unknown credential store %q", app.cfg.Store)
	}

	if app.cfg.StoreKey != "" {
		sealer, err := cryptox.NewSealer([]byte(app.cfg.StoreKey))
		if err != nil {
			return nil, err
		}
		backend = credstore.NewSealed(backend, sealer)
	}

	app.logger.Debug("credential store opened",
		"driver", app.cfg.Store,
		"sealed", app.cfg.StoreKey != "",
	)
	return backend, nil
}

func (app *Application) initClient() {
	opts := []apiclient.Option{
		apiclient.WithTimeout(app.cfg.Timeout),
		apiclient.WithLogger(app.logger),
		apiclient.WithMetrics(apiclient.NewMetrics(app.Registry)),
	}
	if app.cfg.RateLimit > 0 {
		burst := int(math.Max(1, math.Ceil(app.cfg.RateLimit)))
		opts = append(opts, apiclient.WithRateLimit(rate.Limit(app.cfg.RateLimit), burst))
	}
	app.Client = apiclient.New(app.cfg.APIURL, opts...)
}

func (app *Application) initSession() {
	app.Session = session.New(app.Client, app.Store,
		session.WithLogger(app.logger),
		session.WithMetrics(session.NewMetrics(app.Registry)),
	)
	session.Bind(app.Client, app.Session)
}

// NewBackend builds the development backend with process metrics exposed on
// its /metrics endpoint.
func NewBackend(cfg Config, logger *slog.Logger) (*devbackend.Server, error) {
	if logger == nil {
		logger = NewLogger(cfg, "learnhub-devbackend")
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	return devbackend.NewServer(cfg.Backend, logger, reg)
}
