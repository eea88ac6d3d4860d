// Package app provides application initialization and lifecycle management.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/bissquit/incident-console/internal/client"
	"github.com/bissquit/incident-console/internal/config"
	"github.com/bissquit/incident-console/internal/console"
	"github.com/bissquit/incident-console/internal/notify/mattermost"
	"github.com/bissquit/incident-console/internal/pkg/ctxlog"
	"github.com/bissquit/incident-console/internal/pkg/httputil"
	"github.com/bissquit/incident-console/internal/pkg/metrics"
	"github.com/bissquit/incident-console/internal/pkg/postgres"
	"github.com/bissquit/incident-console/internal/session"
	sessionpostgres "github.com/bissquit/incident-console/internal/session/postgres"
	"github.com/bissquit/incident-console/internal/version"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// App represents the application instance.
type App struct {
	config        *config.Config
	logger        *slog.Logger
	db            *pgxpool.Pool // nil unless the postgres session store is used
	store         session.Store
	controller    *console.Controller
	server        *http.Server
	metricsServer *http.Server
	metricsCancel context.CancelFunc
}

type pinger interface {
	Ping(ctx context.Context) error
}

// New creates a new application instance.
func New(cfg *config.Config) (*App, error) {
	logger := initLogger(cfg.Log)
	slog.SetDefault(logger)

	metricsCtx, metricsCancel := context.WithCancel(context.Background())

	app := &App{
		config:        cfg,
		logger:        logger,
		metricsCancel: metricsCancel,
	}

	if err := app.setupStore(); err != nil {
		metricsCancel()
		return nil, fmt.Errorf("setup session store: %w", err)
	}

	if app.db != nil {
		go app.collectDBMetrics(metricsCtx)
	}

	app.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.Port),
		Handler:           app.setupRouter(),
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}

	// Metrics server on separate port
	metricsRouter := chi.NewRouter()
	metricsRouter.Handle("/metrics", promhttp.Handler())

	app.metricsServer = &http.Server{
		Addr:              fmt.Sprintf("%s:%s", cfg.Server.Host, cfg.Server.MetricsPort),
		Handler:           metricsRouter,
		ReadTimeout:       5 * time.Second,
		ReadHeaderTimeout: 2 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return app, nil
}

func (a *App) setupStore() error {
	switch a.config.Session.Store {
	case config.StoreFile:
		a.store = session.NewFileStore(a.config.Session.FilePath)
	case config.StorePostgres:
		if a.config.Database.AutoMigrate {
			if err := postgres.Migrate(a.config.Database.URL); err != nil {
				return fmt.Errorf("migrate session database: %w", err)
			}
		}

		connectCtx, cancel := context.WithTimeout(context.Background(), a.config.Database.ConnectTimeout)
		defer cancel()

		db, err := postgres.Connect(connectCtx, postgres.Config{
			URL:             a.config.Database.URL,
			MaxConns:        a.config.Database.MaxConns,
			MinConns:        a.config.Database.MinConns,
			ConnMaxLifetime: a.config.Database.ConnMaxLifetime,
			ConnectAttempts: a.config.Database.ConnectAttempts,
		})
		if err != nil {
			return fmt.Errorf("connect to database: %w", err)
		}
		a.db = db
		a.store = sessionpostgres.NewStore(db)
	default:
		a.store = session.NewMemoryStore()
	}

	a.logger.Info("session store configured", "type", a.config.Session.Store)
	return nil
}

// Run starts the HTTP servers.
func (a *App) Run() error {
	go func() {
		a.logger.Info("starting metrics server",
			"host", a.config.Server.Host,
			"port", a.config.Server.MetricsPort,
		)
		if err := a.metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.logger.Error("metrics server error", "error", err)
		}
	}()

	a.logger.Info("starting server",
		"host", a.config.Server.Host,
		"port", a.config.Server.Port,
		"upstream", a.config.Upstream.BaseURL,
	)

	if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the application.
func (a *App) Shutdown(ctx context.Context) error {
	a.logger.Info("shutting down servers")

	a.metricsCancel()

	var wg sync.WaitGroup
	var errs []error
	var mu sync.Mutex

	for name, srv := range map[string]*http.Server{"server": a.server, "metrics server": a.metricsServer} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.Shutdown(ctx); err != nil {
				mu.Lock()
				errs = append(errs, fmt.Errorf("shutdown %s: %w", name, err))
				mu.Unlock()
			}
		}()
	}

	wg.Wait()

	if a.db != nil {
		a.db.Close()
	}

	return errors.Join(errs...)
}

func (a *App) collectDBMetrics(ctx context.Context) {
	metrics.RecordDBPoolMetrics(a.db)

	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			metrics.RecordDBPoolMetrics(a.db)
		case <-ctx.Done():
			return
		}
	}
}

// Router returns the HTTP handler for testing.
func (a *App) Router() http.Handler {
	return a.server.Handler
}

// Controller returns the lifecycle controller. Used in tests.
func (a *App) Controller() *console.Controller {
	return a.controller
}

func (a *App) setupRouter() *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware must be first to measure full request time
	r.Use(httputil.MetricsMiddleware)

	// CORS must be early to handle preflight requests before other middleware
	r.Use(httputil.CORSMiddleware(a.config.CORS.AllowedOrigins))
	r.Use(middleware.RequestID)
	r.Use(httputil.RequestLoggerMiddleware(a.logger))
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/healthz", a.healthzHandler)
	r.Get("/readyz", a.readyzHandler)
	r.Get("/version", a.versionHandler)

	sessions := session.NewManager(a.store, a.config.Session.Key)
	api := client.New(client.Config{
		BaseURL:   a.config.Upstream.BaseURL,
		Timeout:   a.config.Upstream.Timeout,
		RateLimit: a.config.Upstream.RateLimit,
		Burst:     a.config.Upstream.Burst,
		PageSize:  a.config.Upstream.PageSize,
		UserAgent: "incident-console/" + version.Version,
	}, sessions)

	var opts []console.Option
	if mm := a.config.Notify.Mattermost; mm.Enabled {
		opts = append(opts, console.WithNotifier(mattermost.NewSender(mattermost.Config{
			WebhookURL: mm.WebhookURL,
			Username:   mm.Username,
			IconURL:    mm.IconURL,
			Channel:    mm.Channel,
			Timeout:    mm.Timeout,
		})))
	}
	slog.Info("notifications configured", "mattermost_enabled", a.config.Notify.Mattermost.Enabled)

	a.controller = console.NewController(api, opts...)
	handler := console.NewHandler(a.controller, sessions, api)

	r.Route("/api/v1", handler.RegisterRoutes)

	return r
}

func (a *App) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) readyzHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	if p, ok := a.store.(pinger); ok {
		if err := p.Ping(ctx); err != nil {
			ctxlog.FromContext(r.Context()).Error("readiness check failed", "error", err)
			httputil.Text(w, http.StatusServiceUnavailable, "Session store unavailable")
			return
		}
	}

	httputil.Text(w, http.StatusOK, "OK")
}

func (a *App) versionHandler(w http.ResponseWriter, _ *http.Request) {
	httputil.JSON(w, http.StatusOK, version.Info())
}

func initLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	var handler slog.Handler
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	return slog.New(handler)
}
