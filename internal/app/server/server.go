package server

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

	"github.com/go-chi/chi/v5"

	"hrpayroll/internal/domain/audit"
	"hrpayroll/internal/domain/auth"
	"hrpayroll/internal/domain/epayroll"
	"hrpayroll/internal/platform/authority"
	"hrpayroll/internal/platform/config"
	"hrpayroll/internal/platform/crypto"
	"hrpayroll/internal/platform/db"
	"hrpayroll/internal/platform/email"
	"hrpayroll/internal/platform/jobs"
	"hrpayroll/internal/platform/metrics"
	"hrpayroll/internal/transport/http/api"
	epayrollhandler "hrpayroll/internal/transport/http/handlers/epayroll"
	"hrpayroll/internal/transport/http/middleware"
)

type App struct {
	Config  config.Config
	DB      *db.Pool
	Router  http.Handler
	Jobs    *jobs.Service
	Metrics *metrics.Collector
	Service *epayroll.Service
}

func New(ctx context.Context, cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pool, err := db.Connect(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	app := &App{Config: cfg, DB: pool, Metrics: metrics.New()}

	if cfg.RunMigrations {
		if err := db.Migrate(ctx, pool, cfg.MigrationsDir); err != nil {
			pool.Close()
			return nil, fmt.Errorf("migrations: %w", err)
		}
	}
	if cfg.RunSeed {
		if err := db.Seed(ctx, pool, cfg); err != nil {
			pool.Close()
			return nil, fmt.Errorf("seed: %w", err)
		}
	}

	svc, err := newPayrollService(cfg, pool, app.Metrics)
	if err != nil {
		pool.Close()
		return nil, err
	}
	app.Service = svc
	app.Jobs = jobs.New(pool, svc, cfg.RetrySweepInterval)
	app.Router = app.routes()
	return app, nil
}

func newPayrollService(cfg config.Config, pool *db.Pool, observer epayroll.Observer) (*epayroll.Service, error) {
	policy := epayroll.RetryPolicy{
		MaxAttempts: cfg.RetryMaxAttempts,
		Backoff:     cfg.RetryBackoff,
		Strategy:    cfg.RetryBackoffStrategy,
	}
	if err := policy.Validate(); err != nil {
		return nil, err
	}

	calendar := epayroll.DefaultCalendar()
	if cfg.ComplianceCalendarFile != "" {
		loaded, err := epayroll.LoadCalendar(cfg.ComplianceCalendarFile)
		if err != nil {
			return nil, fmt.Errorf("compliance calendar: %w", err)
		}
		calendar = loaded
	}

	loc, err := time.LoadLocation(cfg.DocumentTimezone)
	if err != nil {
		return nil, fmt.Errorf("DOCUMENT_TIMEZONE: %w", err)
	}

	cipher, err := crypto.New(cfg.DataEncryptionKey)
	if err != nil {
		return nil, err
	}
	if !cipher.Configured() {
		slog.Warn("DATA_ENCRYPTION_KEY not set; stored signing credentials are not encrypted")
	}

	var submitter epayroll.Authority
	if cfg.AuthorityURL != "" {
		client, err := authority.NewClient(cfg.AuthorityURL, cfg.AuthorityTimeout)
		if err != nil {
			return nil, err
		}
		submitter = client
	} else {
		slog.Warn("AUTHORITY_URL not set; using the simulated tax authority")
		submitter = authority.NewSimulated()
	}

	alerts := email.NewFailureAlerts(email.New(cfg), cfg.EmailFrom, cfg.AlertEmailTo, loc)

	return epayroll.NewService(epayroll.NewStore(pool), submitter,
		epayroll.WithRetryPolicy(policy),
		epayroll.WithCalendar(calendar),
		epayroll.WithLocation(loc),
		epayroll.WithCipher(cipher),
		epayroll.WithNotifier(alerts),
		epayroll.WithObserver(observer),
		epayroll.WithTransmitTimeout(cfg.AuthorityTimeout),
		epayroll.WithStaleAfter(cfg.StaleTransmissionAfter),
		epayroll.WithEnforceCompliance(cfg.EnforceCompliance),
		epayroll.WithSoftware(cfg.AuthorityProviderID, cfg.AuthoritySoftwareID, cfg.AuthorityEnvironment),
	), nil
}

func (a *App) routes() http.Handler {
	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)
	router.Use(middleware.SecureHeaders(a.Config.IsProduction()))
	router.Use(middleware.Auth(a.Config.JWTSecret))
	router.Use(middleware.Logger(a.Metrics))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	router.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()
		if err := a.DB.Ping(ctx); err != nil {
			http.Error(w, "db not ready", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	if a.Config.MetricsEnabled {
		router.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
			api.Success(w, a.Metrics.Snapshot(), middleware.GetRequestID(r.Context()))
		})
	}

	perms := auth.NewStaticPermissions(auth.RolePermissions)
	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.BodyLimit(a.Config.MaxBodyBytes))
		r.Use(middleware.RateLimit(a.Config.RateLimitPerMinute, time.Minute))
		r.Use(middleware.SensitiveMutationRateLimit(a.Config.RateLimitPerMinute, time.Minute))

		handler := epayrollhandler.NewHandler(a.Service, a.Jobs, audit.New(a.DB), middleware.NewIdempotencyStore(a.DB), perms)
		handler.RegisterRoutes(r)
	})
	return router
}

func (a *App) Close() {
	if a.DB != nil {
		a.DB.Close()
	}
}

func Run() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, config.Load()); err != nil {
		slog.Error("server failed", "err", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config) error {
	app, err := New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("startup: %w", err)
	}
	defer app.Close()

	app.Jobs.Start(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.Router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("server shutdown failed", "err", err)
		}
	}()

	slog.Info("payroll server listening", "addr", cfg.Addr, "environment", cfg.Environment)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
