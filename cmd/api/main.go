package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/litebrick/consult-bookings/internal/app"
	"github.com/litebrick/consult-bookings/internal/http/handlers"
	ratelimit "github.com/litebrick/consult-bookings/internal/http/middleware"
	"github.com/litebrick/consult-bookings/pkg/config"
	"github.com/litebrick/consult-bookings/pkg/database"
	"github.com/litebrick/consult-bookings/pkg/logger"
	mw "github.com/litebrick/consult-bookings/pkg/middleware"
)

func main() {
	cfg := config.Load()
	logger.SetDefault(logger.New(cfg.LogLevel))

	if err := run(cfg); err != nil {
		logger.Error("Consult bookings API stopped", "error", err)
		os.Exit(1)
	}
}

// run returns instead of exiting so deferred closes always run.
func run(cfg *config.Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		return fmt.Errorf("initialise: %w", err)
	}
	defer a.Close()

	applied, err := database.Migrate(ctx, a.Pool)
	if err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	if len(applied) > 0 {
		logger.Info("Database migrated", "applied", applied)
	}

	go a.Sweeper.Start(ctx)
	if cfg.Retention.RunOnStart {
		go func() {
			if _, err := a.Sweeper.RunOnce(ctx); err != nil {
				logger.Error("Startup retention sweep failed", "error", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router(a),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		<-ctx.Done()
		logger.Info("Shutting down consult bookings API...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("API shutdown error", "error", err)
		}
	}()

	logger.Info("Starting consult bookings API", "port", cfg.Server.Port, "env", cfg.Env)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

func router(a *app.App) http.Handler {
	cfg := a.Config
	production := cfg.IsProduction()

	r := chi.NewRouter()
	if cfg.Server.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName("consult-bookings"))
	r.Use(mw.Logging)
	r.Use(mw.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "Retry-After"},
		MaxAge:         300,
	}))

	createLimit := ratelimit.NewRateLimiter(a.RateLimits, ratelimit.RateLimitConfig{
		Requests: cfg.RateLimit.Max,
		Window:   cfg.RateLimit.Window,
		Prefix:   "booking-create:",
	})

	r.Get("/health", handlers.Health(a.Pool, a.Cache, time.Now))
	r.Route("/api", func(r chi.Router) {
		r.Mount("/availability", handlers.NewAvailabilityHandler(a.Availability, production).Routes())
		r.Mount("/bookings", handlers.NewReservationsHandler(a.Manager, production, createLimit.Middleware()).Routes())
	})
	return r
}
