package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/seaward-systems/fleetgate/common/logging"
	"github.com/seaward-systems/fleetgate/common/signing"
	"github.com/seaward-systems/fleetgate/gate/internal/admission"
	"github.com/seaward-systems/fleetgate/gate/internal/alerting"
	"github.com/seaward-systems/fleetgate/gate/internal/blobstore"
	"github.com/seaward-systems/fleetgate/gate/internal/config"
	"github.com/seaward-systems/fleetgate/gate/internal/geo"
	"github.com/seaward-systems/fleetgate/gate/internal/grant"
	"github.com/seaward-systems/fleetgate/gate/internal/handlers"
	"github.com/seaward-systems/fleetgate/gate/internal/ratelimit"
	"github.com/seaward-systems/fleetgate/gate/internal/repository"
	"github.com/seaward-systems/fleetgate/gate/internal/server"
)

func main() {
	// Parse command line flags
	configPath := flag.String("config", "", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// Initialize structured logging
	logger := logging.New(
		logging.ParseLevel(cfg.Logging.Level),
		cfg.Logging.Format,
	).With(logging.Service("gate"))
	logging.SetDefault(logger)

	slog.Info("Starting gate service",
		slog.Int("port", cfg.Server.Port),
		slog.String("log_level", cfg.Logging.Level),
		slog.String("log_format", cfg.Logging.Format),
	)
	if *configPath != "" {
		slog.Info("Loaded configuration", slog.String("config_path", *configPath))
	}

	// Initialize repository based on config
	var repo repository.Repository
	if cfg.Database.Enabled {
		slog.Info("Connecting to PostgreSQL")
		pgRepo, err := repository.NewPostgresRepository(context.Background(), cfg.Database.DSN)
		if err != nil {
			slog.Error("Failed to connect to PostgreSQL", logging.Error(err))
			os.Exit(1)
		}
		defer pgRepo.Close()
		repo = pgRepo

		// Run database migrations
		slog.Info("Running database migrations")
		m, err := migrate.New("file://migrations", cfg.Database.DSN)
		if err != nil {
			slog.Error("Failed to initialize migrations", logging.Error(err))
			os.Exit(1)
		}
		if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
			slog.Error("Failed to run migrations", logging.Error(err))
			os.Exit(1)
		}
	} else {
		slog.Warn("Using in-memory repository (development only)")
		repo = repository.NewInMemoryRepository()
		defer repo.Close()
	}

	// Failed-attempt tracker: redis when configured, in-process otherwise
	var tracker ratelimit.Tracker
	if cfg.Redis.Enabled {
		rt, err := ratelimit.NewRedisTracker(cfg.Redis.URL, cfg.Security.MaxAttempts, cfg.Security.RateLimitWindow)
		if err != nil {
			slog.Error("Failed to connect to Redis", logging.Error(err))
			os.Exit(1)
		}
		tracker = rt
		slog.Info("Rate limiting via Redis", slog.String("url", cfg.Redis.URL))
	} else {
		tracker = ratelimit.NewMemoryTracker(cfg.Security.MaxAttempts, cfg.Security.RateLimitWindow)
	}
	defer tracker.Close()

	// Location filter: fail-open when no database is configured
	var resolver geo.Resolver
	if cfg.Security.GeoIPPath != "" {
		mm, err := geo.OpenMaxMind(cfg.Security.GeoIPPath)
		if err != nil {
			slog.Warn("GeoIP database unavailable, location filtering disabled", logging.Error(err))
		} else {
			defer mm.Close()
			resolver = mm
		}
	}
	filter := geo.NewFilter(resolver, cfg.Security.AllowedCountries)

	// Security alert publisher
	var alerts alerting.Publisher
	if cfg.NATS.Enabled {
		np, err := alerting.NewNATSPublisher(cfg.NATS.URL)
		if err != nil {
			slog.Error("Failed to connect to NATS", logging.Error(err))
			os.Exit(1)
		}
		alerts = np
		slog.Info("Publishing security alerts to NATS", slog.String("url", cfg.NATS.URL))
	} else {
		alerts = &alerting.LogPublisher{}
	}
	defer alerts.Close()

	// File store and grant issuer
	store, err := blobstore.NewDiskStore(cfg.Storage.Path)
	if err != nil {
		slog.Error("Failed to open file store", logging.Error(err))
		os.Exit(1)
	}
	signer := signing.New(cfg.Security.SecretKey)
	issuer := grant.NewIssuer(store, cfg.Security.SecretKey, cfg.Grant.TTL, cfg.Grant.BaseURL)

	pipeline := admission.NewPipeline(signer, filter, tracker, issuer, repo, alerts, cfg.Security.SignatureMaxAge)

	handler := handlers.New(pipeline, issuer, store, repo, signer, cfg.Security.SignatureMaxAge, cfg.Admin.Token)
	router := server.NewRouter(handler, cfg.Server.CORSOrigins)

	if cfg.Admin.Token == "" {
		slog.Warn("Admin token not set, admin API disabled")
	}

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		slog.Info("Gate service listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("Server error", logging.Error(err))
			os.Exit(1)
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.WriteTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("Server forced to shutdown", logging.Error(err))
		os.Exit(1)
	}

	slog.Info("Server stopped gracefully")
}
