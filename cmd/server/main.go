// Command server runs the Avion dashboard API: license status and
// activation, HWID profiles, the changelog feed, health, and metrics.
package main

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
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"avion/internal/changelog"
	"avion/internal/config"
	"avion/internal/license"
	custommw "avion/internal/middleware"
	"avion/internal/profile"
	"avion/internal/services"
	"avion/internal/store"
	transport "avion/internal/transport/http"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "server: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger := newLogger(cfg.Logging)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	promRegistry := prometheus.NewRegistry()
	promRegistry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	registry := license.NewRegistry(st,
		license.WithTimeout(cfg.License.StoreTimeout),
		license.WithLogger(logger),
		license.WithMetrics(license.NewMetrics(promRegistry)),
	)

	statusCache := license.NewStatusCache(cfg.License.CacheTTL, cfg.License.CacheSize)
	defer statusCache.Stop()

	licenseService := services.NewLicenseService(registry, statusCache, logger)
	profileService := profile.NewService(st, registry, profile.WithLogger(logger))
	changelogService := changelog.NewService(cfg.Changelog.URL, cfg.Changelog.Timeout, logger)

	limiter := custommw.NewActivationLimiter(
		cfg.Security.RateLimit.Enabled,
		cfg.Security.RateLimit.RPS,
		cfg.Security.RateLimit.Burst,
		custommw.WithLimiterLogger(logger),
	)

	router := transport.NewRouter(transport.RouterConfig{
		Logger:           logger,
		LicenseHandler:   transport.NewLicenseHandler(licenseService, logger),
		ProfileHandler:   transport.NewProfileHandler(profileService, licenseService, logger),
		ChangelogHandler: transport.NewChangelogHandler(changelogService, logger),
		HealthHandler:    transport.NewHealthHandler(st.Ping, logger),
		MetricsHandler:   promhttp.HandlerFor(promRegistry, promhttp.HandlerOpts{}),
		Limiter:          limiter,
	})

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server listening", slog.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down", slog.Duration("timeout", cfg.Server.ShutdownTimeout))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// openStore selects the persistence backend: Postgres when a DSN is
// configured, the in-memory store otherwise (local development only).
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, func(), error) {
	if cfg.Database.DSN == "" {
		logger.Warn("no database configured, using in-memory store; data will not survive a restart")
		return store.NewMemory(), func() {}, nil
	}

	pg, err := store.NewPostgres(ctx, cfg.Database.DSN, int32(cfg.Database.MaxConns))
	if err != nil {
		return nil, nil, err
	}

	schemaCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := pg.EnsureSchema(schemaCtx); err != nil {
		pg.Close()
		return nil, nil, err
	}

	return pg, pg.Close, nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
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

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "text" {
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}
	return slog.New(handler)
}
