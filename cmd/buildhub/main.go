package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	circleciadapter "github.com/ericfisherdev/buildhub/internal/adapter/driven/circleci"
	jenkinsadapter "github.com/ericfisherdev/buildhub/internal/adapter/driven/jenkins"
	sqliteadapter "github.com/ericfisherdev/buildhub/internal/adapter/driven/sqlite"
	travisciadapter "github.com/ericfisherdev/buildhub/internal/adapter/driven/travisci"
	httphandler "github.com/ericfisherdev/buildhub/internal/adapter/driving/http"
	"github.com/ericfisherdev/buildhub/internal/application"
	"github.com/ericfisherdev/buildhub/internal/config"
	"github.com/ericfisherdev/buildhub/internal/domain/port/driven"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on missing required env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"base_url", cfg.BaseURL,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire driven adapters.
	configStore := sqliteadapter.NewConfigRepo(db)
	statusStore := sqliteadapter.NewStatusRepo(db)
	reviewStore := sqliteadapter.NewReviewRepo(db)
	identityStore := sqliteadapter.NewIdentityRepo(db)

	// 6. Create the CI provider adapters. They share an outbound HTTP
	// client so the trigger timeout is configured in one place.
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}
	providers := []driven.Provider{
		circleciadapter.New(httpClient, slog.Default()),
		jenkinsadapter.New(httpClient, slog.Default()),
		travisciadapter.New(httpClient, slog.Default()),
	}

	// 7. Create the application services.
	identitySvc := application.NewIdentityService(identityStore, cfg.NoReplyEmail, slog.Default())

	orchestrator, err := application.NewOrchestrator(
		providers,
		configStore,
		statusStore,
		reviewStore,
		identitySvc,
		cfg.BaseURL,
		slog.Default(),
	)
	if err != nil {
		return err
	}

	reconciler := application.NewReconciler(orchestrator, slog.Default())

	// 8. Create HTTP handler and register API routes.
	apiHandler := httphandler.NewHandler(orchestrator, reconciler, statusStore, slog.Default())
	mux := http.NewServeMux()
	httphandler.RegisterRoutes(mux, apiHandler)

	handler := httphandler.ApplyMiddleware(mux, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("buildhub started",
		"listen_addr", cfg.ListenAddr,
		"providers", len(providers),
	)

	// 9. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 10. Graceful shutdown with 10s timeout to drain in-flight requests.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
