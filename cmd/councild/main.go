// Council orchestrator server: provides the HTTP API, runs council
// sessions, and sweeps expired session state.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/councilkit/council/pkg/api"
	"github.com/councilkit/council/pkg/config"
	"github.com/councilkit/council/pkg/database"
	"github.com/councilkit/council/pkg/masking"
	"github.com/councilkit/council/pkg/orchestrator"
	"github.com/councilkit/council/pkg/pacer"
	"github.com/councilkit/council/pkg/session"
	"github.com/councilkit/council/pkg/version"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	configPath := flag.String("config",
		getEnv("COUNCIL_CONFIG", "./council.yaml"),
		"Path to configuration file")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		slog.Debug("No .env file loaded, continuing with existing environment", "error", err)
	}

	maskingService := masking.NewService(nil)
	logger := slog.New(masking.NewLogHandler(
		slog.NewJSONHandler(os.Stdout, nil), maskingService))
	slog.SetDefault(logger)

	slog.Info("Starting council orchestrator", "version", version.Full(), "config", *configPath)

	cfg, err := config.Initialize(*configPath)
	if err != nil {
		slog.Error("Failed to initialize configuration", "error", err)
		os.Exit(1)
	}

	ctx := context.Background()

	var (
		dbClient *database.Client
		store    session.Store
	)
	if cfg.Database.Enabled {
		dbClient, err = database.NewClient(ctx, database.Config{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			Database: cfg.Database.Database,
			SSLMode:  cfg.Database.SSLMode,
		})
		if err != nil {
			slog.Error("Failed to connect to database", "error", err)
			os.Exit(1)
		}
		defer dbClient.Close()
		store = session.NewPostgresStore(dbClient.Pool())
		slog.Info("Connected to PostgreSQL database")
	}

	orch := orchestrator.New(orchestrator.Options{
		Pacers:            pacer.NewSet(cfg.RateLimits()),
		Store:             store,
		Masker:            maskingService,
		TokenBudget:       cfg.Runs.TokenBudget,
		OverallTimeout:    cfg.OverallTimeout(),
		MaxConcurrentRuns: cfg.Runs.MaxConcurrent,
	})

	ttl, _ := cfg.Retention.TTL()
	sweepEvery, _ := cfg.Retention.SweepEvery()
	sweeper := session.NewSweeper(orch.Sessions(), ttl, sweepEvery)
	sweeper.Start(ctx)
	defer sweeper.Stop()

	server := api.NewServer(orch, dbClient)
	httpServer := &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           server.Router(cfg.Server.AllowedOrigins),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", cfg.Server.ListenAddr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		slog.Error("HTTP server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown failed", "error", err)
	}
	slog.Info("Council orchestrator stopped")
}
