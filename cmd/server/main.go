package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/mcoot/escaperoom/internal/api"
	"github.com/mcoot/escaperoom/internal/config"
	"github.com/mcoot/escaperoom/internal/factory"
	"github.com/mcoot/escaperoom/internal/realtime"
)

func main() {
	var cfg config.Config
	cmd := config.NewCommand("escaperoom", &cfg, run)
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, cfg *config.Config) error {
	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	app, err := factory.New(cfg.Factory(logger))
	if err != nil {
		return fmt.Errorf("failed to create application: %w", err)
	}
	defer func() {
		if err := app.Close(); err != nil {
			logger.Error("failed to close storage", slog.String("error", err.Error()))
		}
	}()

	sockets := realtime.NewHandler(app.Services(), app.HubManager, cfg.Realtime(), logger)

	rateLimiter := api.NewRateLimiter(cfg.RateLimit, cfg.RateBurst)
	if rateLimiter != nil {
		defer rateLimiter.Stop()
	}

	router := api.NewRouter(api.RouterConfig{
		Logger:         logger,
		RoomController: app.RoomController,
		ChatService:    app.ChatService,
		HubManager:     app.HubManager,
		Sockets:        sockets,
		StorageType:    app.StorageType,
		RateLimiter:    rateLimiter,
		AllowedOrigin:  "*",
	})

	server := api.NewServer(router, cfg.Server(), logger)

	// Handle graceful shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	logger.Info("server started",
		slog.String("addr", server.Addr()),
		slog.String("storage", app.StorageType),
	)

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		if err := server.Shutdown(context.Background()); err != nil {
			return err
		}
	}

	logger.Info("server stopped")
	return nil
}

func newLogger(cfg *config.Config) (*slog.Logger, error) {
	level, err := cfg.Level()
	if err != nil {
		return nil, err
	}

	opts := &slog.HandlerOptions{Level: level}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts)), nil
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts)), nil
}
