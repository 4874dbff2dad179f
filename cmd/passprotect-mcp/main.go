// Package main provides the entry point for the passprotect MCP server.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/raphaelgruber/passprotect-go/internal/app"
	"github.com/raphaelgruber/passprotect-go/internal/config"
	"github.com/raphaelgruber/passprotect-go/internal/server"
)

const version = "0.1.0"

func main() {
	// Load configuration
	cfg := config.Load()

	// Setup logger (dual output: stderr text + file JSON)
	logger, cleanup := config.SetupLogger(cfg.LogFile, cfg.LogLevel)
	defer cleanup()

	logger.Info("passprotect-mcp starting",
		"version", version,
		"backend", cfg.Backend,
		"user_id", cfg.UserID,
		"role", cfg.Role,
	)

	if cfg.UserID == "" {
		logger.Error("PASSPROTECT_USER_ID is required")
		os.Exit(1)
	}

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to initialize", "error", err)
		os.Exit(1)
	}
	defer func() {
		logger.Info("closing database connection")
		_ = a.Close(context.Background())
	}()

	// Create and setup server
	srv := server.New(version, logger)
	srv.Setup()

	n := srv.RegisterTools(a.Tools, a.Identity())
	logger.Info("tools registered", "count", n, "role", cfg.Role)

	logger.Info("server ready, awaiting connections")

	// Run server (blocks until disconnect or context cancelled)
	if err := srv.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("server error", "error", err)
		os.Exit(1)
	}

	logger.Info("shutdown complete")
}
