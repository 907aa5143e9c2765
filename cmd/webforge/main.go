// WebForge backend server — serves the HTTP API, runs AI generation
// streams, and supervises per-workspace dev servers.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/webforge-labs/webforge/pkg/api"
	"github.com/webforge-labs/webforge/pkg/auth"
	"github.com/webforge-labs/webforge/pkg/config"
	"github.com/webforge-labs/webforge/pkg/database"
	"github.com/webforge-labs/webforge/pkg/events"
	"github.com/webforge-labs/webforge/pkg/llm"
	"github.com/webforge-labs/webforge/pkg/logbus"
	"github.com/webforge-labs/webforge/pkg/preview"
	"github.com/webforge-labs/webforge/pkg/procman"
	"github.com/webforge-labs/webforge/pkg/services"
	"github.com/webforge-labs/webforge/pkg/stream"
	"github.com/webforge-labs/webforge/pkg/version"
	"github.com/webforge-labs/webforge/pkg/workspace"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// Parse command-line flags
	envFile := flag.String("env-file",
		getEnv("ENV_FILE", ".env"),
		"Path to .env file")
	flag.Parse()

	// Load .env file before reading configuration
	if err := godotenv.Load(*envFile); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", *envFile, "error", err)
	} else {
		slog.Info("Loaded environment", "path", *envFile)
	}

	slog.Info("Starting WebForge", "version", version.Full())

	ctx := context.Background()

	// 1. Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	// 2. Connect to the database (applies pending migrations)
	dbClient, err := database.NewClient(ctx, database.DefaultConfig(cfg.DatabaseURL))
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			slog.Error("Error closing database client", "error", err)
		}
	}()
	slog.Info("Connected to PostgreSQL database")

	// 3. Domain services
	users := services.NewUserService(dbClient.DB())
	apps := services.NewAppService(dbClient.DB())
	chats := services.NewChatService(dbClient.DB())
	messages := services.NewMessageService(dbClient.DB())
	tokens := auth.NewJWTManager(cfg.JWTSecret, 0)
	slog.Info("Services initialized")

	// 4. Workspace storage
	workspaces, err := workspace.NewManager(cfg.StoragePath)
	if err != nil {
		slog.Error("Failed to initialize workspace storage",
			"path", cfg.StoragePath, "error", err)
		os.Exit(1)
	}
	slog.Info("Workspace storage ready", "path", cfg.StoragePath)

	// 5. Dev-server supervision: log bus, port allocator, supervisor
	bus := logbus.NewBus(cfg.LogReplay)
	allocator := procman.NewAllocator(cfg.PortBase, cfg.PortPoolSize)
	supervisor := procman.NewSupervisor(allocator, bus, procman.Options{
		InstallCommand: cfg.InstallCommand,
		DevCommand:     cfg.DevCommand,
		InstallTimeout: cfg.InstallTimeout,
		StopGrace:      cfg.StopGrace,
	})
	slog.Info("Dev-server supervisor initialized",
		"port_base", cfg.PortBase, "port_pool", cfg.PortPoolSize)

	// 6. Generation pipeline
	newClient := func(provider, model string) (llm.Client, error) {
		return llm.NewClient(provider, cfg.ProviderKey(provider), model)
	}
	executor := stream.NewExecutor(apps, messages, users, workspaces, newClient, cfg.MaxSteps)

	// 7. WebSocket fabric and preview proxy
	connManager := events.NewConnectionManager(bus, 10*time.Second)
	previewHandler := preview.NewHandler(supervisor)

	// 8. Create HTTP server
	server := api.NewServer(cfg, dbClient, users, apps, chats, messages, tokens, workspaces, connManager)
	server.SetSupervisor(supervisor)
	server.SetStreamExecutor(executor)
	server.SetPreviewHandler(previewHandler)
	server.SetLogBus(bus)
	server.SetWebDist(cfg.WebDist)

	// 9. Start HTTP server (non-blocking)
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + strconv.Itoa(cfg.HTTPPort)
		slog.Info("HTTP server listening", "addr", addr)
		if err := server.Start(addr); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
			errCh <- err
		}
	}()

	slog.Info("WebForge started successfully", "port", cfg.HTTPPort)

	// 10. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig)
	case err := <-errCh:
		slog.Error("Server error triggered shutdown", "error", err)
	}

	// 11. Graceful shutdown. Streams drain first so finished assistant
	// turns persist, then child processes, then sockets, then HTTP.
	drainCtx, drainCancel := context.WithTimeout(ctx, 30*time.Second)
	defer drainCancel()

	streamsDone := make(chan struct{})
	go func() {
		executor.Stop()
		close(streamsDone)
	}()

	select {
	case <-streamsDone:
		slog.Info("Generation streams drained")
	case <-drainCtx.Done():
		slog.Warn("Stream drain timeout exceeded")
	}

	supervisor.Shutdown()
	slog.Info("Dev servers stopped")

	connManager.Shutdown()

	// Stop HTTP server with its own timeout budget
	httpShutdownCtx, httpCancel := context.WithTimeout(ctx, 5*time.Second)
	defer httpCancel()
	if err := server.Shutdown(httpShutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}

	bus.Close()

	slog.Info("Shutdown complete")
}
