// Package e2e boots complete WebForge instances against real PostgreSQL and
// real child processes for end-to-end testing. Only the model provider is
// scripted.
package e2e

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/webforge-labs/webforge/pkg/api"
	"github.com/webforge-labs/webforge/pkg/auth"
	"github.com/webforge-labs/webforge/pkg/config"
	"github.com/webforge-labs/webforge/pkg/database"
	"github.com/webforge-labs/webforge/pkg/events"
	"github.com/webforge-labs/webforge/pkg/logbus"
	"github.com/webforge-labs/webforge/pkg/preview"
	"github.com/webforge-labs/webforge/pkg/procman"
	"github.com/webforge-labs/webforge/pkg/services"
	"github.com/webforge-labs/webforge/pkg/stream"
	"github.com/webforge-labs/webforge/pkg/workspace"
	testdb "github.com/webforge-labs/webforge/test/database"
)

// TestApp boots a complete WebForge instance for e2e testing.
type TestApp struct {
	// Core
	Config   *config.Config
	DBClient *database.Client

	// Mocks / test wiring
	LLMClient *ScriptedLLMClient

	// Real infrastructure
	Workspaces  *workspace.Manager
	Bus         *logbus.Bus
	Allocator   *procman.Allocator
	Supervisor  *procman.Supervisor
	Executor    *stream.Executor
	ConnManager *events.ConnectionManager
	Server      *api.Server

	// Runtime
	BaseURL string // e.g. "http://127.0.0.1:54321"
	WSURL   string // e.g. "ws://127.0.0.1:54321/ws"

	t *testing.T
}

// testAppConfig holds options accumulated before creating the TestApp.
type testAppConfig struct {
	llmClient      *ScriptedLLMClient
	portPool       int
	installCommand string
	devCommand     string
	installTimeout time.Duration
	stopGrace      time.Duration
	maxSteps       int
	logReplay      int
}

// TestAppOption configures the test app.
type TestAppOption func(*testAppConfig)

// WithLLMClient sets a pre-scripted provider client.
func WithLLMClient(client *ScriptedLLMClient) TestAppOption {
	return func(c *testAppConfig) { c.llmClient = client }
}

// WithPortPool sets the preview port pool size, which doubles as the cap on
// concurrently running dev servers.
func WithPortPool(size int) TestAppOption {
	return func(c *testAppConfig) { c.portPool = size }
}

// WithCommands overrides the install and dev-server commands. Commands are
// whitespace-split argv, so tests point them at helper scripts seeded into
// the workspace rather than shell one-liners.
func WithCommands(install, dev string) TestAppOption {
	return func(c *testAppConfig) {
		c.installCommand = install
		c.devCommand = dev
	}
}

// WithMaxSteps caps the tool-call loop of one generation.
func WithMaxSteps(n int) TestAppOption {
	return func(c *testAppConfig) { c.maxSteps = n }
}

// WithStopGrace sets the SIGTERM grace window before SIGKILL.
func WithStopGrace(d time.Duration) TestAppOption {
	return func(c *testAppConfig) { c.stopGrace = d }
}

// portBlocks spaces each TestApp's port pool 100 apart so instances running
// in one test binary never lease the same ports.
var portBlocks atomic.Int64

func nextPortBase() int {
	return 43000 + int(portBlocks.Add(1))*100
}

// NewTestApp creates and starts a full WebForge test instance. Shutdown is
// registered via t.Cleanup automatically.
func NewTestApp(t *testing.T, opts ...TestAppOption) *TestApp {
	t.Helper()

	// Apply options. The default commands are inert placeholders; process
	// tests always install their own scripts via WithCommands.
	tc := &testAppConfig{
		portPool:       10,
		installCommand: "true",
		devCommand:     "sleep 300",
		installTimeout: 30 * time.Second,
		stopGrace:      3 * time.Second,
		maxSteps:       stream.DefaultMaxSteps,
		logReplay:      logbus.DefaultRingCapacity,
	}
	for _, opt := range opts {
		opt(tc)
	}
	if tc.llmClient == nil {
		tc.llmClient = NewScriptedLLMClient()
	}

	// 1. Database: test-private schema with migrations applied.
	dbClient := testdb.NewTestClient(t)
	db := dbClient.DB()

	// 2. Config. Workspace storage lives under the test's temp dir.
	cfg := &config.Config{
		JWTSecret:      "e2e-test-secret",
		StoragePath:    t.TempDir(),
		CORSOrigin:     "*",
		PortBase:       nextPortBase(),
		PortPoolSize:   tc.portPool,
		InstallCommand: tc.installCommand,
		DevCommand:     tc.devCommand,
		InstallTimeout: tc.installTimeout,
		StopGrace:      tc.stopGrace,
		MaxSteps:       tc.maxSteps,
		LogReplay:      tc.logReplay,
	}

	// 3. Domain services.
	users := services.NewUserService(db)
	apps := services.NewAppService(db)
	chats := services.NewChatService(db)
	messages := services.NewMessageService(db)
	tokens := auth.NewJWTManager(cfg.JWTSecret, 0)

	// 4. Workspace manager.
	manager, err := workspace.NewManager(cfg.StoragePath)
	require.NoError(t, err)

	// 5. Process supervision and the log fabric.
	bus := logbus.NewBus(cfg.LogReplay)
	allocator := procman.NewAllocator(cfg.PortBase, cfg.PortPoolSize)
	supervisor := procman.NewSupervisor(allocator, bus, procman.Options{
		InstallCommand: cfg.InstallCommand,
		DevCommand:     cfg.DevCommand,
		InstallTimeout: cfg.InstallTimeout,
		StopGrace:      cfg.StopGrace,
	})

	// 6. Generation pipeline, backed by the scripted provider.
	executor := stream.NewExecutor(apps, messages, users, manager, tc.llmClient.Factory(), cfg.MaxSteps)

	// 7. WebSocket fabric and preview edge.
	connManager := events.NewConnectionManager(bus, 5*time.Second)
	previewHandler := preview.NewHandler(supervisor)

	// 8. HTTP server on an OS-assigned port.
	server := api.NewServer(cfg, dbClient, users, apps, chats, messages, tokens, manager, connManager)
	server.SetSupervisor(supervisor)
	server.SetStreamExecutor(executor)
	server.SetPreviewHandler(previewHandler)
	server.SetLogBus(bus)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	go func() {
		_ = server.StartWithListener(ln)
	}()

	addr := ln.Addr().String()
	app := &TestApp{
		Config:      cfg,
		DBClient:    dbClient,
		LLMClient:   tc.llmClient,
		Workspaces:  manager,
		Bus:         bus,
		Allocator:   allocator,
		Supervisor:  supervisor,
		Executor:    executor,
		ConnManager: connManager,
		Server:      server,
		BaseURL:     fmt.Sprintf("http://%s", addr),
		WSURL:       fmt.Sprintf("ws://%s/ws", addr),
		t:           t,
	}

	// Register cleanup in reverse-creation order. DB cleanup is handled by
	// testdb.NewTestClient.
	t.Cleanup(func() {
		executor.Stop()
		supervisor.Shutdown()
		connManager.Shutdown()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		bus.Close()
	})

	return app
}
