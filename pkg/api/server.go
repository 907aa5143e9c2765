// Package api exposes the HTTP surface: auth, workspace and chat CRUD, the
// SSE generation endpoint, file access, dev-server control, the log-stream
// WebSocket, and the preview proxy edge.
package api

import (
	"context"
	"net"
	"net/http"
	"strconv"
	"time"

	echo "github.com/labstack/echo/v5"

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
)

// Server is the HTTP API server.
type Server struct {
	echo       *echo.Echo
	httpServer *http.Server
	cfg        *config.Config
	dbClient   *database.Client

	users    *services.UserService
	apps     *services.AppService
	chats    *services.ChatService
	messages *services.MessageService

	tokens      *auth.JWTManager
	workspaces  *workspace.Manager
	connManager *events.ConnectionManager

	supervisor *procman.Supervisor
	executor   *stream.Executor
	preview    *preview.Handler
	logBus     *logbus.Bus

	webDist string
}

// NewServer creates the API server and registers all routes.
func NewServer(
	cfg *config.Config,
	dbClient *database.Client,
	users *services.UserService,
	apps *services.AppService,
	chats *services.ChatService,
	messages *services.MessageService,
	tokens *auth.JWTManager,
	workspaces *workspace.Manager,
	connManager *events.ConnectionManager,
) *Server {
	e := echo.New()

	s := &Server{
		echo:        e,
		cfg:         cfg,
		dbClient:    dbClient,
		users:       users,
		apps:        apps,
		chats:       chats,
		messages:    messages,
		tokens:      tokens,
		workspaces:  workspaces,
		connManager: connManager,
	}
	s.httpServer = &http.Server{
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.setupRoutes()
	return s
}

// SetSupervisor wires the dev-server supervisor. Process routes return 503
// until set.
func (s *Server) SetSupervisor(sup *procman.Supervisor) {
	s.supervisor = sup
}

// SetStreamExecutor wires the generation pipeline. Stream routes return 503
// until set.
func (s *Server) SetStreamExecutor(exec *stream.Executor) {
	s.executor = exec
}

// SetPreviewHandler wires the preview reverse proxy. Preview routes return
// 503 until set.
func (s *Server) SetPreviewHandler(h *preview.Handler) {
	s.preview = h
}

// SetLogBus wires the log bus so deleting an app also drops its buffered
// log lines.
func (s *Server) SetLogBus(bus *logbus.Bus) {
	s.logBus = bus
}

// SetWebDist registers SPA static serving from dir. An empty dir is a
// no-op; the server then answers API routes only.
func (s *Server) SetWebDist(dir string) {
	s.webDist = dir
	s.setupWebRoutes()
}

// setupRoutes registers middleware and all API routes.
func (s *Server) setupRoutes() {
	e := s.echo

	e.Use(securityHeaders())
	if s.cfg != nil && s.cfg.CORSOrigin != "" {
		e.Use(corsHeaders(s.cfg.CORSOrigin))
	}

	// Public routes
	e.POST("/auth/register", s.registerHandler)
	e.POST("/auth/login", s.loginHandler)
	e.GET("/health", s.healthHandler)
	e.GET("/ws", s.wsHandler)

	// Preview is reachable without a token: iframes and HMR websockets
	// cannot attach Authorization headers. Tokens are still verified when
	// present (previewHandler).
	e.Any("/preview/:appId", s.previewHandler)
	e.Any("/preview/:appId/*", s.previewHandler)

	// Authenticated routes
	g := e.Group("", s.requireAuth)

	g.GET("/auth/me", s.meHandler)

	g.GET("/apps", s.listAppsHandler)
	g.POST("/apps", s.createAppHandler)
	g.GET("/apps/search", s.searchAppsHandler)
	g.GET("/apps/:id", s.getAppHandler)
	g.PATCH("/apps/:id", s.updateAppHandler)
	g.DELETE("/apps/:id", s.deleteAppHandler)
	g.POST("/apps/:id/favorite", s.favoriteAppHandler)
	g.GET("/apps/:id/versions", s.listVersionsHandler)

	g.GET("/chats/app/:appId", s.listChatsHandler)
	g.POST("/chats/app/:appId", s.createChatHandler)
	g.GET("/chats/app/:appId/search", s.searchChatsHandler)
	g.GET("/chats/:id", s.getChatHandler)
	g.PATCH("/chats/:id", s.updateChatHandler)
	g.DELETE("/chats/:id", s.deleteChatHandler)
	g.GET("/chats/:id/messages", s.listMessagesHandler)
	g.POST("/chats/:id/messages", s.addMessageHandler)

	g.POST("/stream/:chatId", s.generateHandler)
	g.POST("/stream/cancel/:streamId", s.cancelStreamHandler)

	g.GET("/files/app/:appId", s.listFilesHandler)
	g.GET("/files/app/:appId/*", s.readFileHandler)
	g.PUT("/files/app/:appId/*", s.writeFileHandler)
	g.DELETE("/files/app/:appId/*", s.deleteFileHandler)

	g.POST("/process/:appId/start", s.startProcessHandler)
	g.POST("/process/:appId/stop", s.stopProcessHandler)
	g.GET("/process/:appId/status", s.processStatusHandler)

	g.GET("/settings", s.getSettingsHandler)
	g.PUT("/settings", s.updateSettingsHandler)
}

// Start begins serving on addr. It blocks until the listener fails or
// Shutdown is called, following http.Server.ListenAndServe semantics.
func (s *Server) Start(addr string) error {
	s.httpServer.Addr = addr
	return s.httpServer.ListenAndServe()
}

// StartWithListener serves on an existing listener. Tests use this to bind
// an OS-assigned port before the server goroutine starts.
func (s *Server) StartWithListener(ln net.Listener) error {
	return s.httpServer.Serve(ln)
}

// Shutdown gracefully stops the HTTP server, waiting for in-flight requests
// within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// paramID parses a positive integer path parameter.
func paramID(c *echo.Context, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id < 1 {
		return 0, echo.NewHTTPError(http.StatusBadRequest, name+" must be a positive integer")
	}
	return id, nil
}
