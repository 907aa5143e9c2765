package api

import (
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	echo "github.com/labstack/echo/v5"
)

// apiNamespaces are the first path segments owned by the JSON API. The SPA
// fallback never serves index.html under these; unmatched API paths stay
// JSON 404s.
var apiNamespaces = map[string]bool{
	"auth":     true,
	"apps":     true,
	"chats":    true,
	"stream":   true,
	"files":    true,
	"process":  true,
	"settings": true,
	"preview":  true,
	"health":   true,
	"ws":       true,
}

// isAPIPath reports whether the request path belongs to an API namespace.
func isAPIPath(p string) bool {
	seg := strings.TrimPrefix(p, "/")
	if i := strings.IndexByte(seg, '/'); i >= 0 {
		seg = seg[:i]
	}
	return apiNamespaces[seg]
}

// setupWebRoutes registers the SPA catch-all when a web bundle directory is
// configured. Registered API routes always win; everything else serves the
// bundle so client-side routes survive hard reloads.
func (s *Server) setupWebRoutes() {
	if s.webDist == "" {
		return
	}
	index := filepath.Join(s.webDist, "index.html")
	if _, err := os.Stat(index); err != nil {
		slog.Warn("Web bundle has no index.html, static serving disabled",
			"dir", s.webDist, "error", err)
		return
	}
	s.echo.GET("/*", s.webHandler)
	slog.Info("Serving web bundle", "dir", s.webDist)
}

// webHandler serves files from the web bundle, falling back to index.html
// for client-side routes. Hashed assets under /assets/ get immutable cache
// headers; everything else is no-cache so browsers pick up new asset hashes
// after deployments.
func (s *Server) webHandler(c *echo.Context) error {
	p := c.Request().URL.Path
	if isAPIPath(p) {
		return echo.NewHTTPError(http.StatusNotFound, "route not found")
	}

	file := filepath.Join(s.webDist, filepath.Clean("/"+p))
	if info, err := os.Stat(file); err == nil && !info.IsDir() {
		if strings.HasPrefix(p, "/assets/") {
			c.Response().Header().Set("Cache-Control", "public, max-age=31536000, immutable")
		} else {
			c.Response().Header().Set("Cache-Control", "no-cache")
		}
		http.ServeFile(c.Response(), c.Request(), file)
		return nil
	}

	c.Response().Header().Set("Cache-Control", "no-cache")
	http.ServeFile(c.Response(), c.Request(), filepath.Join(s.webDist, "index.html"))
	return nil
}
