// Package preview forwards /preview/{appId}/* traffic to the workspace's
// leased dev-server port. It fails closed: no lease means a 503 holding
// page and no loopback dial at all.
package preview

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"strings"
)

// PortLookup resolves an app's leased dev-server port. Satisfied by the
// process supervisor.
type PortLookup interface {
	Port(appID int64) (int, bool)
}

// Handler proxies preview traffic, including WebSocket upgrades for the
// dev server's hot-module reload socket.
type Handler struct {
	ports  PortLookup
	logger *slog.Logger
}

// NewHandler wires the proxy to its port lookup.
func NewHandler(ports PortLookup) *Handler {
	return &Handler{
		ports:  ports,
		logger: slog.Default().With("component", "preview"),
	}
}

// Proxy forwards one request to the app's dev server. rest is the path
// remainder after the /preview/{appId} prefix, without a leading slash.
func (h *Handler) Proxy(w http.ResponseWriter, r *http.Request, appID int64, rest string) {
	// 1. Lease lookup. Without one we render the holding page and never
	// touch the loopback interface.
	port, ok := h.ports.Port(appID)
	if !ok {
		h.serveUnavailable(w)
		return
	}

	// 2. Root visits need the trailing slash so the dev server's relative
	// asset URLs stay under the /preview/{appId}/ prefix.
	if rest == "" && !strings.HasSuffix(r.URL.Path, "/") {
		target := r.URL.Path + "/"
		if r.URL.RawQuery != "" {
			target += "?" + r.URL.RawQuery
		}
		http.Redirect(w, r, target, http.StatusFound)
		return
	}

	// 3. Rewrite onto the leased port, preserving method, body, headers,
	// and query. ReverseProxy passes WebSocket upgrades through.
	upstream := fmt.Sprintf("127.0.0.1:%d", port)
	proxy := &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetXForwarded()
			pr.Out.URL.Scheme = "http"
			pr.Out.URL.Host = upstream
			pr.Out.URL.Path = "/" + rest
			pr.Out.URL.RawQuery = r.URL.RawQuery
			pr.Out.Host = upstream
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			h.logger.Warn("Preview upstream failed", "app_id", appID, "port", port, "error", err)
			http.Error(w, "dev server did not respond", http.StatusBadGateway)
		},
	}
	proxy.ServeHTTP(w, r)
}

// serveUnavailable renders the self-refreshing holding page shown while no
// dev server lease exists.
func (h *Handler) serveUnavailable(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusServiceUnavailable)
	fmt.Fprint(w, unavailablePage)
}

const unavailablePage = `<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8">
    <meta http-equiv="refresh" content="3">
    <title>App not running</title>
    <style>
      body { font-family: system-ui, sans-serif; display: flex; align-items: center; justify-content: center; min-height: 100vh; margin: 0; color: #334155; background: #f8fafc; }
      main { text-align: center; }
      h1 { font-size: 1.25rem; }
    </style>
  </head>
  <body>
    <main>
      <h1>This app is not running</h1>
      <p>Start the dev server to see a live preview. This page refreshes automatically.</p>
    </main>
  </body>
</html>
`
