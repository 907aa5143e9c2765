package api

import (
	"github.com/coder/websocket"
	echo "github.com/labstack/echo/v5"
)

// wsHandler upgrades HTTP connections to WebSocket and delegates to the
// ConnectionManager for log-room subscriptions.
func (s *Server) wsHandler(c *echo.Context) error {
	if s.connManager == nil {
		return echo.NewHTTPError(503, "WebSocket not available")
	}

	// Upgrade HTTP to WebSocket
	conn, err := websocket.Accept(c.Response(), c.Request(), &websocket.AcceptOptions{
		// Dev servers and the editor run on different origins in local
		// setups; origin checks would reject them all.
		InsecureSkipVerify: true,
	})
	if err != nil {
		return err
	}

	// HandleConnection blocks until the WebSocket closes.
	s.connManager.HandleConnection(c.Request().Context(), conn)
	return nil
}
