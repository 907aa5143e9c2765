package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"
)

// previewHandler handles every method under /preview/:appId and
// /preview/:appId/*, forwarding to the workspace's dev server.
//
// The route sits outside requireAuth: iframes, asset fetches, and HMR
// websockets cannot attach Authorization headers. A token that IS present
// must belong to the workspace owner.
func (s *Server) previewHandler(c *echo.Context) error {
	appID, err := paramID(c, "appId")
	if err != nil {
		return err
	}
	if s.preview == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "preview is not available")
	}

	if token := bearerToken(c.Request()); token != "" {
		claims, err := s.tokens.Validate(token)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
		}
		if _, err := s.apps.Get(c.Request().Context(), claims.UserID, appID); err != nil {
			return echo.NewHTTPError(http.StatusForbidden, "preview belongs to another workspace owner")
		}
	}

	s.preview.Proxy(c.Response(), c.Request(), appID, c.Param("*"))
	return nil
}
