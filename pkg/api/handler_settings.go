package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/webforge-labs/webforge/pkg/models"
)

// getSettingsHandler handles GET /settings. Accounts that never saved
// settings get the defaults.
func (s *Server) getSettingsHandler(c *echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	settings, err := s.users.GetSettings(c.Request().Context(), userID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, settings)
}

// updateSettingsHandler handles PUT /settings.
func (s *Server) updateSettingsHandler(c *echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	var req models.UpdateSettingsRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	settings, err := s.users.UpdateSettings(c.Request().Context(), userID, req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, settings)
}
