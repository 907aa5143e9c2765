package api

import (
	"log/slog"
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/webforge-labs/webforge/pkg/models"
)

// listAppsHandler handles GET /apps, most recently updated first.
func (s *Server) listAppsHandler(c *echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	apps, err := s.apps.List(c.Request().Context(), userID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, apps)
}

// createAppHandler handles POST /apps.
// Creates the app row with its initial chat, then materializes the starter
// template into the new workspace directory.
func (s *Server) createAppHandler(c *echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	// 1. Bind and validate request body
	var req models.CreateAppRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	// 2. Create app + initial chat in one transaction
	app, chat, err := s.apps.Create(c.Request().Context(), userID, req)
	if err != nil {
		return mapServiceError(err)
	}

	// 3. Materialize the starter template. A failure here leaves a valid but
	// empty workspace; the generation pipeline re-seeds it on first use.
	store, err := s.workspaces.Open(userID, app.ID)
	if err == nil {
		err = store.WriteTemplate(strings.TrimSpace(req.Template))
	}
	if err != nil {
		slog.Warn("Failed to materialize workspace template",
			"app_id", app.ID, "template", req.Template, "error", err)
	}

	return c.JSON(http.StatusCreated, &CreateAppResponse{App: app, Chat: chat})
}

// getAppHandler handles GET /apps/:id.
func (s *Server) getAppHandler(c *echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	appID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	app, err := s.apps.Get(c.Request().Context(), userID, appID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, app)
}

// updateAppHandler handles PATCH /apps/:id.
func (s *Server) updateAppHandler(c *echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	appID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req models.UpdateAppRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	app, err := s.apps.Update(c.Request().Context(), userID, appID, req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, app)
}

// deleteAppHandler handles DELETE /apps/:id.
// Stops any running dev server, deletes the rows (chats, messages, and
// versions cascade), then removes the workspace directory and buffered logs.
func (s *Server) deleteAppHandler(c *echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	appID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	// 1. Ownership check before any side effect
	if _, err := s.apps.Get(c.Request().Context(), userID, appID); err != nil {
		return mapServiceError(err)
	}

	// 2. Stop the dev server if one is running
	if s.supervisor != nil {
		s.supervisor.Stop(appID)
	}

	// 3. Delete rows; database cascades cover chats, messages, versions
	if err := s.apps.Delete(c.Request().Context(), userID, appID); err != nil {
		return mapServiceError(err)
	}

	// 4. Remove files and buffered logs. The rows are gone, so failures here
	// only leak disk space; log and keep going.
	if err := s.workspaces.Remove(userID, appID); err != nil {
		slog.Warn("Failed to remove workspace directory", "app_id", appID, "error", err)
	}
	if s.logBus != nil {
		s.logBus.Purge(appID)
	}

	return c.NoContent(http.StatusNoContent)
}

// favoriteAppHandler handles POST /apps/:id/favorite, toggling the flag.
func (s *Server) favoriteAppHandler(c *echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	appID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	app, err := s.apps.ToggleFavorite(c.Request().Context(), userID, appID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, app)
}

// searchAppsHandler handles GET /apps/search?q=.
func (s *Server) searchAppsHandler(c *echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	query := strings.TrimSpace(c.QueryParam("q"))
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}

	apps, err := s.apps.Search(c.Request().Context(), userID, query)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, apps)
}

// listVersionsHandler handles GET /apps/:id/versions, newest first.
func (s *Server) listVersionsHandler(c *echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	appID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	versions, err := s.apps.ListVersions(c.Request().Context(), userID, appID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, versions)
}
