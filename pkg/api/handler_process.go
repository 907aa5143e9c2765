package api

import (
	"errors"
	"fmt"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/webforge-labs/webforge/pkg/procman"
)

// resolveOwnedApp resolves :appId and enforces ownership for process routes.
func (s *Server) resolveOwnedApp(c *echo.Context) (userID, appID int64, err error) {
	userID, err = currentUserID(c)
	if err != nil {
		return 0, 0, err
	}
	appID, err = paramID(c, "appId")
	if err != nil {
		return 0, 0, err
	}
	if _, err := s.apps.Get(c.Request().Context(), userID, appID); err != nil {
		return 0, 0, mapServiceError(err)
	}
	return userID, appID, nil
}

// startProcessHandler handles POST /process/:appId/start.
// Installs dependencies when needed and spawns the dev server; returns the
// leased port once the server is up. Starting an already running workspace
// returns the existing port.
func (s *Server) startProcessHandler(c *echo.Context) error {
	userID, appID, err := s.resolveOwnedApp(c)
	if err != nil {
		return err
	}
	if s.supervisor == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "process control is not available")
	}

	root := s.workspaces.RootFor(userID, appID)
	port, err := s.supervisor.Start(c.Request().Context(), userID, appID, root)
	if err != nil {
		return mapProcessError(err)
	}

	return c.JSON(http.StatusOK, &ProcessStartResponse{
		Success:    true,
		Port:       port,
		PreviewURL: previewURL(appID),
	})
}

// stopProcessHandler handles POST /process/:appId/stop.
// Stopping an idle workspace succeeds with stopped=false.
func (s *Server) stopProcessHandler(c *echo.Context) error {
	_, appID, err := s.resolveOwnedApp(c)
	if err != nil {
		return err
	}
	if s.supervisor == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "process control is not available")
	}

	stopped := s.supervisor.Stop(appID)
	return c.JSON(http.StatusOK, &ProcessStopResponse{Success: true, Stopped: stopped})
}

// processStatusHandler handles GET /process/:appId/status.
func (s *Server) processStatusHandler(c *echo.Context) error {
	_, appID, err := s.resolveOwnedApp(c)
	if err != nil {
		return err
	}
	if s.supervisor == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "process control is not available")
	}

	st := s.supervisor.Status(appID)
	resp := &ProcessStatusResponse{
		Running: st.Running,
		State:   string(st.State),
	}
	if st.Running {
		resp.Port = st.Port
		resp.PreviewURL = previewURL(appID)
	}
	return c.JSON(http.StatusOK, resp)
}

// previewURL is the server-relative proxy path for a workspace preview.
func previewURL(appID int64) string {
	return fmt.Sprintf("/preview/%d", appID)
}

// mapProcessError maps supervisor errors to HTTP errors.
func mapProcessError(err error) *echo.HTTPError {
	if errors.Is(err, procman.ErrBusy) {
		return echo.NewHTTPError(http.StatusConflict, "workspace is busy, try again shortly")
	}
	if errors.Is(err, procman.ErrNotInitialized) {
		return echo.NewHTTPError(http.StatusBadRequest, "workspace has no project to run")
	}
	if errors.Is(err, procman.ErrPortsExhausted) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no preview ports available")
	}
	if errors.Is(err, procman.ErrShuttingDown) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "service is shutting down")
	}
	return mapServiceError(err)
}
