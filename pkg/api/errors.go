package api

import (
	"errors"
	"log/slog"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/webforge-labs/webforge/pkg/services"
	"github.com/webforge-labs/webforge/pkg/workspace"
)

// mapServiceError maps service-layer errors to HTTP error responses.
func mapServiceError(err error) *echo.HTTPError {
	var validErr *services.ValidationError
	if errors.As(err, &validErr) {
		return echo.NewHTTPError(http.StatusBadRequest, validErr.Error())
	}
	if errors.Is(err, services.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "resource not found")
	}
	if errors.Is(err, services.ErrEmailTaken) {
		return echo.NewHTTPError(http.StatusConflict, "email is already registered")
	}
	if errors.Is(err, services.ErrInvalidCredentials) {
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid email or password")
	}

	// Unexpected error
	slog.Error("Unexpected service error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}

// mapWorkspaceError maps workspace store errors to HTTP error responses.
// Path containment violations surface as 403 so clients can tell a rejected
// path from a missing file.
func mapWorkspaceError(err error) *echo.HTTPError {
	if errors.Is(err, workspace.ErrForbiddenPath) {
		return echo.NewHTTPError(http.StatusForbidden, "path escapes workspace root")
	}
	if errors.Is(err, workspace.ErrInvalidPath) {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid path")
	}
	if errors.Is(err, workspace.ErrNotFound) {
		return echo.NewHTTPError(http.StatusNotFound, "file not found")
	}

	slog.Error("Unexpected workspace error", "error", err)
	return echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
}
