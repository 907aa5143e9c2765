package api

import (
	"log/slog"
	"net/http"
	"strconv"

	echo "github.com/labstack/echo/v5"

	"github.com/webforge-labs/webforge/pkg/workspace"
)

// openOwnedStore resolves :appId, enforces ownership, and opens the
// workspace store. Unknown and non-owned apps look identical (404).
func (s *Server) openOwnedStore(c *echo.Context) (*workspace.Store, error) {
	userID, err := currentUserID(c)
	if err != nil {
		return nil, err
	}
	appID, err := paramID(c, "appId")
	if err != nil {
		return nil, err
	}
	if _, err := s.apps.Get(c.Request().Context(), userID, appID); err != nil {
		return nil, mapServiceError(err)
	}

	store, err := s.workspaces.Open(userID, appID)
	if err != nil {
		slog.Error("Failed to open workspace", "app_id", appID, "error", err)
		return nil, echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
	}
	return store, nil
}

// listFilesHandler handles GET /files/app/:appId.
// Lists the workspace root; ?recursive=true walks the whole tree minus
// dependency and build directories.
func (s *Server) listFilesHandler(c *echo.Context) error {
	store, err := s.openOwnedStore(c)
	if err != nil {
		return err
	}
	return s.listDirectory(c, store, ".")
}

// readFileHandler handles GET /files/app/:appId/<path>.
// Returns {content} for regular files and {files} for directories.
func (s *Server) readFileHandler(c *echo.Context) error {
	store, err := s.openOwnedStore(c)
	if err != nil {
		return err
	}
	path := c.Param("*")
	if path == "" {
		path = "."
	}

	info, err := store.Stat(path)
	if err != nil {
		return mapWorkspaceError(err)
	}
	if info.IsDir {
		return s.listDirectory(c, store, path)
	}

	data, err := store.Read(path)
	if err != nil {
		return mapWorkspaceError(err)
	}
	return c.JSON(http.StatusOK, &FileContentResponse{Content: string(data)})
}

// writeFileHandler handles PUT /files/app/:appId/<path>.
// Creates parent directories as needed; concurrent writes to the same path
// are last-writer-wins.
func (s *Server) writeFileHandler(c *echo.Context) error {
	store, err := s.openOwnedStore(c)
	if err != nil {
		return err
	}
	path := c.Param("*")
	if path == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "file path is required")
	}

	var req WriteFileRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	if err := store.Write(path, []byte(req.Content)); err != nil {
		return mapWorkspaceError(err)
	}
	return c.JSON(http.StatusOK, &SuccessResponse{Success: true})
}

// deleteFileHandler handles DELETE /files/app/:appId/<path>. Directories
// are removed with their contents.
func (s *Server) deleteFileHandler(c *echo.Context) error {
	store, err := s.openOwnedStore(c)
	if err != nil {
		return err
	}
	path := c.Param("*")
	if path == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "file path is required")
	}

	if err := store.Delete(path); err != nil {
		return mapWorkspaceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// listDirectory renders a directory listing, honoring ?recursive=.
func (s *Server) listDirectory(c *echo.Context, store *workspace.Store, dir string) error {
	recursive, _ := strconv.ParseBool(c.QueryParam("recursive"))

	var (
		files []workspace.FileInfo
		err   error
	)
	if recursive {
		files, err = store.ListRecursive(dir, 0)
	} else {
		files, err = store.List(dir)
	}
	if err != nil {
		return mapWorkspaceError(err)
	}
	return c.JSON(http.StatusOK, &FileListResponse{Files: files})
}
