package api

import (
	"errors"
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/webforge-labs/webforge/pkg/stream"
)

// generateHandler handles POST /stream/:chatId.
// Runs one generation turn and streams SSE frames back on the same response.
// Errors after the stream has started arrive as error frames, not statuses.
func (s *Server) generateHandler(c *echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	chatID, err := paramID(c, "chatId")
	if err != nil {
		return err
	}

	// 1. Verify the generation pipeline is wired
	if s.executor == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "generation is not available")
	}

	// 2. Bind request body
	var req stream.GenerateRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	// 3. Resolve the chat; ownership is enforced by the lookup
	chat, err := s.chats.Get(c.Request().Context(), userID, chatID)
	if err != nil {
		return mapServiceError(err)
	}

	// 4. Run the stream. Run only returns an error before the first frame
	// is written, so mapping to an HTTP status here is always safe.
	if err := s.executor.Run(c.Request().Context(), c.Response(), userID, chat, req); err != nil {
		return mapStreamError(err)
	}
	return nil
}

// cancelStreamHandler handles POST /stream/cancel/:streamId.
// Races with normal completion are expected; a stream that already finished
// reports 404.
func (s *Server) cancelStreamHandler(c *echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	streamID := c.Param("streamId")
	if streamID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "stream id is required")
	}

	if s.executor == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "generation is not available")
	}

	if !s.executor.Cancel(streamID, userID) {
		return echo.NewHTTPError(http.StatusNotFound, "stream not found")
	}
	return c.JSON(http.StatusOK, &SuccessResponse{Success: true})
}

// mapStreamError maps generation pipeline errors to HTTP errors.
func mapStreamError(err error) *echo.HTTPError {
	if errors.Is(err, stream.ErrStreamActive) {
		return echo.NewHTTPError(http.StatusConflict, "a generation is already running for this chat")
	}
	if errors.Is(err, stream.ErrShuttingDown) {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "service is shutting down")
	}
	return mapServiceError(err)
}
