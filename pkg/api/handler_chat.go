package api

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/webforge-labs/webforge/pkg/models"
)

// listChatsHandler handles GET /chats/app/:appId.
func (s *Server) listChatsHandler(c *echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	appID, err := paramID(c, "appId")
	if err != nil {
		return err
	}

	chats, err := s.chats.ListByApp(c.Request().Context(), userID, appID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, chats)
}

// createChatHandler handles POST /chats/app/:appId.
func (s *Server) createChatHandler(c *echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	appID, err := paramID(c, "appId")
	if err != nil {
		return err
	}

	var req models.CreateChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	chat, err := s.chats.Create(c.Request().Context(), userID, appID, req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, chat)
}

// searchChatsHandler handles GET /chats/app/:appId/search?q=.
// Matches chat titles and message bodies.
func (s *Server) searchChatsHandler(c *echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	appID, err := paramID(c, "appId")
	if err != nil {
		return err
	}

	query := strings.TrimSpace(c.QueryParam("q"))
	if query == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "q is required")
	}

	chats, err := s.chats.Search(c.Request().Context(), userID, appID, query)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, chats)
}

// getChatHandler handles GET /chats/:id.
func (s *Server) getChatHandler(c *echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	chatID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	chat, err := s.chats.Get(c.Request().Context(), userID, chatID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, chat)
}

// updateChatHandler handles PATCH /chats/:id.
func (s *Server) updateChatHandler(c *echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	chatID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req models.UpdateChatRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	chat, err := s.chats.Update(c.Request().Context(), userID, chatID, req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, chat)
}

// deleteChatHandler handles DELETE /chats/:id. Messages cascade.
func (s *Server) deleteChatHandler(c *echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	chatID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	if err := s.chats.Delete(c.Request().Context(), userID, chatID); err != nil {
		return mapServiceError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// listMessagesHandler handles GET /chats/:id/messages in chronological order.
func (s *Server) listMessagesHandler(c *echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	chatID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	messages, err := s.messages.List(c.Request().Context(), userID, chatID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, messages)
}

// addMessageHandler handles POST /chats/:id/messages.
// Appends a message without triggering generation; the stream endpoint is
// the only way to get an assistant reply.
func (s *Server) addMessageHandler(c *echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}
	chatID, err := paramID(c, "id")
	if err != nil {
		return err
	}

	var req models.AddMessageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	msg, err := s.messages.Add(c.Request().Context(), userID, chatID, req)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusCreated, msg)
}
