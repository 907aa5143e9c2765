package api

import (
	"net/http"

	echo "github.com/labstack/echo/v5"

	"github.com/webforge-labs/webforge/pkg/models"
)

// registerHandler handles POST /auth/register.
// Creates the account and returns it with a signed token so clients are
// logged in immediately.
func (s *Server) registerHandler(c *echo.Context) error {
	// 1. Bind request body
	var req models.RegisterRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	// 2. Create the account; field validation lives in the service
	user, err := s.users.Register(c.Request().Context(), req)
	if err != nil {
		return mapServiceError(err)
	}

	// 3. Issue a token for the new account
	token, err := s.tokens.Generate(user.ID, user.Email, user.Name)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusCreated, &AuthResponse{User: user, Token: token})
}

// loginHandler handles POST /auth/login.
func (s *Server) loginHandler(c *echo.Context) error {
	// 1. Bind and validate request body
	var req models.LoginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if req.Email == "" || req.Password == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "email and password are required")
	}

	// 2. Verify credentials
	user, err := s.users.Authenticate(c.Request().Context(), req.Email, req.Password)
	if err != nil {
		return mapServiceError(err)
	}

	// 3. Issue a fresh token
	token, err := s.tokens.Generate(user.ID, user.Email, user.Name)
	if err != nil {
		return mapServiceError(err)
	}

	return c.JSON(http.StatusOK, &AuthResponse{User: user, Token: token})
}

// meHandler handles GET /auth/me. The account is re-read from the database
// so a token outliving a deleted account returns 404 rather than stale data.
func (s *Server) meHandler(c *echo.Context) error {
	userID, err := currentUserID(c)
	if err != nil {
		return err
	}

	user, err := s.users.GetByID(c.Request().Context(), userID)
	if err != nil {
		return mapServiceError(err)
	}
	return c.JSON(http.StatusOK, user)
}
