package api

import (
	"net/http"
	"strings"

	echo "github.com/labstack/echo/v5"

	"github.com/webforge-labs/webforge/pkg/auth"
)

// authClaimsKey is the context key under which requireAuth stores the
// verified token claims.
const authClaimsKey = "authClaims"

// bearerToken extracts the token from an "Authorization: Bearer ..." header.
// Returns "" when the header is absent or uses a different scheme.
func bearerToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// requireAuth verifies the bearer token and stores its claims on the
// request context for currentUserID.
func (s *Server) requireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c *echo.Context) error {
		token := bearerToken(c.Request())
		if token == "" {
			return echo.NewHTTPError(http.StatusUnauthorized, "missing bearer token")
		}
		claims, err := s.tokens.Validate(token)
		if err != nil {
			return echo.NewHTTPError(http.StatusUnauthorized, "invalid or expired token")
		}
		c.Set(authClaimsKey, claims)
		return next(c)
	}
}

// currentUserID returns the authenticated user's id stored by requireAuth.
func currentUserID(c *echo.Context) (int64, error) {
	claims, ok := c.Get(authClaimsKey).(*auth.Claims)
	if !ok {
		return 0, echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
	}
	return claims.UserID, nil
}
