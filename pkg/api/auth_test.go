package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webforge-labs/webforge/pkg/auth"
)

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		expected string
	}{
		{
			name:     "no header returns empty",
			header:   "",
			expected: "",
		},
		{
			name:     "bearer token extracted",
			header:   "Bearer abc123",
			expected: "abc123",
		},
		{
			name:     "scheme is case-insensitive",
			header:   "bearer abc123",
			expected: "abc123",
		},
		{
			name:     "other scheme returns empty",
			header:   "Basic dXNlcjpwYXNz",
			expected: "",
		},
		{
			name:     "bare scheme returns empty",
			header:   "Bearer",
			expected: "",
		},
		{
			name:     "surrounding whitespace trimmed",
			header:   "Bearer   abc123  ",
			expected: "abc123",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			assert.Equal(t, tt.expected, bearerToken(req))
		})
	}
}

func TestRequireAuth(t *testing.T) {
	tokens := auth.NewJWTManager("test-secret", time.Minute)
	s := &Server{tokens: tokens}

	e := echo.New()
	e.GET("/protected", s.requireAuth(func(c *echo.Context) error {
		userID, err := currentUserID(c)
		if err != nil {
			return err
		}
		return c.JSON(http.StatusOK, map[string]int64{"userId": userID})
	}))

	t.Run("missing token returns 401", func(t *testing.T) {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/protected", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "missing bearer token")
	})

	t.Run("garbage token returns 401", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer not-a-jwt")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Contains(t, rec.Body.String(), "invalid or expired token")
	})

	t.Run("token signed with another secret returns 401", func(t *testing.T) {
		other := auth.NewJWTManager("other-secret", time.Minute)
		token, err := other.Generate(7, "eve@example.com", "Eve")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("valid token passes claims through", func(t *testing.T) {
		token, err := tokens.Generate(42, "dev@example.com", "Dev")
		require.NoError(t, err)

		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "42")
	})
}

func TestCurrentUserID_NoClaims(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	_, err := currentUserID(c)
	if assert.Error(t, err) {
		he, ok := err.(*echo.HTTPError)
		if assert.True(t, ok, "expected echo.HTTPError") {
			assert.Equal(t, http.StatusUnauthorized, he.Code)
		}
	}
}
