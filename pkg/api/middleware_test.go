package api

import (
	"net/http"
	"net/http/httptest"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"
)

func TestSecurityHeaders(t *testing.T) {
	e := echo.New()
	e.Use(securityHeaders())
	e.GET("/test", func(c *echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))
	assert.Equal(t, "strict-origin-when-cross-origin", rec.Header().Get("Referrer-Policy"))
	assert.Equal(t, "camera=(), microphone=(), geolocation=()", rec.Header().Get("Permissions-Policy"))
	// Preview responses render inside the editor's iframe, so the usual
	// X-Frame-Options: DENY must not be set.
	assert.Empty(t, rec.Header().Get("X-Frame-Options"))
}

func TestCORSHeaders(t *testing.T) {
	newApp := func(origin string) *echo.Echo {
		e := echo.New()
		e.Use(corsHeaders(origin))
		e.GET("/test", func(c *echo.Context) error {
			return c.String(http.StatusOK, "ok")
		})
		return e
	}

	t.Run("stamps allowed origin on responses", func(t *testing.T) {
		e := newApp("http://localhost:3000")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "http://localhost:3000", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Equal(t, "Origin", rec.Header().Get("Vary"))
	})

	t.Run("wildcard origin does not set Vary", func(t *testing.T) {
		e := newApp("*")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/test", nil))

		assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, rec.Header().Get("Vary"))
	})

	t.Run("preflight short-circuits with 204", func(t *testing.T) {
		e := newApp("*")
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/test", nil))

		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Empty(t, rec.Body.String())
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), "PATCH")
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
	})
}
