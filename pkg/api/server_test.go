package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webforge-labs/webforge/pkg/auth"
)

// newRoutedServer builds a server with real routes and a working token
// manager but no backing services. Requests must fail validation or hit an
// unwired-subsystem guard before reaching a service.
func newRoutedServer() *Server {
	tokens := auth.NewJWTManager("test-secret", time.Minute)
	return NewServer(nil, nil, nil, nil, nil, nil, tokens, nil, nil)
}

func authHeader(t *testing.T, s *Server, userID int64) string {
	t.Helper()
	token, err := s.tokens.Generate(userID, "dev@example.com", "Dev")
	require.NoError(t, err)
	return "Bearer " + token
}

func TestRoutes_AuthRequired(t *testing.T) {
	s := newRoutedServer()

	paths := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/apps"},
		{http.MethodGet, "/chats/app/1"},
		{http.MethodPost, "/stream/1"},
		{http.MethodGet, "/files/app/1"},
		{http.MethodPost, "/process/1/start"},
		{http.MethodGet, "/settings"},
		{http.MethodGet, "/auth/me"},
	}

	for _, tt := range paths {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			rec := httptest.NewRecorder()
			s.echo.ServeHTTP(rec, httptest.NewRequest(tt.method, tt.path, nil))

			assert.Equal(t, http.StatusUnauthorized, rec.Code)
			assert.Contains(t, rec.Body.String(), "missing bearer token")
		})
	}
}

func TestRoutes_ParamValidation(t *testing.T) {
	s := newRoutedServer()
	header := authHeader(t, s, 1)

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{name: "non-numeric app id", method: http.MethodGet, path: "/apps/abc"},
		{name: "zero app id", method: http.MethodGet, path: "/apps/0"},
		{name: "negative chat id", method: http.MethodGet, path: "/chats/-4"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			req.Header.Set("Authorization", header)
			rec := httptest.NewRecorder()
			s.echo.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, rec.Body.String(), "must be a positive integer")
		})
	}
}

func TestRoutes_UnwiredSubsystems(t *testing.T) {
	// Supervisor, executor, and preview proxy are wired after NewServer; the
	// guards keep a partially started process from panicking on requests.
	s := newRoutedServer()
	header := authHeader(t, s, 1)

	t.Run("generation returns 503", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/stream/5", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		s.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "generation is not available")
	})

	t.Run("stream cancel returns 503", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/stream/cancel/some-stream", nil)
		req.Header.Set("Authorization", header)
		rec := httptest.NewRecorder()
		s.echo.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})

	t.Run("preview returns 503", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/preview/5", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, rec.Body.String(), "preview is not available")
	})

	t.Run("websocket returns 503", func(t *testing.T) {
		rec := httptest.NewRecorder()
		s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))

		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestRoutes_PreviewParamValidation(t *testing.T) {
	// Preview is outside the auth group, so the id check must not depend on
	// claims being present.
	s := newRoutedServer()

	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/preview/abc", nil))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "appId must be a positive integer")
}

func TestRoutes_UnknownPathIs404(t *testing.T) {
	s := newRoutedServer()

	rec := httptest.NewRecorder()
	s.echo.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/definitely-not-a-route", nil))

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
