package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"

	"github.com/webforge-labs/webforge/pkg/auth"
)

// authedContext builds a context with verified claims already attached, the
// state requireAuth leaves behind. Lets validation tests call handlers
// directly without the middleware chain.
func authedContext(e *echo.Echo, req *http.Request, rec *httptest.ResponseRecorder) *echo.Context {
	c := e.NewContext(req, rec)
	c.Set(authClaimsKey, &auth.Claims{UserID: 1, Email: "dev@example.com", Name: "Dev"})
	return c
}

func TestAppHandlers_IDValidation(t *testing.T) {
	// Param validation fires before any service call, so a bare Server works.
	s := &Server{}

	tests := []struct {
		name    string
		handler func(*echo.Context) error
	}{
		{name: "get", handler: s.getAppHandler},
		{name: "update", handler: s.updateAppHandler},
		{name: "delete", handler: s.deleteAppHandler},
		{name: "favorite", handler: s.favoriteAppHandler},
		{name: "versions", handler: s.listVersionsHandler},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/apps/", nil)
			rec := httptest.NewRecorder()
			c := authedContext(e, req, rec)

			err := tt.handler(c)
			if assert.Error(t, err) {
				he, ok := err.(*echo.HTTPError)
				if assert.True(t, ok, "expected echo.HTTPError") {
					assert.Equal(t, http.StatusBadRequest, he.Code)
					assert.Contains(t, he.Message, "id must be a positive integer")
				}
			}
		})
	}
}

func TestSearchAppsHandler_Validation(t *testing.T) {
	s := &Server{}

	tests := []struct {
		name  string
		query string
	}{
		{name: "missing q", query: ""},
		{name: "blank q", query: "q=%20%20"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodGet, "/apps/search?"+tt.query, nil)
			rec := httptest.NewRecorder()
			c := authedContext(e, req, rec)

			err := s.searchAppsHandler(c)
			if assert.Error(t, err) {
				he, ok := err.(*echo.HTTPError)
				if assert.True(t, ok, "expected echo.HTTPError") {
					assert.Equal(t, http.StatusBadRequest, he.Code)
					assert.Contains(t, he.Message, "q is required")
				}
			}
		})
	}
}

func TestCreateAppHandler_MalformedJSON(t *testing.T) {
	s := &Server{}

	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/apps", strings.NewReader(`{"name": `))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	c := authedContext(e, req, rec)

	err := s.createAppHandler(c)
	if assert.Error(t, err) {
		he, ok := err.(*echo.HTTPError)
		if assert.True(t, ok, "expected echo.HTTPError") {
			assert.Equal(t, http.StatusBadRequest, he.Code)
		}
	}
}

func TestAppHandlers_RequireClaims(t *testing.T) {
	s := &Server{}

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/apps", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	err := s.listAppsHandler(c)
	if assert.Error(t, err) {
		he, ok := err.(*echo.HTTPError)
		if assert.True(t, ok, "expected echo.HTTPError") {
			assert.Equal(t, http.StatusUnauthorized, he.Code)
		}
	}
}
