package api

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"

	"github.com/webforge-labs/webforge/pkg/procman"
	"github.com/webforge-labs/webforge/pkg/services"
)

func TestMapProcessError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		expectCode int
		expectMsg  string
	}{
		{
			name:       "busy maps to 409",
			err:        fmt.Errorf("wrapped: %w", procman.ErrBusy),
			expectCode: http.StatusConflict,
			expectMsg:  "workspace is busy",
		},
		{
			name:       "uninitialized workspace maps to 400",
			err:        procman.ErrNotInitialized,
			expectCode: http.StatusBadRequest,
			expectMsg:  "no project to run",
		},
		{
			name:       "port exhaustion maps to 503",
			err:        procman.ErrPortsExhausted,
			expectCode: http.StatusServiceUnavailable,
			expectMsg:  "no preview ports available",
		},
		{
			name:       "shutdown maps to 503",
			err:        procman.ErrShuttingDown,
			expectCode: http.StatusServiceUnavailable,
			expectMsg:  "shutting down",
		},
		{
			name:       "other errors fall through to the service mapping",
			err:        services.ErrNotFound,
			expectCode: http.StatusNotFound,
			expectMsg:  "resource not found",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			he := mapProcessError(tt.err)
			assert.IsType(t, &echo.HTTPError{}, he)
			assert.Equal(t, tt.expectCode, he.Code)
			assert.Contains(t, he.Error(), tt.expectMsg)
		})
	}
}

func TestProcessHandlers_AppIDValidation(t *testing.T) {
	s := &Server{}

	tests := []struct {
		name    string
		handler func(*echo.Context) error
	}{
		{name: "start", handler: s.startProcessHandler},
		{name: "stop", handler: s.stopProcessHandler},
		{name: "status", handler: s.processStatusHandler},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/process/", nil)
			rec := httptest.NewRecorder()
			c := authedContext(e, req, rec)

			err := tt.handler(c)
			if assert.Error(t, err) {
				he, ok := err.(*echo.HTTPError)
				if assert.True(t, ok, "expected echo.HTTPError") {
					assert.Equal(t, http.StatusBadRequest, he.Code)
					assert.Contains(t, he.Message, "appId must be a positive integer")
				}
			}
		})
	}
}

func TestPreviewURL(t *testing.T) {
	assert.Equal(t, "/preview/42", previewURL(42))
}
