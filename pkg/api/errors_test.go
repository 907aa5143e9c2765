package api

import (
	"fmt"
	"net/http"
	"testing"

	echo "github.com/labstack/echo/v5"
	"github.com/stretchr/testify/assert"

	"github.com/webforge-labs/webforge/pkg/services"
	"github.com/webforge-labs/webforge/pkg/workspace"
)

func TestMapServiceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		expectCode int
		expectMsg  string
	}{
		{
			name:       "validation error maps to 400",
			err:        services.NewValidationError("name", "missing field"),
			expectCode: http.StatusBadRequest,
			expectMsg:  "missing field",
		},
		{
			name:       "not found maps to 404",
			err:        fmt.Errorf("wrapped: %w", services.ErrNotFound),
			expectCode: http.StatusNotFound,
			expectMsg:  "resource not found",
		},
		{
			name:       "email taken maps to 409",
			err:        fmt.Errorf("wrapped: %w", services.ErrEmailTaken),
			expectCode: http.StatusConflict,
			expectMsg:  "email is already registered",
		},
		{
			name:       "invalid credentials maps to 401",
			err:        services.ErrInvalidCredentials,
			expectCode: http.StatusUnauthorized,
			expectMsg:  "invalid email or password",
		},
		{
			name:       "unknown error maps to 500",
			err:        fmt.Errorf("something unexpected happened"),
			expectCode: http.StatusInternalServerError,
			expectMsg:  "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			he := mapServiceError(tt.err)
			assert.IsType(t, &echo.HTTPError{}, he)
			assert.Equal(t, tt.expectCode, he.Code)
			assert.Contains(t, he.Error(), tt.expectMsg)
		})
	}
}

func TestMapWorkspaceError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		expectCode int
		expectMsg  string
	}{
		{
			name:       "forbidden path maps to 403",
			err:        fmt.Errorf("wrapped: %w", workspace.ErrForbiddenPath),
			expectCode: http.StatusForbidden,
			expectMsg:  "path escapes workspace root",
		},
		{
			name:       "invalid path maps to 400",
			err:        workspace.ErrInvalidPath,
			expectCode: http.StatusBadRequest,
			expectMsg:  "invalid path",
		},
		{
			name:       "missing file maps to 404",
			err:        fmt.Errorf("wrapped: %w", workspace.ErrNotFound),
			expectCode: http.StatusNotFound,
			expectMsg:  "file not found",
		},
		{
			name:       "unknown error maps to 500",
			err:        fmt.Errorf("disk on fire"),
			expectCode: http.StatusInternalServerError,
			expectMsg:  "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			he := mapWorkspaceError(tt.err)
			assert.IsType(t, &echo.HTTPError{}, he)
			assert.Equal(t, tt.expectCode, he.Code)
			assert.Contains(t, he.Error(), tt.expectMsg)
		})
	}
}
