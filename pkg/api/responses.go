package api

import (
	"github.com/webforge-labs/webforge/pkg/database"
	"github.com/webforge-labs/webforge/pkg/models"
	"github.com/webforge-labs/webforge/pkg/workspace"
)

// AuthResponse is returned by POST /auth/register and POST /auth/login.
type AuthResponse struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// CreateAppResponse is returned by POST /apps. The initial chat is created
// in the same transaction as the app.
type CreateAppResponse struct {
	App  *models.App  `json:"app"`
	Chat *models.Chat `json:"chat"`
}

// FileContentResponse is returned by GET /files/app/:appId/<path> when the
// path is a regular file.
type FileContentResponse struct {
	Content string `json:"content"`
}

// FileListResponse is returned by directory reads and listings.
type FileListResponse struct {
	Files []workspace.FileInfo `json:"files"`
}

// WriteFileRequest is the body for PUT /files/app/:appId/<path>.
type WriteFileRequest struct {
	Content string `json:"content"`
}

// SuccessResponse acknowledges a mutation with no other payload.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// ProcessStartResponse is returned by POST /process/:appId/start.
type ProcessStartResponse struct {
	Success    bool   `json:"success"`
	Port       int    `json:"port"`
	PreviewURL string `json:"previewUrl"`
}

// ProcessStopResponse is returned by POST /process/:appId/stop. Stopped is
// false when no dev server was running.
type ProcessStopResponse struct {
	Success bool `json:"success"`
	Stopped bool `json:"stopped"`
}

// ProcessStatusResponse is returned by GET /process/:appId/status.
type ProcessStatusResponse struct {
	Running    bool   `json:"running"`
	Port       int    `json:"port,omitempty"`
	PreviewURL string `json:"previewUrl,omitempty"`
	State      string `json:"state,omitempty"`
}

// HealthCheck is one named probe inside HealthResponse.
type HealthCheck struct {
	Status  string `json:"status"`
	Message string `json:"message,omitempty"`
}

// HealthResponse is returned by GET /health.
type HealthResponse struct {
	Status   string                 `json:"status"`
	Checks   map[string]HealthCheck `json:"checks"`
	Database *database.HealthStatus `json:"database,omitempty"`
}
