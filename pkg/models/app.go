package models

import "time"

// App is a user-owned workspace: a directory tree plus its chats and an
// optionally running dev server. The root path is derived from
// (UserID, ID) and never stored or accepted from clients.
type App struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"userId"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Favorite    bool      `json:"favorite"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// AppVersion is a snapshot label recorded after a generation that mutated
// the workspace file tree.
type AppVersion struct {
	ID        int64     `json:"id"`
	AppID     int64     `json:"appId"`
	Label     string    `json:"label"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateAppRequest is the body for POST /apps. Template selects a starter
// file set ("react-vite" when empty); Prompt seeds the initial chat message.
type CreateAppRequest struct {
	Name     string `json:"name"`
	Prompt   string `json:"prompt,omitempty"`
	Template string `json:"template,omitempty"`
}

// UpdateAppRequest is the body for PATCH /apps/:id. Nil fields are left
// unchanged.
type UpdateAppRequest struct {
	Name        *string `json:"name,omitempty"`
	Description *string `json:"description,omitempty"`
}
