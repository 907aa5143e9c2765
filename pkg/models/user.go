// Package models contains persisted row types and request/response models.
package models

import "time"

// User is a registered account. PasswordHash never crosses the API boundary.
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// RegisterRequest is the body for POST /auth/register.
type RegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// LoginRequest is the body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// UserSettings holds the per-user model selection consumed by the
// generation pipeline. Provider defaults to anthropic; an empty model
// selects the provider's default.
type UserSettings struct {
	UserID    int64     `json:"userId"`
	Provider  string    `json:"provider"`
	Model     string    `json:"model"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UpdateSettingsRequest is the body for PUT /settings.
type UpdateSettingsRequest struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
}
