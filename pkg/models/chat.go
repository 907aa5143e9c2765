package models

import "time"

// Chat is a conversation attached to an app. Ownership flows through the app.
type Chat struct {
	ID        int64     `json:"id"`
	AppID     int64     `json:"appId"`
	Title     string    `json:"title"`
	CreatedAt time.Time `json:"createdAt"`
}

// CreateChatRequest is the body for POST /chats/app/:appId.
type CreateChatRequest struct {
	Title string `json:"title"`
}

// UpdateChatRequest is the body for PATCH /chats/:id.
type UpdateChatRequest struct {
	Title string `json:"title"`
}
