package models

import "time"

// Message roles. Messages are append-only within a chat; ordering is by
// (CreatedAt, ID).
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one turn of a chat conversation. RequestID links an assistant
// message back to the stream that produced it.
type Message struct {
	ID        int64     `json:"id"`
	ChatID    int64     `json:"chatId"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	RequestID *string   `json:"requestId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// AddMessageRequest is the body for POST /chats/:id/messages.
type AddMessageRequest struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}
