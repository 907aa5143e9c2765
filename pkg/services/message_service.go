package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/webforge-labs/webforge/pkg/models"
)

// MessageService manages the messages inside a chat.
type MessageService struct {
	db *sql.DB
}

// NewMessageService creates a new MessageService.
func NewMessageService(db *sql.DB) *MessageService {
	return &MessageService{db: db}
}

// List returns the chat's messages in conversation order.
func (s *MessageService) List(httpCtx context.Context, userID, chatID int64) ([]*models.Message, error) {
	ctx, cancel := context.WithTimeout(httpCtx, queryTimeout)
	defer cancel()

	if err := s.ensureChatOwned(ctx, userID, chatID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, role, content, request_id, created_at FROM messages
		 WHERE chat_id = $1 ORDER BY created_at ASC, id ASC`,
		chatID)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	messages := []*models.Message{}
	for rows.Next() {
		msg := &models.Message{}
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Role, &msg.Content,
			&msg.RequestID, &msg.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

// Add appends a message on behalf of the user. Only user and assistant
// roles are accepted over the API.
func (s *MessageService) Add(httpCtx context.Context, userID, chatID int64, req models.AddMessageRequest) (*models.Message, error) {
	if req.Role != models.RoleUser && req.Role != models.RoleAssistant {
		return nil, NewValidationError("role", "must be user or assistant")
	}
	if strings.TrimSpace(req.Content) == "" {
		return nil, NewValidationError("content", "required")
	}

	ctx, cancel := context.WithTimeout(httpCtx, queryTimeout)
	defer cancel()

	if err := s.ensureChatOwned(ctx, userID, chatID); err != nil {
		return nil, err
	}

	return s.insert(ctx, chatID, req.Role, req.Content, nil)
}

// Append records a message from the generation pipeline. Ownership was
// checked when the stream started, so only the chat must still exist.
func (s *MessageService) Append(httpCtx context.Context, chatID int64, role, content string, requestID *string) (*models.Message, error) {
	ctx, cancel := context.WithTimeout(httpCtx, queryTimeout)
	defer cancel()

	msg, err := s.insert(ctx, chatID, role, content, requestID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return msg, nil
}

func (s *MessageService) insert(ctx context.Context, chatID int64, role, content string, requestID *string) (*models.Message, error) {
	msg := &models.Message{ChatID: chatID, Role: role, Content: content, RequestID: requestID}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO messages (chat_id, role, content, request_id)
		 VALUES ($1, $2, $3, $4)
		 RETURNING id, created_at`,
		chatID, role, content, requestID,
	).Scan(&msg.ID, &msg.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert message: %w", err)
	}
	return msg, nil
}

func (s *MessageService) ensureChatOwned(ctx context.Context, userID, chatID int64) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM chats c JOIN apps a ON a.id = c.app_id
			WHERE c.id = $1 AND a.user_id = $2
		 )`,
		chatID, userID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check chat ownership: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}
