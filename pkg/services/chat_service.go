package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/webforge-labs/webforge/pkg/models"
)

// ChatService manages the conversation threads inside an app. Chats are
// reached through their app, so every method re-checks that the app belongs
// to the calling user.
type ChatService struct {
	db *sql.DB
}

// NewChatService creates a new ChatService.
func NewChatService(db *sql.DB) *ChatService {
	return &ChatService{db: db}
}

// ListByApp returns the app's chats, newest first.
func (s *ChatService) ListByApp(httpCtx context.Context, userID, appID int64) ([]*models.Chat, error) {
	ctx, cancel := context.WithTimeout(httpCtx, queryTimeout)
	defer cancel()

	if err := s.ensureAppOwned(ctx, userID, appID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, app_id, title, created_at FROM chats
		 WHERE app_id = $1 ORDER BY created_at DESC, id DESC`,
		appID)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	return collectChats(rows)
}

// Create adds a chat to the app. An empty title falls back to the column
// default.
func (s *ChatService) Create(httpCtx context.Context, userID, appID int64, req models.CreateChatRequest) (*models.Chat, error) {
	ctx, cancel := context.WithTimeout(httpCtx, queryTimeout)
	defer cancel()

	if err := s.ensureAppOwned(ctx, userID, appID); err != nil {
		return nil, err
	}

	title := strings.TrimSpace(req.Title)
	chat := &models.Chat{AppID: appID}

	var row *sql.Row
	if title == "" {
		row = s.db.QueryRowContext(ctx,
			`INSERT INTO chats (app_id) VALUES ($1)
			 RETURNING id, app_id, title, created_at`,
			appID)
	} else {
		row = s.db.QueryRowContext(ctx,
			`INSERT INTO chats (app_id, title) VALUES ($1, $2)
			 RETURNING id, app_id, title, created_at`,
			appID, title)
	}
	if err := row.Scan(&chat.ID, &chat.AppID, &chat.Title, &chat.CreatedAt); err != nil {
		return nil, fmt.Errorf("failed to create chat: %w", err)
	}
	return chat, nil
}

// Search returns the app's chats whose title or message content matches the
// query, case-insensitively. Matching on bodies lets users find a thread by
// what was said in it, not just what it was named.
func (s *ChatService) Search(httpCtx context.Context, userID, appID int64, query string) ([]*models.Chat, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, NewValidationError("q", "required")
	}

	ctx, cancel := context.WithTimeout(httpCtx, queryTimeout)
	defer cancel()

	if err := s.ensureAppOwned(ctx, userID, appID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, app_id, title, created_at FROM chats
		 WHERE app_id = $1 AND (
			title ILIKE '%' || $2 || '%'
			OR EXISTS (
				SELECT 1 FROM messages m
				WHERE m.chat_id = chats.id AND m.content ILIKE '%' || $2 || '%'
			)
		 )
		 ORDER BY created_at DESC, id DESC`,
		appID, query)
	if err != nil {
		return nil, fmt.Errorf("failed to search chats: %w", err)
	}
	defer rows.Close()

	return collectChats(rows)
}

// Get returns one chat, verifying through the apps table that it belongs to
// the user.
func (s *ChatService) Get(httpCtx context.Context, userID, chatID int64) (*models.Chat, error) {
	ctx, cancel := context.WithTimeout(httpCtx, queryTimeout)
	defer cancel()

	chat := &models.Chat{}
	err := s.db.QueryRowContext(ctx,
		`SELECT c.id, c.app_id, c.title, c.created_at
		 FROM chats c JOIN apps a ON a.id = c.app_id
		 WHERE c.id = $1 AND a.user_id = $2`,
		chatID, userID,
	).Scan(&chat.ID, &chat.AppID, &chat.Title, &chat.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get chat: %w", err)
	}
	return chat, nil
}

// Update renames the chat.
func (s *ChatService) Update(httpCtx context.Context, userID, chatID int64, req models.UpdateChatRequest) (*models.Chat, error) {
	title := strings.TrimSpace(req.Title)
	if title == "" {
		return nil, NewValidationError("title", "required")
	}

	ctx, cancel := context.WithTimeout(httpCtx, queryTimeout)
	defer cancel()

	chat := &models.Chat{}
	err := s.db.QueryRowContext(ctx,
		`UPDATE chats c SET title = $3
		 FROM apps a
		 WHERE c.id = $1 AND a.id = c.app_id AND a.user_id = $2
		 RETURNING c.id, c.app_id, c.title, c.created_at`,
		chatID, userID, title,
	).Scan(&chat.ID, &chat.AppID, &chat.Title, &chat.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update chat: %w", err)
	}
	return chat, nil
}

// Delete removes the chat; its messages cascade. Other chats in the app are
// untouched.
func (s *ChatService) Delete(httpCtx context.Context, userID, chatID int64) error {
	ctx, cancel := context.WithTimeout(httpCtx, queryTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM chats c USING apps a
		 WHERE c.id = $1 AND a.id = c.app_id AND a.user_id = $2`,
		chatID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete chat: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *ChatService) ensureAppOwned(ctx context.Context, userID, appID int64) error {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM apps WHERE id = $1 AND user_id = $2)`,
		appID, userID,
	).Scan(&exists)
	if err != nil {
		return fmt.Errorf("failed to check app ownership: %w", err)
	}
	if !exists {
		return ErrNotFound
	}
	return nil
}

func collectChats(rows *sql.Rows) ([]*models.Chat, error) {
	chats := []*models.Chat{}
	for rows.Next() {
		chat := &models.Chat{}
		if err := rows.Scan(&chat.ID, &chat.AppID, &chat.Title, &chat.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}
