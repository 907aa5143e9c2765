package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/webforge-labs/webforge/pkg/models"
)

// AppService manages app workspaces. Every user-facing operation is scoped
// by the owning user; lookups for apps owned by someone else answer
// ErrNotFound.
type AppService struct {
	db *sql.DB
}

// NewAppService creates a new AppService.
func NewAppService(db *sql.DB) *AppService {
	return &AppService{db: db}
}

const appColumns = `id, user_id, name, description, favorite, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanApp(row rowScanner) (*models.App, error) {
	app := &models.App{}
	err := row.Scan(&app.ID, &app.UserID, &app.Name, &app.Description,
		&app.Favorite, &app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return app, nil
}

// List returns the user's apps, most recently updated first.
func (s *AppService) List(httpCtx context.Context, userID int64) ([]*models.App, error) {
	ctx, cancel := context.WithTimeout(httpCtx, queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+appColumns+` FROM apps WHERE user_id = $1 ORDER BY updated_at DESC, id DESC`,
		userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list apps: %w", err)
	}
	defer rows.Close()

	apps := []*models.App{}
	for rows.Next() {
		app, err := scanApp(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan app: %w", err)
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

// Create inserts an app together with its first chat in one transaction.
// When prompt is non-empty it is stored as the chat's first user message so
// the client can immediately stream against it.
func (s *AppService) Create(httpCtx context.Context, userID int64, req models.CreateAppRequest) (*models.App, *models.Chat, error) {
	if strings.TrimSpace(req.Name) == "" {
		return nil, nil, NewValidationError("name", "required")
	}

	ctx, cancel := context.WithTimeout(httpCtx, queryTimeout)
	defer cancel()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	app := &models.App{UserID: userID, Name: strings.TrimSpace(req.Name)}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO apps (user_id, name) VALUES ($1, $2)
		 RETURNING `+appColumns,
		userID, app.Name,
	).Scan(&app.ID, &app.UserID, &app.Name, &app.Description,
		&app.Favorite, &app.CreatedAt, &app.UpdatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create app: %w", err)
	}

	chat := &models.Chat{AppID: app.ID, Title: app.Name}
	err = tx.QueryRowContext(ctx,
		`INSERT INTO chats (app_id, title) VALUES ($1, $2)
		 RETURNING id, app_id, title, created_at`,
		app.ID, chat.Title,
	).Scan(&chat.ID, &chat.AppID, &chat.Title, &chat.CreatedAt)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create initial chat: %w", err)
	}

	if strings.TrimSpace(req.Prompt) != "" {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO messages (chat_id, role, content) VALUES ($1, $2, $3)`,
			chat.ID, models.RoleUser, strings.TrimSpace(req.Prompt))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to seed first message: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("failed to commit app creation: %w", err)
	}
	return app, chat, nil
}

// Get returns one of the user's apps.
func (s *AppService) Get(httpCtx context.Context, userID, appID int64) (*models.App, error) {
	ctx, cancel := context.WithTimeout(httpCtx, queryTimeout)
	defer cancel()

	app, err := scanApp(s.db.QueryRowContext(ctx,
		`SELECT `+appColumns+` FROM apps WHERE id = $1 AND user_id = $2`,
		appID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get app: %w", err)
	}
	return app, nil
}

// Update patches the app's name and/or description. Nil fields stay as
// they are.
func (s *AppService) Update(httpCtx context.Context, userID, appID int64, req models.UpdateAppRequest) (*models.App, error) {
	if req.Name == nil && req.Description == nil {
		return nil, NewValidationError("body", "nothing to update")
	}
	if req.Name != nil && strings.TrimSpace(*req.Name) == "" {
		return nil, NewValidationError("name", "cannot be empty")
	}

	ctx, cancel := context.WithTimeout(httpCtx, queryTimeout)
	defer cancel()

	app, err := scanApp(s.db.QueryRowContext(ctx,
		`UPDATE apps SET
			name = COALESCE($3, name),
			description = COALESCE($4, description),
			updated_at = now()
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+appColumns,
		appID, userID, req.Name, req.Description))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to update app: %w", err)
	}
	return app, nil
}

// Delete removes the app row; chats, messages, and versions cascade.
// Workspace files and any running dev server are the caller's concern.
func (s *AppService) Delete(httpCtx context.Context, userID, appID int64) error {
	ctx, cancel := context.WithTimeout(httpCtx, queryTimeout)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		`DELETE FROM apps WHERE id = $1 AND user_id = $2`, appID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete app: %w", err)
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

// ToggleFavorite flips the app's favorite flag and returns the new state.
func (s *AppService) ToggleFavorite(httpCtx context.Context, userID, appID int64) (*models.App, error) {
	ctx, cancel := context.WithTimeout(httpCtx, queryTimeout)
	defer cancel()

	app, err := scanApp(s.db.QueryRowContext(ctx,
		`UPDATE apps SET favorite = NOT favorite, updated_at = now()
		 WHERE id = $1 AND user_id = $2
		 RETURNING `+appColumns,
		appID, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to toggle favorite: %w", err)
	}
	return app, nil
}

// Search returns the user's apps whose name or description matches the
// query, case-insensitively.
func (s *AppService) Search(httpCtx context.Context, userID int64, query string) ([]*models.App, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, NewValidationError("q", "required")
	}

	ctx, cancel := context.WithTimeout(httpCtx, queryTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT `+appColumns+` FROM apps
		 WHERE user_id = $1 AND (name ILIKE '%' || $2 || '%' OR description ILIKE '%' || $2 || '%')
		 ORDER BY updated_at DESC, id DESC`,
		userID, query)
	if err != nil {
		return nil, fmt.Errorf("failed to search apps: %w", err)
	}
	defer rows.Close()

	apps := []*models.App{}
	for rows.Next() {
		app, err := scanApp(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan app: %w", err)
		}
		apps = append(apps, app)
	}
	return apps, rows.Err()
}

// TouchUpdatedAt bumps the app's updated_at. The generation pipeline calls
// this after a run that changed the workspace; ownership was checked when
// the stream started.
func (s *AppService) TouchUpdatedAt(httpCtx context.Context, appID int64) error {
	ctx, cancel := context.WithTimeout(httpCtx, queryTimeout)
	defer cancel()

	if _, err := s.db.ExecContext(ctx,
		`UPDATE apps SET updated_at = now() WHERE id = $1`, appID); err != nil {
		return fmt.Errorf("failed to touch app: %w", err)
	}
	return nil
}

// ListVersions returns the app's snapshot labels, newest first.
func (s *AppService) ListVersions(httpCtx context.Context, userID, appID int64) ([]*models.AppVersion, error) {
	ctx, cancel := context.WithTimeout(httpCtx, queryTimeout)
	defer cancel()

	if err := s.ensureOwned(ctx, userID, appID); err != nil {
		return nil, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, app_id, label, created_at FROM app_versions
		 WHERE app_id = $1 ORDER BY created_at DESC, id DESC`,
		appID)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	versions := []*models.AppVersion{}
	for rows.Next() {
		v := &models.AppVersion{}
		if err := rows.Scan(&v.ID, &v.AppID, &v.Label, &v.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// RecordVersion inserts a snapshot label after a successful generation.
func (s *AppService) RecordVersion(httpCtx context.Context, appID int64, label string) (*models.AppVersion, error) {
	ctx, cancel := context.WithTimeout(httpCtx, queryTimeout)
	defer cancel()

	v := &models.AppVersion{AppID: appID, Label: label}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO app_versions (app_id, label) VALUES ($1, $2)
		 RETURNING id, created_at`,
		appID, label,
	).Scan(&v.ID, &v.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record version: %w", err)
	}
	return v, nil
}

// ensureOwned verifies the app exists and belongs to the user.
func (s *AppService) ensureOwned(ctx context.Context, userID, appID int64) error {
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
