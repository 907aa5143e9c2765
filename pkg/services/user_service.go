// Package services contains the business logic layer over the database.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/webforge-labs/webforge/pkg/auth"
	"github.com/webforge-labs/webforge/pkg/models"
)

const queryTimeout = 5 * time.Second

// Postgres error codes we branch on.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// UserService manages accounts and their provider settings.
type UserService struct {
	db *sql.DB
}

// NewUserService creates a new UserService.
func NewUserService(db *sql.DB) *UserService {
	return &UserService{db: db}
}

// Register creates an account and returns it. The password is stored as a
// bcrypt hash only.
func (s *UserService) Register(httpCtx context.Context, req models.RegisterRequest) (*models.User, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" || !strings.Contains(email, "@") {
		return nil, NewValidationError("email", "a valid email is required")
	}
	if strings.TrimSpace(req.Name) == "" {
		return nil, NewValidationError("name", "required")
	}
	if len(req.Password) < 8 {
		return nil, NewValidationError("password", "must be at least 8 characters")
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	ctx, cancel := context.WithTimeout(httpCtx, queryTimeout)
	defer cancel()

	user := &models.User{Email: email, Name: strings.TrimSpace(req.Name), PasswordHash: hash}
	err = s.db.QueryRowContext(ctx,
		`INSERT INTO users (email, name, password_hash) VALUES ($1, $2, $3)
		 RETURNING id, created_at`,
		user.Email, user.Name, user.PasswordHash,
	).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return nil, ErrEmailTaken
		}
		return nil, fmt.Errorf("failed to create user: %w", err)
	}
	return user, nil
}

// Authenticate verifies a login and returns the account. Wrong email and
// wrong password are indistinguishable to the caller.
func (s *UserService) Authenticate(httpCtx context.Context, email, password string) (*models.User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" || password == "" {
		return nil, ErrInvalidCredentials
	}

	ctx, cancel := context.WithTimeout(httpCtx, queryTimeout)
	defer cancel()

	user := &models.User{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, password_hash, created_at FROM users WHERE email = $1`,
		email,
	).Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("failed to look up user: %w", err)
	}

	if !auth.CheckPassword(user.PasswordHash, password) {
		return nil, ErrInvalidCredentials
	}
	return user, nil
}

// GetByID returns one account.
func (s *UserService) GetByID(httpCtx context.Context, id int64) (*models.User, error) {
	ctx, cancel := context.WithTimeout(httpCtx, queryTimeout)
	defer cancel()

	user := &models.User{}
	err := s.db.QueryRowContext(ctx,
		`SELECT id, email, name, password_hash, created_at FROM users WHERE id = $1`,
		id,
	).Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get user: %w", err)
	}
	return user, nil
}

// GetSettings returns the user's provider selection, falling back to the
// defaults when none has been saved yet.
func (s *UserService) GetSettings(httpCtx context.Context, userID int64) (*models.UserSettings, error) {
	ctx, cancel := context.WithTimeout(httpCtx, queryTimeout)
	defer cancel()

	settings := &models.UserSettings{}
	err := s.db.QueryRowContext(ctx,
		`SELECT user_id, provider, model, updated_at FROM user_settings WHERE user_id = $1`,
		userID,
	).Scan(&settings.UserID, &settings.Provider, &settings.Model, &settings.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &models.UserSettings{UserID: userID, Provider: "anthropic"}, nil
		}
		return nil, fmt.Errorf("failed to get settings: %w", err)
	}
	return settings, nil
}

// UpdateSettings upserts the user's provider selection.
func (s *UserService) UpdateSettings(httpCtx context.Context, userID int64, req models.UpdateSettingsRequest) (*models.UserSettings, error) {
	switch req.Provider {
	case "anthropic", "openai", "google":
	default:
		return nil, NewValidationError("provider", "must be anthropic, openai, or google")
	}

	ctx, cancel := context.WithTimeout(httpCtx, queryTimeout)
	defer cancel()

	settings := &models.UserSettings{}
	err := s.db.QueryRowContext(ctx,
		`INSERT INTO user_settings (user_id, provider, model, updated_at)
		 VALUES ($1, $2, $3, now())
		 ON CONFLICT (user_id)
		 DO UPDATE SET provider = EXCLUDED.provider, model = EXCLUDED.model, updated_at = now()
		 RETURNING user_id, provider, model, updated_at`,
		userID, req.Provider, req.Model,
	).Scan(&settings.UserID, &settings.Provider, &settings.Model, &settings.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update settings: %w", err)
	}
	return settings, nil
}
