package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webforge-labs/webforge/pkg/auth"
	"github.com/webforge-labs/webforge/pkg/models"
)

func TestUserService_Register(t *testing.T) {
	db := newTestDB(t)
	users := NewUserService(db)
	ctx := context.Background()

	t.Run("creates account successfully", func(t *testing.T) {
		user, err := users.Register(ctx, models.RegisterRequest{
			Email:    "Ada@Example.com",
			Name:     "Ada",
			Password: "correct horse battery",
		})
		require.NoError(t, err)
		assert.NotZero(t, user.ID)
		assert.Equal(t, "ada@example.com", user.Email, "email is stored lowercased")
		assert.Equal(t, "Ada", user.Name)
		assert.NotEqual(t, "correct horse battery", user.PasswordHash)
		assert.True(t, auth.CheckPassword(user.PasswordHash, "correct horse battery"))
		assert.False(t, user.CreatedAt.IsZero())
	})

	t.Run("rejects duplicate email", func(t *testing.T) {
		_, err := users.Register(ctx, models.RegisterRequest{
			Email:    "ADA@example.com",
			Name:     "Ada Again",
			Password: "another password",
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrEmailTaken)
	})

	t.Run("validates required fields", func(t *testing.T) {
		tests := []struct {
			name string
			req  models.RegisterRequest
		}{
			{
				name: "missing email",
				req:  models.RegisterRequest{Name: "X", Password: "long enough pw"},
			},
			{
				name: "email without at sign",
				req:  models.RegisterRequest{Email: "not-an-email", Name: "X", Password: "long enough pw"},
			},
			{
				name: "missing name",
				req:  models.RegisterRequest{Email: "x@example.com", Password: "long enough pw"},
			},
			{
				name: "short password",
				req:  models.RegisterRequest{Email: "x@example.com", Name: "X", Password: "short"},
			},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := users.Register(ctx, tt.req)
				require.Error(t, err)
				assert.True(t, IsValidationError(err))
			})
		}
	})
}

func TestUserService_Authenticate(t *testing.T) {
	db := newTestDB(t)
	users := NewUserService(db)
	ctx := context.Background()

	registered := registerTestUser(t, users, "login@example.com")

	t.Run("accepts correct credentials", func(t *testing.T) {
		user, err := users.Authenticate(ctx, "login@example.com", "hunter2hunter2")
		require.NoError(t, err)
		assert.Equal(t, registered.ID, user.ID)
	})

	t.Run("is case-insensitive on email", func(t *testing.T) {
		user, err := users.Authenticate(ctx, "LOGIN@example.com", "hunter2hunter2")
		require.NoError(t, err)
		assert.Equal(t, registered.ID, user.ID)
	})

	t.Run("rejects wrong password", func(t *testing.T) {
		_, err := users.Authenticate(ctx, "login@example.com", "wrong password")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("rejects unknown email with the same error", func(t *testing.T) {
		_, err := users.Authenticate(ctx, "nobody@example.com", "hunter2hunter2")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("rejects empty credentials", func(t *testing.T) {
		_, err := users.Authenticate(ctx, "", "")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})
}

func TestUserService_GetByID(t *testing.T) {
	db := newTestDB(t)
	users := NewUserService(db)
	ctx := context.Background()

	registered := registerTestUser(t, users, "get@example.com")

	t.Run("returns the account", func(t *testing.T) {
		user, err := users.GetByID(ctx, registered.ID)
		require.NoError(t, err)
		assert.Equal(t, "get@example.com", user.Email)
	})

	t.Run("returns ErrNotFound for missing id", func(t *testing.T) {
		_, err := users.GetByID(ctx, 999999)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestUserService_Settings(t *testing.T) {
	db := newTestDB(t)
	users := NewUserService(db)
	ctx := context.Background()

	user := registerTestUser(t, users, "settings@example.com")

	t.Run("defaults to anthropic before any update", func(t *testing.T) {
		settings, err := users.GetSettings(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "anthropic", settings.Provider)
		assert.Empty(t, settings.Model)
	})

	t.Run("upserts provider and model", func(t *testing.T) {
		settings, err := users.UpdateSettings(ctx, user.ID, models.UpdateSettingsRequest{
			Provider: "openai",
			Model:    "gpt-4o-mini",
		})
		require.NoError(t, err)
		assert.Equal(t, "openai", settings.Provider)
		assert.Equal(t, "gpt-4o-mini", settings.Model)

		// Second update hits the conflict path.
		settings, err = users.UpdateSettings(ctx, user.ID, models.UpdateSettingsRequest{
			Provider: "anthropic",
			Model:    "",
		})
		require.NoError(t, err)
		assert.Equal(t, "anthropic", settings.Provider)
		assert.Empty(t, settings.Model)

		got, err := users.GetSettings(ctx, user.ID)
		require.NoError(t, err)
		assert.Equal(t, "anthropic", got.Provider)
	})

	t.Run("rejects unknown provider", func(t *testing.T) {
		_, err := users.UpdateSettings(ctx, user.ID, models.UpdateSettingsRequest{Provider: "cohere"})
		require.Error(t, err)
		assert.True(t, IsValidationError(err))
	})
}
