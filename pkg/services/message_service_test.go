package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/webforge-labs/webforge/pkg/models"
)

func TestMessageService_Add(t *testing.T) {
	db := newTestDB(t)
	users := NewUserService(db)
	apps := NewAppService(db)
	messages := NewMessageService(db)
	ctx := context.Background()

	owner := registerTestUser(t, users, "owner@example.com")
	stranger := registerTestUser(t, users, "stranger@example.com")
	_, chat := createTestApp(t, apps, owner.ID, "messaged")

	t.Run("adds a user message", func(t *testing.T) {
		msg, err := messages.Add(ctx, owner.ID, chat.ID, models.AddMessageRequest{
			Role:    models.RoleUser,
			Content: "make the button blue",
		})
		require.NoError(t, err)
		assert.NotZero(t, msg.ID)
		assert.Equal(t, chat.ID, msg.ChatID)
		assert.Equal(t, models.RoleUser, msg.Role)
		assert.Nil(t, msg.RequestID)
	})

	t.Run("validates role and content", func(t *testing.T) {
		tests := []struct {
			name string
			req  models.AddMessageRequest
		}{
			{name: "unknown role", req: models.AddMessageRequest{Role: "system", Content: "x"}},
			{name: "empty role", req: models.AddMessageRequest{Content: "x"}},
			{name: "empty content", req: models.AddMessageRequest{Role: models.RoleUser, Content: "  "}},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				_, err := messages.Add(ctx, owner.ID, chat.ID, tt.req)
				require.Error(t, err)
				assert.True(t, IsValidationError(err))
			})
		}
	})

	t.Run("cross-user add is ErrNotFound", func(t *testing.T) {
		_, err := messages.Add(ctx, stranger.ID, chat.ID, models.AddMessageRequest{
			Role: models.RoleUser, Content: "not my chat",
		})
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMessageService_List(t *testing.T) {
	db := newTestDB(t)
	users := NewUserService(db)
	apps := NewAppService(db)
	messages := NewMessageService(db)
	ctx := context.Background()

	owner := registerTestUser(t, users, "owner@example.com")
	stranger := registerTestUser(t, users, "stranger@example.com")
	_, chat := createTestApp(t, apps, owner.ID, "history")

	for _, content := range []string{"first", "second", "third"} {
		_, err := messages.Add(ctx, owner.ID, chat.ID, models.AddMessageRequest{
			Role: models.RoleUser, Content: content,
		})
		require.NoError(t, err)
	}

	t.Run("returns messages in conversation order", func(t *testing.T) {
		list, err := messages.List(ctx, owner.ID, chat.ID)
		require.NoError(t, err)
		require.Len(t, list, 3)
		assert.Equal(t, "first", list[0].Content)
		assert.Equal(t, "second", list[1].Content)
		assert.Equal(t, "third", list[2].Content)
	})

	t.Run("cross-user list is ErrNotFound", func(t *testing.T) {
		_, err := messages.List(ctx, stranger.ID, chat.ID)
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("missing chat is ErrNotFound", func(t *testing.T) {
		_, err := messages.List(ctx, owner.ID, 999999)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestMessageService_Append(t *testing.T) {
	db := newTestDB(t)
	users := NewUserService(db)
	apps := NewAppService(db)
	chats := NewChatService(db)
	messages := NewMessageService(db)
	ctx := context.Background()

	owner := registerTestUser(t, users, "owner@example.com")
	_, chat := createTestApp(t, apps, owner.ID, "pipeline")

	t.Run("records the stream id on assistant messages", func(t *testing.T) {
		streamID := "stream-abc-123"
		msg, err := messages.Append(ctx, chat.ID, models.RoleAssistant, "generated reply", &streamID)
		require.NoError(t, err)
		require.NotNil(t, msg.RequestID)
		assert.Equal(t, streamID, *msg.RequestID)

		list, err := messages.List(ctx, owner.ID, chat.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
		require.NotNil(t, list[0].RequestID)
		assert.Equal(t, streamID, *list[0].RequestID)
	})

	t.Run("append to a deleted chat is ErrNotFound", func(t *testing.T) {
		require.NoError(t, chats.Delete(ctx, owner.ID, chat.ID))

		_, err := messages.Append(ctx, chat.ID, models.RoleAssistant, "too late", nil)
		assert.ErrorIs(t, err, ErrNotFound)
	})
}
