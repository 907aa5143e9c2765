package services

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/webforge-labs/webforge/pkg/models"
	testdb "github.com/webforge-labs/webforge/test/database"
)

// newTestDB returns a pool bound to a migrated, test-private schema.
func newTestDB(t *testing.T) *sql.DB {
	return testdb.NewTestClient(t).DB()
}

// registerTestUser creates an account for seeding other tests.
func registerTestUser(t *testing.T, users *UserService, email string) *models.User {
	t.Helper()
	user, err := users.Register(context.Background(), models.RegisterRequest{
		Email:    email,
		Name:     "Test User",
		Password: "hunter2hunter2",
	})
	require.NoError(t, err)
	return user
}

// createTestApp creates an app (and its initial chat) for seeding other tests.
func createTestApp(t *testing.T, apps *AppService, userID int64, name string) (*models.App, *models.Chat) {
	t.Helper()
	app, chat, err := apps.Create(context.Background(), userID, models.CreateAppRequest{Name: name})
	require.NoError(t, err)
	return app, chat
}
