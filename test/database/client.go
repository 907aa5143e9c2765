package database

import (
	"testing"

	"github.com/webforge-labs/webforge/pkg/database"
	"github.com/webforge-labs/webforge/test/util"
)

// NewTestClient creates a test database client.
// In CI (when CI_DATABASE_URL is set): connects to external PostgreSQL service container.
// In local dev: spins up a testcontainer with PostgreSQL.
// The schema and connection are automatically cleaned up when the test ends.
func NewTestClient(t *testing.T) *database.Client {
	// Use shared test database setup; it creates a private schema and applies
	// the embedded migrations.
	db := util.SetupTestDatabase(t)

	// Wrap in our client type
	// Note: cleanup (schema drop and connection close) is handled by SetupTestDatabase
	return database.NewClientFromDB(db)
}
