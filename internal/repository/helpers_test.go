package repository

import (
	"context"
	"testing"

	"ignitia/internal/config"
	"ignitia/internal/infrastructure/database"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

const testWelcomeBonus = 2000

// newTestDB opens an isolated in-memory database with the default catalog.
// A single connection keeps sqlite from reporting lock contention under the
// concurrent tests; transactions simply queue for it.
func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := database.Open(&config.DatabaseConfig{
		Driver:       "sqlite",
		DSN:          "file:repo_" + uuid.NewString() + "?mode=memory&cache=shared",
		MaxOpenConns: 1,
		LogLevel:     "silent",
	})
	require.NoError(t, err)
	require.NoError(t, database.Seed(context.Background(), db))
	t.Cleanup(func() { _ = database.Close(db) })
	return db
}
