// Package testdb opens throwaway SQLite databases with the full schema for tests.
package testdb

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/orris-inc/entitlements/internal/infrastructure/database"
	"github.com/orris-inc/entitlements/internal/infrastructure/persistence/models"
	"github.com/orris-inc/entitlements/internal/shared/config"
)

// New returns an in-memory database private to t, migrated with every model.
func New(t testing.TB) *gorm.DB {
	t.Helper()

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_foreign_keys=1", uuid.NewString())
	gdb, err := database.Open(&config.DatabaseConfig{Driver: "sqlite", Path: dsn})
	require.NoError(t, err)
	require.NoError(t, gdb.AutoMigrate(models.All()...))

	t.Cleanup(func() {
		if sqlDB, err := gdb.DB(); err == nil {
			_ = sqlDB.Close()
		}
	})
	return gdb
}
