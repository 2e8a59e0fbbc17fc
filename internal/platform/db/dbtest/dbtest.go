// Package dbtest opens throwaway in-memory databases for tests.
package dbtest

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/fatflowers/billsync/internal/models"
)

var seq atomic.Int64

// Open returns a migrated in-memory sqlite database private to t.
func Open(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:memdb_%d_%d?mode=memory&cache=shared", time.Now().UnixNano(), seq.Add(1))
	gdb, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, gdb.AutoMigrate(
		&models.Profile{},
		&models.Subscription{},
		&models.SubscriptionLog{},
		&models.WebhookEventLog{},
	))
	return gdb
}

// SeedProfile inserts a profile on the free plan.
func SeedProfile(t *testing.T, gdb *gorm.DB, userID string) {
	t.Helper()
	require.NoError(t, gdb.Create(&models.Profile{ID: userID, SubscriptionPlan: "free"}).Error)
}
