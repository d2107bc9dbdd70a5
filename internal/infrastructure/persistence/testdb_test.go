package persistence

import (
	"testing"

	"github.com/meterpay/backend/internal/infrastructure/persistence/models"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// setupBillingTestDB opens an in-memory SQLite database with the billing
// tables. A single connection keeps every query on the same memory database.
func setupBillingTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	cfg := newGormConfig()
	cfg.PrepareStmt = false
	db, err := gorm.Open(sqlite.Open(":memory:"), cfg)
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(
		&models.PaymentModel{},
		&models.UsageRecordModel{},
		&models.CreditBalanceModel{},
		&models.CreditGrantModel{},
	))
	return db
}
