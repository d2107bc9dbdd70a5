package persistence

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// newMockDatabase creates a Database instance with a mocked SQL connection
func newMockDatabase(t *testing.T) (*Database, sqlmock.Sqlmock, *sql.DB) {
	mockDB, mock, err := sqlmock.New()
	require.NoError(t, err)

	dialector := postgres.New(postgres.Config{
		Conn:       mockDB,
		DriverName: "postgres",
	})

	cfg := newGormConfig()
	cfg.PrepareStmt = false
	gormDB, err := gorm.Open(dialector, cfg)
	require.NoError(t, err)

	return &Database{DB: gormDB}, mock, mockDB
}

func TestNewGormConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		cfg := newGormConfig()
		assert.True(t, cfg.TranslateError)
		assert.True(t, cfg.SkipDefaultTransaction)
		assert.True(t, cfg.PrepareStmt)
		assert.NotNil(t, cfg.Logger)
	})

	t.Run("custom logger", func(t *testing.T) {
		custom := logger.Discard
		cfg := newGormConfig(WithLogger(custom))
		assert.Equal(t, custom, cfg.Logger)
	})
}

func TestDatabase_RegisterPoolMetrics(t *testing.T) {
	db, _, mockDB := newMockDatabase(t)
	defer mockDB.Close()

	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	require.NoError(t, db.RegisterPoolMetrics(provider.Meter("test")))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	names := make([]string, 0, 4)
	for _, m := range rm.ScopeMetrics[0].Metrics {
		names = append(names, m.Name)
	}
	assert.ElementsMatch(t, []string{
		"db.pool.open_connections",
		"db.pool.in_use",
		"db.pool.wait_count",
		"db.pool.wait_duration",
	}, names)
}

func TestDatabase_Ping(t *testing.T) {
	mockDB, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	require.NoError(t, err)
	defer mockDB.Close()

	// GORM may ping during Open, so expect it first
	mock.ExpectPing()
	gormDB, err := gorm.Open(postgres.New(postgres.Config{Conn: mockDB, DriverName: "postgres"}), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	db := &Database{DB: gormDB}

	mock.ExpectPing()
	assert.NoError(t, db.Ping(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestDatabase_Close(t *testing.T) {
	db, mock, _ := newMockDatabase(t)

	mock.ExpectClose()

	assert.NoError(t, db.Close())
	assert.NoError(t, mock.ExpectationsWereMet())
}
