// Package integration runs the return request store and the refund flow
// against a real PostgreSQL started with testcontainers. The schema comes from
// the embedded migrations, so these tests also cover the partial unique index
// and the compare-and-swap predicates as PostgreSQL evaluates them.
package integration

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/erp/returns/internal/infrastructure/config"
	"github.com/erp/returns/internal/infrastructure/migration"
	"github.com/erp/returns/internal/infrastructure/persistence"
)

const (
	pgImage    = "postgres:16-alpine"
	pgDatabase = "returns_test"
	pgUser     = "returns"
	pgPassword = "returns-test"
)

// TestDB is a migrated PostgreSQL opened through the service's own
// persistence layer
type TestDB struct {
	DB *gorm.DB
	t  *testing.T
}

// NewTestDB starts a container, opens it the way the server does and applies
// every embedded migration. Skipped under -short.
func NewTestDB(t *testing.T) *TestDB {
	t.Helper()
	if testing.Short() {
		t.Skip("integration test needs docker")
	}

	ctx := context.Background()
	container, err := tcpostgres.Run(ctx, pgImage,
		tcpostgres.WithDatabase(pgDatabase),
		tcpostgres.WithUsername(pgUser),
		tcpostgres.WithPassword(pgPassword),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(time.Minute)),
	)
	require.NoError(t, err, "start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(context.Background()); err != nil {
			t.Logf("terminate postgres container: %v", err)
		}
	})

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	database, err := persistence.NewDatabaseWithLogger(&config.DatabaseConfig{
		Driver:          "postgres",
		Host:            host,
		Port:            port.Int(),
		User:            pgUser,
		Password:        pgPassword,
		DBName:          pgDatabase,
		SSLMode:         "disable",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5,
	}, gormlogger.Default.LogMode(testLogLevel()))
	require.NoError(t, err, "open test database")
	t.Cleanup(func() { _ = database.Close() })

	migrator, err := migration.New(database.SQL(), "", zap.NewNop())
	require.NoError(t, err, "create migrator")
	require.NoError(t, migrator.Up(), "apply migrations")

	return &TestDB{DB: database.DB, t: t}
}

// CountRows counts the rows of table matching where
func (tdb *TestDB) CountRows(table, where string, args ...any) int64 {
	tdb.t.Helper()
	var n int64
	require.NoError(tdb.t, tdb.DB.Table(table).Where(where, args...).Count(&n).Error)
	return n
}

// TEST_DB_DEBUG=1 prints every statement
func testLogLevel() gormlogger.LogLevel {
	if os.Getenv("TEST_DB_DEBUG") != "" {
		return gormlogger.Info
	}
	return gormlogger.Silent
}
