package persistence

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/erp/returns/internal/domain/returns"
	"github.com/erp/returns/internal/infrastructure/config"
	"github.com/erp/returns/tests/testutil"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newMockDatabase(t *testing.T, opts ...testutil.MockDBOption) (*Database, *testutil.MockDB) {
	m := testutil.NewMockDB(t, opts...)
	return &Database{DB: m.DB, sql: m.Conn}, m
}

func TestDatabase_Ping(t *testing.T) {
	t.Run("reaches the connection", func(t *testing.T) {
		db, m := newMockDatabase(t, testutil.WithPingMonitoring())
		m.Mock.ExpectPing()

		require.NoError(t, db.Ping(context.Background()))
		m.ExpectationsWereMet(t)
	})

	t.Run("surfaces a dead connection", func(t *testing.T) {
		db, m := newMockDatabase(t, testutil.WithPingMonitoring())
		m.Mock.ExpectPing().WillReturnError(errors.New("connection refused"))

		assert.ErrorContains(t, db.Ping(context.Background()), "connection refused")
	})
}

func TestDatabase_Close(t *testing.T) {
	db, m := newMockDatabase(t)
	m.Mock.ExpectClose()

	require.NoError(t, db.Close())
	m.ExpectationsWereMet(t)
}

func TestDatabase_Transaction(t *testing.T) {
	id := uuid.New()
	expire := func(tx *gorm.DB) error {
		return tx.Exec(`UPDATE "return_requests" SET "status" = ? WHERE "id" = ?`, returns.StatusAutoRefunded, id).Error
	}

	t.Run("commits", func(t *testing.T) {
		db, m := newMockDatabase(t)
		m.Mock.ExpectBegin()
		m.Mock.ExpectExec(`UPDATE "return_requests" SET "status"`).
			WithArgs(returns.StatusAutoRefunded, id).
			WillReturnResult(sqlmock.NewResult(0, 1))
		m.Mock.ExpectCommit()

		require.NoError(t, db.Transaction(context.Background(), expire))
		m.ExpectationsWereMet(t)
	})

	t.Run("rolls back when the callback fails", func(t *testing.T) {
		db, m := newMockDatabase(t)
		m.Mock.ExpectBegin()
		m.Mock.ExpectRollback()

		err := db.Transaction(context.Background(), func(*gorm.DB) error { return returns.ErrInvalidTransition })

		assert.ErrorIs(t, err, returns.ErrInvalidTransition)
		m.ExpectationsWereMet(t)
	})

	t.Run("rolls back when a statement fails", func(t *testing.T) {
		db, m := newMockDatabase(t)
		m.Mock.ExpectBegin()
		m.Mock.ExpectExec(`UPDATE "return_requests"`).WillReturnError(errors.New("deadlock detected"))
		m.Mock.ExpectRollback()

		assert.ErrorContains(t, db.Transaction(context.Background(), expire), "deadlock detected")
		m.ExpectationsWereMet(t)
	})
}

func TestDatabase_Stats(t *testing.T) {
	db, _ := newMockDatabase(t)

	stats := db.Stats()

	assert.Zero(t, stats.InUse)
	assert.GreaterOrEqual(t, stats.OpenConnections, stats.Idle)
}

func TestOpenDialector(t *testing.T) {
	t.Run("postgres by default", func(t *testing.T) {
		d, err := openDialector(&config.DatabaseConfig{Host: "localhost", Port: 5432, DBName: "returns"})
		require.NoError(t, err)
		assert.Equal(t, "postgres", d.Name())
	})

	t.Run("sqlite", func(t *testing.T) {
		d, err := openDialector(&config.DatabaseConfig{Driver: "sqlite", SQLitePath: ":memory:"})
		require.NoError(t, err)
		assert.Equal(t, "sqlite", d.Name())
	})

	t.Run("unknown driver", func(t *testing.T) {
		_, err := openDialector(&config.DatabaseConfig{Driver: "oracle"})
		assert.ErrorContains(t, err, `unsupported database driver "oracle"`)
	})
}

func TestNewDatabase_UnknownDriver(t *testing.T) {
	_, err := NewDatabase(&config.DatabaseConfig{Driver: "oracle"})
	assert.Error(t, err)
}

func TestNewDatabase_SQLite(t *testing.T) {
	db, err := NewDatabase(&config.DatabaseConfig{Driver: "sqlite", SQLitePath: ":memory:"})
	require.NoError(t, err)
	defer db.Close()

	require.NoError(t, db.Ping(context.Background()))
	assert.Equal(t, 1, db.Stats().MaxOpenConnections)
}
