// Package testutil provides shared fixtures for the returns service tests:
// a sqlmock-backed gorm handle, deterministic ids, actors, request builders
// and fakes for the courier and the Settlement Notifier.
package testutil

import (
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// MockDB is a postgres-dialect gorm handle whose statements go to sqlmock
type MockDB struct {
	DB   *gorm.DB
	Mock sqlmock.Sqlmock
	Conn *sql.DB
}

type mockDBOptions struct {
	monitorPings bool
	gorm         gorm.Config
}

// MockDBOption configures NewMockDB
type MockDBOption func(*mockDBOptions)

// WithPingMonitoring makes Ping calls consume ExpectPing expectations. The
// ping gorm issues while opening is expected already.
func WithPingMonitoring() MockDBOption {
	return func(o *mockDBOptions) {
		o.monitorPings = true
	}
}

// WithDefaultTransaction wraps single writes in BEGIN/COMMIT the way gorm
// does unless SkipDefaultTransaction is set
func WithDefaultTransaction() MockDBOption {
	return func(o *mockDBOptions) {
		o.gorm.SkipDefaultTransaction = false
	}
}

// NewMockDB opens a gorm handle on sqlmock. The connection is closed when
// the test ends.
func NewMockDB(t *testing.T, opts ...MockDBOption) *MockDB {
	t.Helper()

	o := mockDBOptions{gorm: gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
	}}
	for _, opt := range opts {
		opt(&o)
	}

	conn, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(o.monitorPings))
	require.NoError(t, err, "open sqlmock")
	t.Cleanup(func() { _ = conn.Close() })
	if o.monitorPings {
		mock.ExpectPing()
	}

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: conn, DriverName: "postgres"}), &o.gorm)
	require.NoError(t, err, "open gorm on sqlmock")

	return &MockDB{DB: db, Mock: mock, Conn: conn}
}

// ExpectationsWereMet fails the test on any unmet or unexpected statement
func (m *MockDB) ExpectationsWereMet(t *testing.T) {
	t.Helper()
	require.NoError(t, m.Mock.ExpectationsWereMet(), "unmet database expectations")
}

var idNamespace = uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8")

// NewTestUUID derives a stable id from seed
func NewTestUUID(seed string) uuid.UUID {
	return uuid.NewSHA1(idNamespace, []byte(seed))
}

func TestStoreID() uuid.UUID    { return NewTestUUID("test-store") }
func TestCustomerID() uuid.UUID { return NewTestUUID("test-customer") }
