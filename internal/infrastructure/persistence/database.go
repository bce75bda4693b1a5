package persistence

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/erp/returns/internal/infrastructure/config"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Database is the shared gorm handle plus the pool it runs on
type Database struct {
	DB  *gorm.DB
	sql *sql.DB
}

// NewDatabase opens cfg with gorm logging silenced
func NewDatabase(cfg *config.DatabaseConfig) (*Database, error) {
	return NewDatabaseWithLogger(cfg, logger.Default.LogMode(logger.Silent))
}

// NewDatabaseWithLogger opens cfg, sizes the pool and checks the connection
func NewDatabaseWithLogger(cfg *config.DatabaseConfig, gormLogger logger.Interface) (*Database, error) {
	dialector, err := openDialector(cfg)
	if err != nil {
		return nil, err
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 gormLogger,
		SkipDefaultTransaction: true,
		PrepareStmt:            cfg.Driver != "sqlite",
		TranslateError:         true,
	})
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", driverName(cfg), err)
	}
	d, err := wrap(db)
	if err != nil {
		return nil, err
	}
	d.configurePool(cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := d.Ping(ctx); err != nil {
		_ = d.Close()
		return nil, err
	}
	return d, nil
}

func wrap(db *gorm.DB) (*Database, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap connection pool: %w", err)
	}
	return &Database{DB: db, sql: sqlDB}, nil
}

func (d *Database) configurePool(cfg *config.DatabaseConfig) {
	if cfg.Driver == "sqlite" {
		// one writer at a time; a second connection only earns SQLITE_BUSY on CAS retries
		d.sql.SetMaxOpenConns(1)
	} else {
		d.sql.SetMaxOpenConns(cfg.MaxOpenConns)
		d.sql.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	d.sql.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Minute)
	d.sql.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Minute)
}

func driverName(cfg *config.DatabaseConfig) string {
	if cfg.Driver == "" {
		return "postgres"
	}
	return cfg.Driver
}

func openDialector(cfg *config.DatabaseConfig) (gorm.Dialector, error) {
	switch driverName(cfg) {
	case "postgres":
		return postgres.Open(cfg.DSN()), nil
	case "sqlite":
		return sqlite.Open(cfg.DSN()), nil
	}
	return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
}

// SQL exposes the pool for migrations and pool metrics
func (d *Database) SQL() *sql.DB {
	return d.sql
}

// Ping is the readiness check for the database
func (d *Database) Ping(ctx context.Context) error {
	if err := d.sql.PingContext(ctx); err != nil {
		return fmt.Errorf("ping database: %w", err)
	}
	return nil
}

// Stats snapshots the pool
func (d *Database) Stats() sql.DBStats {
	return d.sql.Stats()
}

// Transaction runs fn in a transaction bound to ctx, rolling back when fn fails
func (d *Database) Transaction(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return d.DB.WithContext(ctx).Transaction(fn)
}

func (d *Database) Close() error {
	return d.sql.Close()
}
