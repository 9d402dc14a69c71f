// Package database provides relational connections and the server record repository.
package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // PostgreSQL driver
)

const (
	// DefaultMaxOpenConns is the default maximum number of open connections
	DefaultMaxOpenConns = 10
	// DefaultMaxIdleConns is the default maximum number of idle connections
	DefaultMaxIdleConns = 5
	// DefaultConnMaxLifetime is the default maximum connection lifetime
	DefaultConnMaxLifetime = 5 * time.Minute
	// DefaultPingTimeout is the default timeout for ping operations
	DefaultPingTimeout = 5 * time.Second
)

// Supported drivers.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Config holds database configuration.
type Config struct {
	Driver string `env:"DB_DRIVER" yaml:"driver"`
	// URL is a postgres:// connection string. Used when Driver is postgres.
	URL string `env:"DB_URL" yaml:"url"`
	// SQLitePath is a file path or ":memory:". Used when Driver is sqlite.
	SQLitePath string `env:"DB_SQLITE_PATH" yaml:"sqlite_path"`
	// Table receives the upserted records.
	Table string `env:"DB_TABLE" yaml:"table"`
}

var errUnsupportedDriver = errors.New("unsupported database driver")

// TableName returns the configured table, or DefaultTable. SQLite has no
// schemas, so a "public." qualifier is dropped for that driver.
func (c Config) TableName() string {
	table := c.Table
	if table == "" {
		table = DefaultTable
	}
	if c.Driver == DriverSQLite {
		table = strings.TrimPrefix(table, "public.")
	}
	return table
}

// Open connects using the configured driver.
func Open(ctx context.Context, cfg Config) (*sqlx.DB, error) {
	switch cfg.Driver {
	case DriverPostgres, "":
		return NewPostgresConnection(ctx, cfg.URL)
	case DriverSQLite:
		return NewSQLiteConnection(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("%w: %q", errUnsupportedDriver, cfg.Driver)
	}
}

// NewPostgresConnection creates a new PostgreSQL database connection.
func NewPostgresConnection(ctx context.Context, dsn string) (*sqlx.DB, error) {
	db, err := sqlx.Open(DriverPostgres, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(DefaultMaxOpenConns)
	db.SetMaxIdleConns(DefaultMaxIdleConns)
	db.SetConnMaxLifetime(DefaultConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, DefaultPingTimeout)
	defer cancel()

	if pingErr := db.PingContext(pingCtx); pingErr != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", pingErr)
	}

	return db, nil
}
