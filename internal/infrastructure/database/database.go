package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

const (
	// dirPermissions is the permission mode for the database directory.
	dirPermissions = 0750

	// filePermissions is the permission mode for the database file.
	filePermissions = 0600

	// openPingTimeout bounds the connectivity check in Open.
	openPingTimeout = 5 * time.Second

	// connMaxIdleTime is how long idle connections are kept open.
	connMaxIdleTime = 30 * time.Minute
)

// DB wraps the sql.DB handle for the Hearth state store and adds
// migrations, health checks, and lifecycle management on top.
type DB struct {
	*sql.DB
	path string
}

// Config contains database settings, mapped from the database section
// of config.yaml.
type Config struct {
	// Path is the filesystem path to the SQLite database file. The
	// parent directory is created on first open.
	Path string

	// WALMode enables Write-Ahead Logging so dashboard reads do not
	// block control writes.
	WALMode bool

	// BusyTimeout is the maximum time to wait on a locked database,
	// in seconds.
	BusyTimeout int
}

// Open opens (creating if necessary) the SQLite database described by cfg
// and verifies connectivity before returning.
func Open(cfg Config) (*DB, error) {
	if err := os.MkdirAll(filepath.Dir(cfg.Path), dirPermissions); err != nil {
		return nil, fmt.Errorf("creating database directory: %w", err)
	}

	// Connection string pragmas, see github.com/mattn/go-sqlite3 docs.
	pragmas := []string{
		fmt.Sprintf("_busy_timeout=%d", cfg.BusyTimeout*1000),
		"_foreign_keys=on",
	}
	if cfg.WALMode {
		pragmas = append(pragmas, "_journal_mode=WAL", "_synchronous=NORMAL")
	}

	sqlDB, err := sql.Open("sqlite3", fmt.Sprintf("file:%s?%s", cfg.Path, strings.Join(pragmas, "&")))
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Single writer; SQLite serializes writes anyway and a second
	// connection just turns contention into SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	sqlDB.SetConnMaxLifetime(time.Hour)
	sqlDB.SetConnMaxIdleTime(connMaxIdleTime)

	db := &DB{DB: sqlDB, path: cfg.Path}

	ctx, cancel := context.WithTimeout(context.Background(), openPingTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		sqlDB.Close() //nolint:errcheck // Best effort cleanup on error path
		return nil, fmt.Errorf("verifying database connection: %w", err)
	}

	// The file may not exist until the first write, so ignore the error.
	_ = os.Chmod(cfg.Path, filePermissions)

	return db, nil
}

// Close closes the database connection. Safe to call on a zero DB.
func (db *DB) Close() error {
	if db.DB == nil {
		return nil
	}
	if err := db.DB.Close(); err != nil {
		return fmt.Errorf("closing database: %w", err)
	}
	return nil
}

// Path returns the filesystem path to the database file.
func (db *DB) Path() string {
	return db.path
}

// HealthCheck runs a trivial query to confirm the connection is alive.
func (db *DB) HealthCheck(ctx context.Context) error {
	var result int
	if err := db.QueryRowContext(ctx, "SELECT 1").Scan(&result); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Stats returns connection pool statistics.
func (db *DB) Stats() sql.DBStats {
	return db.DB.Stats()
}

// BeginTx starts a transaction, wrapping the error for context.
func (db *DB) BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error) {
	tx, err := db.DB.BeginTx(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("starting transaction: %w", err)
	}
	return tx, nil
}
