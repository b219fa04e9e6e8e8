package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/rs/zerolog"
	_ "modernc.org/sqlite" // pure-Go SQLite driver
)

// Supported SQL dialects.
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Database wraps the SQL connection shared by every repository.
// All queries use $N placeholders numbered in order of appearance, which both dialects accept.
type Database struct {
	conn   *sql.DB
	driver string
	logger zerolog.Logger
}

// NewDatabase opens and pings a connection for the given driver.
func NewDatabase(driver, dsn string, logger zerolog.Logger) (*Database, error) {
	switch driver {
	case DriverPostgres, DriverSQLite:
	default:
		return nil, fmt.Errorf("unsupported database driver %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if driver == DriverSQLite {
		// one writer; also keeps ":memory:" databases on a single connection
		db.SetMaxOpenConns(1)
		db.SetMaxIdleConns(1)
		db.SetConnMaxLifetime(0)
	} else {
		db.SetMaxOpenConns(20)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(time.Hour)
		db.SetConnMaxIdleTime(10 * time.Minute)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Database{
		conn:   db,
		driver: driver,
		logger: logger.With().Str("component", "store").Logger(),
	}, nil
}

// Close closes the database connection
func (db *Database) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// DB returns the underlying *sql.DB for queries
func (db *Database) DB() *sql.DB {
	return db.conn
}

// Driver returns the dialect name.
func (db *Database) Driver() string {
	return db.driver
}

// WithTx runs fn inside a transaction, committing on success and rolling back otherwise.
func (db *Database) WithTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// RunMigrations applies every embedded migration that has not been recorded yet.
func (db *Database) RunMigrations(ctx context.Context) error {
	db.logger.Info().Msg("running database migrations")

	if err := db.createMigrationsTable(ctx); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}

	names, err := fs.Glob(migrationFiles, "migrations/*.sql")
	if err != nil {
		return fmt.Errorf("listing migrations: %w", err)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := db.runMigration(ctx, name); err != nil {
			return fmt.Errorf("failed to run migration %s: %w", name, err)
		}
	}

	db.logger.Info().Int("migrations", len(names)).Msg("all migrations completed")
	return nil
}

func (db *Database) createMigrationsTable(ctx context.Context) error {
	query := `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version VARCHAR(255) PRIMARY KEY,
			applied_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`
	_, err := db.conn.ExecContext(ctx, query)
	return err
}

func (db *Database) runMigration(ctx context.Context, name string) error {
	var count int
	err := db.conn.QueryRowContext(ctx, "SELECT COUNT(*) FROM schema_migrations WHERE version = $1", name).Scan(&count)
	if err != nil {
		return err
	}
	if count > 0 {
		db.logger.Debug().Str("migration", name).Msg("skipping, already applied")
		return nil
	}

	content, err := migrationFiles.ReadFile(name)
	if err != nil {
		return fmt.Errorf("failed to read migration file: %w", err)
	}

	return db.WithTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, string(content)); err != nil {
			return fmt.Errorf("failed to execute migration: %w", err)
		}
		if _, err := tx.ExecContext(ctx, "INSERT INTO schema_migrations (version) VALUES ($1)", name); err != nil {
			return err
		}
		db.logger.Info().Str("migration", name).Msg("applied")
		return nil
	})
}

// HealthCheck performs a health check on the database
func (db *Database) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	return db.conn.PingContext(ctx)
}
