package db

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	sqlite_migrate "github.com/golang-migrate/migrate/v4/database/sqlite3"
	_ "github.com/mattn/go-sqlite3"
)

// DefaultDBPath returns the default path of the learnhub sqlite database.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}

	return filepath.Join(home, ".learnhub", "learnhub.db"), nil
}

// SqliteConfig configures the sqlite backend.
type SqliteConfig struct {
	// DatabaseFileName is the full path of the database file.
	DatabaseFileName string

	// SkipMigrations leaves the schema untouched on open.
	SkipMigrations bool

	// SkipMigrationDBBackup disables the VACUUM INTO copy taken before an
	// existing database is migrated.
	SkipMigrationDBBackup bool
}

// SqliteStore is a sqlite backed BaseDB.
type SqliteStore struct {
	*BaseDB

	cfg *SqliteConfig
	log *slog.Logger
}

// NewSqliteStore opens the database file, creating it and its directory if
// needed, and migrates it to the latest schema unless told not to.
func NewSqliteStore(cfg *SqliteConfig, log *slog.Logger) (*SqliteStore,
	error) {

	sqlDB, err := OpenSQLite(cfg.DatabaseFileName)
	if err != nil {
		return nil, err
	}

	s := &SqliteStore{
		BaseDB: NewBaseDB(sqlDB, DialectSQLite),
		cfg:    cfg,
		log:    log.With("component", "sqlite"),
	}

	if !cfg.SkipMigrations {
		err := s.ExecuteMigrations(context.Background())
		if err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("error executing migrations: %w",
				err)
		}
	}

	return s, nil
}

// ExecuteMigrations brings the schema up to date, or to the version set
// with WithTargetVersion. An existing database is backed up before it is
// upgraded.
func (s *SqliteStore) ExecuteMigrations(ctx context.Context,
	optFuncs ...MigrateOpt) error {

	opts := &migrateOptions{latest: LatestSchemaVersion}
	if !s.cfg.SkipMigrationDBBackup {
		opts.beforeUpgrade = func(ctx context.Context, _ uint) error {
			_, err := backupSqlite(
				ctx, s.DB, s.cfg.DatabaseFileName, s.log,
			)
			return err
		}
	}
	for _, optFunc := range optFuncs {
		optFunc(opts)
	}

	driver, err := sqlite_migrate.WithInstance(
		s.DB, &sqlite_migrate.Config{},
	)
	if err != nil {
		return fmt.Errorf("error creating sqlite migration: %w", err)
	}

	_, err = migratePlans(ctx, DialectSQLite, driver, opts, s.log)

	return err
}

// OpenSQLite opens a SQLite database connection with WAL mode enabled and
// appropriate pragmas for performance and reliability.
func OpenSQLite(dbPath string) (*sql.DB, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w",
			err)
	}

	dsn := fmt.Sprintf(
		"file:%s?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000",
		dbPath,
	)

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Single writer; sqlite serializes writes anyway.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := configurePragmas(context.Background(), db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to configure database: %w", err)
	}

	return db, nil
}

// configurePragmas applies the pragmas that are not expressible in the DSN.
func configurePragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA synchronous = NORMAL",

		// Negative values are KiB, so 16MB.
		"PRAGMA cache_size = -16384",

		"PRAGMA temp_store = MEMORY",
	}

	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}

	return nil
}
