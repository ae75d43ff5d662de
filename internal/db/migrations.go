package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/source/httpfs"
	"github.com/lightningnetwork/lnd/fn/v2"
)

// LatestSchemaVersion is the newest plans schema shipped in sqlSchemas.
//
// NOTE: Bump this together with every new migration pair.
const LatestSchemaVersion uint = 1

var (
	// ErrMigrationDowngrade is returned when the database was migrated by
	// a newer learnhubd. Stepping it down could drop stored plans.
	ErrMigrationDowngrade = errors.New("database schema is newer than " +
		"this binary")

	// ErrDirtySchema is returned when an earlier migration stopped half
	// way and the schema needs manual repair.
	ErrDirtySchema = errors.New("database schema is dirty")
)

// migrateOptions holds the knobs of a schema migration.
type migrateOptions struct {
	// latest is the newest version this binary understands.
	latest uint

	// target pins the version to move to. None means latest.
	target fn.Option[uint]

	// beforeUpgrade runs when an existing schema is about to move up.
	beforeUpgrade func(ctx context.Context, from uint) error
}

// MigrateOpt adjusts a schema migration.
type MigrateOpt func(*migrateOptions)

// WithLatestVersion overrides LatestSchemaVersion.
func WithLatestVersion(version uint) MigrateOpt {
	return func(o *migrateOptions) {
		o.latest = version
	}
}

// WithTargetVersion migrates up or down to version instead of the latest.
func WithTargetVersion(version uint) MigrateOpt {
	return func(o *migrateOptions) {
		o.target = fn.Some(version)
	}
}

// migrationsPath returns the dialect's directory in sqlSchemas.
func (d Dialect) migrationsPath() string {
	if d == DialectPostgres {
		return postgresMigrationsPath
	}

	return sqliteMigrationsPath
}

// migrateLog routes golang-migrate output to debug logs.
type migrateLog struct {
	log *slog.Logger
}

// Printf logs one migrate line.
//
// NOTE: This implements the migrate.Logger interface.
func (m migrateLog) Printf(format string, v ...any) {
	m.log.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

// Verbose asks for per-step output only when debug logs are kept.
//
// NOTE: This implements the migrate.Logger interface.
func (m migrateLog) Verbose() bool {
	return m.log.Enabled(context.Background(), slog.LevelDebug)
}

// migratePlans moves the plans schema behind driver to the requested
// version and returns the version it ended at.
func migratePlans(ctx context.Context, dialect Dialect,
	driver database.Driver, opts *migrateOptions,
	log *slog.Logger) (uint, error) {

	src, err := httpfs.New(http.FS(sqlSchemas), dialect.migrationsPath())
	if err != nil {
		return 0, fmt.Errorf("open %s migrations: %w", dialect, err)
	}

	mig, err := migrate.NewWithInstance(
		"plans", src, dialect.String(), driver,
	)
	if err != nil {
		return 0, fmt.Errorf("init %s migrations: %w", dialect, err)
	}
	mig.Log = migrateLog{log: log}

	from, err := schemaVersion(mig)
	if err != nil {
		return 0, err
	}
	if from > opts.latest {
		return 0, fmt.Errorf("%w: database at %d, binary knows %d",
			ErrMigrationDowngrade, from, opts.latest)
	}

	target := opts.target.UnwrapOr(opts.latest)
	if from > 0 && from < target && opts.beforeUpgrade != nil {
		if err := opts.beforeUpgrade(ctx, from); err != nil {
			return 0, err
		}
	}

	// Version 0 has no migration file, so it is reached by Down.
	switch {
	case opts.target.IsNone():
		err = mig.Up()

	case target == 0:
		err = mig.Down()

	default:
		err = mig.Migrate(target)
	}
	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return 0, fmt.Errorf("migrate %s schema: %w", dialect, err)
	}

	to, err := schemaVersion(mig)
	if err != nil {
		return 0, err
	}

	if to != from {
		log.InfoContext(ctx, "Plans schema migrated", "dialect", dialect,
			"from", from, "to", to)
	}

	return to, nil
}

// schemaVersion reads the applied version, treating a fresh database as 0.
func schemaVersion(mig *migrate.Migrate) (uint, error) {
	version, dirty, err := mig.Version()
	switch {
	case errors.Is(err, migrate.ErrNilVersion):
		return 0, nil

	case err != nil:
		return 0, fmt.Errorf("read schema version: %w", err)

	case dirty:
		return 0, fmt.Errorf("%w at version %d", ErrDirtySchema, version)
	}

	return version, nil
}

// backupSqlite copies the live database next to itself with VACUUM INTO
// and returns the copy's path.
func backupSqlite(ctx context.Context, sqlDB *sql.DB, dbPath string,
	log *slog.Logger) (string, error) {

	backup := fmt.Sprintf("%s.%d.backup", dbPath, time.Now().UnixNano())

	if _, err := sqlDB.ExecContext(ctx, "VACUUM INTO ?", backup); err != nil {
		return "", fmt.Errorf("back up %s: %w", dbPath, err)
	}

	log.InfoContext(ctx, "Backed up plans database before migration",
		"backup", backup)

	return backup, nil
}
