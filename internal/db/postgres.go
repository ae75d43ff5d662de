package db

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	pgx_migrate "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

const (
	// DefaultPostgresMaxOpenConns bounds the postgres pool.
	DefaultPostgresMaxOpenConns = 10

	// DefaultPostgresConnMaxLifetime recycles pooled connections.
	DefaultPostgresConnMaxLifetime = 30 * time.Minute
)

// PostgresConfig configures the postgres backend.
type PostgresConfig struct {
	// DSN is a postgres connection URL or keyword/value string.
	DSN string

	// MaxOpenConns bounds the connection pool. Zero uses the default.
	MaxOpenConns int

	// SkipMigrations leaves the schema untouched on open.
	SkipMigrations bool
}

// PostgresStore is a postgres backed BaseDB using pgx through database/sql.
type PostgresStore struct {
	*BaseDB

	cfg *PostgresConfig
	log *slog.Logger
}

// NewPostgresStore connects, pings and migrates the database.
func NewPostgresStore(ctx context.Context, cfg *PostgresConfig,
	log *slog.Logger) (*PostgresStore, error) {

	if cfg.DSN == "" {
		return nil, fmt.Errorf("postgres DSN is required")
	}

	connCfg, err := pgx.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres DSN: %w", err)
	}

	sqlDB := stdlib.OpenDB(*connCfg)

	maxConns := cfg.MaxOpenConns
	if maxConns <= 0 {
		maxConns = DefaultPostgresMaxOpenConns
	}
	sqlDB.SetMaxOpenConns(maxConns)
	sqlDB.SetMaxIdleConns(maxConns)
	sqlDB.SetConnMaxLifetime(DefaultPostgresConnMaxLifetime)

	pingCtx, cancel := context.WithTimeout(ctx, DefaultStoreTimeout)
	defer cancel()

	if err := sqlDB.PingContext(pingCtx); err != nil {
		sqlDB.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	s := &PostgresStore{
		BaseDB: NewBaseDB(sqlDB, DialectPostgres),
		cfg:    cfg,
		log:    log.With("component", "postgres"),
	}

	if !cfg.SkipMigrations {
		if err := s.ExecuteMigrations(ctx); err != nil {
			sqlDB.Close()
			return nil, fmt.Errorf("error executing migrations: %w",
				err)
		}
	}

	s.log.InfoContext(ctx, "Postgres connected", "host", connCfg.Host,
		"database", connCfg.Database)

	return s, nil
}

// ExecuteMigrations brings the schema up to date, or to the version set
// with WithTargetVersion.
func (s *PostgresStore) ExecuteMigrations(ctx context.Context,
	optFuncs ...MigrateOpt) error {

	opts := &migrateOptions{latest: LatestSchemaVersion}
	for _, optFunc := range optFuncs {
		optFunc(opts)
	}

	driver, err := pgx_migrate.WithInstance(s.DB, &pgx_migrate.Config{})
	if err != nil {
		return fmt.Errorf("error creating postgres migration: %w", err)
	}

	_, err = migratePlans(ctx, DialectPostgres, driver, opts, s.log)

	return err
}
