package store

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/roasbeef/learnhub/internal/db"
)

// Backend names a PlanStore implementation.
type Backend string

const (
	// BackendMemory keeps plans in process.
	BackendMemory Backend = "memory"

	// BackendSqlite persists plans in a local sqlite file.
	BackendSqlite Backend = "sqlite"

	// BackendPostgres persists plans in postgres.
	BackendPostgres Backend = "postgres"

	// BackendRedis stores plans in redis with native expiry.
	BackendRedis Backend = "redis"
)

// Config selects and configures the plan store backend.
type Config struct {
	// Backend is one of memory, sqlite, postgres or redis.
	Backend Backend `mapstructure:"backend"`

	// SqlitePath is the sqlite database file. Empty uses
	// db.DefaultDBPath.
	SqlitePath string `mapstructure:"sqlite_path"`

	// PostgresDSN is the postgres connection string.
	PostgresDSN string `mapstructure:"postgres_dsn"`

	// RedisURL is a redis:// URL.
	RedisURL string `mapstructure:"redis_url"`

	// RedisPrefix namespaces plan keys in redis.
	RedisPrefix string `mapstructure:"redis_prefix"`

	// StrictBackend makes Open fail instead of falling back to memory
	// when the backend cannot be reached.
	StrictBackend bool `mapstructure:"strict_backend"`
}

// DefaultConfig returns an in-memory configuration.
func DefaultConfig() Config {
	return Config{
		Backend:     BackendMemory,
		RedisPrefix: DefaultRedisPrefix,
	}
}

// Open builds the configured store. Unless StrictBackend is set, a backend
// that fails to open is logged and replaced with a MemoryStore so the
// service stays up without persistence.
func Open(ctx context.Context, cfg Config, log *slog.Logger) (PlanStore,
	error) {

	log = log.With("component", "store")

	s, err := openBackend(ctx, cfg, log)
	if err == nil {
		log.InfoContext(ctx, "Plan store ready", "backend", cfg.Backend)
		return s, nil
	}

	if cfg.StrictBackend {
		return nil, err
	}

	log.WarnContext(ctx, "Plan store unavailable, using memory",
		"backend", cfg.Backend, "err", err)

	return NewMemoryStore(), nil
}

// openBackend opens exactly the configured backend.
func openBackend(ctx context.Context, cfg Config, log *slog.Logger) (
	PlanStore, error) {

	switch cfg.Backend {
	case "", BackendMemory:
		return NewMemoryStore(), nil

	case BackendSqlite:
		path := cfg.SqlitePath
		if path == "" {
			var err error
			path, err = db.DefaultDBPath()
			if err != nil {
				return nil, err
			}
		}

		backend, err := db.NewSqliteStore(&db.SqliteConfig{
			DatabaseFileName: path,
		}, log)
		if err != nil {
			return nil, err
		}

		return NewSQLStore(backend, log), nil

	case BackendPostgres:
		backend, err := db.NewPostgresStore(ctx, &db.PostgresConfig{
			DSN: cfg.PostgresDSN,
		}, log)
		if err != nil {
			return nil, err
		}

		return NewSQLStore(backend, log), nil

	case BackendRedis:
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}

		client := redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, db.DefaultStoreTimeout)
		defer cancel()

		if err := client.Ping(pingCtx).Err(); err != nil {
			client.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}

		return NewRedisStore(client, cfg.RedisPrefix), nil

	default:
		return nil, fmt.Errorf("unknown plan store backend %q",
			cfg.Backend)
	}
}
