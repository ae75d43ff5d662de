package db

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newTestSqlite opens a migrated database in a temp dir.
func newTestSqlite(t *testing.T) *SqliteStore {
	t.Helper()

	store, err := NewSqliteStore(&SqliteConfig{
		DatabaseFileName: filepath.Join(t.TempDir(), "test.db"),
	}, testLogger())
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})

	return store
}

func TestDialectRebind(t *testing.T) {
	q := "SELECT a FROM t WHERE b = ? AND c <= ?"

	require.Equal(t, q, DialectSQLite.rebind(q))
	require.Equal(t,
		"SELECT a FROM t WHERE b = $1 AND c <= $2",
		DialectPostgres.rebind(q),
	)
	require.Equal(t, "postgres", DialectPostgres.String())
	require.Equal(t, "sqlite", DialectSQLite.String())
}

func TestPlanQueriesRoundTrip(t *testing.T) {
	store := newTestSqlite(t)
	ctx := context.Background()

	row := PlanRow{
		PlanKey:   "user@example.com",
		Email:     "user@example.com",
		Record:    `{"email":"user@example.com"}`,
		CreatedAt: 100,
		ExpiresAt: 200,
	}
	require.NoError(t, store.UpsertPlan(ctx, row))

	got, err := store.GetPlan(ctx, row.PlanKey)
	require.NoError(t, err)
	require.Equal(t, row, got)

	// Upserting the same key replaces the row.
	row.Record = `{"email":"user@example.com","v":2}`
	row.ExpiresAt = 300
	require.NoError(t, store.UpsertPlan(ctx, row))

	got, err = store.GetPlan(ctx, row.PlanKey)
	require.NoError(t, err)
	require.Equal(t, row, got)

	n, err := store.CountPlans(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, n)

	deleted, err := store.DeletePlan(ctx, row.PlanKey)
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)

	deleted, err = store.DeletePlan(ctx, row.PlanKey)
	require.NoError(t, err)
	require.Zero(t, deleted)

	_, err = store.GetPlan(ctx, row.PlanKey)
	require.ErrorIs(t, err, sql.ErrNoRows)
}

func TestDeleteExpiredPlans(t *testing.T) {
	store := newTestSqlite(t)
	ctx := context.Background()

	for i, expiry := range []int64{10, 20, 30} {
		require.NoError(t, store.UpsertPlan(ctx, PlanRow{
			PlanKey:   string(rune('a' + i)),
			Record:    "{}",
			ExpiresAt: expiry,
		}))
	}

	n, err := store.DeleteExpiredPlans(ctx, 20)
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	count, err := store.CountPlans(ctx)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
}

func TestTransactionExecutorRollsBack(t *testing.T) {
	store := newTestSqlite(t)
	ctx := context.Background()

	exec := NewTransactionExecutor(
		store.BaseDB, store.TxQueries(), testLogger(),
	)

	errBoom := errors.New("boom")
	err := exec.ExecTx(ctx, WriteTxOption(), func(q *Queries) error {
		err := q.UpsertPlan(ctx, PlanRow{
			PlanKey: "k", Record: "{}", ExpiresAt: 1,
		})
		require.NoError(t, err)

		return errBoom
	})
	require.ErrorIs(t, err, errBoom)

	_, err = store.GetPlan(ctx, "k")
	require.ErrorIs(t, err, sql.ErrNoRows)

	err = exec.ExecTx(ctx, WriteTxOption(), func(q *Queries) error {
		return q.UpsertPlan(ctx, PlanRow{
			PlanKey: "k", Record: "{}", ExpiresAt: 1,
		})
	})
	require.NoError(t, err)

	_, err = store.GetPlan(ctx, "k")
	require.NoError(t, err)
}

func TestTransactionExecutorGivesUpOnConflicts(t *testing.T) {
	store := newTestSqlite(t)

	exec := NewTransactionExecutor(
		store.BaseDB, store.TxQueries(), testLogger(),
		WithTxRetries(3), WithTxRetryDelay(1),
	)

	var calls int
	err := exec.ExecTx(context.Background(), WriteTxOption(),
		func(*Queries) error {
			calls++
			return &ErrSerializationError{
				DBError: errors.New("busy"),
			}
		},
	)
	require.ErrorIs(t, err, ErrRetriesExceeded)
	require.Equal(t, 3, calls)
}

func TestRandRetryDelayBounds(t *testing.T) {
	opts := defaultTxExecutorOptions()

	for attempt := 0; attempt < 40; attempt++ {
		d := opts.randRetryDelay(attempt)
		require.Positive(t, d)
		require.LessOrEqual(t, d, opts.maxRetryDelay)
	}
}

func TestMigrationsReopenAndDowngrade(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	cfg := &SqliteConfig{DatabaseFileName: path}

	store, err := NewSqliteStore(cfg, testLogger())
	require.NoError(t, err)
	require.NoError(t, store.Close())

	// Reopening an up to date database is a no-op.
	store, err = NewSqliteStore(cfg, testLogger())
	require.NoError(t, err)

	// A binary that only knows version 0 must refuse the database.
	err = store.ExecuteMigrations(
		context.Background(), WithLatestVersion(0),
	)
	require.ErrorIs(t, err, ErrMigrationDowngrade)
	require.NoError(t, store.Close())
}

func TestMigrateDownAndBackUp(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "plans.db")

	store, err := NewSqliteStore(&SqliteConfig{DatabaseFileName: path},
		testLogger())
	require.NoError(t, err)
	defer store.Close()

	// Dropping to version 0 removes the plans table.
	require.NoError(t, store.ExecuteMigrations(ctx, WithTargetVersion(0)))
	_, err = store.GetPlan(ctx, "k")
	require.True(t, IsSchemaError(MapSQLError(err)))

	// A fresh schema is created without a backup.
	require.NoError(t, store.ExecuteMigrations(ctx))
	backups, err := filepath.Glob(path + ".*.backup")
	require.NoError(t, err)
	require.Empty(t, backups)

	// Upgrading an existing schema copies the database first.
	err = store.ExecuteMigrations(ctx, WithLatestVersion(2))
	require.NoError(t, err)

	backups, err = filepath.Glob(path + ".*.backup")
	require.NoError(t, err)
	require.Len(t, backups, 1)
}

func TestMapSQLError(t *testing.T) {
	require.NoError(t, MapSQLError(nil))

	plain := errors.New("plain")
	require.Equal(t, plain, MapSQLError(plain))

	require.True(t, IsSerializationOrDeadlockError(
		&ErrDeadlockError{DBError: plain},
	))
	require.True(t, IsSchemaError(&ErrSchemaError{DBError: plain}))
}

func TestSchemaErrorOnMissingTable(t *testing.T) {
	store, err := NewSqliteStore(&SqliteConfig{
		DatabaseFileName: filepath.Join(t.TempDir(), "bare.db"),
		SkipMigrations:   true,
	}, testLogger())
	require.NoError(t, err)
	defer store.Close()

	_, err = store.GetPlan(context.Background(), "k")
	require.True(t, IsSchemaError(MapSQLError(err)))
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("LEARNHUB_TEST_POSTGRES")
	if dsn == "" {
		t.Skip("LEARNHUB_TEST_POSTGRES not set")
	}

	ctx := context.Background()
	store, err := NewPostgresStore(ctx, &PostgresConfig{DSN: dsn},
		testLogger())
	require.NoError(t, err)
	defer store.Close()

	_, err = store.DeleteExpiredPlans(ctx, 1<<62)
	require.NoError(t, err)

	row := PlanRow{
		PlanKey: "pg@example.com", Record: "{}", ExpiresAt: 1 << 61,
	}
	require.NoError(t, store.UpsertPlan(ctx, row))

	got, err := store.GetPlan(ctx, row.PlanKey)
	require.NoError(t, err)
	require.Equal(t, row, got)
}
