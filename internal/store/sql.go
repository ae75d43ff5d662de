package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/learnhub/internal/db"
)

// SQLBackend is an open sqlite or postgres database.
type SQLBackend interface {
	db.BatchedQuerier

	// TxQueries binds the backend's queries to a transaction.
	TxQueries() db.QueryCreator[*db.Queries]

	// Close closes the pool.
	Close() error
}

// SQLStore is a PlanStore on top of a SQL backend. All access goes through
// the transaction executor so sqlite busy errors and postgres serialization
// failures are retried.
type SQLStore struct {
	backend SQLBackend
	txExec  *db.TransactionExecutor[*db.Queries]
	log     *slog.Logger
}

// NewSQLStore wraps backend.
func NewSQLStore(backend SQLBackend, log *slog.Logger) *SQLStore {
	return &SQLStore{
		backend: backend,
		txExec: db.NewTransactionExecutor(
			backend, backend.TxQueries(), log,
		),
		log: log,
	}
}

// PutPlan upserts p.
//
// NOTE: This implements the PlanStore interface.
func (s *SQLStore) PutPlan(ctx context.Context, p Plan) error {
	if p.Key == "" {
		return ErrEmptyKey
	}

	row := db.UpsertPlanParams{
		PlanKey:   p.Key,
		Email:     p.Email,
		Record:    string(p.Record),
		CreatedAt: p.CreatedAt.UnixMilli(),
		ExpiresAt: p.ExpiresAt.UnixMilli(),
	}

	err := s.txExec.ExecTx(ctx, db.WriteTxOption(), func(q *db.Queries) error {
		return q.UpsertPlan(ctx, row)
	})
	if err != nil {
		return fmt.Errorf("failed to store plan: %w", err)
	}

	return nil
}

// GetPlan reads the plan under key. An expired row is reported absent and
// removed.
//
// NOTE: This implements the PlanStore interface.
func (s *SQLStore) GetPlan(ctx context.Context, key string,
	now time.Time) (fn.Option[Plan], error) {

	var (
		row   db.PlanRow
		found bool
	)
	err := s.txExec.ExecTx(ctx, db.ReadTxOption(), func(q *db.Queries) error {
		var err error
		row, err = q.GetPlan(ctx, key)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil

		case err != nil:
			return err
		}

		found = true

		return nil
	})
	if err != nil {
		return fn.None[Plan](), fmt.Errorf("failed to load plan: %w",
			err)
	}

	if !found {
		return fn.None[Plan](), nil
	}

	p := planFromRow(row)
	if p.Expired(now) {
		s.deleteExpired(ctx, key, now)
		return fn.None[Plan](), nil
	}

	return fn.Some(p), nil
}

// deleteExpired removes key only if it is still expired at now, so a
// concurrent rewrite of the key survives. Failures are logged; the next sweep
// retries.
func (s *SQLStore) deleteExpired(ctx context.Context, key string,
	now time.Time) {

	err := s.txExec.ExecTx(ctx, db.WriteTxOption(), func(q *db.Queries) error {
		row, err := q.GetPlan(ctx, key)
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil

		case err != nil:
			return err
		}

		if !planFromRow(row).Expired(now) {
			return nil
		}

		_, err = q.DeletePlan(ctx, key)
		return err
	})
	if err != nil {
		s.log.WarnContext(ctx, "Failed to drop expired plan", "key", key,
			"err", err)
	}
}

// DeletePlan removes key if present.
//
// NOTE: This implements the PlanStore interface.
func (s *SQLStore) DeletePlan(ctx context.Context, key string) error {
	err := s.txExec.ExecTx(ctx, db.WriteTxOption(), func(q *db.Queries) error {
		_, err := q.DeletePlan(ctx, key)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete plan: %w", err)
	}

	return nil
}

// SweepPlans deletes expired rows.
//
// NOTE: This implements the PlanStore interface.
func (s *SQLStore) SweepPlans(ctx context.Context, now time.Time) (int,
	error) {

	var removed int64
	err := s.txExec.ExecTx(ctx, db.WriteTxOption(), func(q *db.Queries) error {
		var err error
		removed, err = q.DeleteExpiredPlans(ctx, now.UnixMilli())
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to sweep plans: %w", err)
	}

	return int(removed), nil
}

// Close closes the backend.
//
// NOTE: This implements the PlanStore interface.
func (s *SQLStore) Close() error {
	return s.backend.Close()
}

// planFromRow converts a database row into a Plan.
func planFromRow(row db.PlanRow) Plan {
	return Plan{
		Key:       row.PlanKey,
		Email:     row.Email,
		Record:    []byte(row.Record),
		CreatedAt: time.UnixMilli(row.CreatedAt),
		ExpiresAt: time.UnixMilli(row.ExpiresAt),
	}
}

var _ PlanStore = (*SQLStore)(nil)
