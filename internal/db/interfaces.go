package db

import (
	"context"
	"database/sql"
	"time"
)

// DefaultStoreTimeout bounds a single store call.
var DefaultStoreTimeout = time.Second * 10

const (
	// DefaultNumTxRetries is how often a transaction that failed with a
	// serialization or deadlock error is attempted again.
	DefaultNumTxRetries = 10

	// DefaultInitialRetryDelay is the base retry delay. The first wait is
	// drawn from 50%-150% of it and doubles per attempt up to
	// DefaultMaxRetryDelay, so writers that collided do not collide again
	// in lockstep.
	DefaultInitialRetryDelay = time.Millisecond * 40

	// DefaultMaxRetryDelay caps the retry delay.
	DefaultMaxRetryDelay = time.Second * 3
)

// TxOptions selects between read and write transactions.
type TxOptions interface {
	// ReadOnly returns true if the transaction should be read-only.
	ReadOnly() bool
}

// BaseTxOptions is the TxOptions implementation used by this package.
type BaseTxOptions struct {
	// readOnly governs if a read-only transaction is needed or not.
	readOnly bool
}

// ReadOnly returns true if the transaction should be read only.
//
// NOTE: This implements the TxOptions interface.
func (a *BaseTxOptions) ReadOnly() bool {
	return a.readOnly
}

// ReadTxOption returns a TxOptions that indicates a read-only transaction.
func ReadTxOption() *BaseTxOptions {
	return &BaseTxOptions{
		readOnly: true,
	}
}

// WriteTxOption returns a TxOptions that indicates a write transaction.
func WriteTxOption() *BaseTxOptions {
	return &BaseTxOptions{
		readOnly: false,
	}
}

// BatchedTx runs several queries of type Q in one atomic transaction.
type BatchedTx[Q any] interface {
	// ExecTx runs txBody in a single transaction, retrying on
	// serialization failures.
	ExecTx(ctx context.Context, txOptions TxOptions,
		txBody func(Q) error) error
}

// QueryCreator binds a query set to an open transaction.
type QueryCreator[Q any] func(*sql.Tx) Q

// BatchedQuerier can run queries directly and open transactions.
type BatchedQuerier interface {
	// Querier allows non-transactional reads straight off the pool.
	Querier

	// BeginTx creates a new database transaction given the set of
	// transaction options.
	BeginTx(ctx context.Context, options TxOptions) (*sql.Tx, error)
}

// BaseDB is a connection pool plus the queries bound to it, shared by the
// sqlite and postgres backends.
type BaseDB struct {
	*sql.DB

	*Queries

	// Dialect is the placeholder flavour of the pool.
	Dialect Dialect
}

// NewBaseDB wraps an open pool.
func NewBaseDB(db *sql.DB, dialect Dialect) *BaseDB {
	return &BaseDB{
		DB:      db,
		Queries: New(db, dialect),
		Dialect: dialect,
	}
}

// BeginTx maps TxOptions onto the sql package's options.
func (s *BaseDB) BeginTx(ctx context.Context, opts TxOptions) (*sql.Tx, error) {
	sqlOptions := sql.TxOptions{
		ReadOnly: opts.ReadOnly(),
	}

	return s.DB.BeginTx(ctx, &sqlOptions)
}

// TxQueries returns the QueryCreator that binds this backend's queries to a
// transaction.
func (s *BaseDB) TxQueries() QueryCreator[*Queries] {
	return func(tx *sql.Tx) *Queries {
		return s.Queries.WithTx(tx)
	}
}

var _ BatchedQuerier = (*BaseDB)(nil)
