package db

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
)

// Dialect selects the placeholder syntax of the backing database.
type Dialect uint8

const (
	// DialectSQLite uses `?` placeholders.
	DialectSQLite Dialect = iota

	// DialectPostgres uses `$n` placeholders.
	DialectPostgres
)

// String returns the dialect name.
func (d Dialect) String() string {
	switch d {
	case DialectPostgres:
		return "postgres"
	default:
		return "sqlite"
	}
}

// rebind rewrites `?` placeholders for the dialect. Queries in this package
// never contain a literal question mark.
func (d Dialect) rebind(query string) string {
	if d != DialectPostgres {
		return query
	}

	var (
		sb strings.Builder
		n  int
	)
	sb.Grow(len(query) + 8)
	for _, r := range query {
		if r != '?' {
			sb.WriteRune(r)
			continue
		}

		n++
		sb.WriteByte('$')
		sb.WriteString(strconv.Itoa(n))
	}

	return sb.String()
}

// DBTX is the subset of *sql.DB and *sql.Tx the queries need.
type DBTX interface {
	ExecContext(ctx context.Context, query string,
		args ...any) (sql.Result, error)

	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// PlanRow is a persisted learning plan. Record holds the plan JSON verbatim;
// the timestamps are unix milliseconds.
type PlanRow struct {
	PlanKey   string
	Email     string
	Record    string
	CreatedAt int64
	ExpiresAt int64
}

// UpsertPlanParams are the arguments to UpsertPlan.
type UpsertPlanParams = PlanRow

// Querier is the set of plan queries understood by every backend.
type Querier interface {
	// UpsertPlan inserts a plan or replaces the one stored under the same
	// key.
	UpsertPlan(ctx context.Context, arg UpsertPlanParams) error

	// GetPlan returns the plan stored under key, or sql.ErrNoRows.
	GetPlan(ctx context.Context, key string) (PlanRow, error)

	// DeletePlan removes the plan under key and returns the rows affected.
	DeletePlan(ctx context.Context, key string) (int64, error)

	// DeleteExpiredPlans removes every plan whose expiry is at or before
	// now.
	DeleteExpiredPlans(ctx context.Context, now int64) (int64, error)

	// CountPlans returns the number of stored plans, expired or not.
	CountPlans(ctx context.Context) (int64, error)
}

const upsertPlan = `
INSERT INTO learning_plans (plan_key, email, record, created_at, expires_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (plan_key) DO UPDATE SET
    email = excluded.email,
    record = excluded.record,
    created_at = excluded.created_at,
    expires_at = excluded.expires_at`

const getPlan = `
SELECT plan_key, email, record, created_at, expires_at
FROM learning_plans
WHERE plan_key = ?`

const deletePlan = `DELETE FROM learning_plans WHERE plan_key = ?`

const deleteExpiredPlans = `DELETE FROM learning_plans WHERE expires_at <= ?`

const countPlans = `SELECT COUNT(*) FROM learning_plans`

// Queries implements Querier over a connection or transaction.
type Queries struct {
	db      DBTX
	dialect Dialect
}

// New creates a Queries bound to db.
func New(db DBTX, dialect Dialect) *Queries {
	return &Queries{db: db, dialect: dialect}
}

// WithTx returns a copy of q bound to tx.
func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx, dialect: q.dialect}
}

// UpsertPlan inserts or replaces a plan.
//
// NOTE: This implements the Querier interface.
func (q *Queries) UpsertPlan(ctx context.Context, arg UpsertPlanParams) error {
	_, err := q.db.ExecContext(
		ctx, q.dialect.rebind(upsertPlan), arg.PlanKey, arg.Email,
		arg.Record, arg.CreatedAt, arg.ExpiresAt,
	)

	return err
}

// GetPlan fetches a plan by key.
//
// NOTE: This implements the Querier interface.
func (q *Queries) GetPlan(ctx context.Context, key string) (PlanRow, error) {
	row := q.db.QueryRowContext(ctx, q.dialect.rebind(getPlan), key)

	var p PlanRow
	err := row.Scan(
		&p.PlanKey, &p.Email, &p.Record, &p.CreatedAt, &p.ExpiresAt,
	)

	return p, err
}

// DeletePlan removes a plan by key.
//
// NOTE: This implements the Querier interface.
func (q *Queries) DeletePlan(ctx context.Context, key string) (int64, error) {
	res, err := q.db.ExecContext(ctx, q.dialect.rebind(deletePlan), key)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

// DeleteExpiredPlans removes plans that expired at or before now.
//
// NOTE: This implements the Querier interface.
func (q *Queries) DeleteExpiredPlans(ctx context.Context,
	now int64) (int64, error) {

	res, err := q.db.ExecContext(
		ctx, q.dialect.rebind(deleteExpiredPlans), now,
	)
	if err != nil {
		return 0, err
	}

	return res.RowsAffected()
}

// CountPlans counts stored plans.
//
// NOTE: This implements the Querier interface.
func (q *Queries) CountPlans(ctx context.Context) (int64, error) {
	var n int64
	err := q.db.QueryRowContext(ctx, countPlans).Scan(&n)

	return n, err
}

var _ Querier = (*Queries)(nil)
