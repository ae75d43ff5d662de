package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// ErrEmptyKey is returned when a plan is written or read without a key.
var ErrEmptyKey = errors.New("plan key must not be empty")

// Plan is a stored learning plan. Record is the plan document exactly as the
// exchange serialized it; the store never looks inside it.
type Plan struct {
	// Key is the normalized plan identifier.
	Key string

	// Email is the owner's address, kept alongside the record so backends
	// can index it.
	Email string

	// Record is the JSON plan document.
	Record json.RawMessage

	// CreatedAt is when the plan was written.
	CreatedAt time.Time

	// ExpiresAt is the first instant the plan is no longer served.
	ExpiresAt time.Time
}

// Expired reports whether the plan is past its expiry at now.
func (p Plan) Expired(now time.Time) bool {
	return !now.Before(p.ExpiresAt)
}

// PlanStore persists learning plans keyed by request id or email. Writes to
// an existing key replace it wholesale.
type PlanStore interface {
	// PutPlan inserts or replaces the plan under p.Key.
	PutPlan(ctx context.Context, p Plan) error

	// GetPlan returns the plan under key if it exists and has not expired
	// at now. An expired plan is treated as absent.
	GetPlan(ctx context.Context, key string,
		now time.Time) (fn.Option[Plan], error)

	// DeletePlan removes the plan under key. Deleting a missing key is not
	// an error.
	DeletePlan(ctx context.Context, key string) error

	// SweepPlans drops every plan expired at now and returns how many were
	// removed.
	SweepPlans(ctx context.Context, now time.Time) (int, error)

	// Close releases the backend.
	Close() error
}

// clonePlan deep copies the record bytes so callers cannot alias stored
// state.
func clonePlan(p Plan) Plan {
	p.Record = append(json.RawMessage(nil), p.Record...)
	return p
}
