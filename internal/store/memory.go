package store

import (
	"context"
	"sync"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
)

// MemoryStore keeps plans in a map. Contents are lost on restart.
type MemoryStore struct {
	mu    sync.RWMutex
	plans map[string]Plan
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		plans: make(map[string]Plan),
	}
}

// PutPlan stores a copy of p.
//
// NOTE: This implements the PlanStore interface.
func (m *MemoryStore) PutPlan(_ context.Context, p Plan) error {
	if p.Key == "" {
		return ErrEmptyKey
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	m.plans[p.Key] = clonePlan(p)

	return nil
}

// GetPlan returns a copy of the live plan under key. An expired plan is
// deleted on the way out.
//
// NOTE: This implements the PlanStore interface.
func (m *MemoryStore) GetPlan(_ context.Context, key string,
	now time.Time) (fn.Option[Plan], error) {

	m.mu.RLock()
	p, ok := m.plans[key]
	m.mu.RUnlock()

	if !ok {
		return fn.None[Plan](), nil
	}

	if p.Expired(now) {
		m.mu.Lock()
		// A newer write may have landed since the read lock was
		// released.
		if cur, ok := m.plans[key]; ok && cur.Expired(now) {
			delete(m.plans, key)
		}
		m.mu.Unlock()

		return fn.None[Plan](), nil
	}

	return fn.Some(clonePlan(p)), nil
}

// DeletePlan removes key if present.
//
// NOTE: This implements the PlanStore interface.
func (m *MemoryStore) DeletePlan(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.plans, key)

	return nil
}

// SweepPlans drops expired plans.
//
// NOTE: This implements the PlanStore interface.
func (m *MemoryStore) SweepPlans(_ context.Context, now time.Time) (int,
	error) {

	m.mu.Lock()
	defer m.mu.Unlock()

	var removed int
	for key, p := range m.plans {
		if p.Expired(now) {
			delete(m.plans, key)
			removed++
		}
	}

	return removed, nil
}

// Len returns the number of stored plans, expired or not.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return len(m.plans)
}

// Close is a no-op.
//
// NOTE: This implements the PlanStore interface.
func (m *MemoryStore) Close() error {
	return nil
}

var _ PlanStore = (*MemoryStore)(nil)
