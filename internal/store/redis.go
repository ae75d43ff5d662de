package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/redis/go-redis/v9"
)

// DefaultRedisPrefix namespaces plan keys in a shared redis.
const DefaultRedisPrefix = "learnhub:plan:"

// redisPlan is the JSON envelope stored per key.
type redisPlan struct {
	Key       string          `json:"key"`
	Email     string          `json:"email"`
	Record    json.RawMessage `json:"record"`
	CreatedAt time.Time       `json:"created_at"`
	ExpiresAt time.Time       `json:"expires_at"`
}

// RedisStore keeps plans in redis with a key TTL matching the plan expiry,
// so expired plans disappear without sweeping.
type RedisStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisStore wraps an existing client.
func NewRedisStore(client redis.UniversalClient, prefix string) *RedisStore {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}

	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) key(k string) string {
	return r.prefix + k
}

// PutPlan writes p with a TTL up to its expiry. A plan that is already
// expired replaces any previous value by deleting it.
//
// NOTE: This implements the PlanStore interface.
func (r *RedisStore) PutPlan(ctx context.Context, p Plan) error {
	if p.Key == "" {
		return ErrEmptyKey
	}

	ttl := time.Until(p.ExpiresAt)
	if ttl <= 0 {
		return r.DeletePlan(ctx, p.Key)
	}

	data, err := json.Marshal(redisPlan{
		Key:       p.Key,
		Email:     p.Email,
		Record:    p.Record,
		CreatedAt: p.CreatedAt,
		ExpiresAt: p.ExpiresAt,
	})
	if err != nil {
		return fmt.Errorf("failed to encode plan: %w", err)
	}

	if err := r.client.Set(ctx, r.key(p.Key), data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to store plan: %w", err)
	}

	return nil
}

// GetPlan loads the plan under key.
//
// NOTE: This implements the PlanStore interface.
func (r *RedisStore) GetPlan(ctx context.Context, key string,
	now time.Time) (fn.Option[Plan], error) {

	data, err := r.client.Get(ctx, r.key(key)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return fn.None[Plan](), nil

	case err != nil:
		return fn.None[Plan](), fmt.Errorf("failed to load plan: %w",
			err)
	}

	var rp redisPlan
	if err := json.Unmarshal(data, &rp); err != nil {
		return fn.None[Plan](), fmt.Errorf("failed to decode plan: %w",
			err)
	}

	p := Plan(rp)
	if p.Expired(now) {
		return fn.None[Plan](), nil
	}

	return fn.Some(p), nil
}

// DeletePlan removes key.
//
// NOTE: This implements the PlanStore interface.
func (r *RedisStore) DeletePlan(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.key(key)).Err(); err != nil {
		return fmt.Errorf("failed to delete plan: %w", err)
	}

	return nil
}

// SweepPlans is a no-op; redis expires keys itself.
//
// NOTE: This implements the PlanStore interface.
func (r *RedisStore) SweepPlans(context.Context, time.Time) (int, error) {
	return 0, nil
}

// Close closes the client.
//
// NOTE: This implements the PlanStore interface.
func (r *RedisStore) Close() error {
	return r.client.Close()
}

var _ PlanStore = (*RedisStore)(nil)
