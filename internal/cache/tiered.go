package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrMiss is returned by a Remote when the key is not present.
var ErrMiss = errors.New("cache miss")

// Remote is a shared second-level cache tier.
type Remote interface {
	// Get returns the raw bytes stored under key and their remaining
	// lifetime, or ErrMiss. A non-positive lifetime means unknown.
	Get(ctx context.Context, key string) ([]byte, time.Duration, error)

	// Set stores data under key with the given TTL.
	Set(ctx context.Context, key string, data []byte,
		ttl time.Duration) error

	// Del removes key.
	Del(ctx context.Context, key string) error
}

// Stats is a snapshot of cache counters.
type Stats struct {
	Hits    int64 `json:"hits"`
	Misses  int64 `json:"misses"`
	L2Hits  int64 `json:"l2_hits"`
	Entries int   `json:"entries"`
	Remote  bool  `json:"remote"`
}

// Tiered is an in-process Cache optionally backed by a Remote tier. Values
// are JSON encoded in the remote tier so several processes can share them.
// Remote failures degrade to misses and are only logged.
type Tiered[V any] struct {
	l1     *Cache[V]
	remote Remote
	prefix string
	ttl    time.Duration
	log    *slog.Logger

	hits   atomic.Int64
	misses atomic.Int64
	l2Hits atomic.Int64
}

// NewTiered creates a tiered cache. remote may be nil for an L1-only cache.
// defaultTTL is used when repopulating L1 from a remote hit whose remaining
// TTL is unknown.
func NewTiered[V any](l1 *Cache[V], remote Remote, prefix string,
	defaultTTL time.Duration, log *slog.Logger) *Tiered[V] {

	return &Tiered[V]{
		l1:     l1,
		remote: remote,
		prefix: prefix,
		ttl:    defaultTTL,
		log:    log.With("component", "cache", "prefix", prefix),
	}
}

// Get looks up key in L1 and then in the remote tier. A remote hit
// repopulates L1 for the entry's remaining lifetime, so L1 never outlives
// the remote copy.
func (t *Tiered[V]) Get(ctx context.Context, key string) (V, bool) {
	if v, ok := t.l1.Get(key); ok {
		t.hits.Add(1)
		return v, true
	}

	var zero V
	if t.remote == nil {
		t.misses.Add(1)
		return zero, false
	}

	data, remaining, err := t.remote.Get(ctx, t.prefix+key)
	switch {
	case errors.Is(err, ErrMiss):
		t.misses.Add(1)
		return zero, false

	case err != nil:
		t.log.WarnContext(ctx, "Remote cache get failed", "key", key,
			"err", err)
		t.misses.Add(1)

		return zero, false
	}

	var v V
	if err := json.Unmarshal(data, &v); err != nil {
		t.log.WarnContext(ctx, "Dropping undecodable remote entry",
			"key", key, "err", err)
		_ = t.remote.Del(ctx, t.prefix+key)
		t.misses.Add(1)

		return zero, false
	}

	ttl := t.ttl
	if remaining > 0 {
		ttl = min(remaining, t.ttl)
	}

	t.l1.Set(key, v, ttl)
	t.hits.Add(1)
	t.l2Hits.Add(1)

	return v, true
}

// Set stores value in L1 and, when configured, in the remote tier.
func (t *Tiered[V]) Set(ctx context.Context, key string, value V,
	ttl time.Duration) {

	t.l1.Set(key, value, ttl)

	if t.remote == nil {
		return
	}

	data, err := json.Marshal(value)
	if err != nil {
		t.log.WarnContext(ctx, "Unable to encode cache value", "key", key,
			"err", err)
		return
	}

	if err := t.remote.Set(ctx, t.prefix+key, data, ttl); err != nil {
		t.log.WarnContext(ctx, "Remote cache set failed", "key", key,
			"err", err)
	}
}

// Delete removes key from both tiers.
func (t *Tiered[V]) Delete(ctx context.Context, key string) {
	t.l1.Delete(key)

	if t.remote == nil {
		return
	}

	if err := t.remote.Del(ctx, t.prefix+key); err != nil {
		t.log.WarnContext(ctx, "Remote cache delete failed", "key", key,
			"err", err)
	}
}

// Local returns the in-process tier.
func (t *Tiered[V]) Local() *Cache[V] {
	return t.l1
}

// Stats returns a snapshot of the hit and miss counters.
func (t *Tiered[V]) Stats() Stats {
	return Stats{
		Hits:    t.hits.Load(),
		Misses:  t.misses.Load(),
		L2Hits:  t.l2Hits.Load(),
		Entries: t.l1.Size(),
		Remote:  t.remote != nil,
	}
}

// Fingerprint builds a deterministic key from parts by hashing them.
func Fingerprint(parts ...string) string {
	sum := sha256.Sum256([]byte(strings.Join(parts, "|")))
	return hex.EncodeToString(sum[:16])
}

// RedisRemote adapts a go-redis client to the Remote interface.
type RedisRemote struct {
	client redis.UniversalClient
}

// NewRedisRemote wraps an existing redis client.
func NewRedisRemote(client redis.UniversalClient) *RedisRemote {
	return &RedisRemote{client: client}
}

// DialRedis parses a redis:// URL, connects and pings the server.
func DialRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping %s: %w", opts.Addr, err)
	}

	return client, nil
}

// Get implements Remote. The value and its PTTL are read in one round
// trip.
func (r *RedisRemote) Get(ctx context.Context, key string) ([]byte,
	time.Duration, error) {

	var (
		get  *redis.StringCmd
		pttl *redis.DurationCmd
	)
	_, err := r.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		get = p.Get(ctx, key)
		pttl = p.PTTL(ctx, key)

		return nil
	})
	if get != nil && errors.Is(get.Err(), redis.Nil) {
		return nil, 0, ErrMiss
	}
	if err != nil {
		return nil, 0, err
	}

	data, err := get.Bytes()
	if err != nil {
		return nil, 0, err
	}

	// PTTL reports negative sentinels for keys without an expiry.
	remaining, err := pttl.Result()
	if err != nil || remaining < 0 {
		remaining = 0
	}

	return data, remaining, nil
}

// Set implements Remote.
func (r *RedisRemote) Set(ctx context.Context, key string, data []byte,
	ttl time.Duration) error {

	return r.client.Set(ctx, key, data, ttl).Err()
}

// Del implements Remote.
func (r *RedisRemote) Del(ctx context.Context, key string) error {
	return r.client.Del(ctx, key).Err()
}

var _ Remote = (*RedisRemote)(nil)
