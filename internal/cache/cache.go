// Package cache provides the two process-wide mutable stores spec.md §5
// and §9 call out: the used-one-time-token blacklist and the dictionary
// read-through cache. Both are backed by Redis (go-redis/redis/v8, a
// dependency the teacher's go.mod lists but never exercises in its own
// tree) with an in-process map as a front so a Redis outage degrades to
// node-local correctness rather than failing every read, mirroring the
// teacher's sync.RWMutex-guarded in-memory maps (e.g.
// services/automation.Scheduler.triggers).
package cache

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

// Store is the subset of redis.Cmdable this package depends on, so
// tests can substitute an in-memory fake without a live Redis instance.
type Store interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value any, ttl time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value any, ttl time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// NewClient builds a Redis client from a connection URL such as
// redis://localhost:6379/0.
func NewClient(url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return redis.NewClient(opts), nil
}

// Blacklist records used one-time tokens (email verification, password
// reset) for their remaining lifetime so a captured token cannot be
// replayed, per spec.md §4.2.
type Blacklist struct {
	store  Store
	mu     sync.Mutex
	local  map[string]time.Time
	prefix string
}

func NewBlacklist(store Store) *Blacklist {
	return &Blacklist{store: store, local: make(map[string]time.Time), prefix: "ott:used:"}
}

// MarkUsed records token as spent for ttl. It is safe to call twice; the
// second call is a harmless no-op re-assertion.
func (b *Blacklist) MarkUsed(ctx context.Context, token string, ttl time.Duration) error {
	b.mu.Lock()
	b.local[token] = time.Now().Add(ttl)
	b.mu.Unlock()

	if b.store == nil {
		return nil
	}
	return b.store.Set(ctx, b.prefix+token, "1", ttl).Err()
}

// IsUsed reports whether token has already been consumed.
func (b *Blacklist) IsUsed(ctx context.Context, token string) bool {
	b.mu.Lock()
	exp, ok := b.local[token]
	if ok && time.Now().After(exp) {
		delete(b.local, token)
		ok = false
	}
	b.mu.Unlock()
	if ok {
		return true
	}

	if b.store == nil {
		return false
	}
	res, err := b.store.Get(ctx, b.prefix+token).Result()
	if err != nil {
		return false
	}
	return res == "1"
}

// Dictionary is a read-through cache of code → id lookups for statuses,
// roles, types, and channels (spec.md §2 "Dictionary lookup"). The TTL
// here applies only to the copy written to Redis; entries in the
// in-process map never expire and are dropped only by Invalidate.
type Dictionary struct {
	store Store
	mu    sync.RWMutex
	local map[string]string
	ttl   time.Duration
}

func NewDictionary(store Store) *Dictionary {
	return &Dictionary{store: store, local: make(map[string]string), ttl: 10 * time.Minute}
}

func dictKey(table, code string) string { return "dict:" + table + ":" + code }

// Lookup resolves table:code to its id, consulting the in-process map,
// then Redis, then falling back to load (a database query) on a full
// miss; the resolved value is cached at both layers.
func (d *Dictionary) Lookup(ctx context.Context, table, code string, load func(ctx context.Context) (string, error)) (string, error) {
	key := dictKey(table, code)

	d.mu.RLock()
	if id, ok := d.local[key]; ok {
		d.mu.RUnlock()
		return id, nil
	}
	d.mu.RUnlock()

	if d.store != nil {
		if id, err := d.store.Get(ctx, key).Result(); err == nil && id != "" {
			d.set(key, id)
			return id, nil
		}
	}

	id, err := load(ctx)
	if err != nil {
		return "", err
	}
	d.set(key, id)
	if d.store != nil {
		_ = d.store.Set(ctx, key, id, d.ttl).Err()
	}
	return id, nil
}

func (d *Dictionary) set(key, id string) {
	d.mu.Lock()
	d.local[key] = id
	d.mu.Unlock()
}

// Invalidate drops a cached entry, called after any dictionary mutation.
func (d *Dictionary) Invalidate(ctx context.Context, table, code string) {
	key := dictKey(table, code)
	d.mu.Lock()
	delete(d.local, key)
	d.mu.Unlock()
	if d.store != nil {
		_ = d.store.Del(ctx, key).Err()
	}
}
