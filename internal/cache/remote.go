package cache

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mgxlabs/orchestrator/internal/logging"
)

// RemoteCache is the remote_keyvalue backend, grounded on
// evalgo-org-eve's db/repository/redis.go (SetNX/Get/Set against
// redis.Client, JSON-wrapped payloads, TTL passed straight to SET). Per
// spec.md §4.1, any backend error degrades to a miss rather than
// propagating — RemoteCache never returns an error to its callers.
type RemoteCache struct {
	client *redis.Client
	ttl    time.Duration
	prefix string

	hits      int64
	misses    int64
	evictions int64
}

type remotePayload struct {
	Payload []byte `json:"payload"`
}

// NewRemoteCache connects to the redis/valkey instance at url (e.g.
// "redis://localhost:6379/0") and returns a RemoteCache that stores every
// entry with ttl.
func NewRemoteCache(url string, ttl time.Duration) (*RemoteCache, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RemoteCache{client: client, ttl: ttl, prefix: "mgxcache:"}, nil
}

// Lookup implements Cache. A connection or decode error degrades to a miss
// and is logged, never returned.
func (c *RemoteCache) Lookup(key string) ([]byte, bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	data, err := c.client.Get(ctx, c.prefix+key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logging.Get(logging.CategoryCache).Warn("remote cache lookup degraded to miss: %v", err)
		}
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	var rp remotePayload
	if err := json.Unmarshal(data, &rp); err != nil {
		logging.Get(logging.CategoryCache).Warn("remote cache decode degraded to miss: %v", err)
		atomic.AddInt64(&c.misses, 1)
		return nil, false
	}

	atomic.AddInt64(&c.hits, 1)
	return rp.Payload, true
}

// Store implements Cache. Eviction is delegated entirely to Redis' own TTL
// expiry; a successful SET that overwrites a live key is not counted as an
// eviction here since the remote store never reports it as one.
func (c *RemoteCache) Store(key string, payload []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()

	data, err := json.Marshal(remotePayload{Payload: payload})
	if err != nil {
		logging.Get(logging.CategoryCache).Warn("remote cache store skipped, marshal failed: %v", err)
		return
	}
	if err := c.client.Set(ctx, c.prefix+key, data, c.ttl).Err(); err != nil {
		logging.Get(logging.CategoryCache).Warn("remote cache store failed: %v", err)
	}
}

// Warm implements Cache.
func (c *RemoteCache) Warm(pairs map[string][]byte) {
	for k, v := range pairs {
		c.Store(k, v)
	}
}

// Inspect implements Cache. Size is not tracked remotely (it would require
// a potentially expensive KEYS/SCAN over the prefix), so it is reported as
// -1 to signal "unknown" rather than a misleading zero.
func (c *RemoteCache) Inspect() Stats {
	return Stats{
		Size:      -1,
		Hits:      atomic.LoadInt64(&c.hits),
		Misses:    atomic.LoadInt64(&c.misses),
		Evictions: atomic.LoadInt64(&c.evictions),
	}
}

// Clear implements Cache by resetting local counters only; it does not
// flush the shared remote keyspace, which may be in use by other
// processes.
func (c *RemoteCache) Clear() {
	atomic.StoreInt64(&c.hits, 0)
	atomic.StoreInt64(&c.misses, 0)
	atomic.StoreInt64(&c.evictions, 0)
}

// Close releases the underlying Redis connection.
func (c *RemoteCache) Close() error {
	return c.client.Close()
}
