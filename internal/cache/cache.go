// Package cache memoizes expensive LLM capability calls (planning, code
// generation) behind a pluggable backend: null, in-memory LRU+TTL, or a
// remote key/value store. Switching backends never changes the observable
// semantics of Lookup/Store — caching is strictly best-effort, and any
// backend error degrades to a miss rather than propagating to the caller.
package cache

import "time"

// Cache is the backend-agnostic interface every variant implements.
type Cache interface {
	// Lookup returns the stored payload and true iff an unexpired entry
	// exists for key.
	Lookup(key string) ([]byte, bool)
	// Store inserts or refreshes the entry for key, evicting according to
	// the backend's capacity policy.
	Store(key string, payload []byte)
	// Warm bulk-loads entries without affecting hit/miss counters.
	Warm(pairs map[string][]byte)
	// Inspect reports current size and lifetime counters.
	Inspect() Stats
	// Clear removes every entry and resets Stats counters to zero.
	Clear()
}

// Stats are the lifetime counters tracked by a Cache. Counters are
// eventually consistent under concurrent access: a single increment may
// race, but no increment is ever lost outright.
type Stats struct {
	Size      int
	Hits      int64
	Misses    int64
	Evictions int64
}

// Entry is one cache record: key, payload, and when it was stored and
// expires. The backends in this package keep their own internal records
// and do not use Entry.
type Entry struct {
	Key       string
	Payload   []byte
	StoredAt  time.Time
	ExpiresAt time.Time // zero means no expiry
}

func (e Entry) expired(now time.Time) bool {
	return !e.ExpiresAt.IsZero() && now.After(e.ExpiresAt)
}
