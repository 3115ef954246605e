package cache

import (
	"fmt"
	"time"

	"github.com/mgxlabs/orchestrator/internal/config"
)

// New builds the Cache backend selected by cfg. An unrecognized or
// unreachable remote backend is a startup-time error — once running, every
// backend implementation itself degrades failures to misses rather than
// erroring.
func New(cfg config.CacheConfig) (Cache, error) {
	if !cfg.Enabled {
		return NewNullCache(), nil
	}

	switch cfg.Backend {
	case config.CacheNull:
		return NewNullCache(), nil
	case config.CacheInMemoryLRUTTL:
		ttl := time.Duration(cfg.TTLSeconds) * time.Second
		return NewMemoryCache(cfg.MaxEntries, ttl), nil
	case config.CacheRemoteKV:
		ttl := time.Duration(cfg.TTLSeconds) * time.Second
		return NewRemoteCache(cfg.RemoteURL, ttl)
	default:
		return nil, fmt.Errorf("cache: unrecognized backend %q", cfg.Backend)
	}
}
