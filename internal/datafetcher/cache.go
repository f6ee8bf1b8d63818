/*
This file contains the in-memory TTL cache shared by the fetchers. Sources
are polled every run; the cache keeps repeated runs inside one TTL window
from hammering the upstream APIs.
*/

package datafetcher

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

// cacheTTL matches the refresh cadence of the upstream aggregators; data
// older than this is refetched.
const cacheTTL = 5 * time.Minute

// responseCache is a typed wrapper over ristretto keyed by request identity.
type responseCache struct {
	cache *ristretto.Cache
}

func newResponseCache() (*responseCache, error) {
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 10_000,
		// Entries are stored at unit cost, so MaxCost caps the number of
		// cached responses, not bytes. One entry per (source, chain) pair
		// keeps the working set far below this.
		MaxCost:     1024,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &responseCache{cache: c}, nil
}

func (r *responseCache) get(key string) (any, bool) {
	if r == nil || r.cache == nil {
		return nil, false
	}
	return r.cache.Get(key)
}

func (r *responseCache) set(key string, value any) {
	if r == nil || r.cache == nil {
		return
	}
	r.cache.SetWithTTL(key, value, 1, cacheTTL)
}
