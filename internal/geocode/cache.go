package geocode

import (
	"time"

	"github.com/dgraph-io/ristretto"
)

// LocalCache is the in-process (L1) layer in front of the durable Store.
// Entries are bounded by count; ristretto may decline to admit a new entry
// under pressure, which only costs an L2 read later.
type LocalCache struct {
	cache *ristretto.Cache
	ttl   time.Duration
}

// NewLocalCache creates an L1 cache holding up to maxItems entries.
// ttl <= 0 keeps entries until they are evicted for space.
func NewLocalCache(maxItems int64, ttl time.Duration) (*LocalCache, error) {
	if maxItems < 1 {
		maxItems = 1
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxItems * 10,
		MaxCost:     maxItems, // cost=1 per entry
		BufferItems: 64,

		IgnoreInternalCost: true,
	})
	if err != nil {
		return nil, err
	}
	return &LocalCache{cache: c, ttl: ttl}, nil
}

func (l *LocalCache) set(key string, v any) {
	if l.ttl > 0 {
		l.cache.SetWithTTL(key, v, 1, l.ttl)
		return
	}
	l.cache.Set(key, v, 1)
}

// GetForward returns the cached coordinates for a normalized query.
func (l *LocalCache) GetForward(key string) (Coordinates, bool) {
	if v, ok := l.cache.Get("f:" + key); ok {
		c, ok := v.(Coordinates)
		return c, ok
	}
	return Coordinates{}, false
}

// SetForward stores coordinates for a normalized query.
func (l *LocalCache) SetForward(key string, c Coordinates) { l.set("f:"+key, c) }

// GetReverse returns the cached address for a coordinate key.
func (l *LocalCache) GetReverse(key string) (AddressResult, bool) {
	if v, ok := l.cache.Get("r:" + key); ok {
		a, ok := v.(AddressResult)
		return a, ok
	}
	return AddressResult{}, false
}

// SetReverse stores an address for a coordinate key.
func (l *LocalCache) SetReverse(key string, a AddressResult) { l.set("r:"+key, a) }

// Wait blocks until buffered writes are applied.
func (l *LocalCache) Wait() { l.cache.Wait() }

// Close stops the cache's background goroutines.
func (l *LocalCache) Close() { l.cache.Close() }
