package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/armon/go-metrics"
	cmap "github.com/orcaman/concurrent-map/v2"
)

// FetchFunc loads the value for a single key.
type FetchFunc[V any] func(ctx context.Context) (V, error)

// BatchFetchFunc loads values for several keys in one round trip. The result
// must be index aligned with keys.
type BatchFetchFunc[K any, V any] func(ctx context.Context, keys []K) ([]V, error)

type entry[V any] struct {
	done  chan struct{}
	value V
	err   error
}

// Cache memoizes fetched values with at most one fetch in flight per key.
// Successful results are kept until Forget; failed fetches are dropped so the
// next caller retries.
//
// A fetch that has started keeps running when its initiating caller goes
// away, so the other callers waiting on it still get a result.
type Cache[K fmt.Stringer, V any] struct {
	name    string
	entries cmap.ConcurrentMap[string, *entry[V]]
}

func New[K fmt.Stringer, V any](name string) *Cache[K, V] {
	return &Cache[K, V]{
		name:    name,
		entries: cmap.New[*entry[V]](),
	}
}

// GetOrFetch returns the cached value for key, running fetch if no value is
// cached and no other caller is fetching it.
func (c *Cache[K, V]) GetOrFetch(ctx context.Context, key K, fetch FetchFunc[V]) (V, error) {
	e, leader := c.claim(key.String())
	if leader {
		c.count("miss")
		go c.run(ctx, key.String(), e, fetch)
	} else {
		c.count("hit")
	}

	return c.wait(ctx, e)
}

// GetOrFetchBatch resolves keys with one batched fetch for every key not
// already cached or in flight. Keys claimed by other callers are awaited.
// Results are returned in key order.
func (c *Cache[K, V]) GetOrFetchBatch(ctx context.Context, keys []K, fetch BatchFetchFunc[K, V]) ([]V, error) {
	all := make([]*entry[V], len(keys))
	claimed := make(map[string]*entry[V])
	var missing []K

	for i, key := range keys {
		id := key.String()
		if e, ok := claimed[id]; ok {
			all[i] = e
			continue
		}
		e, leader := c.claim(id)
		all[i] = e
		if leader {
			claimed[id] = e
			missing = append(missing, key)
		}
	}

	c.countN("miss", len(missing))
	c.countN("hit", len(keys)-len(missing))

	if len(missing) > 0 {
		go c.runBatch(ctx, missing, claimed, fetch)
	}

	out := make([]V, len(keys))
	for i, e := range all {
		v, err := c.wait(ctx, e)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Get returns a completed value without fetching.
func (c *Cache[K, V]) Get(key K) (V, bool) {
	var zero V
	e, ok := c.entries.Get(key.String())
	if !ok {
		return zero, false
	}
	select {
	case <-e.done:
		if e.err != nil {
			return zero, false
		}
		return e.value, true
	default:
		return zero, false
	}
}

// Has reports whether key is cached or being fetched.
func (c *Cache[K, V]) Has(key K) bool {
	return c.entries.Has(key.String())
}

// Forget drops a completed entry so the next lookup fetches again. An entry
// still in flight is left alone.
func (c *Cache[K, V]) Forget(key K) bool {
	return c.entries.RemoveCb(key.String(), func(_ string, e *entry[V], exists bool) bool {
		if !exists {
			return false
		}
		select {
		case <-e.done:
			return true
		default:
			return false
		}
	})
}

func (c *Cache[K, V]) Len() int {
	return c.entries.Count()
}

// claim installs a pending entry for id unless one exists. leader is true
// when the returned entry was installed by this call.
func (c *Cache[K, V]) claim(id string) (*entry[V], bool) {
	pending := &entry[V]{done: make(chan struct{})}
	actual := c.entries.Upsert(id, pending, func(exist bool, inMap, newValue *entry[V]) *entry[V] {
		if exist {
			return inMap
		}
		return newValue
	})
	return actual, actual == pending
}

func (c *Cache[K, V]) run(ctx context.Context, id string, e *entry[V], fetch FetchFunc[V]) {
	start := time.Now()
	defer metrics.MeasureSince([]string{"cache", c.name, "fetch"}, start)

	v, err := fetch(context.WithoutCancel(ctx))
	c.complete(id, e, v, err)
}

func (c *Cache[K, V]) runBatch(ctx context.Context, keys []K, claimed map[string]*entry[V], fetch BatchFetchFunc[K, V]) {
	start := time.Now()
	defer metrics.MeasureSince([]string{"cache", c.name, "fetch"}, start)

	values, err := fetch(context.WithoutCancel(ctx), keys)
	if err == nil && len(values) != len(keys) {
		err = fmt.Errorf("%s: batch fetch returned %d values for %d keys", c.name, len(values), len(keys))
	}

	for i, key := range keys {
		var v V
		if err == nil {
			v = values[i]
		}
		id := key.String()
		c.complete(id, claimed[id], v, err)
	}
}

// complete publishes the outcome. A failed entry is removed from the map
// before waiters are released.
func (c *Cache[K, V]) complete(id string, e *entry[V], v V, err error) {
	if err != nil {
		c.count("error")
		c.entries.RemoveCb(id, func(_ string, inMap *entry[V], exists bool) bool {
			return exists && inMap == e
		})
		e.err = err
	} else {
		e.value = v
	}
	close(e.done)
}

func (c *Cache[K, V]) wait(ctx context.Context, e *entry[V]) (V, error) {
	select {
	case <-e.done:
		return e.value, e.err
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	}
}

func (c *Cache[K, V]) count(kind string) {
	c.countN(kind, 1)
}

func (c *Cache[K, V]) countN(kind string, n int) {
	if n == 0 {
		return
	}
	metrics.IncrCounter([]string{"cache", c.name, kind}, float32(n))
}
