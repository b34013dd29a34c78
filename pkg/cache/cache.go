// Package cache is a tagged response cache. Entries are keyed by query
// shape and carry tags, so one event can mark many entries stale at once.
// Stale entries keep their payload until the next read refetches them.
package cache

import (
	"context"
	"sort"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/logger"
	"github.com/girmesh03/Task-Manager-V9-sub000/pkg/metrics"
)

// Fetcher loads the payload for one key. The returned tags are added to
// the ones given to Get, for tags that depend on the payload itself.
type Fetcher func(ctx context.Context) (data []byte, tags []string, err error)

// Entry is a read-only view of a cached entry.
type Entry struct {
	Key       string
	Data      []byte
	Tags      []string
	Stale     bool
	UpdatedAt time.Time
}

type entry struct {
	data      []byte
	loaded    bool
	tags      map[string]struct{}
	stale     bool
	updatedAt time.Time
	// gen is bumped by every invalidation. A fetch stores its result as
	// fresh only if gen did not move while it was running.
	gen uint64
	// dataGen is the gen the stored payload was fetched in. An older fetch
	// never overwrites a newer one.
	dataGen uint64
}

// Option configures a Cache.
type Option func(*Cache)

// WithMetrics records hits, misses and invalidations.
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Cache) { c.metrics = m }
}

// Cache is safe for concurrent use.
type Cache struct {
	metrics *metrics.Metrics
	group   singleflight.Group

	mu      sync.Mutex
	entries map[string]*entry
	// epoch is bumped by Reset so fetches that were in flight do not
	// repopulate a cleared cache.
	epoch uint64

	subsMu  sync.Mutex
	subs    map[int]func(keys []string)
	nextSub int
}

func New(opts ...Option) *Cache {
	c := &Cache{
		entries: make(map[string]*entry),
		subs:    make(map[int]func([]string)),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the payload for key. A fresh entry is returned as is; a stale
// or missing one is fetched, with concurrent readers of the same key and
// generation sharing one fetch. tags are attached to the entry.
func (c *Cache) Get(ctx context.Context, key string, tags []string, fetch Fetcher) ([]byte, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && e.loaded && !e.stale {
		data := clone(e.data)
		c.mu.Unlock()
		c.countHit(true)
		return data, nil
	}
	gen := c.ensure(key, tags).gen
	epoch := c.epoch
	c.mu.Unlock()
	c.countHit(false)

	// Readers share a fetch only within one generation, so a read issued
	// after an invalidation never joins a fetch that started before it.
	flight := key + "#" + strconv.FormatUint(epoch, 10) + "." + strconv.FormatUint(gen, 10)
	ch := c.group.DoChan(flight, func() (interface{}, error) {
		data, extra, err := fetch(ctx)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		if c.epoch == epoch {
			e := c.ensure(key, tags)
			if !e.loaded || gen >= e.dataGen {
				for _, t := range extra {
					e.tags[t] = struct{}{}
				}
				e.data = clone(data)
				e.dataGen = gen
				e.loaded = true
				e.updatedAt = time.Now()
				e.stale = e.gen != gen
				if e.stale {
					logger.Debug("Cache entry invalidated during fetch", "key", key)
				}
			} else {
				logger.Debug("Dropping superseded fetch", "key", key)
			}
		}
		c.mu.Unlock()
		return data, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return clone(res.Val.([]byte)), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Invalidate marks every entry carrying one of tags as stale and returns
// the affected keys. Subscribers are told before Invalidate returns.
func (c *Cache) Invalidate(tags ...string) []string {
	if len(tags) == 0 {
		return nil
	}

	c.mu.Lock()
	var keys []string
	for key, e := range c.entries {
		if e.hasAny(tags) {
			e.stale = true
			e.gen++
			keys = append(keys, key)
		}
	}
	c.mu.Unlock()

	if c.metrics != nil {
		for _, tag := range tags {
			c.metrics.CacheInvalidationsTotal.WithLabelValues(metricTag(tag)).Inc()
		}
	}
	logger.Debug("Cache invalidated", "tags", tags, "keys", len(keys))
	return c.publish(keys)
}

// InvalidateKeys marks the given keys stale.
func (c *Cache) InvalidateKeys(keys ...string) []string {
	c.mu.Lock()
	var hit []string
	for _, key := range keys {
		if e, ok := c.entries[key]; ok {
			e.stale = true
			e.gen++
			hit = append(hit, key)
		}
	}
	c.mu.Unlock()
	return c.publish(hit)
}

// Peek returns the entry for key without fetching.
func (c *Cache) Peek(key string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || !e.loaded {
		return Entry{}, false
	}

	tags := make([]string, 0, len(e.tags))
	for t := range e.tags {
		tags = append(tags, t)
	}
	sort.Strings(tags)

	return Entry{
		Key:       key,
		Data:      clone(e.data),
		Tags:      tags,
		Stale:     e.stale,
		UpdatedAt: e.updatedAt,
	}, true
}

// Keys returns the cached keys in sorted order.
func (c *Cache) Keys() []string {
	c.mu.Lock()
	keys := make([]string, 0, len(c.entries))
	for k, e := range c.entries {
		if e.loaded {
			keys = append(keys, k)
		}
	}
	c.mu.Unlock()
	sort.Strings(keys)
	return keys
}

// Reset drops every entry.
func (c *Cache) Reset() {
	c.mu.Lock()
	c.entries = make(map[string]*entry)
	c.epoch++
	c.mu.Unlock()
	logger.Debug("Cache reset")
}

// Subscribe registers fn to receive the keys of every invalidation.
func (c *Cache) Subscribe(fn func(keys []string)) (unsubscribe func()) {
	c.subsMu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = fn
	c.subsMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			c.subsMu.Lock()
			delete(c.subs, id)
			c.subsMu.Unlock()
		})
	}
}

func (c *Cache) publish(keys []string) []string {
	if len(keys) == 0 {
		return nil
	}
	sort.Strings(keys)

	c.subsMu.Lock()
	fns := make([]func([]string), 0, len(c.subs))
	for i := 0; i < c.nextSub; i++ {
		if fn, ok := c.subs[i]; ok {
			fns = append(fns, fn)
		}
	}
	c.subsMu.Unlock()

	for _, fn := range fns {
		fn(append([]string(nil), keys...))
	}
	return keys
}

// ensure returns the entry for key, creating it and merging tags. Callers
// hold c.mu.
func (c *Cache) ensure(key string, tags []string) *entry {
	e, ok := c.entries[key]
	if !ok {
		e = &entry{tags: make(map[string]struct{}, len(tags))}
		c.entries[key] = e
	}
	for _, t := range tags {
		e.tags[t] = struct{}{}
	}
	return e
}

func (e *entry) hasAny(tags []string) bool {
	for _, t := range tags {
		if _, ok := e.tags[t]; ok {
			return true
		}
	}
	return false
}

func (c *Cache) countHit(hit bool) {
	if c.metrics == nil {
		return
	}
	if hit {
		c.metrics.CacheHitsTotal.Inc()
	} else {
		c.metrics.CacheMissesTotal.Inc()
	}
}

func clone(b []byte) []byte {
	if b == nil {
		return nil
	}
	out := make([]byte, len(b))
	copy(out, b)
	return out
}
