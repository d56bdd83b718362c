package cache

import (
	"container/list"
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/siherrmann/paperqa/helper"
	"github.com/siherrmann/paperqa/model"
	"golang.org/x/sync/singleflight"
)

// BuildFunc runs the extraction pipeline for a document on a cache miss
type BuildFunc func(ctx context.Context) (*model.CacheEntry, error)

// Store is an optional persistent tier behind the in-memory cache
type Store interface {
	Load(ctx context.Context, fingerprint string) (*model.CacheEntry, bool, error)
	Save(ctx context.Context, entry *model.CacheEntry) error
	Delete(ctx context.Context, fingerprint string) error
}

// SummaryStore is implemented by stores that can update the summary of a
// saved entry without rewriting it
type SummaryStore interface {
	SaveSummary(ctx context.Context, fingerprint string, summary *model.SummaryResult) error
}

// Stats is a snapshot of the cache state
type Stats struct {
	Entries   int   `json:"entries"`
	Bytes     int64 `json:"bytes"`
	Pinned    int   `json:"pinned"`
	Hits      int64 `json:"hits"`
	Misses    int64 `json:"misses"`
	Evictions int64 `json:"evictions"`
}

// maxBuildAttempts bounds how often a waiter restarts a build that timed out for another caller
const maxBuildAttempts = 3

type item struct {
	entry      *model.CacheEntry
	size       int64
	pins       int
	lastAccess time.Time
	removed    bool
}

// Cache maps document fingerprints to their cache entries.
// It is bounded by entry count and byte size with least recently used
// eviction. Pinned entries are never evicted by the bounds.
type Cache struct {
	mu      sync.Mutex
	config  model.CacheConfig
	items   map[string]*list.Element
	lru     *list.List
	size    int64
	stats   Stats
	group   singleflight.Group
	store   Store
	metrics *helper.Metrics
	log     *slog.Logger
}

// NewCache creates a new cache. store and metrics may be nil.
func NewCache(config model.CacheConfig, store Store, metrics *helper.Metrics, logger *slog.Logger) *Cache {
	if logger == nil {
		logger = slog.Default()
	}
	return &Cache{
		config:  config,
		items:   map[string]*list.Element{},
		lru:     list.New(),
		store:   store,
		metrics: metrics,
		log:     logger,
	}
}

// Get returns a pinned handle for a cached entry.
// The handle must be released once the caller stops reading the entry.
func (c *Cache) Get(fingerprint string) (*Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	h := c.pinLocked(fingerprint)
	if h == nil {
		return nil, false
	}
	c.stats.Hits++
	c.metrics.CacheHit()
	return h, true
}

// GetOrBuild returns a pinned handle for the entry of fingerprint, loading it
// from the store or building it on a miss. Concurrent calls for the same
// fingerprint share one build. A caller whose context ends stops waiting
// without cancelling the build of the others unless it started it.
func (c *Cache) GetOrBuild(ctx context.Context, fingerprint string, build BuildFunc) (*Handle, error) {
	if h, ok := c.Get(fingerprint); ok {
		return h, nil
	}

	for attempt := 1; ; attempt++ {
		ch := c.group.DoChan(fingerprint, func() (any, error) {
			return c.load(ctx, fingerprint, build)
		})

		select {
		case <-ctx.Done():
			return nil, model.AsTimeout(fingerprint, ctx.Err())
		case res := <-ch:
			if res.Err != nil {
				// The build was started by a caller whose deadline passed
				if errors.Is(res.Err, model.ErrTimeout) && ctx.Err() == nil && res.Shared && attempt < maxBuildAttempts {
					if h, ok := c.Get(fingerprint); ok {
						return h, nil
					}
					continue
				}
				return nil, res.Err
			}

			entry := res.Val.(*model.CacheEntry)
			c.mu.Lock()
			h := c.pinLocked(fingerprint)
			c.mu.Unlock()
			if h == nil {
				// Evicted before we could pin it, the entry stays valid for this caller
				h = &Handle{entry: entry, lastAccess: time.Now()}
			}
			return h, nil
		}
	}
}

// load runs once per fingerprint at a time
func (c *Cache) load(ctx context.Context, fingerprint string, build BuildFunc) (*model.CacheEntry, error) {
	c.mu.Lock()
	if e, ok := c.items[fingerprint]; ok {
		entry := e.Value.(*item).entry
		c.mu.Unlock()
		return entry, nil
	}
	c.stats.Misses++
	c.mu.Unlock()
	c.metrics.CacheMiss()

	if c.store != nil {
		entry, found, err := c.store.Load(ctx, fingerprint)
		if err != nil {
			c.log.Warn("Failed to load cache entry from store", slog.String("fingerprint", fingerprint), slog.String("error", err.Error()))
		} else if found {
			c.log.Debug("Loaded cache entry from store", slog.String("fingerprint", fingerprint))
			return c.insert(entry), nil
		}
	}

	start := time.Now()
	entry, err := build(ctx)
	c.metrics.BuildFinished(start, err)
	if err != nil {
		return nil, model.AsTimeout(fingerprint, err)
	}
	if entry == nil || entry.Fingerprint() != fingerprint {
		return nil, helper.NewError("build cache entry", errors.New("build returned an entry for another fingerprint"))
	}
	if err := ctx.Err(); err != nil {
		return nil, model.AsTimeout(fingerprint, err)
	}

	if c.store != nil {
		if err := c.store.Save(ctx, entry); err != nil {
			c.log.Warn("Failed to save cache entry to store", slog.String("fingerprint", fingerprint), slog.String("error", err.Error()))
		}
	}

	return c.insert(entry), nil
}

// insert adds entry and evicts down to the bounds. An entry already cached
// under the same fingerprint wins.
func (c *Cache) insert(entry *model.CacheEntry) *model.CacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()

	fingerprint := entry.Fingerprint()
	if e, ok := c.items[fingerprint]; ok {
		c.lru.MoveToFront(e)
		return e.Value.(*item).entry
	}

	it := &item{
		entry:      entry,
		size:       entry.SizeBytes(),
		lastAccess: time.Now(),
	}
	e := c.lru.PushFront(it)
	c.items[fingerprint] = e
	c.size += it.size

	c.evictLocked(e)
	return entry
}

// SetSummary replaces the entry of fingerprint by a copy carrying summary.
// Handles taken before keep the previous entry.
func (c *Cache) SetSummary(ctx context.Context, fingerprint string, summary *model.SummaryResult) error {
	c.mu.Lock()
	e, ok := c.items[fingerprint]
	if !ok {
		c.mu.Unlock()
		return model.NewPipelineError(model.ErrDocumentNotFound, fingerprint, false, nil)
	}
	it := e.Value.(*item)
	updated := *it.entry
	updated.Summary = summary
	it.entry = &updated
	c.mu.Unlock()

	if c.store == nil {
		return nil
	}
	var err error
	if ss, ok := c.store.(SummaryStore); ok {
		err = ss.SaveSummary(ctx, fingerprint, summary)
	} else {
		err = c.store.Save(ctx, &updated)
	}
	if err != nil {
		return helper.NewError("save summary", err)
	}
	return nil
}

// Evict removes the entry of fingerprint from the cache and the store.
// Readers holding a handle keep their entry.
func (c *Cache) Evict(ctx context.Context, fingerprint string) (bool, error) {
	c.mu.Lock()
	e, found := c.items[fingerprint]
	if found {
		c.removeLocked(e)
	}
	c.mu.Unlock()

	if c.store != nil {
		if err := c.store.Delete(ctx, fingerprint); err != nil {
			return found, helper.NewError("delete stored entry", err)
		}
	}
	return found, nil
}

// Clear removes every entry from memory. The store is left untouched.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for e := c.lru.Front(); e != nil; {
		next := e.Next()
		c.removeLocked(e)
		e = next
	}
}

// Stats returns a snapshot of the cache counters
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := c.stats
	stats.Entries = c.lru.Len()
	stats.Bytes = c.size
	for e := c.lru.Front(); e != nil; e = e.Next() {
		if e.Value.(*item).pins > 0 {
			stats.Pinned++
		}
	}
	return stats
}

// LastAccess returns when the entry of fingerprint was last pinned or inserted.
// It does not touch the recency.
func (c *Cache) LastAccess(fingerprint string) (time.Time, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items[fingerprint]
	if !ok {
		return time.Time{}, false
	}
	return e.Value.(*item).lastAccess, true
}

// Contains reports whether fingerprint is cached without touching its recency
func (c *Cache) Contains(fingerprint string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.items[fingerprint]
	return ok
}

func (c *Cache) pinLocked(fingerprint string) *Handle {
	e, ok := c.items[fingerprint]
	if !ok {
		return nil
	}
	it := e.Value.(*item)
	it.pins++
	it.lastAccess = time.Now()
	c.lru.MoveToFront(e)
	return &Handle{cache: c, item: it, entry: it.entry, lastAccess: it.lastAccess}
}

func (c *Cache) release(it *item) {
	c.mu.Lock()
	defer c.mu.Unlock()

	it.pins--
	if it.pins == 0 && !it.removed {
		c.evictLocked(nil)
	}
}

// evictLocked removes least recently used unpinned entries other than keep
// until the cache is within its bounds or no candidate is left.
func (c *Cache) evictLocked(keep *list.Element) {
	for c.overLocked() {
		var victim *list.Element
		for e := c.lru.Back(); e != nil; e = e.Prev() {
			if e != keep && e.Value.(*item).pins == 0 {
				victim = e
				break
			}
		}
		if victim == nil {
			break
		}

		it := victim.Value.(*item)
		c.removeLocked(victim)
		c.stats.Evictions++
		c.metrics.CacheEvicted()
		c.log.Debug("Evicted cache entry", slog.String("fingerprint", it.entry.Fingerprint()), slog.Int64("size", it.size), slog.Duration("idle", time.Since(it.lastAccess)))
	}
	c.metrics.CacheSize(c.lru.Len(), c.size)
}

func (c *Cache) overLocked() bool {
	if c.config.MaxEntries > 0 && c.lru.Len() > c.config.MaxEntries {
		return true
	}
	return c.config.MaxBytes > 0 && c.size > c.config.MaxBytes
}

func (c *Cache) removeLocked(e *list.Element) {
	it := e.Value.(*item)
	it.removed = true
	c.lru.Remove(e)
	delete(c.items, it.entry.Fingerprint())
	c.size -= it.size
	c.metrics.CacheSize(c.lru.Len(), c.size)
}

// Handle pins a cache entry while a request reads it
type Handle struct {
	cache      *Cache
	item       *item
	entry      *model.CacheEntry
	lastAccess time.Time
	once       sync.Once
}

// Entry returns the pinned entry
func (h *Handle) Entry() *model.CacheEntry {
	return h.entry
}

// LastAccess returns when the entry was pinned for this handle
func (h *Handle) LastAccess() time.Time {
	return h.lastAccess
}

// Release unpins the entry. Calling it more than once has no effect.
func (h *Handle) Release() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		if h.cache != nil {
			h.cache.release(h.item)
		}
	})
}
