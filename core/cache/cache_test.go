package cache

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/siherrmann/paperqa/helper"
	"github.com/siherrmann/paperqa/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testEntry(fingerprint string, size int) *model.CacheEntry {
	return &model.CacheEntry{
		Document: &model.Document{Fingerprint: fingerprint, Status: model.ExtractionStatusOK},
		Text:     strings.Repeat("x", size),
	}
}

func buildOf(entry *model.CacheEntry, calls *atomic.Int32) BuildFunc {
	return func(ctx context.Context) (*model.CacheEntry, error) {
		if calls != nil {
			calls.Add(1)
		}
		return entry, nil
	}
}

// mockStore is an in-memory Store
type mockStore struct {
	mu      sync.Mutex
	entries map[string]*model.CacheEntry
	saves   int
}

func newMockStore() *mockStore {
	return &mockStore{entries: map[string]*model.CacheEntry{}}
}

func (s *mockStore) Load(ctx context.Context, fingerprint string) (*model.CacheEntry, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[fingerprint]
	return e, ok, nil
}

func (s *mockStore) Save(ctx context.Context, entry *model.CacheEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saves++
	s.entries[entry.Fingerprint()] = entry
	return nil
}

func (s *mockStore) Delete(ctx context.Context, fingerprint string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, fingerprint)
	return nil
}

func TestGetOrBuild(t *testing.T) {
	ctx := context.Background()

	t.Run("Hit skips the build", func(t *testing.T) {
		metrics := helper.NewMetrics("test")
		c := NewCache(model.CacheConfig{}, nil, metrics, nil)
		var calls atomic.Int32

		h, err := c.GetOrBuild(ctx, "a", buildOf(testEntry("a", 10), &calls))
		require.NoError(t, err)
		h.Release()
		h, err = c.GetOrBuild(ctx, "a", buildOf(testEntry("a", 10), &calls))
		require.NoError(t, err)
		defer h.Release()

		assert.Equal(t, int32(1), calls.Load())
		assert.Equal(t, "a", h.Entry().Fingerprint())
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheHits))
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheMisses))
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Builds.WithLabelValues("ok")))
	})

	t.Run("Concurrent requests share one build", func(t *testing.T) {
		c := NewCache(model.CacheConfig{}, nil, nil, nil)
		var calls atomic.Int32
		release := make(chan struct{})
		build := func(ctx context.Context) (*model.CacheEntry, error) {
			calls.Add(1)
			<-release
			return testEntry("a", 10), nil
		}

		var wg sync.WaitGroup
		handles := make([]*Handle, 10)
		errs := make([]error, 10)
		for i := range handles {
			wg.Add(1)
			go func() {
				defer wg.Done()
				handles[i], errs[i] = c.GetOrBuild(ctx, "a", build)
			}()
		}
		time.Sleep(20 * time.Millisecond)
		close(release)
		wg.Wait()

		assert.Equal(t, int32(1), calls.Load(), "Expected exactly one build")
		for i := range handles {
			require.NoError(t, errs[i])
			assert.Same(t, handles[0].Entry(), handles[i].Entry())
			handles[i].Release()
		}
		assert.Equal(t, 0, c.Stats().Pinned)
	})

	t.Run("Failed build is not cached", func(t *testing.T) {
		c := NewCache(model.CacheConfig{}, nil, nil, nil)
		failing := func(ctx context.Context) (*model.CacheEntry, error) {
			return nil, model.NewPipelineError(model.ErrExtraction, "a", false, errors.New("broken pdf"))
		}

		_, err := c.GetOrBuild(ctx, "a", failing)
		assert.ErrorIs(t, err, model.ErrExtraction)
		assert.False(t, c.Contains("a"))

		h, err := c.GetOrBuild(ctx, "a", buildOf(testEntry("a", 1), nil))
		require.NoError(t, err)
		h.Release()
		assert.True(t, c.Contains("a"))
	})

	t.Run("Build for another fingerprint is rejected", func(t *testing.T) {
		c := NewCache(model.CacheConfig{}, nil, nil, nil)
		_, err := c.GetOrBuild(ctx, "a", buildOf(testEntry("b", 1), nil))
		assert.Error(t, err)
		assert.False(t, c.Contains("a"))
		assert.False(t, c.Contains("b"))
	})

	t.Run("Caller deadline returns timeout", func(t *testing.T) {
		c := NewCache(model.CacheConfig{}, nil, nil, nil)
		build := func(ctx context.Context) (*model.CacheEntry, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}
		timeout, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()

		_, err := c.GetOrBuild(timeout, "a", build)
		assert.ErrorIs(t, err, model.ErrTimeout)
		assert.False(t, c.Contains("a"), "Expected partial work to not be cached")
	})

	t.Run("Waiter restarts a build that timed out for another caller", func(t *testing.T) {
		c := NewCache(model.CacheConfig{}, nil, nil, nil)
		var calls atomic.Int32
		build := func(ctx context.Context) (*model.CacheEntry, error) {
			calls.Add(1)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(60 * time.Millisecond):
				return testEntry("a", 1), nil
			}
		}

		timeout, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		leaderErr := make(chan error, 1)
		go func() {
			_, err := c.GetOrBuild(timeout, "a", build)
			leaderErr <- err
		}()
		time.Sleep(5 * time.Millisecond)

		h, err := c.GetOrBuild(ctx, "a", build)
		require.NoError(t, err)
		defer h.Release()
		assert.ErrorIs(t, <-leaderErr, model.ErrTimeout)
		assert.Equal(t, int32(2), calls.Load())
	})
}

func TestEviction(t *testing.T) {
	ctx := context.Background()
	put := func(t *testing.T, c *Cache, fingerprint string, size int) {
		h, err := c.GetOrBuild(ctx, fingerprint, buildOf(testEntry(fingerprint, size), nil))
		require.NoError(t, err)
		h.Release()
	}

	t.Run("Least recently used entry is evicted", func(t *testing.T) {
		metrics := helper.NewMetrics("test")
		c := NewCache(model.CacheConfig{MaxEntries: 2}, nil, metrics, nil)
		put(t, c, "a", 1)
		put(t, c, "b", 1)

		h, ok := c.Get("a")
		require.True(t, ok)
		h.Release()
		put(t, c, "c", 1)

		assert.True(t, c.Contains("a"))
		assert.False(t, c.Contains("b"), "Expected b to be least recently used")
		assert.True(t, c.Contains("c"))
		assert.Equal(t, int64(1), c.Stats().Evictions)
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.CacheEvictions))
		assert.Equal(t, 2.0, testutil.ToFloat64(metrics.CacheEntries))
	})

	t.Run("Hit refreshes last access", func(t *testing.T) {
		c := NewCache(model.CacheConfig{}, nil, nil, nil)
		put(t, c, "a", 1)
		inserted, ok := c.LastAccess("a")
		require.True(t, ok)

		time.Sleep(5 * time.Millisecond)
		h, ok := c.Get("a")
		require.True(t, ok)
		defer h.Release()

		accessed, ok := c.LastAccess("a")
		require.True(t, ok)
		assert.True(t, accessed.After(inserted), "Expected Get to refresh the last access")
		assert.Equal(t, accessed, h.LastAccess())

		_, ok = c.LastAccess("missing")
		assert.False(t, ok)
	})

	t.Run("Byte bound evicts until the size fits", func(t *testing.T) {
		c := NewCache(model.CacheConfig{MaxBytes: 100}, nil, nil, nil)
		put(t, c, "a", 40)
		put(t, c, "b", 40)
		put(t, c, "c", 40)

		stats := c.Stats()
		assert.Equal(t, 2, stats.Entries)
		assert.Equal(t, int64(80), stats.Bytes)
		assert.False(t, c.Contains("a"))
	})

	t.Run("Pinned entry is not evicted", func(t *testing.T) {
		c := NewCache(model.CacheConfig{MaxEntries: 1}, nil, nil, nil)
		pinned, err := c.GetOrBuild(ctx, "a", buildOf(testEntry("a", 1), nil))
		require.NoError(t, err)

		h, err := c.GetOrBuild(ctx, "b", buildOf(testEntry("b", 1), nil))
		require.NoError(t, err)
		assert.True(t, c.Contains("a"), "Expected pinned a to survive")
		assert.True(t, c.Contains("b"))
		assert.Equal(t, "a", pinned.Entry().Fingerprint())

		pinned.Release()
		assert.False(t, c.Contains("a"), "Expected a to be evicted once released")
		h.Release()
		assert.True(t, c.Contains("b"))
		assert.Equal(t, 1, c.Stats().Entries)
	})

	t.Run("Release is idempotent", func(t *testing.T) {
		c := NewCache(model.CacheConfig{}, nil, nil, nil)
		first, err := c.GetOrBuild(ctx, "a", buildOf(testEntry("a", 1), nil))
		require.NoError(t, err)
		second, ok := c.Get("a")
		require.True(t, ok)

		first.Release()
		first.Release()
		assert.Equal(t, 1, c.Stats().Pinned, "Expected the second handle to keep its pin")
		second.Release()
		assert.Equal(t, 0, c.Stats().Pinned)
	})

	t.Run("Explicit evict keeps handles readable", func(t *testing.T) {
		c := NewCache(model.CacheConfig{}, nil, nil, nil)
		h, err := c.GetOrBuild(ctx, "a", buildOf(testEntry("a", 1), nil))
		require.NoError(t, err)

		found, err := c.Evict(ctx, "a")
		require.NoError(t, err)
		assert.True(t, found)
		assert.False(t, c.Contains("a"))
		assert.Equal(t, "a", h.Entry().Fingerprint())
		assert.NotPanics(t, h.Release)

		found, err = c.Evict(ctx, "a")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("Clear empties the cache", func(t *testing.T) {
		c := NewCache(model.CacheConfig{}, nil, nil, nil)
		put(t, c, "a", 10)
		put(t, c, "b", 10)

		c.Clear()
		stats := c.Stats()
		assert.Equal(t, 0, stats.Entries)
		assert.Equal(t, int64(0), stats.Bytes)
	})
}

func TestStore(t *testing.T) {
	ctx := context.Background()

	t.Run("Built entries are saved and loaded on a later miss", func(t *testing.T) {
		store := newMockStore()
		var calls atomic.Int32

		first := NewCache(model.CacheConfig{}, store, nil, nil)
		h, err := first.GetOrBuild(ctx, "a", buildOf(testEntry("a", 1), &calls))
		require.NoError(t, err)
		h.Release()
		assert.Equal(t, 1, store.saves)

		second := NewCache(model.CacheConfig{}, store, nil, nil)
		h, err = second.GetOrBuild(ctx, "a", buildOf(testEntry("a", 1), &calls))
		require.NoError(t, err)
		h.Release()
		assert.Equal(t, int32(1), calls.Load(), "Expected the second cache to load from the store")
	})

	t.Run("Evict deletes from the store", func(t *testing.T) {
		store := newMockStore()
		c := NewCache(model.CacheConfig{}, store, nil, nil)
		h, err := c.GetOrBuild(ctx, "a", buildOf(testEntry("a", 1), nil))
		require.NoError(t, err)
		h.Release()

		_, err = c.Evict(ctx, "a")
		require.NoError(t, err)
		_, found, err := store.Load(ctx, "a")
		require.NoError(t, err)
		assert.False(t, found)
	})

	t.Run("Summary is attached to new handles", func(t *testing.T) {
		store := newMockStore()
		c := NewCache(model.CacheConfig{}, store, nil, nil)
		old, err := c.GetOrBuild(ctx, "a", buildOf(testEntry("a", 1), nil))
		require.NoError(t, err)
		defer old.Release()

		err = c.SetSummary(ctx, "a", &model.SummaryResult{Text: "summary"})
		require.NoError(t, err)

		h, ok := c.Get("a")
		require.True(t, ok)
		defer h.Release()
		require.NotNil(t, h.Entry().Summary)
		assert.Equal(t, "summary", h.Entry().Summary.Text)
		assert.Nil(t, old.Entry().Summary)
		assert.Equal(t, "summary", store.entries["a"].Summary.Text)

		err = c.SetSummary(ctx, "missing", &model.SummaryResult{})
		assert.ErrorIs(t, err, model.ErrDocumentNotFound)
	})
}
