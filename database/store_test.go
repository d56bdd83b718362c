package database

import (
	"context"
	"testing"
	"time"

	"github.com/siherrmann/paperqa/core/cache"
	"github.com/siherrmann/paperqa/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCacheEntry(fingerprint string) *model.CacheEntry {
	stored := testStoredDocument(fingerprint)
	chunks := []model.Chunk{testChunk(0), testChunk(1), testChunk(2)}
	return &model.CacheEntry{
		Document:   stored.Document,
		Text:       "First page.\nSecond page.",
		Segments:   stored.Segments,
		Chunks:     chunks,
		Embeddings: [][]float32{oneHot(0), oneHot(1), oneHot(2)},
	}
}

func TestStore(t *testing.T) {
	database := initDB(t)
	ctx := context.Background()

	store, err := NewStore(database, testEmbeddingDim, true)
	require.NoError(t, err, "Expected NewStore to not return an error")

	t.Run("Invalid call NewStore with nil database", func(t *testing.T) {
		_, err := NewStore(nil, testEmbeddingDim, false)
		assert.Error(t, err)
	})

	t.Run("Save and load an entry", func(t *testing.T) {
		entry := testCacheEntry(model.FingerprintBytes([]byte("store save")))
		defer store.Delete(ctx, entry.Fingerprint())

		err := store.Save(ctx, entry)
		require.NoError(t, err, "Expected Save to not return an error")
		assert.Zero(t, entry.Document.ID, "Expected the cached document to not be modified")

		loaded, found, err := store.Load(ctx, entry.Fingerprint())
		require.NoError(t, err)
		require.True(t, found)
		assert.Equal(t, entry.Fingerprint(), loaded.Fingerprint())
		assert.Equal(t, entry.Text, loaded.Text)
		assert.Equal(t, entry.Segments, loaded.Segments)
		assert.Equal(t, entry.Chunks, loaded.Chunks)
		assert.Equal(t, entry.Embeddings, loaded.Embeddings)
		assert.Nil(t, loaded.Summary)
	})

	t.Run("Saving again replaces the chunks", func(t *testing.T) {
		entry := testCacheEntry(model.FingerprintBytes([]byte("store replace")))
		defer store.Delete(ctx, entry.Fingerprint())
		require.NoError(t, store.Save(ctx, entry))

		shorter := testCacheEntry(entry.Fingerprint())
		shorter.Chunks = shorter.Chunks[:1]
		shorter.Embeddings = shorter.Embeddings[:1]
		require.NoError(t, store.Save(ctx, shorter))

		loaded, found, err := store.Load(ctx, entry.Fingerprint())
		require.NoError(t, err)
		require.True(t, found)
		assert.Len(t, loaded.Chunks, 1)
	})

	t.Run("Failed save leaves no partial entry", func(t *testing.T) {
		entry := testCacheEntry(model.FingerprintBytes([]byte("store partial")))
		entry.Embeddings[2] = []float32{1}

		err := store.Save(ctx, entry)
		assert.Error(t, err)

		_, found, err := store.Load(ctx, entry.Fingerprint())
		require.NoError(t, err)
		assert.False(t, found, "Expected the transaction to be rolled back")
	})

	t.Run("Save with mismatched embeddings fails", func(t *testing.T) {
		entry := testCacheEntry(model.FingerprintBytes([]byte("store mismatch")))
		entry.Embeddings = entry.Embeddings[:1]
		assert.Error(t, store.Save(ctx, entry))
	})

	t.Run("Load missing entry", func(t *testing.T) {
		entry, found, err := store.Load(ctx, "missing")
		assert.NoError(t, err)
		assert.False(t, found)
		assert.Nil(t, entry)
	})

	t.Run("Save summary", func(t *testing.T) {
		entry := testCacheEntry(model.FingerprintBytes([]byte("store summary")))
		defer store.Delete(ctx, entry.Fingerprint())
		require.NoError(t, store.Save(ctx, entry))

		summary := &model.SummaryResult{Text: "Summary.", ChunkIndices: []int{0, 1, 2}, Levels: 1}
		require.NoError(t, store.SaveSummary(ctx, entry.Fingerprint(), summary))

		loaded, _, err := store.Load(ctx, entry.Fingerprint())
		require.NoError(t, err)
		assert.Equal(t, summary, loaded.Summary)
	})

	t.Run("Nearest stored chunks", func(t *testing.T) {
		entry := testCacheEntry(model.FingerprintBytes([]byte("store nearest")))
		defer store.Delete(ctx, entry.Fingerprint())
		require.NoError(t, store.Save(ctx, entry))

		matches, err := store.Nearest(ctx, entry.Fingerprint(), oneHot(2), 1)
		require.NoError(t, err)
		require.Len(t, matches, 1)
		assert.Equal(t, 2, matches[0].ChunkIndex)
		assert.InDelta(t, 1.0, matches[0].Similarity, 1e-6)
	})

	t.Run("List stored documents", func(t *testing.T) {
		entry := testCacheEntry(model.FingerprintBytes([]byte("store list")))
		defer store.Delete(ctx, entry.Fingerprint())
		require.NoError(t, store.Save(ctx, entry))

		documents, err := store.Documents(ctx, 0, 100)
		require.NoError(t, err)
		fingerprints := []string{}
		for _, d := range documents {
			fingerprints = append(fingerprints, d.Fingerprint)
		}
		assert.Contains(t, fingerprints, entry.Fingerprint())
	})

	t.Run("Store as second cache tier", func(t *testing.T) {
		entry := testCacheEntry(model.FingerprintBytes([]byte("store tier")))
		defer store.Delete(ctx, entry.Fingerprint())
		builds := 0
		build := func(ctx context.Context) (*model.CacheEntry, error) {
			builds++
			return testCacheEntry(entry.Fingerprint()), nil
		}

		first := cache.NewCache(model.CacheConfig{}, store, nil, nil)
		h, err := first.GetOrBuild(ctx, entry.Fingerprint(), build)
		require.NoError(t, err)
		h.Release()

		second := cache.NewCache(model.CacheConfig{}, store, nil, nil)
		h, err = second.GetOrBuild(ctx, entry.Fingerprint(), build)
		require.NoError(t, err)
		defer h.Release()

		assert.Equal(t, 1, builds, "Expected the second cache to load the stored entry")
		assert.Equal(t, entry.Chunks, h.Entry().Chunks)
		assert.WithinDuration(t, time.Now(), h.LastAccess(), 5*time.Second)
	})
}
