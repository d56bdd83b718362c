package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSourceFingerprint(t *testing.T) {
	t.Run("Same bytes produce the same fingerprint", func(t *testing.T) {
		a := Source{Data: []byte("%PDF-1.4 content")}
		b := Source{Data: []byte("%PDF-1.4 content")}

		assert.Equal(t, a.Fingerprint(), b.Fingerprint())
		assert.Len(t, a.Fingerprint(), 64, "Expected hex encoded sha256")
	})

	t.Run("Different bytes produce different fingerprints", func(t *testing.T) {
		a := Source{Data: []byte("one")}
		b := Source{Data: []byte("two")}

		assert.NotEqual(t, a.Fingerprint(), b.Fingerprint())
	})

	t.Run("Bytes take precedence over URL", func(t *testing.T) {
		withURL := Source{Data: []byte("one"), URL: "https://arxiv.org/pdf/1234"}

		assert.Equal(t, FingerprintBytes([]byte("one")), withURL.Fingerprint())
	})

	t.Run("URL fingerprint ignores surrounding whitespace", func(t *testing.T) {
		assert.Equal(t, FingerprintURL("https://arxiv.org/pdf/1234"), FingerprintURL("  https://arxiv.org/pdf/1234\n"))
	})

	t.Run("URL and bytes namespaces do not collide", func(t *testing.T) {
		assert.NotEqual(t, FingerprintURL("abc"), FingerprintBytes([]byte("abc")))
	})

	t.Run("Empty source", func(t *testing.T) {
		assert.True(t, Source{}.IsEmpty())
		assert.False(t, Source{URL: "x"}.IsEmpty())
	})
}

func TestStatusForSegments(t *testing.T) {
	t.Run("All pages with text", func(t *testing.T) {
		segments := []Segment{{PageIndex: 0, Text: "a"}, {PageIndex: 1, Text: "b"}}
		assert.Equal(t, ExtractionStatusOK, StatusForSegments(segments, 0))
	})

	t.Run("Failed pages make the document partial", func(t *testing.T) {
		segments := []Segment{{PageIndex: 0, Text: "a"}, {PageIndex: 1, Text: ""}}
		assert.Equal(t, ExtractionStatusPartial, StatusForSegments(segments, 1))
	})

	t.Run("Image only pages make the document empty", func(t *testing.T) {
		segments := []Segment{{PageIndex: 0}, {PageIndex: 1}}
		assert.Equal(t, ExtractionStatusEmpty, StatusForSegments(segments, 0))
	})

	t.Run("No pages", func(t *testing.T) {
		assert.Equal(t, ExtractionStatusEmpty, StatusForSegments(nil, 0))
	})
}

func TestCacheEntrySizeBytes(t *testing.T) {
	t.Run("Counts text chunks and embeddings", func(t *testing.T) {
		entry := &CacheEntry{
			Text:       "0123456789",
			Segments:   []Segment{{Text: "0123456789"}},
			Chunks:     []Chunk{{Content: "01234"}},
			Embeddings: [][]float32{{1, 2, 3}},
		}

		assert.Equal(t, int64(10+10+5+12), entry.SizeBytes())
	})

	t.Run("Nil entry", func(t *testing.T) {
		var entry *CacheEntry
		assert.Equal(t, int64(0), entry.SizeBytes())
		assert.Equal(t, "", entry.Fingerprint())
	})
}
