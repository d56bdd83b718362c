package helper

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics(t *testing.T) {
	t.Run("Counters are recorded", func(t *testing.T) {
		m := NewMetrics("test")

		m.CacheHit()
		m.CacheHit()
		m.CacheMiss()
		m.CacheEvicted()
		m.ChunksDegraded(3)
		m.CapabilityCall("summarize", nil)
		m.CapabilityCall("summarize", errors.New("boom"))
		m.CapabilityRetried("embed")
		m.BuildFinished(time.Now(), nil)
		m.CacheSize(2, 1024)

		assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheHits))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheMisses))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.CacheEvictions))
		assert.Equal(t, 3.0, testutil.ToFloat64(m.DegradedChunks))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.CapabilityCalls.WithLabelValues("summarize", "ok")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.CapabilityCalls.WithLabelValues("summarize", "error")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.CapabilityRetry.WithLabelValues("embed")))
		assert.Equal(t, 1.0, testutil.ToFloat64(m.Builds.WithLabelValues("ok")))
		assert.Equal(t, 2.0, testutil.ToFloat64(m.CacheEntries))
		assert.Equal(t, 1024.0, testutil.ToFloat64(m.CacheSizeInBytes))
	})

	t.Run("Separate instances do not collide", func(t *testing.T) {
		assert.NotPanics(t, func() {
			NewMetrics("")
			NewMetrics("")
		})
	})

	t.Run("Nil metrics are a no-op", func(t *testing.T) {
		var m *Metrics
		assert.NotPanics(t, func() {
			m.CacheHit()
			m.CacheMiss()
			m.CacheEvicted()
			m.CacheSize(1, 1)
			m.ChunksDegraded(1)
			m.CapabilityCall("answer", nil)
			m.CapabilityRetried("answer")
			m.BuildFinished(time.Now(), errors.New("boom"))
		})
		assert.NoError(t, m.WriteText(&bytes.Buffer{}))
	})

	t.Run("Registry is written in text format", func(t *testing.T) {
		m := NewMetrics("test")
		m.CacheHit()
		m.ChunksDegraded(2)
		m.CapabilityCall("embed", nil)

		var buf bytes.Buffer
		require.NoError(t, m.WriteText(&buf))

		out := buf.String()
		assert.Contains(t, out, "# TYPE test_cache_hits_total counter")
		assert.Contains(t, out, "test_cache_hits_total 1")
		assert.Contains(t, out, "test_summarize_degraded_chunks_total 2")
		assert.Contains(t, out, `test_capability_calls_total{capability="embed",outcome="ok"} 1`)
	})
}
