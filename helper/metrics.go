package helper

import (
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Metrics holds the prometheus collectors of a PaperQA instance.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Registry *prometheus.Registry

	CacheHits        prometheus.Counter
	CacheMisses      prometheus.Counter
	CacheEvictions   prometheus.Counter
	Builds           *prometheus.CounterVec
	DegradedChunks   prometheus.Counter
	CapabilityCalls  *prometheus.CounterVec
	CapabilityRetry  *prometheus.CounterVec
	BuildDuration    prometheus.Histogram
	CacheEntries     prometheus.Gauge
	CacheSizeInBytes prometheus.Gauge
}

// NewMetrics creates all collectors on a fresh registry.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "paperqa"
	}

	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Number of document cache hits.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Number of document cache misses.",
		}),
		CacheEvictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "evictions_total",
			Help:      "Number of evicted cache entries.",
		}),
		Builds: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "builds_total",
			Help:      "Number of document pipeline builds by result.",
		}, []string{"result"}),
		DegradedChunks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "summarize",
			Name:      "degraded_chunks_total",
			Help:      "Number of chunks summarized with the extractive fallback.",
		}),
		CapabilityCalls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capability",
			Name:      "calls_total",
			Help:      "Number of model capability calls by capability and outcome.",
		}, []string{"capability", "outcome"}),
		CapabilityRetry: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "capability",
			Name:      "retries_total",
			Help:      "Number of retried model capability calls.",
		}, []string{"capability"}),
		BuildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "build_duration_seconds",
			Help:      "Duration of document pipeline builds.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),
		CacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "entries",
			Help:      "Number of resident cache entries.",
		}),
		CacheSizeInBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "size_bytes",
			Help:      "Approximate size of resident cache entries.",
		}),
	}

	m.Registry.MustRegister(
		m.CacheHits,
		m.CacheMisses,
		m.CacheEvictions,
		m.Builds,
		m.DegradedChunks,
		m.CapabilityCalls,
		m.CapabilityRetry,
		m.BuildDuration,
		m.CacheEntries,
		m.CacheSizeInBytes,
	)

	return m
}

func (m *Metrics) CacheHit() {
	if m == nil {
		return
	}
	m.CacheHits.Inc()
}

func (m *Metrics) CacheMiss() {
	if m == nil {
		return
	}
	m.CacheMisses.Inc()
}

func (m *Metrics) CacheEvicted() {
	if m == nil {
		return
	}
	m.CacheEvictions.Inc()
}

// CacheSize records the resident entry count and byte size.
func (m *Metrics) CacheSize(entries int, bytes int64) {
	if m == nil {
		return
	}
	m.CacheEntries.Set(float64(entries))
	m.CacheSizeInBytes.Set(float64(bytes))
}

// BuildFinished records one pipeline build and its duration.
func (m *Metrics) BuildFinished(start time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.Builds.WithLabelValues(result).Inc()
	m.BuildDuration.Observe(time.Since(start).Seconds())
}

func (m *Metrics) ChunksDegraded(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.DegradedChunks.Add(float64(n))
}

// CapabilityCall records the final outcome of one capability call.
func (m *Metrics) CapabilityCall(capability string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.CapabilityCalls.WithLabelValues(capability, outcome).Inc()
}

func (m *Metrics) CapabilityRetried(capability string) {
	if m == nil {
		return
	}
	m.CapabilityRetry.WithLabelValues(capability).Inc()
}

// WriteText gathers the registry and writes it in the prometheus text format.
func (m *Metrics) WriteText(w io.Writer) error {
	if m == nil {
		return nil
	}
	families, err := m.Registry.Gather()
	if err != nil {
		return NewError("gather metrics", err)
	}
	for _, family := range families {
		if _, err := expfmt.MetricFamilyToText(w, family); err != nil {
			return NewError("write metrics", err)
		}
	}
	return nil
}
