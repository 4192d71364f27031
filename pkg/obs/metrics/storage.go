package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StorageMetrics records object store operations. It satisfies
// storage.Observer; the collection label tells backends apart.
type StorageMetrics struct {
	bytes   *prometheus.CounterVec
	ops     *prometheus.CounterVec
	latency *prometheus.HistogramVec
}

// NewStorageMetrics registers storage metrics on the provided registry.
func NewStorageMetrics(reg *prometheus.Registry) *StorageMetrics {
	m := &StorageMetrics{
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "bytes_total",
			Help:      "Total bytes processed by storage operations.",
		}, []string{"collection", "op"}),
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "ops_total",
			Help:      "Total number of storage operations by result.",
		}, []string{"collection", "op", "result"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "storage",
			Name:      "op_duration_seconds",
			Help:      "Histogram of storage operation durations in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"collection", "op"}),
	}
	reg.MustRegister(m.bytes, m.ops, m.latency)
	return m
}

// For returns an observer bound to one collection.
func (m *StorageMetrics) For(collection string) *CollectionObserver {
	return &CollectionObserver{m: m, collection: collection}
}

// CollectionObserver is a StorageMetrics view labelled with a collection name.
type CollectionObserver struct {
	m          *StorageMetrics
	collection string
}

// Observe records a storage operation with optional bytes and error.
// dur must be the total time spent in the operation.
func (o *CollectionObserver) Observe(op string, bytes int64, err error, dur time.Duration) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	if bytes > 0 {
		o.m.bytes.WithLabelValues(o.collection, op).Add(float64(bytes))
	}
	o.m.ops.WithLabelValues(o.collection, op, result).Inc()
	o.m.latency.WithLabelValues(o.collection, op).Observe(dur.Seconds())
}
