package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"augeias/pkg/janitor"
)

// JanitorMetrics exposes Prometheus collectors for the janitor.
type JanitorMetrics struct {
	runs    prometheus.Counter
	temps   prometheus.Counter
	dirs    prometheus.Counter
	errors  prometheus.Counter
	lastRun prometheus.Gauge

	mu   sync.Mutex
	prev janitor.Stats
}

// NewJanitorMetrics registers janitor metrics on the provided registry.
func NewJanitorMetrics(reg *prometheus.Registry) *JanitorMetrics {
	counter := func(name, help string) prometheus.Counter {
		return prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "janitor",
			Name:      name,
			Help:      help,
		})
	}
	m := &JanitorMetrics{
		runs:   counter("runs_total", "Completed janitor passes."),
		temps:  counter("temp_files_removed_total", "Stale write temporaries removed."),
		dirs:   counter("dirs_removed_total", "Empty directories pruned."),
		errors: counter("errors_total", "Failed collection sweeps."),
		lastRun: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "janitor",
			Name:      "last_run_timestamp_seconds",
			Help:      "Timestamp of the last completed pass in seconds since epoch.",
		}),
	}
	reg.MustRegister(m.runs, m.temps, m.dirs, m.errors, m.lastRun)
	return m
}

// Observe pushes a Stats snapshot. Counters advance by the difference to the
// previous snapshot, so it can be called repeatedly with cumulative stats.
func (m *JanitorMetrics) Observe(st janitor.Stats) {
	m.mu.Lock()
	defer m.mu.Unlock()

	addDelta(m.runs, m.prev.Runs, st.Runs)
	addDelta(m.temps, m.prev.TempFilesRemoved, st.TempFilesRemoved)
	addDelta(m.dirs, m.prev.DirsRemoved, st.DirsRemoved)
	addDelta(m.errors, m.prev.Errors, st.Errors)
	m.prev = st

	if !st.LastRun.IsZero() {
		m.lastRun.Set(float64(st.LastRun.Unix()))
	}
}

func addDelta(c prometheus.Counter, prev, cur uint64) {
	if cur > prev {
		c.Add(float64(cur - prev))
	}
}

// StatsSource is implemented by *janitor.Janitor.
type StatsSource interface {
	Stats() janitor.Stats
}

// StartPolling observes src every interval until the returned stop func is called.
func (m *JanitorMetrics) StartPolling(src StatsSource, interval time.Duration) (stop func()) {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	done := make(chan struct{})
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				m.Observe(src.Stats())
			case <-done:
				return
			}
		}
	}()
	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}
