package blogsync

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for the cache and the sync engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	cacheReads     *prometheus.CounterVec
	cacheEvictions prometheus.Counter
	cacheSize      prometheus.Gauge
	cacheEntries   prometheus.Gauge
	pendingActions prometheus.Gauge
	pendingDrafts  prometheus.Gauge
	droppedActions *prometheus.CounterVec
	syncPasses     *prometheus.CounterVec
	syncDuration   prometheus.Histogram
	connectivity   prometheus.Gauge
}

// NewMetrics registers the collectors on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		return nil
	}
	f := promauto.With(reg)
	return &Metrics{
		cacheReads: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blogsync_cache_reads_total",
				Help: "Cache reads by result",
			},
			[]string{"result"}, // hit, miss, expired
		),
		cacheEvictions: f.NewCounter(prometheus.CounterOpts{
			Name: "blogsync_cache_evictions_total",
			Help: "Entries evicted to stay within the cache budget",
		}),
		cacheSize: f.NewGauge(prometheus.GaugeOpts{
			Name: "blogsync_cache_size_bytes",
			Help: "Bytes held by live cache entries",
		}),
		cacheEntries: f.NewGauge(prometheus.GaugeOpts{
			Name: "blogsync_cache_entries",
			Help: "Number of live cache entries",
		}),
		pendingActions: f.NewGauge(prometheus.GaugeOpts{
			Name: "blogsync_pending_actions",
			Help: "Actions waiting for a sync pass",
		}),
		pendingDrafts: f.NewGauge(prometheus.GaugeOpts{
			Name: "blogsync_pending_drafts",
			Help: "Drafts not yet confirmed by the backend",
		}),
		droppedActions: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blogsync_dropped_actions_total",
				Help: "Actions dropped after a terminal failure",
			},
			[]string{"type", "reason"}, // reason: exhausted, permanent
		),
		syncPasses: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "blogsync_sync_passes_total",
				Help: "Sync passes by outcome",
			},
			[]string{"outcome"}, // completed, aborted, skipped
		),
		syncDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "blogsync_sync_duration_seconds",
			Help:    "Duration of completed sync passes",
			Buckets: prometheus.DefBuckets,
		}),
		connectivity: f.NewGauge(prometheus.GaugeOpts{
			Name: "blogsync_online",
			Help: "1 when the device is online, 0 otherwise",
		}),
	}
}

func (m *Metrics) cacheRead(result string) {
	if m == nil {
		return
	}
	m.cacheReads.WithLabelValues(result).Inc()
}

func (m *Metrics) cacheEvicted(n int) {
	if m == nil || n == 0 {
		return
	}
	m.cacheEvictions.Add(float64(n))
}

func (m *Metrics) cacheUsage(entries int, bytes int64) {
	if m == nil {
		return
	}
	m.cacheEntries.Set(float64(entries))
	m.cacheSize.Set(float64(bytes))
}

func (m *Metrics) queueDepth(actions, drafts int) {
	if m == nil {
		return
	}
	m.pendingActions.Set(float64(actions))
	m.pendingDrafts.Set(float64(drafts))
}

func (m *Metrics) actionDropped(t ActionType, reason string) {
	if m == nil {
		return
	}
	m.droppedActions.WithLabelValues(string(t), reason).Inc()
}

func (m *Metrics) syncPass(outcome string, d time.Duration) {
	if m == nil {
		return
	}
	m.syncPasses.WithLabelValues(outcome).Inc()
	if outcome == "completed" {
		m.syncDuration.Observe(d.Seconds())
	}
}

func (m *Metrics) online(on bool) {
	if m == nil {
		return
	}
	if on {
		m.connectivity.Set(1)
	} else {
		m.connectivity.Set(0)
	}
}
