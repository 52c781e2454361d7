package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// StoreMetrics tracks the outcomes of chain-state cache operations.
type StoreMetrics struct {
	writes        *prometheus.CounterVec
	staleUpdates  *prometheus.CounterVec
	storageErrors *prometheus.CounterVec
	transact      *prometheus.HistogramVec
}

var (
	storeOnce     sync.Once
	storeRegistry *StoreMetrics
)

// Store returns the process-wide store metrics, registering them with the default Prometheus
// registry on first use.
func Store() *StoreMetrics {
	storeOnce.Do(func() {
		storeRegistry = &StoreMetrics{
			writes: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "chaincache_writes_total",
				Help: "Count of write operations by table and outcome.",
			}, []string{"table", "outcome"}),
			staleUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "chaincache_stale_updates_total",
				Help: "Count of updates ignored because they would move state backward.",
			}, []string{"table", "reason"}),
			storageErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
				Name: "chaincache_storage_errors_total",
				Help: "Count of storage engine failures by operation.",
			}, []string{"op"}),
			transact: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Name:    "chaincache_transact_seconds",
				Help:    "Duration of storage engine transactions.",
				Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
			}, []string{"mode", "result"}),
		}
		prometheus.MustRegister(
			storeRegistry.writes,
			storeRegistry.staleUpdates,
			storeRegistry.storageErrors,
			storeRegistry.transact,
		)
	})
	return storeRegistry
}

func (m *StoreMetrics) ObserveWrite(table, outcome string) {
	if m == nil {
		return
	}
	m.writes.WithLabelValues(table, outcome).Inc()
}

func (m *StoreMetrics) ObserveStale(table, reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.staleUpdates.WithLabelValues(table, reason).Inc()
}

func (m *StoreMetrics) ObserveStorageError(op string) {
	if m == nil {
		return
	}
	m.storageErrors.WithLabelValues(op).Inc()
}

// ObserveTransact records how long a view or update took. mode is "view" or "update".
func (m *StoreMetrics) ObserveTransact(mode string, started time.Time, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.transact.WithLabelValues(mode, result).Observe(time.Since(started).Seconds())
}
