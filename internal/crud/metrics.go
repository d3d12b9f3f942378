package crud

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/diewo77/go-crudgate/gate"
)

// Metrics holds the record service metrics. A nil *Metrics records nothing.
type Metrics struct {
	OperationsTotal   *prometheus.CounterVec
	OperationDuration *prometheus.HistogramVec
	CacheHitsTotal    *prometheus.CounterVec
	CacheMissesTotal  *prometheus.CounterVec
}

// NewMetrics creates and registers the metrics on registry.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		OperationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crudgate_operations_total",
				Help: "Total number of record operations by outcome",
			},
			[]string{"table", "task", "outcome"},
		),
		OperationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "crudgate_operation_duration_seconds",
				Help:    "Record operation duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"table", "task"},
		),
		CacheHitsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crudgate_cache_hits_total",
				Help: "Total number of read result cache hits",
			},
			[]string{"table"},
		),
		CacheMissesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "crudgate_cache_misses_total",
				Help: "Total number of read result cache misses",
			},
			[]string{"table"},
		),
	}

	registry.MustRegister(
		m.OperationsTotal,
		m.OperationDuration,
		m.CacheHitsTotal,
		m.CacheMissesTotal,
	)
	return m
}

// Outcome labels an operation result: "ok", the gate error kind, or "error".
func Outcome(err error) string {
	if err == nil {
		return "ok"
	}
	if k := gate.KindOf(err); k != 0 {
		return k.String()
	}
	return "error"
}

func (m *Metrics) observe(table string, task gate.Task, start time.Time, err error) {
	if m == nil {
		return
	}
	m.OperationsTotal.WithLabelValues(table, string(task), Outcome(err)).Inc()
	m.OperationDuration.WithLabelValues(table, string(task)).Observe(time.Since(start).Seconds())
}

func (m *Metrics) cacheHit(table string, hit bool) {
	if m == nil {
		return
	}
	if hit {
		m.CacheHitsTotal.WithLabelValues(table).Inc()
		return
	}
	m.CacheMissesTotal.WithLabelValues(table).Inc()
}
