// Package metrics holds the prometheus collectors a database exposes when
// statistics are enabled.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "strata"

// Operation labels.
const (
	OpPut         = "put"
	OpGet         = "get"
	OpDelete      = "delete"
	OpWrite       = "write"
	OpCommit      = "commit"
	OpRollback    = "rollback"
	OpCompact     = "compact"
	OpFlush       = "flush"
	OpIteratorNew = "iterator_new"
)

// Handle labels.
const (
	HandleIterator    = "iterator"
	HandleTransaction = "transaction"
	HandleSnapshot    = "snapshot"
)

// ResultOK is the result label of a successful operation.
const ResultOK = "ok"

// Collector counts operations and tracks open handles for one database. A nil
// *Collector ignores every call.
type Collector struct {
	ops        *prometheus.CounterVec
	handles    *prometheus.GaugeVec
	batchBytes prometheus.Histogram
	conflicts  prometheus.Counter
}

// New returns a collector whose metrics carry the database path as a constant
// label.
func New(path string) *Collector {
	labels := prometheus.Labels{"path": path}
	return &Collector{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "operations_total",
			Help:        "Database operations by operation and result.",
			ConstLabels: labels,
		}, []string{"op", "result"}),
		handles: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace:   namespace,
			Name:        "open_handles",
			Help:        "Live child handles by kind.",
			ConstLabels: labels,
		}, []string{"kind"}),
		batchBytes: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace:   namespace,
			Name:        "batch_bytes",
			Help:        "Size of applied write batches.",
			ConstLabels: labels,
			Buckets:     prometheus.ExponentialBuckets(64, 4, 10),
		}),
		conflicts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   namespace,
			Name:        "transaction_conflicts_total",
			Help:        "Transaction commits rejected because of a conflict.",
			ConstLabels: labels,
		}),
	}
}

// Observe counts one operation. result is ResultOK or an error kind.
func (c *Collector) Observe(op, result string) {
	if c == nil {
		return
	}
	c.ops.WithLabelValues(op, result).Inc()
}

func (c *Collector) HandleOpened(kind string) {
	if c == nil {
		return
	}
	c.handles.WithLabelValues(kind).Inc()
}

func (c *Collector) HandleReleased(kind string) {
	if c == nil {
		return
	}
	c.handles.WithLabelValues(kind).Dec()
}

func (c *Collector) BatchWritten(size int) {
	if c == nil {
		return
	}
	c.batchBytes.Observe(float64(size))
}

func (c *Collector) Conflict() {
	if c == nil {
		return
	}
	c.conflicts.Inc()
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.ops.Describe(ch)
	c.handles.Describe(ch)
	c.batchBytes.Describe(ch)
	c.conflicts.Describe(ch)
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.ops.Collect(ch)
	c.handles.Collect(ch)
	c.batchBytes.Collect(ch)
	c.conflicts.Collect(ch)
}
