// Package metrics exposes Prometheus metrics for workflow editing sessions.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector records save, mutation and layout metrics. A nil *Collector is
// valid and records nothing.
type Collector struct {
	savesTotal     *prometheus.CounterVec
	saveDuration   *prometheus.HistogramVec
	mutationsTotal *prometheus.CounterVec
	layoutNodes    prometheus.Histogram
	openSessions   prometheus.Gauge
}

// NewCollector registers the workflow metrics on reg under namespace.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	f := promauto.With(reg)
	return &Collector{
		savesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflow_saves_total",
				Help:      "Total number of workflow saves",
			},
			[]string{"trigger", "result"},
		),
		saveDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "workflow_save_duration_seconds",
				Help:      "Workflow save duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"trigger"},
		),
		mutationsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "workflow_mutations_total",
				Help:      "Total number of graph operations",
			},
			[]string{"op", "result"},
		),
		layoutNodes: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "workflow_layout_nodes",
				Help:      "Number of nodes laid out per layout pass",
				Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
			},
		),
		openSessions: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "workflow_open_sessions",
				Help:      "Number of open editing sessions",
			},
		),
	}
}

// RecordSave records a finished save.
func (c *Collector) RecordSave(auto bool, err error, d time.Duration) {
	if c == nil {
		return
	}
	trigger := "manual"
	if auto {
		trigger = "auto"
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	c.savesTotal.WithLabelValues(trigger, result).Inc()
	c.saveDuration.WithLabelValues(trigger).Observe(d.Seconds())
}

// RecordMutation records a graph operation and whether it was applied.
func (c *Collector) RecordMutation(op string, applied bool) {
	if c == nil {
		return
	}
	result := "applied"
	if !applied {
		result = "rejected"
	}
	c.mutationsTotal.WithLabelValues(op, result).Inc()
}

// RecordLayout records the size of a layout pass.
func (c *Collector) RecordLayout(nodes int) {
	if c == nil {
		return
	}
	c.layoutNodes.Observe(float64(nodes))
}

// SessionOpened increments the open session gauge.
func (c *Collector) SessionOpened() {
	if c == nil {
		return
	}
	c.openSessions.Inc()
}

// SessionClosed decrements the open session gauge.
func (c *Collector) SessionClosed() {
	if c == nil {
		return
	}
	c.openSessions.Dec()
}
