// Package metrics exposes prometheus collectors for snapshot compilation,
// DOM stabilization and action execution.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "browser_snapshot"

// Collector records engine outcomes. A nil *Collector discards everything.
type Collector struct {
	compilesTotal    *prometheus.CounterVec
	compileDuration  prometheus.Histogram
	snapshotNodes    *prometheus.HistogramVec
	stabilizeTotal   *prometheus.CounterVec
	stabilizeWait    prometheus.Histogram
	stabilizeMutates prometheus.Histogram
	actionsTotal     *prometheus.CounterVec
	actionRetries    *prometheus.CounterVec

	gatherer prometheus.Gatherer
}

// NewCollector registers the collectors on reg. A nil reg uses a fresh
// private registry.
func NewCollector(reg *prometheus.Registry) *Collector {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	factory := promauto.With(reg)

	return &Collector{
		compilesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compiles_total",
			Help:      "Snapshot compilations by outcome.",
		}, []string{"status"}),
		compileDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compile_duration_seconds",
			Help:      "Snapshot compilation latency.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		}),
		snapshotNodes: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_nodes",
			Help:      "Readable nodes per snapshot.",
			Buckets:   prometheus.ExponentialBuckets(4, 2, 10),
		}, []string{"group"}),
		stabilizeTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stabilizations_total",
			Help:      "DOM stabilizations by status.",
		}, []string{"status"}),
		stabilizeWait: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stabilize_wait_seconds",
			Help:      "Time spent waiting for the DOM to settle.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 3, 5},
		}),
		stabilizeMutates: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stabilize_mutations",
			Help:      "Mutations observed while stabilizing.",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 8),
		}),
		actionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "actions_total",
			Help:      "Executed actions by tool and outcome.",
		}, []string{"tool", "outcome"}),
		actionRetries: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "action_retries_total",
			Help:      "Staleness retries by tool and outcome.",
		}, []string{"tool", "outcome"}),
		gatherer: reg,
	}
}

// RecordCompile records one compilation. nodes and interactive are ignored
// when err is non-nil.
func (c *Collector) RecordCompile(d time.Duration, nodes, interactive int, err error) {
	if c == nil {
		return
	}
	if err != nil {
		c.compilesTotal.WithLabelValues("error").Inc()
		return
	}
	c.compilesTotal.WithLabelValues("ok").Inc()
	c.compileDuration.Observe(d.Seconds())
	c.snapshotNodes.WithLabelValues("all").Observe(float64(nodes))
	c.snapshotNodes.WithLabelValues("interactive").Observe(float64(interactive))
}

// RecordStabilize records one stabilization result.
func (c *Collector) RecordStabilize(status string, wait time.Duration, mutations int) {
	if c == nil {
		return
	}
	c.stabilizeTotal.WithLabelValues(status).Inc()
	c.stabilizeWait.Observe(wait.Seconds())
	c.stabilizeMutates.Observe(float64(mutations))
}

// RecordAction records an action outcome: "success", "failure" or "error".
func (c *Collector) RecordAction(tool, outcome string, retried bool) {
	if c == nil {
		return
	}
	c.actionsTotal.WithLabelValues(tool, outcome).Inc()
	if retried {
		c.actionRetries.WithLabelValues(tool, outcome).Inc()
	}
}

// Handler serves the registry in the prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.gatherer, promhttp.HandlerOpts{})
}
