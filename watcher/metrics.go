// Copyright 2026 Canonical Ltd.
// Licensed under the AGPLv3, see LICENCE file for details.

package watcher

import (
	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricsNamespace = "guimodel"
	metricsSubsystem = "watcher"
)

// Collector is a prometheus.Collector for the delta-stream worker.
type Collector struct {
	batches prometheus.Counter
	applied prometheus.Counter
	skipped prometheus.Counter
}

// NewMetricsCollector returns a new Collector.
func NewMetricsCollector() *Collector {
	return &Collector{
		batches: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "batches_total",
			Help:      "Number of delta batches received from the source.",
		}),
		applied: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "deltas_applied_total",
			Help:      "Number of deltas applied to the store.",
		}),
		skipped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "deltas_skipped_total",
			Help:      "Number of deltas discarded as unknown or malformed.",
		}),
	}
}

// Describe is part of the prometheus.Collector interface.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	c.batches.Describe(ch)
	c.applied.Describe(ch)
	c.skipped.Describe(ch)
}

// Collect is part of the prometheus.Collector interface.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	c.batches.Collect(ch)
	c.applied.Collect(ch)
	c.skipped.Collect(ch)
}
