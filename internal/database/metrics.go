// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package database

import (
	"github.com/prometheus/client_golang/prometheus"
)

type MetricsCollector struct {
	db             *DB
	queueDepthDesc *prometheus.Desc
	writesDesc     *prometheus.Desc
}

func NewMetricsCollector(db *DB) *MetricsCollector {
	return &MetricsCollector{
		db: db,
		queueDepthDesc: prometheus.NewDesc(
			"dunning_db_write_queue_depth",
			"Number of writes waiting for the serialized sqlite writer",
			[]string{"engine"},
			nil,
		),
		writesDesc: prometheus.NewDesc(
			"dunning_db_writes_total",
			"Number of write statements executed",
			[]string{"engine"},
			nil,
		),
	}
}

func (c *MetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.queueDepthDesc
	ch <- c.writesDesc
}

func (c *MetricsCollector) Collect(ch chan<- prometheus.Metric) {
	engine := c.db.Dialect()
	ch <- prometheus.MustNewConstMetric(
		c.queueDepthDesc,
		prometheus.GaugeValue,
		float64(c.db.WriteQueueDepth()),
		engine,
	)
	ch <- prometheus.MustNewConstMetric(
		c.writesDesc,
		prometheus.CounterValue,
		float64(c.db.WritesTotal()),
		engine,
	)
}
