// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package collector

import (
	"github.com/prometheus/client_golang/prometheus"
)

type DispatchCollector struct {
	DispatchTotal    *prometheus.CounterVec
	ScanRunsTotal    prometheus.Counter
	ScanMatchedTotal prometheus.Counter
}

func NewDispatchCollector(r *prometheus.Registry) *DispatchCollector {
	m := &DispatchCollector{
		DispatchTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dunning",
			Subsystem: "dispatch",
			Name:      "total",
			Help:      "Total number of reminder dispatches by channel and outcome",
		}, []string{"channel", "outcome"}),
		ScanRunsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dunning",
			Subsystem: "scan",
			Name:      "runs_total",
			Help:      "Total number of overdue scans",
		}),
		ScanMatchedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dunning",
			Subsystem: "scan",
			Name:      "matched_total",
			Help:      "Total number of licenses returned by overdue scans",
		}),
	}

	r.MustRegister(m.DispatchTotal)
	r.MustRegister(m.ScanRunsTotal)
	r.MustRegister(m.ScanMatchedTotal)
	return m
}

func (m *DispatchCollector) ObserveDispatch(channel, outcome string) {
	m.DispatchTotal.With(prometheus.Labels{
		"channel": channel,
		"outcome": outcome,
	}).Inc()
}

func (m *DispatchCollector) ObserveScan(matched int) {
	m.ScanRunsTotal.Inc()
	m.ScanMatchedTotal.Add(float64(matched))
}
