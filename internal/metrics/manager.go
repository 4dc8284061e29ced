// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/licenseops/dunning/internal/metrics/collector"
)

type Manager struct {
	registry     *prometheus.Registry
	jobCollector *JobCollector
	Dispatch     *collector.DispatchCollector
}

// NewManager builds a registry with runtime collectors, the job collector
// and any extra collectors such as the database one.
func NewManager(jobs JobCounter, extra ...prometheus.Collector) *Manager {
	registry := prometheus.NewRegistry()

	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	jobCollector := NewJobCollector(jobs)
	registry.MustRegister(jobCollector)

	for _, c := range extra {
		if c != nil {
			registry.MustRegister(c)
		}
	}

	log.Info().Int("extraCollectors", len(extra)).Msg("Metrics manager initialized")

	return &Manager{
		registry:     registry,
		jobCollector: jobCollector,
		Dispatch:     collector.NewDispatchCollector(registry),
	}
}

func (m *Manager) GetRegistry() *prometheus.Registry {
	return m.registry
}

func (m *Manager) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}
