// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog/log"

	"github.com/licenseops/dunning/internal/models"
)

// JobCounter reports notification jobs per status.
type JobCounter interface {
	CountByStatus(ctx context.Context) (map[models.JobStatus]int, error)
}

type JobCollector struct {
	counter JobCounter

	jobsDesc *prometheus.Desc
	upDesc   *prometheus.Desc
}

func NewJobCollector(counter JobCounter) *JobCollector {
	return &JobCollector{
		counter: counter,
		jobsDesc: prometheus.NewDesc(
			"dunning_notification_jobs",
			"Number of notification jobs by status",
			[]string{"status"},
			nil,
		),
		upDesc: prometheus.NewDesc(
			"dunning_notification_jobs_scrape_ok",
			"Whether the last job count query succeeded (1=ok, 0=failed)",
			nil,
			nil,
		),
	}
}

func (c *JobCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.jobsDesc
	ch <- c.upDesc
}

func (c *JobCollector) Collect(ch chan<- prometheus.Metric) {
	if c.counter == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	counts, err := c.counter.CountByStatus(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to count notification jobs for metrics")
		ch <- prometheus.MustNewConstMetric(c.upDesc, prometheus.GaugeValue, 0)
		return
	}

	for _, status := range []models.JobStatus{models.JobStatusPending, models.JobStatusSent, models.JobStatusFailed} {
		ch <- prometheus.MustNewConstMetric(
			c.jobsDesc,
			prometheus.GaugeValue,
			float64(counts[status]),
			string(status),
		)
	}
	ch <- prometheus.MustNewConstMetric(c.upDesc, prometheus.GaugeValue, 1)
}
