// Copyright 2025 KrakLabs
// SPDX-License-Identifier: AGPL-3.0-or-later

package worker

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kraklabs/depvec/pkg/queue"
)

type metricsWorker struct {
	once sync.Once

	jobs        *prometheus.CounterVec
	jobDuration prometheus.Histogram
	stages      *prometheus.HistogramVec
}

var workerMetrics metricsWorker

func (m *metricsWorker) init() {
	m.once.Do(func() {
		m.jobs = prometheus.NewCounterVec(prometheus.CounterOpts{Name: "depvec_jobs_total", Help: "Jobs handled by outcome"}, []string{"status"})
		m.jobDuration = prometheus.NewHistogram(prometheus.HistogramOpts{Name: "depvec_job_duration_seconds", Help: "Wall time of processed jobs", Buckets: prometheus.ExponentialBuckets(0.5, 2, 12)})
		m.stages = prometheus.NewHistogramVec(prometheus.HistogramOpts{Name: "depvec_stage_duration_seconds", Help: "Pipeline stage durations", Buckets: prometheus.ExponentialBuckets(0.05, 2, 14)}, []string{"stage"})
		prometheus.MustRegister(m.jobs, m.jobDuration, m.stages)
	})
}

func recordJob(status queue.JobOutcome, d time.Duration) {
	workerMetrics.init()
	workerMetrics.jobs.WithLabelValues(string(status)).Inc()
	if status != queue.OutcomeSkipped && d > 0 {
		workerMetrics.jobDuration.Observe(d.Seconds())
	}
}

func recordStage(stage string, d time.Duration) {
	workerMetrics.init()
	workerMetrics.stages.WithLabelValues(stage).Observe(d.Seconds())
}
